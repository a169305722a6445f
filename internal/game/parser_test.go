package game

import "testing"

func TestParseMove(t *testing.T) {
	act := ParseAction("m1", "alice", "Chess: Move E2 to E4")
	if act.Kind != ActionMove || act.Move == nil {
		t.Fatalf("expected move action, got %+v", act)
	}
	if act.Move.From != "e2" || act.Move.To != "e4" || act.Move.Promotion != "" {
		t.Fatalf("unexpected move payload: %+v", act.Move)
	}
	if act.MessageID != "m1" || act.Actor != "alice" {
		t.Fatalf("binding lost: %+v", act)
	}
}

func TestParseMovePromotion(t *testing.T) {
	act := ParseAction("m2", "bob", "chess: move A7 to A8 promote to Q")
	if act.Kind != ActionMove || act.Move == nil {
		t.Fatalf("expected move action, got %+v", act)
	}
	if act.Move.Promotion != "q" {
		t.Fatalf("expected promotion q, got %q", act.Move.Promotion)
	}
}

func TestParseMoveMalformed(t *testing.T) {
	cases := []string{
		"Chess: Move Z9 to E4",
		"Chess: Move E2 to E9",
		"Chess: Move E2",
		"Chess: Move E2 to E4 promote to K",
		"move e2 to e4",
	}
	for _, body := range cases {
		act := ParseAction("m", "u", body)
		if act.Kind != ActionUnrecognized {
			t.Fatalf("%q: expected unrecognized, got %s", body, act.Kind)
		}
		if act.Move != nil {
			t.Fatalf("%q: malformed move must not carry a payload", body)
		}
	}
}

func TestParseDrawAndResign(t *testing.T) {
	cases := map[string]ActionKind{
		"Chess: Offer Draw":        ActionOfferDraw,
		"chess: offer draw please": ActionOfferDraw,
		"CHESS: ACCEPT DRAW":       ActionAcceptDraw,
		"chess: resign":            ActionResign,
		"chess: resignation":       ActionUnrecognized,
		"nice game!":               ActionUnrecognized,
	}
	for body, want := range cases {
		if got := ParseAction("m", "u", body).Kind; got != want {
			t.Fatalf("%q: got %s want %s", body, got, want)
		}
	}
}
