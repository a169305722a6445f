package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okadachi/chess-issue-bot/internal/game"
	"github.com/okadachi/chess-issue-bot/internal/store"
)

func newTestEngine(t *testing.T, limit int, exempt ...string) (*Engine, *store.QuotaLedger) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := store.NewQuotaLedger(rdb, limit, exempt)
	return New(ledger), ledger
}

func open(t *testing.T, e *Engine, gameID, author string) *game.Game {
	t.Helper()
	out, err := e.Open(context.Background(), gameID, author)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if out.Game == nil {
		t.Fatalf("Open returned no game")
	}
	return out.Game
}

func step(t *testing.T, e *Engine, g *game.Game, id, actor, body string) (*game.Game, []Effect) {
	t.Helper()
	out, err := e.Process(context.Background(), g, game.ParseAction(id, actor, body))
	if err != nil {
		t.Fatalf("Process %q by %s: %v", body, actor, err)
	}
	return out.Game, out.Effects
}

func hasNotice(effects []Effect, key string) bool {
	for _, ef := range effects {
		if n, ok := ef.(PostNotice); ok && n.Key == key {
			return true
		}
	}
	return false
}

func hasLabel(effects []Effect, name string, add bool) bool {
	for _, ef := range effects {
		if add {
			if l, ok := ef.(AddLabel); ok && l.Name == name {
				return true
			}
		} else {
			if l, ok := ef.(RemoveLabel); ok && l.Name == name {
				return true
			}
		}
	}
	return false
}

// Scenario A: a stranger's first move claims the black seat and applies.
func TestStrangerFirstMoveClaimsSeat(t *testing.T) {
	e, ledger := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")

	g, effects := step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	if g.BlackID != "bob" {
		t.Fatalf("expected bob to claim black, got %q", g.BlackID)
	}
	if len(g.Moves) != 1 || g.Moves[0].From != "e2" || g.Moves[0].To != "e4" {
		t.Fatalf("unexpected move log: %+v", g.Moves)
	}
	if !hasLabel(effects, "Black-@bob", true) {
		t.Fatalf("expected Black-@bob label effect, got %+v", effects)
	}
	// black to move now
	if fenTurn(t, g.FEN) != "b" {
		t.Fatalf("expected black to move, fen=%s", g.FEN)
	}
	ids, _ := ledger.ActiveGames(context.Background(), "bob")
	if len(ids) != 1 || ids[0] != "42" {
		t.Fatalf("expected bob reserved for game 42, got %v", ids)
	}
}

// Scenario B: a move from the participant not on turn never mutates state.
func TestWrongTurnRejected(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")

	fen := g.FEN
	g, effects := step(t, e, g, "m2", "alice", "Chess: Move D2 to D4")
	if !hasNotice(effects, "invalid_turn") {
		t.Fatalf("expected invalid_turn notice, got %+v", effects)
	}
	if len(g.Moves) != 1 || g.FEN != fen {
		t.Fatalf("wrong-turn move mutated state: moves=%d", len(g.Moves))
	}
	if !g.Processed("m2") {
		t.Fatalf("rejected action must still be marked processed")
	}
}

// Scenario C: a forced mate closes the game and swaps labels.
func TestFoolsMateClosesGame(t *testing.T) {
	e, ledger := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")

	moves := []struct{ actor, body string }{
		{"alice", "Chess: Move F2 to F3"},
		{"bob", "Chess: Move E7 to E5"},
		{"alice", "Chess: Move G2 to G4"},
		{"bob", "Chess: Move D8 to H4"},
	}
	var effects []Effect
	for i, mv := range moves {
		g, effects = step(t, e, g, idOf(i), mv.actor, mv.body)
	}
	if g.Status != game.StatusCheckmate {
		t.Fatalf("expected checkmate, got %s", g.Status)
	}
	if g.Winner != "bob" {
		t.Fatalf("expected bob to win, got %q", g.Winner)
	}
	if !hasLabel(effects, "checkmate", true) {
		t.Fatalf("expected checkmate label, got %+v", effects)
	}
	if !hasLabel(effects, "White-@alice", false) || !hasLabel(effects, "Black-@bob", false) {
		t.Fatalf("expected role labels removed, got %+v", effects)
	}
	for _, p := range []string{"alice", "bob"} {
		ids, _ := ledger.ActiveGames(context.Background(), p)
		if len(ids) != 0 {
			t.Fatalf("expected %s released from ledger, got %v", p, ids)
		}
	}
}

// Scenario D: accepting your own draw offer is rejected.
func TestAcceptOwnDrawOffer(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")

	g, _ = step(t, e, g, "m2", "alice", "Chess: Offer Draw")
	if g.DrawOfferedBy != "alice" {
		t.Fatalf("expected pending offer by alice, got %q", g.DrawOfferedBy)
	}
	g, effects := step(t, e, g, "m3", "alice", "Chess: Accept Draw")
	if !hasNotice(effects, "draw_accept_own") {
		t.Fatalf("expected own-offer rejection, got %+v", effects)
	}
	if g.Status != game.StatusActive || g.DrawOfferedBy != "alice" {
		t.Fatalf("own-offer accept must not mutate: status=%s offer=%q", g.Status, g.DrawOfferedBy)
	}
}

func TestDrawAcceptClosesAndReleases(t *testing.T) {
	e, ledger := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	g, _ = step(t, e, g, "m2", "alice", "Chess: Offer Draw")
	g, effects := step(t, e, g, "m3", "bob", "Chess: Accept Draw")
	if g.Status != game.StatusDraw || g.DrawOfferedBy != "" {
		t.Fatalf("expected draw, got status=%s offer=%q", g.Status, g.DrawOfferedBy)
	}
	if !hasLabel(effects, "draw", true) {
		t.Fatalf("expected draw label, got %+v", effects)
	}
	for _, p := range []string{"alice", "bob"} {
		if ids, _ := ledger.ActiveGames(context.Background(), p); len(ids) != 0 {
			t.Fatalf("expected %s released, got %v", p, ids)
		}
	}
}

func TestSuccessfulMoveClearsDrawOffer(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	g, _ = step(t, e, g, "m2", "bob", "Chess: Offer Draw")
	g, _ = step(t, e, g, "m3", "bob", "Chess: Move E7 to E5")
	if g.DrawOfferedBy != "" {
		t.Fatalf("successful move must clear pending offer, got %q", g.DrawOfferedBy)
	}
}

func TestResignReleasesBothParticipants(t *testing.T) {
	e, ledger := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	g, _ = step(t, e, g, "m2", "alice", "Chess: Resign")
	if g.Status != game.StatusResigned || g.Winner != "bob" {
		t.Fatalf("expected bob to win by resignation, got status=%s winner=%q", g.Status, g.Winner)
	}
	for _, p := range []string{"alice", "bob"} {
		if ids, _ := ledger.ActiveGames(context.Background(), p); len(ids) != 0 {
			t.Fatalf("expected %s released, got %v", p, ids)
		}
	}
}

func TestQuotaBlocksSeatClaim(t *testing.T) {
	e, ledger := newTestEngine(t, 1)
	ctx := context.Background()
	if err := ledger.TryReserve(ctx, "bob", "other-game"); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	g := open(t, e, "42", "alice")
	g, effects := step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	if !hasNotice(effects, "quota_exceeded") {
		t.Fatalf("expected quota notice, got %+v", effects)
	}
	if !g.SeatOpen() {
		t.Fatalf("rejected join must not bind the seat, got %q", g.BlackID)
	}
	if len(g.Moves) != 0 {
		t.Fatalf("rejected join must not apply the move")
	}
}

func TestOverQuotaOpenLeavesTombstone(t *testing.T) {
	e, ledger := newTestEngine(t, 1)
	ctx := context.Background()
	if err := ledger.TryReserve(ctx, "alice", "other-game"); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	out, err := e.Open(ctx, "42", "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !hasNotice(out.Effects, "quota_exceeded") {
		t.Fatalf("expected quota notice, got %+v", out.Effects)
	}
	if out.Game == nil || out.Game.Status != game.StatusRejected {
		t.Fatalf("expected rejected tombstone, got %+v", out.Game)
	}
	if !out.Game.Status.Terminal() {
		t.Fatalf("tombstone must be terminal")
	}
	ids, _ := ledger.ActiveGames(ctx, "alice")
	if len(ids) != 1 || ids[0] != "other-game" {
		t.Fatalf("rejected open must not reserve quota, got %v", ids)
	}
}

func TestOperatorExemptFromQuota(t *testing.T) {
	e, ledger := newTestEngine(t, 1, "operator")
	ctx := context.Background()
	if err := ledger.TryReserve(ctx, "operator", "other-game"); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "operator", "Chess: Move E2 to E4")
	if g.BlackID != "operator" {
		t.Fatalf("operator must bypass the limit, seat=%q", g.BlackID)
	}
}

func TestCorruptPositionConsumedWithNotice(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	g.FEN = "not a position"
	g, effects := step(t, e, g, "m2", "bob", "Chess: Move E7 to E5")
	if !hasNotice(effects, "invalid_fen") {
		t.Fatalf("expected invalid_fen notice, got %+v", effects)
	}
	if len(g.Moves) != 1 {
		t.Fatalf("corrupt position must not apply the move")
	}
	if !g.Processed("m2") {
		t.Fatalf("corrupt-position action must still be consumed")
	}
}

func TestUnrecognizedConsumedSilently(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, effects := step(t, e, g, "m1", "bob", "great weather today")
	if len(effects) != 0 {
		t.Fatalf("unrecognized must produce no effects, got %+v", effects)
	}
	if !g.Processed("m1") {
		t.Fatalf("unrecognized must still be recorded as processed")
	}
	if !g.SeatOpen() {
		t.Fatalf("unrecognized chatter must not claim the seat")
	}
}

func TestActionsAfterTerminalIgnored(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")
	g, _ = step(t, e, g, "m1", "bob", "Chess: Move E2 to E4")
	g, _ = step(t, e, g, "m2", "alice", "Chess: Resign")
	g, effects := step(t, e, g, "m3", "bob", "Chess: Move E7 to E5")
	if len(effects) != 0 || len(g.Moves) != 1 {
		t.Fatalf("terminal game must ignore further actions")
	}
}

// Replaying the full action log twice yields a byte-identical record.
func TestReplayIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	g := open(t, e, "42", "alice")

	log := []struct{ id, actor, body string }{
		{"m1", "bob", "Chess: Move E2 to E4"},
		{"m2", "bob", "Chess: Move E7 to E5"},
		{"m3", "alice", "Chess: Offer Draw"},
		{"m4", "alice", "Chess: Accept Draw"},
		{"m5", "alice", "Chess: Move G1 to F3"},
	}
	for _, s := range log {
		g, _ = step(t, e, g, s.id, s.actor, s.body)
	}
	before, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, s := range log {
		var effects []Effect
		g, effects = step(t, e, g, s.id, s.actor, s.body)
		if len(effects) != 0 {
			t.Fatalf("replayed %s produced effects: %+v", s.id, effects)
		}
	}
	after, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("replay changed the record:\n%s\n%s", before, after)
	}
}

func idOf(i int) string { return string(rune('a' + i)) }

// fenTurn pulls the side-to-move field out of a FEN string.
func fenTurn(t *testing.T, fen string) string {
	t.Helper()
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		t.Fatalf("bad fen: %q", fen)
	}
	return parts[1]
}
