package archive

import (
	"strings"
	"testing"
	"time"

	"github.com/okadachi/chess-issue-bot/internal/game"
)

func sampleGame() *game.Game {
	g := game.New("17", "alice", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	g.BlackID = "bob"
	g.Moves = []game.Move{
		{From: "e2", To: "e4", SAN: "e4", PlayedBy: "alice"},
		{From: "e7", To: "e5", SAN: "e5", PlayedBy: "bob"},
		{From: "g1", To: "f3", SAN: "Nf3", PlayedBy: "alice"},
	}
	g.UpdatedAt = g.CreatedAt.Add(42 * time.Minute)
	return g
}

func TestResultToPGN(t *testing.T) {
	g := sampleGame()

	g.Status = game.StatusDraw
	if got := resultToPGN(g); got != "1/2-1/2" {
		t.Fatalf("draw: got %q", got)
	}

	g.Status = game.StatusCheckmate
	g.Winner = "alice"
	if got := resultToPGN(g); got != "1-0" {
		t.Fatalf("white checkmate: got %q", got)
	}

	g.Status = game.StatusResigned
	g.Winner = "bob"
	if got := resultToPGN(g); got != "0-1" {
		t.Fatalf("black win by resignation: got %q", got)
	}

	g.Status = game.StatusActive
	if got := resultToPGN(g); got != "*" {
		t.Fatalf("active: got %q", got)
	}
}

func TestBuildPGN(t *testing.T) {
	g := sampleGame()
	g.Status = game.StatusCheckmate
	g.Winner = "alice"

	pgn := buildPGN(g, resultToPGN(g))

	for _, want := range []string{
		`[White "alice"]`,
		`[Black "bob"]`,
		`[Date "2026.03.01"]`,
		`[Termination "checkmate"]`,
		`[Result "1-0"]`,
		"1. e4 e5 2. Nf3 1-0",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("PGN missing %q:\n%s", want, pgn)
		}
	}
}

func TestBuildPGNSanitizesNames(t *testing.T) {
	g := sampleGame()
	g.WhiteID = `evil"name\`
	pgn := buildPGN(g, "*")
	if strings.Contains(pgn, `[White "evil"name`) {
		t.Fatalf("quote not sanitized:\n%s", pgn)
	}
	if !strings.Contains(pgn, `[White "evil'name"]`) {
		t.Fatalf("unexpected sanitized header:\n%s", pgn)
	}
}

func TestMoveLists(t *testing.T) {
	g := sampleGame()
	uci := movesUCI(g)
	if len(uci) != 3 || uci[0] != "e2e4" || uci[2] != "g1f3" {
		t.Fatalf("unexpected UCI list: %v", uci)
	}
	san := movesSAN(g)
	if len(san) != 3 || san[2] != "Nf3" {
		t.Fatalf("unexpected SAN list: %v", san)
	}
}
