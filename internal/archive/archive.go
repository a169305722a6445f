// Package archive persists finished games to Postgres for later study.
// The archive is optional: with no DATABASE_URL configured the coordinator
// simply runs without one.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/okadachi/chess-issue-bot/internal/game"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one finished game. Re-running an invocation that
// already archived the game overwrites the row with identical values.
func (r *Repository) SaveResult(ctx context.Context, g *game.Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}

	pgnResult := resultToPGN(g)
	pgn := buildPGN(g, pgnResult)

	movesUCIRaw, _ := json.Marshal(movesUCI(g))
	movesSANRaw, _ := json.Marshal(movesSAN(g))
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO chess_games (
	    game_id, white_id, black_id,
	    status, winner, moves_uci, moves_san, pgn, final_fen,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    white_id=EXCLUDED.white_id,
	    black_id=EXCLUDED.black_id,
	    status=EXCLUDED.status,
	    winner=EXCLUDED.winner,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    final_fen=EXCLUDED.final_fen,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID,
		g.WhiteID, g.BlackID,
		string(g.Status), g.Winner,
		string(movesUCIRaw), string(movesSANRaw), pgn, g.FEN,
		g.CreatedAt, g.UpdatedAt, duration,
	)
	return err
}

func movesUCI(g *game.Game) []string {
	out := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		out = append(out, strings.ToLower(m.From+m.To+m.Promotion))
	}
	return out
}

func movesSAN(g *game.Game) []string {
	out := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		out = append(out, m.SAN)
	}
	return out
}

func resultToPGN(g *game.Game) string {
	switch g.Status {
	case game.StatusDraw:
		return "1/2-1/2"
	case game.StatusCheckmate, game.StatusResigned:
		switch g.Winner {
		case g.WhiteID:
			return "1-0"
		case g.BlackID:
			return "0-1"
		}
	}
	return "*"
}

func buildPGN(g *game.Game, pgnResult string) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	date := g.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Issue Thread Match\"]\n")
	b.WriteString("[Site \"Issue Tracker\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(g.WhiteID)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(g.BlackID)))
	b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", strings.ToLower(string(g.Status))))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	san := movesSAN(g)
	for i := 0; i < len(san); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
