// Package board is a thin adapter over the external chess rules engine.
// It owns no state beyond the position handle it wraps; all legality,
// check and draw detection is delegated to the library.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/okadachi/chess-issue-bot/internal/game"
)

var (
	// ErrInvalidPosition means the stored position string is corrupt.
	// Callers must treat this as a data-integrity failure, not user input.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrIllegalMove covers every rules violation for the current position.
	ErrIllegalMove = errors.New("illegal move")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// GameStatus is the rules engine's verdict on a position.
type GameStatus string

const (
	StatusOngoing   GameStatus = "ongoing"
	StatusCheckmate GameStatus = "checkmate"
	StatusDraw      GameStatus = "draw"
)

// Handle wraps one loaded position.
type Handle struct {
	g *nchess.Game
}

// Load parses a serialized position. A malformed string yields
// ErrInvalidPosition.
func Load(fen string) (*Handle, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPosition)
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return &Handle{g: nchess.NewGame(opt)}, nil
}

// ApplyMove applies a from/to move (plus optional promotion piece letter)
// and returns its SAN. Every rules violation maps to ErrIllegalMove.
func (h *Handle) ApplyMove(from, to, promotion string) (string, error) {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	pos := h.g.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := h.g.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return san, nil
}

// Status reports checkmate, draw, or ongoing for the current position.
func (h *Handle) Status() GameStatus {
	switch h.g.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		return StatusCheckmate
	case nchess.Draw:
		return StatusDraw
	default:
		return StatusOngoing
	}
}

// SideToMove returns whose turn it is.
func (h *Handle) SideToMove() game.Role {
	if h.g.Position().Turn() == nchess.White {
		return game.White
	}
	return game.Black
}

// FEN serializes the current position.
func (h *Handle) FEN() string { return h.g.FEN() }

// Board exposes the raw board for rendering.
func (h *Handle) Board() *nchess.Board { return h.g.Position().Board() }
