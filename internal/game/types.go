package game

import (
	"strings"
	"time"
)

// Role identifies a chess side. White is always the participant who opened
// the game thread; the black seat stays open until a second participant
// claims it with their first action.
type Role string

const (
	White Role = "white"
	Black Role = "black"
)

func (r Role) Opponent() Role {
	if r == White {
		return Black
	}
	return White
}

// Status represents a game lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCheckmate Status = "CHECKMATE"
	StatusDraw      Status = "DRAW"
	StatusResigned  Status = "RESIGNED"
	// StatusRejected marks a thread whose author was over quota at open
	// time. The record is a tombstone: no game ever ran, but its presence
	// keeps later triggers from re-posting the rejection notice.
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether no further action can mutate the game.
func (s Status) Terminal() bool { return s != StatusActive }

// Move is one applied half-move. SAN is recorded at apply time so the move
// history can be rendered without replaying the whole game.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san,omitempty"`
	PlayedBy  string `json:"played_by"`
}

// Game is the persisted state of one match, keyed by the tracker thread id.
// The only authoritative board snapshot is FEN; side to move is always
// re-derived from it, never stored.
type Game struct {
	ID  string `json:"id"`
	FEN string `json:"fen"`

	WhiteID string `json:"white_id"`
	// BlackID empty means the seat is open. The empty string is the one
	// canonical "unassigned" sentinel; legacy values like "NotAssigned"
	// are never written.
	BlackID string `json:"black_id,omitempty"`

	Moves  []Move `json:"moves"`
	Status Status `json:"status"`
	Winner string `json:"winner,omitempty"`

	DrawOfferedBy string `json:"draw_offered_by,omitempty"`

	// CanonicalMessageRef points at the single outbound message that is
	// rewritten in place with the cumulative move history. For tracker
	// platforms where the thread body itself is that message it stays empty.
	CanonicalMessageRef string `json:"canonical_message_ref,omitempty"`

	// ProcessedActions holds every message id already consumed, in the
	// order it was consumed. Guarantees exactly-once processing across
	// retries and re-runs.
	ProcessedActions []string `json:"processed_actions"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh game opened by whiteID with the given starting position.
func New(id, whiteID, startFEN string, now time.Time) *Game {
	return &Game{
		ID:        strings.TrimSpace(id),
		FEN:       startFEN,
		WhiteID:   strings.TrimSpace(whiteID),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SeatOpen reports whether the black seat is still unclaimed.
func (g *Game) SeatOpen() bool { return strings.TrimSpace(g.BlackID) == "" }

// RoleOf returns the role held by participant, or "" when they are not a player.
func (g *Game) RoleOf(participant string) Role {
	switch strings.TrimSpace(participant) {
	case "":
		return ""
	case g.WhiteID:
		return White
	case g.BlackID:
		return Black
	}
	return ""
}

// PlayerID returns the participant holding role, "" when the seat is open.
func (g *Game) PlayerID(role Role) string {
	if role == White {
		return g.WhiteID
	}
	return g.BlackID
}

// Processed reports whether the message id was already consumed.
func (g *Game) Processed(messageID string) bool {
	for _, id := range g.ProcessedActions {
		if id == messageID {
			return true
		}
	}
	return false
}

// MarkProcessed records the message id. Appending twice is a no-op.
func (g *Game) MarkProcessed(messageID string) {
	if messageID == "" || g.Processed(messageID) {
		return
	}
	g.ProcessedActions = append(g.ProcessedActions, messageID)
}

// Clone returns a deep copy so the reducer can mutate freely.
func (g *Game) Clone() *Game {
	cp := *g
	cp.Moves = append([]Move(nil), g.Moves...)
	cp.ProcessedActions = append([]string(nil), g.ProcessedActions...)
	return &cp
}
