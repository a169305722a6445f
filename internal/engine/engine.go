// Package engine is the ordering-sensitive reducer that turns the
// append-only thread message log into authoritative game state. Every
// transition is applied exactly once per message: replaying the whole log
// against the initial state reproduces an identical record because each
// step first consults the processed-action set.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/okadachi/chess-issue-bot/internal/board"
	"github.com/okadachi/chess-issue-bot/internal/game"
	"github.com/okadachi/chess-issue-bot/internal/obslog"
	"github.com/okadachi/chess-issue-bot/internal/store"
)

// Quota is the slice of the quota ledger the reducer needs. Reservations
// are set-based and idempotent, so re-running a claim after a crash is safe.
type Quota interface {
	TryReserve(ctx context.Context, participant, gameID string) error
	Release(ctx context.Context, participant, gameID string) error
}

// Engine consumes (state, action) and produces (new state, effects). It
// owns neither store; both are injected.
type Engine struct {
	quota Quota
	now   func() time.Time
}

func New(quota Quota) *Engine {
	return &Engine{quota: quota, now: time.Now}
}

// Outcome is the result of one reduced action: the mutated copy of the
// game and the ordered outbound effects the coordinator must execute
// before persisting it.
type Outcome struct {
	Game    *game.Game
	Effects []Effect
}

// Open creates a fresh game for the thread author. The author takes the
// white seat; the black seat stays open until a stranger's first action.
func (e *Engine) Open(ctx context.Context, gameID, author string) (*Outcome, error) {
	author = strings.TrimSpace(author)
	if err := e.quota.TryReserve(ctx, author, gameID); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			// persist a terminal tombstone so the rejection notice posts
			// once instead of on every later trigger for this thread
			tomb := game.New(gameID, author, board.StartFEN, e.now())
			tomb.Status = game.StatusRejected
			obslog.L().Info("open_rejected_quota",
				zap.String("game_id", gameID), zap.String("author", author))
			return &Outcome{Game: tomb, Effects: []Effect{
				PostNotice{Key: "quota_exceeded", Data: map[string]any{"Participant": author}},
			}}, nil
		}
		return nil, fmt.Errorf("reserve quota for %s: %w", author, err)
	}
	g := game.New(gameID, author, board.StartFEN, e.now())
	out := &Outcome{Game: g}
	out.Effects = append(out.Effects,
		Assign{Participant: author},
		AddLabel{Name: roleLabel(game.White, author)},
		UpsertCanonical{Key: "new_game", Data: map[string]any{"White": author}},
	)
	obslog.L().Info("game_open", zap.String("game_id", gameID), zap.String("white", author))
	return out, nil
}

// Process reduces one parsed action. The returned game copy already has the
// message marked processed; the caller persists it only after every effect
// completed, which is what keeps collaborator failures retryable.
func (e *Engine) Process(ctx context.Context, g *game.Game, act game.Action) (*Outcome, error) {
	if g.Processed(act.MessageID) {
		return &Outcome{Game: g}, nil
	}

	cur := g.Clone()
	cur.MarkProcessed(act.MessageID)
	out := &Outcome{Game: cur}

	if act.Kind == game.ActionUnrecognized {
		return out, nil
	}
	if cur.Status.Terminal() {
		// the match is over; consume silently so the message never retries
		return out, nil
	}

	// A stranger's first recognized action claims the open black seat,
	// quota permitting. The triggering action then proceeds normally;
	// the claiming move itself is not turn-checked.
	claimed := false
	if cur.SeatOpen() && cur.RoleOf(act.Actor) == "" {
		if err := e.quota.TryReserve(ctx, act.Actor, cur.ID); err != nil {
			if errors.Is(err, store.ErrQuotaExceeded) {
				obslog.L().Info("seat_claim_rejected",
					zap.String("game_id", cur.ID), zap.String("actor", act.Actor))
				out.Effects = append(out.Effects,
					PostNotice{Key: "quota_exceeded", Data: map[string]any{"Participant": act.Actor}},
					DeleteMessage{MessageID: act.MessageID},
				)
				return out, nil
			}
			return nil, fmt.Errorf("reserve quota for %s: %w", act.Actor, err)
		}
		cur.BlackID = act.Actor
		claimed = true
		out.Effects = append(out.Effects,
			Assign{Participant: act.Actor},
			AddLabel{Name: roleLabel(game.Black, act.Actor)},
		)
		obslog.L().Info("seat_claimed", zap.String("game_id", cur.ID), zap.String("black", act.Actor))
	}

	switch act.Kind {
	case game.ActionMove:
		return e.applyMove(ctx, out, act, claimed)
	case game.ActionOfferDraw:
		return e.offerDraw(out, act)
	case game.ActionAcceptDraw:
		return e.acceptDraw(ctx, out, act)
	case game.ActionResign:
		return e.resign(ctx, out, act)
	}
	return out, nil
}

func (e *Engine) applyMove(ctx context.Context, out *Outcome, act game.Action, claiming bool) (*Outcome, error) {
	cur := out.Game

	h, err := board.Load(cur.FEN)
	if err != nil {
		// corrupted stored position: operator-visible, consumed without mutation
		obslog.L().Error("corrupt_position",
			zap.String("game_id", cur.ID), zap.String("fen", cur.FEN), zap.Error(err))
		out.Effects = append(out.Effects,
			PostNotice{Key: "invalid_fen", Data: map[string]any{"FEN": cur.FEN}})
		return out, nil
	}

	if !claiming && cur.RoleOf(act.Actor) != h.SideToMove() {
		out.Effects = append(out.Effects,
			PostNotice{Key: "invalid_turn", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}

	san, err := h.ApplyMove(act.Move.From, act.Move.To, act.Move.Promotion)
	if err != nil {
		out.Effects = append(out.Effects,
			PostNotice{Key: "invalid_move", Data: map[string]any{
				"Src":  strings.ToUpper(act.Move.From),
				"Dest": strings.ToUpper(act.Move.To),
			}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}

	mover := h.SideToMove().Opponent()
	cur.DrawOfferedBy = ""
	cur.Moves = append(cur.Moves, game.Move{
		From:      act.Move.From,
		To:        act.Move.To,
		Promotion: act.Move.Promotion,
		SAN:       san,
		PlayedBy:  act.Actor,
	})
	cur.FEN = h.FEN()

	obslog.L().Info("move_applied",
		zap.String("game_id", cur.ID),
		zap.String("actor", act.Actor),
		zap.String("san", san),
		zap.String("status", string(h.Status())),
	)

	switch h.Status() {
	case board.StatusCheckmate:
		cur.Status = game.StatusCheckmate
		cur.Winner = cur.PlayerID(mover)
		out.Effects = append(out.Effects, DeleteMessage{MessageID: act.MessageID})
		return e.close(ctx, out, "checkmate", map[string]any{
			"Winner":  cur.Winner,
			"History": historyText(cur.Moves),
		}, "checkmate")
	case board.StatusDraw:
		cur.Status = game.StatusDraw
		out.Effects = append(out.Effects, DeleteMessage{MessageID: act.MessageID})
		return e.close(ctx, out, "draw", map[string]any{
			"History": historyText(cur.Moves),
		}, "draw")
	}

	next := h.SideToMove()
	data := map[string]any{
		"Src":      strings.ToUpper(act.Move.From),
		"Dest":     strings.ToUpper(act.Move.To),
		"NextTurn": roleName(next),
		"History":  historyText(cur.Moves),
	}
	out.Effects = append(out.Effects,
		DeleteMessage{MessageID: act.MessageID},
		UpsertCanonical{Key: "next_move", Data: data},
		PostNotice{Key: "successful_move", Data: data},
	)
	return out, nil
}

func (e *Engine) offerDraw(out *Outcome, act game.Action) (*Outcome, error) {
	cur := out.Game
	if cur.RoleOf(act.Actor) == "" {
		out.Effects = append(out.Effects,
			PostNotice{Key: "not_a_player", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}
	// a later offer simply overwrites an earlier one
	cur.DrawOfferedBy = act.Actor
	out.Effects = append(out.Effects,
		PostNotice{Key: "draw_offered", Data: map[string]any{"Participant": act.Actor}},
		DeleteMessage{MessageID: act.MessageID},
	)
	return out, nil
}

func (e *Engine) acceptDraw(ctx context.Context, out *Outcome, act game.Action) (*Outcome, error) {
	cur := out.Game
	if cur.RoleOf(act.Actor) == "" {
		out.Effects = append(out.Effects,
			PostNotice{Key: "not_a_player", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}
	if cur.DrawOfferedBy == "" {
		out.Effects = append(out.Effects,
			PostNotice{Key: "draw_not_offered", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}
	if cur.DrawOfferedBy == act.Actor {
		// rejecting your own offer's acceptance is a rejection, not an error
		out.Effects = append(out.Effects,
			PostNotice{Key: "draw_accept_own", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}
	cur.Status = game.StatusDraw
	cur.DrawOfferedBy = ""
	out.Effects = append(out.Effects, DeleteMessage{MessageID: act.MessageID})
	return e.close(ctx, out, "draw", map[string]any{
		"History": historyText(cur.Moves),
	}, "draw")
}

func (e *Engine) resign(ctx context.Context, out *Outcome, act game.Action) (*Outcome, error) {
	cur := out.Game
	role := cur.RoleOf(act.Actor)
	if role == "" {
		out.Effects = append(out.Effects,
			PostNotice{Key: "not_a_player", Data: map[string]any{"Participant": act.Actor}},
			DeleteMessage{MessageID: act.MessageID},
		)
		return out, nil
	}
	cur.Status = game.StatusResigned
	cur.Winner = cur.PlayerID(role.Opponent())
	cur.DrawOfferedBy = ""
	obslog.L().Info("resignation",
		zap.String("game_id", cur.ID),
		zap.String("resigner", act.Actor),
		zap.String("winner", cur.Winner),
	)
	out.Effects = append(out.Effects, DeleteMessage{MessageID: act.MessageID})
	return e.close(ctx, out, "resigned", map[string]any{
		"Resigner": act.Actor,
		"Winner":   cur.Winner,
		"History":  historyText(cur.Moves),
	}, "resigned")
}

// close finalizes a terminal game: rewrites and closes the thread, swaps
// role labels for the terminal label, and releases quota for both
// participants (symmetric release, including on resignation).
func (e *Engine) close(ctx context.Context, out *Outcome, bodyKey string, data map[string]any, label string) (*Outcome, error) {
	cur := out.Game
	out.Effects = append(out.Effects,
		CloseThread{Key: bodyKey, Data: data},
		AddLabel{Name: label},
		RemoveLabel{Name: roleLabel(game.White, cur.WhiteID)},
	)
	if !cur.SeatOpen() {
		out.Effects = append(out.Effects, RemoveLabel{Name: roleLabel(game.Black, cur.BlackID)})
	}
	if err := e.quota.Release(ctx, cur.WhiteID, cur.ID); err != nil {
		return nil, fmt.Errorf("release quota for %s: %w", cur.WhiteID, err)
	}
	if !cur.SeatOpen() {
		if err := e.quota.Release(ctx, cur.BlackID, cur.ID); err != nil {
			return nil, fmt.Errorf("release quota for %s: %w", cur.BlackID, err)
		}
	}
	obslog.L().Info("game_closed",
		zap.String("game_id", cur.ID),
		zap.String("status", string(cur.Status)),
		zap.String("winner", cur.Winner),
	)
	return out, nil
}

func roleLabel(role game.Role, participant string) string {
	return fmt.Sprintf("%s-@%s", roleName(role), participant)
}

func roleName(role game.Role) string {
	if role == game.White {
		return "White"
	}
	return "Black"
}

// historyText renders the numbered SAN move list for the canonical body.
func historyText(moves []game.Move) string {
	if len(moves) == 0 {
		return "(no moves yet)"
	}
	var b strings.Builder
	for i := 0; i < len(moves); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d. %s", i/2+1, moves[i].SAN)
		if i+1 < len(moves) {
			fmt.Fprintf(&b, " %s", moves[i+1].SAN)
		}
	}
	return b.String()
}
