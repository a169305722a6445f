// Package run drives one stateless invocation end to end: take the
// per-thread lease, rehydrate the game, reduce every unconsumed message,
// execute the resulting outbound effects against the tracker, and persist
// the new record only after the effects landed.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okadachi/chess-issue-bot/internal/engine"
	"github.com/okadachi/chess-issue-bot/internal/game"
	"github.com/okadachi/chess-issue-bot/internal/msgcat"
	"github.com/okadachi/chess-issue-bot/internal/obslog"
	"github.com/okadachi/chess-issue-bot/internal/render"
	"github.com/okadachi/chess-issue-bot/internal/store"
	"github.com/okadachi/chess-issue-bot/internal/tracker"
)

// NewGameTitle is the thread title that opens a fresh game.
const NewGameTitle = "Chess: Create New Game"

// TrackerClient is the slice of the tracker API the coordinator drives.
type TrackerClient interface {
	GetThread(ctx context.Context, threadID string) (*tracker.Thread, error)
	ListMessages(ctx context.Context, threadID string) ([]tracker.Message, error)
	PostMessage(ctx context.Context, threadID, body string) (*tracker.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	UpdateThreadBody(ctx context.Context, threadID, body string) error
	CloseThread(ctx context.Context, threadID string) error
	AssignParticipant(ctx context.Context, threadID, participant string) error
	AddLabel(ctx context.Context, threadID, name string) error
	RemoveLabel(ctx context.Context, threadID, name string) error
}

// Archiver receives finished games. A nil Archiver disables archival.
type Archiver interface {
	SaveResult(ctx context.Context, g *game.Game) error
}

type Deps struct {
	Tracker  TrackerClient
	Games    *store.GameStore
	Engine   *engine.Engine
	Catalog  *msgcat.Catalog
	Renderer render.BoardRenderer
	Assets   render.AssetStore
	Archive  Archiver

	// BotIdentity is the tracker login the bot posts under; its own
	// messages are never fed back into the reducer.
	BotIdentity string
	LeaseTTL    time.Duration
}

type Coordinator struct {
	d Deps
}

func New(d Deps) *Coordinator {
	if d.LeaseTTL <= 0 {
		d.LeaseTTL = 2 * time.Minute
	}
	return &Coordinator{d: d}
}

// Run executes one invocation for the given thread. Overlapping invocations
// are serialized by an advisory lease; the loser skips cleanly and the next
// trigger picks the work up. A version conflict on save aborts the run
// without further effects.
func (c *Coordinator) Run(ctx context.Context, threadID string) error {
	token := uuid.NewString()
	if err := c.d.Games.AcquireLease(ctx, threadID, token, c.d.LeaseTTL); err != nil {
		if errors.Is(err, store.ErrLeaseHeld) {
			obslog.L().Info("run_skipped_lease_held", zap.String("thread_id", threadID))
			return nil
		}
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer func() {
		if err := c.d.Games.ReleaseLease(context.WithoutCancel(ctx), threadID, token); err != nil {
			obslog.L().Warn("lease_release_failed", zap.String("thread_id", threadID), zap.Error(err))
		}
	}()

	g, err := c.d.Games.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}

	if g == nil {
		g, err = c.openFromThread(ctx, threadID)
		if err != nil || g == nil {
			return err
		}
	}

	msgs, err := c.d.Tracker.ListMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	for _, m := range msgs {
		if m.Author == c.d.BotIdentity || g.Processed(m.ID) {
			continue
		}
		act := game.ParseAction(m.ID, m.Author, m.Body)
		out, err := c.d.Engine.Process(ctx, g, act)
		if err != nil {
			return fmt.Errorf("reduce message %s: %w", m.ID, err)
		}
		if err := c.execute(ctx, threadID, out); err != nil {
			return fmt.Errorf("effects for message %s: %w", m.ID, err)
		}
		if err := c.d.Games.Save(ctx, out.Game); err != nil {
			if errors.Is(err, store.ErrConflict) {
				obslog.L().Warn("run_aborted_conflict", zap.String("thread_id", threadID))
			}
			return fmt.Errorf("save game: %w", err)
		}
		c.deleteConsumed(ctx, out)
		g = out.Game
	}

	if g.Status.Terminal() && g.Status != game.StatusRejected && c.d.Archive != nil {
		if err := c.d.Archive.SaveResult(ctx, g); err != nil {
			// the thread is already closed; archival retries on the next run
			obslog.L().Error("archive_failed", zap.String("thread_id", threadID), zap.Error(err))
		}
	}
	return nil
}

// openFromThread creates the game when the thread title asks for one.
// Returns nil without error when the thread is not a game thread; an
// over-quota author yields a persisted terminal tombstone record.
func (c *Coordinator) openFromThread(ctx context.Context, threadID string) (*game.Game, error) {
	th, err := c.d.Tracker.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(th.Title), NewGameTitle) {
		return nil, nil
	}
	if th.State == tracker.StateClosed {
		return nil, nil
	}

	out, err := c.d.Engine.Open(ctx, threadID, th.Author)
	if err != nil {
		return nil, fmt.Errorf("open game: %w", err)
	}
	if err := c.execute(ctx, threadID, out); err != nil {
		return nil, fmt.Errorf("open effects: %w", err)
	}
	if out.Game == nil {
		return nil, nil
	}
	if err := c.d.Games.Save(ctx, out.Game); err != nil {
		return nil, fmt.Errorf("save new game: %w", err)
	}
	return out.Game, nil
}

// execute runs one outcome's effects in order, except message deletes.
// The consumed command message is the only replayable copy of the action,
// so it must survive until the record (with its processed mark) is
// persisted; deleteConsumed removes it afterwards. The remaining effects
// tolerate repetition (label ops and the body rewrite are idempotent), so
// a crash before the save leaves the run replayable.
func (c *Coordinator) execute(ctx context.Context, threadID string, out *engine.Outcome) error {
	for _, eff := range out.Effects {
		var err error
		switch e := eff.(type) {
		case engine.PostNotice:
			err = c.postNotice(ctx, threadID, e)
		case engine.DeleteMessage:
			continue
		case engine.UpsertCanonical:
			err = c.updateCanonical(ctx, threadID, out.Game, e.Key, e.Data, false)
		case engine.CloseThread:
			err = c.updateCanonical(ctx, threadID, out.Game, e.Key, e.Data, true)
		case engine.AddLabel:
			err = c.d.Tracker.AddLabel(ctx, threadID, e.Name)
		case engine.RemoveLabel:
			err = c.d.Tracker.RemoveLabel(ctx, threadID, e.Name)
		case engine.Assign:
			err = c.d.Tracker.AssignParticipant(ctx, threadID, e.Participant)
		default:
			err = fmt.Errorf("unknown effect %T", eff)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// deleteConsumed removes the command messages of an already-persisted
// outcome. A failed delete only leaves a stale command visible; the
// message is marked processed in the saved record and is never reapplied.
func (c *Coordinator) deleteConsumed(ctx context.Context, out *engine.Outcome) {
	for _, eff := range out.Effects {
		if d, ok := eff.(engine.DeleteMessage); ok {
			if err := c.d.Tracker.DeleteMessage(ctx, d.MessageID); err != nil {
				obslog.L().Warn("message_delete_failed",
					zap.String("message_id", d.MessageID), zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) postNotice(ctx context.Context, threadID string, e engine.PostNotice) error {
	body, err := c.d.Catalog.Render(e.Key, e.Data)
	if err != nil {
		return fmt.Errorf("render %s: %w", e.Key, err)
	}
	_, err = c.d.Tracker.PostMessage(ctx, threadID, body)
	return err
}

// updateCanonical rewrites the thread body with the flavored status text and
// a freshly rendered board snapshot, optionally closing the thread after.
func (c *Coordinator) updateCanonical(ctx context.Context, threadID string, g *game.Game, key string, data map[string]any, closeAfter bool) error {
	text, err := c.d.Catalog.Render(key, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", key, err)
	}

	img, err := c.d.Renderer.RenderPNG(ctx, g.FEN)
	if err != nil {
		return fmt.Errorf("render board: %w", err)
	}
	name := fmt.Sprintf("board-%03d.png", len(g.Moves))
	uri, err := c.d.Assets.Put(ctx, g.ID, name, img)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	body := text + "\n\n![board](" + uri + ")"
	if err := c.d.Tracker.UpdateThreadBody(ctx, threadID, body); err != nil {
		return fmt.Errorf("update thread body: %w", err)
	}
	if closeAfter {
		if err := c.d.Tracker.CloseThread(ctx, threadID); err != nil {
			return fmt.Errorf("close thread: %w", err)
		}
	}
	return nil
}
