// Package store holds the two durable keyed stores: one game record per
// tracker thread, and the process-wide quota ledger. Both guarantee
// at-most-one committed writer per key via redis WATCH transactions; a
// losing writer surfaces ErrConflict and the invocation must abort without
// emitting outbound effects.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okadachi/chess-issue-bot/internal/game"
)

var (
	// ErrConflict means another writer committed between load and save.
	ErrConflict = errors.New("concurrent update")
	// ErrLeaseHeld means another invocation holds the per-game lease.
	ErrLeaseHeld = errors.New("lease held by another run")
)

const gameTTL = 0 // game records are retained as historical record, no expiry

func gameKey(id string) string  { return "chess:game:" + strings.TrimSpace(id) }
func leaseKey(id string) string { return "chess:lease:" + strings.TrimSpace(id) }

// GameStore persists one Game record per thread id.
type GameStore struct {
	rdb *redis.Client
}

func NewGameStore(rdb *redis.Client) *GameStore { return &GameStore{rdb: rdb} }

// Load returns the stored game, or nil when none exists yet.
func (s *GameStore) Load(ctx context.Context, id string) (*game.Game, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g game.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

// Save commits g if and only if the stored record still carries the version
// g was loaded with. On success the stored version is g.Version+1.
func (s *GameStore) Save(ctx context.Context, g *game.Game) error {
	key := gameKey(g.ID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var cur game.Game
			if jerr := json.Unmarshal(raw, &cur); jerr != nil {
				return jerr
			}
			if cur.Version != g.Version {
				return ErrConflict
			}
		} else if g.Version != 0 {
			// record vanished under us
			return ErrConflict
		}
		next := g.Clone()
		next.Version = g.Version + 1
		next.UpdatedAt = time.Now()
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, payload, gameTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		g.Version = next.Version
		g.UpdatedAt = next.UpdatedAt
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// AcquireLease takes the per-game advisory lock for one invocation. The
// token must be unique per run; Release only frees the lease when the token
// still matches, so a crashed holder simply times out.
func (s *GameStore) AcquireLease(ctx context.Context, id, token string, ttl time.Duration) error {
	ok, err := s.rdb.SetNX(ctx, leaseKey(id), token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

// ReleaseLease frees the lease if this run still owns it.
func (s *GameStore) ReleaseLease(ctx context.Context, id, token string) error {
	key := leaseKey(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != token {
			return nil // someone else's lease now, leave it
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, key)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// ParseRedisURL converts a redis:// URL into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
