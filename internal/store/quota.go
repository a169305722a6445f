package store

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded means the participant is already at the concurrent-game
// limit and is not exempt.
var ErrQuotaExceeded = errors.New("concurrent game limit reached")

func quotaKey(participant string) string { return "chess:quota:" + strings.TrimSpace(participant) }

// QuotaLedger tracks the set of active game ids per participant and
// enforces the maximum concurrent-games limit. It is a process-wide store
// with its own keys, never sharing a lock with any single game record.
type QuotaLedger struct {
	rdb    *redis.Client
	limit  int
	exempt map[string]struct{}
}

// NewQuotaLedger builds a ledger with the configured limit. Exempt
// identities (the operator) bypass the limit entirely.
func NewQuotaLedger(rdb *redis.Client, limit int, exempt []string) *QuotaLedger {
	ex := make(map[string]struct{}, len(exempt))
	for _, e := range exempt {
		if s := strings.TrimSpace(e); s != "" {
			ex[s] = struct{}{}
		}
	}
	return &QuotaLedger{rdb: rdb, limit: limit, exempt: ex}
}

// TryReserve records gameID as active for participant, failing with
// ErrQuotaExceeded when the participant is already at the limit. The check
// and the add run inside one WATCH transaction on the participant key, so
// two concurrent reservations cannot both squeeze under the limit.
// Re-reserving an id the participant already holds is a no-op, which keeps
// crashed-and-retried claims idempotent.
func (l *QuotaLedger) TryReserve(ctx context.Context, participant, gameID string) error {
	participant = strings.TrimSpace(participant)
	gameID = strings.TrimSpace(gameID)
	if participant == "" || gameID == "" {
		return errors.New("participant and game id required")
	}
	key := quotaKey(participant)
	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		already, err := tx.SIsMember(ctx, key, gameID).Result()
		if err != nil {
			return err
		}
		if already {
			return nil
		}
		if _, ok := l.exempt[participant]; !ok {
			n, err := tx.SCard(ctx, key).Result()
			if err != nil {
				return err
			}
			if n >= int64(l.limit) {
				return ErrQuotaExceeded
			}
		}
		pipe := tx.TxPipeline()
		pipe.SAdd(ctx, key, gameID)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// Release drops gameID from the participant's active set. Releasing an
// absent entry is a no-op.
func (l *QuotaLedger) Release(ctx context.Context, participant, gameID string) error {
	participant = strings.TrimSpace(participant)
	if participant == "" {
		return nil
	}
	return l.rdb.SRem(ctx, quotaKey(participant), strings.TrimSpace(gameID)).Err()
}

// ActiveGames lists the game ids currently reserved for participant.
func (l *QuotaLedger) ActiveGames(ctx context.Context, participant string) ([]string, error) {
	return l.rdb.SMembers(ctx, quotaKey(participant)).Result()
}
