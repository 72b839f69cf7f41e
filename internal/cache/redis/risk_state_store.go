package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const lockRetryInterval = 20 * time.Millisecond

// RiskStateStore implements domain.RiskStateStore as a JSON string key guarded
// by a LockManager lock, so scanner replicas sharing one Redis see a single
// day record.
type RiskStateStore struct {
	rdb     *redis.Client
	locks   *LockManager
	key     string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRiskStateStore creates a store for the record at key. lockTTL bounds how
// long a crashed holder can block other replicas.
func NewRiskStateStore(c *Client, locks *LockManager, key string, lockTTL time.Duration, logger *slog.Logger) *RiskStateStore {
	return &RiskStateStore{
		rdb:     c.Underlying(),
		locks:   locks,
		key:     key,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "risk_state_redis")),
	}
}

// Update implements domain.RiskStateStore.
func (s *RiskStateStore) Update(ctx context.Context, fn func(state *domain.RiskState) error) (domain.RiskState, error) {
	unlock, err := s.locks.AcquireWait(ctx, s.key, s.lockTTL, lockRetryInterval)
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("redis: lock risk state: %w", err)
	}
	defer unlock()

	var state domain.RiskState
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return domain.RiskState{}, fmt.Errorf("redis: get risk state: %w", err)
	default:
		if jerr := json.Unmarshal(raw, &state); jerr != nil {
			s.logger.Warn("risk state unreadable, starting fresh",
				slog.String("key", s.key),
				slog.String("error", jerr.Error()),
			)
			state = domain.RiskState{}
		}
	}

	if err := fn(&state); err != nil {
		return domain.RiskState{}, err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("redis: marshal risk state: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return domain.RiskState{}, fmt.Errorf("redis: set risk state: %w", err)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.RiskStateStore = (*RiskStateStore)(nil)
