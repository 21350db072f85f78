package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownHashKey = "autotrader:cooldowns"

// CooldownStore implements domain.CooldownStore on a Redis hash keyed by
// normalized symbol, with Unix-millisecond timestamps as values. The hash
// survives restarts so freshly booted processes inherit active cooldowns.
type CooldownStore struct {
	rdb *redis.Client
}

// NewCooldownStore creates a CooldownStore on the given client.
func NewCooldownStore(client *Client) *CooldownStore {
	return &CooldownStore{rdb: client.Underlying()}
}

// Set records the decision timestamp for a symbol.
func (s *CooldownStore) Set(ctx context.Context, symbol string, at time.Time) error {
	if err := s.rdb.HSet(ctx, cooldownHashKey, symbol, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis: set cooldown %s: %w", symbol, err)
	}
	return nil
}

// All returns every persisted cooldown timestamp. Unparseable values are
// skipped rather than failing the whole load.
func (s *CooldownStore) All(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.rdb.HGetAll(ctx, cooldownHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load cooldowns: %w", err)
	}

	out := make(map[string]time.Time, len(raw))
	for sym, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[sym] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}
