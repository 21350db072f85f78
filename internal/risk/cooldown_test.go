package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory CooldownStore for tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	failSet bool
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]time.Time)}
}

func (m *memStore) Set(_ context.Context, symbol string, at time.Time) error {
	if m.failSet {
		return errors.New("store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[symbol] = at
	return nil
}

func (m *memStore) All(context.Context) (map[string]time.Time, error) {
	if m.failAll {
		return nil, errors.New("store down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func TestCooldownRemaining(t *testing.T) {
	c := NewCooldownState(nil)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, c.Remaining("EURUSD", 15*time.Minute, now), "unknown symbol")

	c.Mark(context.Background(), "EURUSD", now)
	assert.Equal(t, 10*time.Minute, c.Remaining("EURUSD", 15*time.Minute, now.Add(5*time.Minute)))
	assert.Zero(t, c.Remaining("EURUSD", 15*time.Minute, now.Add(20*time.Minute)), "window elapsed")
	assert.Zero(t, c.Remaining("EURUSD", 0, now), "zero window disables")
}

func TestCooldownKeyNormalization(t *testing.T) {
	c := NewCooldownState(nil)
	now := time.Now().UTC()

	c.Mark(context.Background(), "eurusd", now)
	assert.Positive(t, c.Remaining("EURUSD", time.Hour, now.Add(time.Minute)),
		"case variants share one entry")

	c.Mark(context.Background(), "XAUUSD.ecn", now)
	assert.Positive(t, c.Remaining("xauusd_ECN", time.Hour, now.Add(time.Minute)),
		"suffix separators normalize to underscore")
}

func TestCooldownHydrateKeepsNewest(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	require.NoError(t, store.Set(context.Background(), "EURUSD", now.Add(-time.Minute)))

	c := NewCooldownState(store)
	c.Mark(context.Background(), "EURUSD", now) // newer than persisted
	require.NoError(t, c.Hydrate(context.Background()))

	assert.Equal(t, 59*time.Minute, c.Remaining("EURUSD", time.Hour, now.Add(time.Minute)),
		"in-memory entry is newer and wins")
}

func TestCooldownStoreFailuresAreSoft(t *testing.T) {
	store := newMemStore()
	store.failSet = true
	store.failAll = true

	c := NewCooldownState(store)
	assert.Error(t, c.Hydrate(context.Background()))

	now := time.Now().UTC()
	c.Mark(context.Background(), "EURUSD", now) // store write fails silently
	assert.Positive(t, c.Remaining("EURUSD", time.Hour, now.Add(time.Second)),
		"decisions never depend on the store")
}
