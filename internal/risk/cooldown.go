package risk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// CooldownState tracks the last decision timestamp per instrument. It is
// owned by the orchestrator and injected into the guard, so tests can
// seed it deterministically. An optional store mirrors writes durably;
// store failures never affect decisions.
type CooldownState struct {
	mu    sync.Mutex
	last  map[string]time.Time
	store domain.CooldownStore // may be nil
}

// NewCooldownState creates an empty CooldownState. store may be nil.
func NewCooldownState(store domain.CooldownStore) *CooldownState {
	return &CooldownState{
		last:  make(map[string]time.Time),
		store: store,
	}
}

// Hydrate loads persisted timestamps from the backing store, keeping the
// newer entry on conflict. A nil or failing store is a no-op.
func (c *CooldownState) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	persisted, err := c.store.All(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, at := range persisted {
		key := cooldownKey(sym)
		if at.After(c.last[key]) {
			c.last[key] = at
		}
	}
	return nil
}

// Mark records a decision timestamp for the instrument and mirrors it to
// the store best-effort.
func (c *CooldownState) Mark(ctx context.Context, symbol string, at time.Time) {
	key := cooldownKey(symbol)
	c.mu.Lock()
	c.last[key] = at
	c.mu.Unlock()

	if c.store != nil {
		_ = c.store.Set(ctx, key, at)
	}
}

// Remaining returns how much of the cooldown window is left for the
// instrument at the given instant. Zero means no cooldown applies.
func (c *CooldownState) Remaining(symbol string, window time.Duration, now time.Time) time.Duration {
	if window <= 0 {
		return 0
	}
	c.mu.Lock()
	last, ok := c.last[cooldownKey(symbol)]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	remain := window - now.Sub(last)
	if remain < 0 {
		return 0
	}
	return remain
}

// cooldownKey normalizes a symbol so broker suffix variants share one
// cooldown entry (EURUSD-ECNc and EURUSD.ecn both map to EURUSD_ECNC).
func cooldownKey(symbol string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(symbol) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
