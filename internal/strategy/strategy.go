// Package strategy defines the signal-source plugin boundary and the
// built-in strategies. Sources are pure market-data consumers: they never
// see account state or open positions, so admission control cannot leak
// into signal generation.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quantonic/autotrader/internal/domain"
)

// SignalSource produces at most one directional signal per evaluation.
// Declining to trade is expressed with a zero signal (NoSignal), not an
// error; errors are reserved for market-data failures.
type SignalSource interface {
	Name() string
	Evaluate(ctx context.Context, session domain.BrokerSession, inst domain.Instrument) (domain.Signal, error)
}

// Config carries the tunables shared by the built-in strategies. Fields
// a strategy does not use are ignored.
type Config struct {
	Timeframe   domain.Timeframe
	Lookback    int
	FastEMA     int
	SlowEMA     int
	RSIPeriod   int
	RSILongMin  float64 // long entries require RSI at or above this
	RSIShortMax float64 // short entries require RSI at or below this
	StopPips    float64
	TargetPips  float64
}

// Factory builds a SignalSource from a Config.
type Factory func(cfg Config) (SignalSource, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a strategy constructible by name. Built-ins register in
// their init; external strategies may register before Build is called.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Build constructs the named strategy.
func Build(name string, cfg Config) (SignalSource, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q (have %v)", name, Names())
	}
	return f(cfg)
}

// Names returns the registered strategy names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
