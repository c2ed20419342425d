// Package sentiment supplies optional confidence adjustments from outside
// the price stream. The engine treats the collaborator as advisory: a
// failure here never blocks a trading decision.
package sentiment

import (
	"context"
	"sync"

	"auto-trading-engine/internal/interfaces"
)

// Noop always returns a zero adjustment. Used when no sentiment source is
// configured.
type Noop struct{}

var _ interfaces.Sentiment = Noop{}

func (Noop) Adjust(ctx context.Context, instrument string) (float64, error) {
	return 0, nil
}

// Static serves adjustments from an in-memory table, clamped to [-0.2, 0.2]
// so sentiment can tilt a decision but never dominate it.
type Static struct {
	mu    sync.RWMutex
	table map[string]float64
}

var _ interfaces.Sentiment = (*Static)(nil)

func NewStatic(table map[string]float64) *Static {
	s := &Static{table: make(map[string]float64, len(table))}
	for k, v := range table {
		s.table[k] = clamp(v)
	}
	return s
}

// Set updates one instrument's adjustment.
func (s *Static) Set(instrument string, adj float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[instrument] = clamp(adj)
}

func (s *Static) Adjust(ctx context.Context, instrument string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table[instrument], nil
}

func clamp(v float64) float64 {
	if v > 0.2 {
		return 0.2
	}
	if v < -0.2 {
		return -0.2
	}
	return v
}
