package engine

import (
	"sync"

	"auto-trading-engine/internal/types"
)

// repository is the in-memory position book. It is the single source of
// truth while the engine runs; the store mirrors it for restarts.
type repository struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
}

func newRepository() *repository {
	return &repository{positions: make(map[string]*types.Position)}
}

// get returns a copy so callers never hold a pointer into the book.
func (r *repository) get(instrument string) (types.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[instrument]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

func (r *repository) upsert(p types.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.positions[p.Instrument] = &cp
}

func (r *repository) remove(instrument string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.positions, instrument)
}

func (r *repository) list() []types.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, *p)
	}
	return out
}

func (r *repository) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// transition flips a position's state only if it currently holds the
// expected one, reporting whether the swap happened. This is the guard that
// keeps a stop crossing from producing two exit orders.
func (r *repository) transition(instrument string, from, to types.PositionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[instrument]
	if !ok || p.State != from {
		return false
	}
	p.State = to
	return true
}
