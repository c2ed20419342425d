// Package strategy contains the pluggable signal generators and the manager
// that fans price ticks out to them and aggregates their signals.
package strategy

import (
	"math"
	"time"

	"auto-trading-engine/internal/types"
)

// Strategy is one signal generator. AddPrice appends a tick to a bounded
// rolling window; Evaluate inspects the window and returns nil when the
// strategy has no opinion or not enough history. Evaluate never panics.
type Strategy interface {
	Name() string
	AddPrice(price float64, ts time.Time) error
	Evaluate() *types.Signal
}

const defaultWindowSize = 1000

// window is the bounded rolling price buffer shared by all strategies.
// Oldest samples are evicted once the bound is exceeded.
type window struct {
	samples []types.PriceSample
	max     int
}

func newWindow(max int) *window {
	if max <= 0 {
		max = defaultWindowSize
	}
	return &window{max: max}
}

func (w *window) add(price float64, ts time.Time) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return types.NewDataErr("invalid price %v", price)
	}
	w.samples = append(w.samples, types.PriceSample{Ts: ts, Price: price})
	if len(w.samples) > w.max {
		w.samples = w.samples[len(w.samples)-w.max:]
	}
	return nil
}

func (w *window) len() int { return len(w.samples) }

func (w *window) prices() []float64 {
	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.Price
	}
	return out
}

func (w *window) last() types.PriceSample {
	return w.samples[len(w.samples)-1]
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
