// Package sim is the paper-trading gateway. It walks each instrument's price
// randomly from a seed and fills orders instantly at the walked price with a
// small slippage and fee model. Used in DRY_RUN mode and in tests.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"auto-trading-engine/internal/types"
)

const (
	defaultStepVol  = 0.002  // per-tick stddev of the walk
	defaultFeeRate  = 0.0003 // 3 bps per fill
	defaultSlippage = 0.0005
)

// Gateway simulates a broker. Safe for concurrent use.
type Gateway struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64

	stepVol  float64
	feeRate  float64
	slippage float64
	failRate float64
}

// Option tweaks the simulation.
type Option func(*Gateway)

// WithSeed fixes the random source so tests are reproducible.
func WithSeed(seed int64) Option {
	return func(g *Gateway) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithFailRate makes a fraction of submissions fail, for exercising retry
// and rollback paths.
func WithFailRate(rate float64) Option {
	return func(g *Gateway) { g.failRate = rate }
}

// WithStepVol overrides the per-tick volatility of the walk.
func WithStepVol(vol float64) Option {
	return func(g *Gateway) { g.stepVol = vol }
}

// New seeds one walk per instrument at the given starting prices.
func New(seeds map[string]float64, opts ...Option) *Gateway {
	g := &Gateway{
		rng:      rand.New(rand.NewSource(rand.Int63())),
		prices:   make(map[string]float64, len(seeds)),
		stepVol:  defaultStepVol,
		feeRate:  defaultFeeRate,
		slippage: defaultSlippage,
	}
	for inst, p := range seeds {
		g.prices[inst] = p
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetPrice pins an instrument's price, overriding the walk. Tests use this
// to drive stop and target crossings deterministically.
func (g *Gateway) SetPrice(instrument string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[instrument] = price
}

func (g *Gateway) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[instrument]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %s", types.ErrNoPrice, instrument)
	}
	p *= 1 + g.rng.NormFloat64()*g.stepVol
	if p <= 0 {
		p = g.prices[instrument]
	}
	g.prices[instrument] = p
	return p, nil
}

func (g *Gateway) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return types.OrderResult{}, err
	}
	if req.Qty <= 0 {
		return types.OrderResult{}, fmt.Errorf("%w: quantity %v", types.ErrOrderRejected, req.Qty)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[req.Instrument]
	if !ok || p <= 0 {
		return types.OrderResult{}, fmt.Errorf("%w: %s", types.ErrNoPrice, req.Instrument)
	}
	if g.failRate > 0 && g.rng.Float64() < g.failRate {
		return types.OrderResult{}, fmt.Errorf("%w: simulated broker failure", types.ErrOrderRejected)
	}

	// Buys fill slightly above the walked price, sells slightly below.
	fill := p * (1 + g.slippage)
	if req.Side == types.SideSell {
		fill = p * (1 - g.slippage)
	}
	return types.OrderResult{
		Success:       true,
		ExecutedPrice: fill,
		ExecutedQty:   req.Qty,
		Fees:          fill * req.Qty * g.feeRate,
	}, nil
}
