package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/types"
)

// ConsensusID is the StrategyID carried by combined signals.
const ConsensusID = "consensus"

// ConsensusConfig tunes the multi-strategy agreement rule.
type ConsensusConfig struct {
	MinAgreement  int     // strategies that must share a directional family
	MinConfidence float64 // minimum mean confidence of the agreeing set
	StrongCutoff  float64 // mean confidence above which the signal upgrades to strong
}

// Manager owns the named strategies for one instrument, fans ticks out to
// them and computes the consensus signal. Safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	strategies map[string]Strategy
	cfg        ConsensusConfig

	lastPrice types.PriceSample
	history   []types.Signal
	histLimit int
}

func NewManager(cfg ConsensusConfig) *Manager {
	if cfg.MinAgreement <= 0 {
		cfg.MinAgreement = 2
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.StrongCutoff <= 0 {
		cfg.StrongCutoff = 0.8
	}
	return &Manager{
		strategies: make(map[string]Strategy),
		cfg:        cfg,
		histLimit:  200,
	}
}

// Register adds a strategy under its own name, replacing any previous one.
func (m *Manager) Register(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.Name()] = s
}

// Names returns registered strategy names in sorted order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.strategies))
	for n := range m.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UpdatePrice broadcasts a tick to every registered strategy. A rejected
// tick (bad data) suppresses only that strategy's view of it; siblings are
// unaffected.
func (m *Manager) UpdatePrice(ctx context.Context, price float64, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.strategies {
		if err := s.AddPrice(price, ts); err != nil {
			logger.Warn(ctx, "Tick rejected by strategy", "strategy", name, "price", price, "error", err)
			continue
		}
	}
	if price > 0 {
		m.lastPrice = types.PriceSample{Ts: ts, Price: price}
	}
}

// GenerateSignals evaluates every strategy and computes the optional
// combined signal. A failure inside one strategy never blocks the others.
func (m *Manager) GenerateSignals(ctx context.Context) ([]types.Signal, *types.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.strategies))
	for n := range m.strategies {
		names = append(names, n)
	}
	sort.Strings(names)

	signals := make([]types.Signal, 0, len(names))
	for _, name := range names {
		sig, err := safeEvaluate(m.strategies[name])
		if err != nil {
			logger.ErrorWithErr(ctx, "Strategy evaluation failed", err, "strategy", name)
			continue
		}
		if sig == nil {
			continue
		}
		signals = append(signals, *sig)
	}

	combined := m.combine(signals)

	m.history = append(m.history, signals...)
	if combined != nil {
		m.history = append(m.history, *combined)
	}
	if len(m.history) > m.histLimit {
		m.history = m.history[len(m.history)-m.histLimit:]
	}
	return signals, combined
}

// Recent returns up to limit most recent signals, newest first.
func (m *Manager) Recent(limit int) []types.Signal {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit > n {
		limit = n
	}
	out := make([]types.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// combine applies the agreement rule: at least MinAgreement strategies in the
// same directional family with sufficient mean confidence. When both families
// qualify the tick is treated as contested and no combined signal is emitted.
func (m *Manager) combine(signals []types.Signal) *types.Signal {
	var buys, sells []types.Signal
	for _, s := range signals {
		switch {
		case s.Direction.IsBuy():
			buys = append(buys, s)
		case s.Direction.IsSell():
			sells = append(sells, s)
		}
	}

	buyOK := len(buys) >= m.cfg.MinAgreement
	sellOK := len(sells) >= m.cfg.MinAgreement
	if buyOK == sellOK {
		return nil
	}

	family := buys
	dir := types.Buy
	if sellOK {
		family = sells
		dir = types.Sell
	}

	mean := 0.0
	for _, s := range family {
		mean += s.Confidence
	}
	mean /= float64(len(family))
	if mean < m.cfg.MinConfidence {
		return nil
	}
	if mean > m.cfg.StrongCutoff {
		dir = dir.Strengthen()
	}

	return &types.Signal{
		StrategyID: ConsensusID,
		Direction:  dir,
		Confidence: mean,
		Price:      m.lastPrice.Price,
		Ts:         m.lastPrice.Ts,
		Evidence: map[string]float64{
			"agreeing":        float64(len(family)),
			"mean_confidence": mean,
		},
	}
}

// safeEvaluate isolates a panicking strategy so it cannot take down the
// scan loop or its sibling strategies.
func safeEvaluate(s Strategy) (sig *types.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return s.Evaluate(), nil
}
