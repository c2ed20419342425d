// Package engine runs the decision and lifecycle core: a trading loop that
// turns consensus signals into sized, bracketed entries, and a faster
// monitoring loop that marks open positions and fires their exits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/interfaces"
	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/risk"
	"auto-trading-engine/internal/store"
	"auto-trading-engine/internal/strategy"
	"auto-trading-engine/internal/types"
)

const historyLimit = 250

type Engine struct {
	cfg   *config.Config
	gw    interfaces.Gateway
	st    *store.Store
	snt   interfaces.Sentiment
	riskM *risk.Manager

	managers map[string]*strategy.Manager
	book     *repository

	mu             sync.Mutex
	counters       types.DailyCounters
	tradingEnabled bool
	halted         bool // state corruption latch, survives rollover
	running        bool
	lastExit       map[string]time.Time
	lastErrKind    types.ErrorKind
	lastErrAt      time.Time

	histMu     sync.Mutex
	instHist   map[string][]float64
	marketHist []float64

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg *config.Config, gw interfaces.Gateway, st *store.Store, snt interfaces.Sentiment) (*Engine, error) {
	profile, err := cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}
	if snt == nil {
		return nil, types.NewConfigurationErr("sentiment collaborator is nil")
	}
	managers := make(map[string]*strategy.Manager, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		managers[inst] = strategy.FromConfig(cfg)
	}
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		st:       st,
		snt:      snt,
		riskM:    risk.New(profile, cfg.Regimes),
		managers: managers,
		book:     newRepository(),
		lastExit: make(map[string]time.Time),
		instHist: make(map[string][]float64, len(cfg.Instruments)),
		now:      time.Now,
	}, nil
}

// Start recovers persisted state and launches both loops. It returns once
// the loops are running; Stop shuts them down.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.mu.Unlock()

	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("recover state: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.tradingLoop(gctx) })
	g.Go(func() error { return e.monitoringLoop(gctx) })

	done := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorWithErr(context.Background(), "Engine loop exited with error", err)
		}
		close(done)
	}()

	e.mu.Lock()
	e.running = true
	e.tradingEnabled = true
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	logger.Info(ctx, "Engine started",
		"instruments", e.cfg.Instruments,
		"mode", e.cfg.Mode,
		"scan_interval", e.cfg.ScanInterval().String(),
		"exit_interval", e.cfg.ExitInterval().String(),
	)
	return nil
}

// Stop cancels both loops and waits for them to drain, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return types.ErrEngineStopped
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("engine stop: %w", ctx.Err())
	}
	logger.Info(ctx, "Engine stopped")
	return nil
}

func (e *Engine) Status() types.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.StatusSnapshot{
		Running:        e.running,
		TradingEnabled: e.tradingEnabled && !e.halted,
		DailyPnL:       e.counters.RealizedPnL,
		DailyTrades:    e.counters.TradeCount,
		PositionCount:  e.book.count(),
		LastErrorKind:  string(e.lastErrKind),
		LastErrorAt:    e.lastErrAt,
	}
}

func (e *Engine) Positions() []types.Position {
	return e.book.list()
}

func (e *Engine) OrderHistory(ctx context.Context, limit int) ([]types.Order, error) {
	return e.st.RecentOrders(ctx, limit)
}

// recover reloads open positions and today's counters so a restart resumes
// where the last run left off.
func (e *Engine) recover(ctx context.Context) error {
	positions, err := e.st.LoadPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		// A corrupt row stays in the store untouched; it is kept out of the
		// book and trading halts until an operator intervenes.
		if err := validatePosition(p); err != nil {
			e.recordError(ctx, err)
			continue
		}
		// A crash mid-submission leaves a pending row; treat it as open so
		// the monitoring loop can still protect it.
		if p.State == types.StatePendingEntry || p.State == types.StatePendingExit {
			p.State = types.StateOpen
		}
		e.book.upsert(p)
	}

	counters, err := e.st.LoadCounters(ctx, e.tradingDay(e.now()))
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.counters = counters
	e.mu.Unlock()

	if len(positions) > 0 {
		logger.Info(ctx, "Recovered positions from store", "count", len(positions))
	}
	return nil
}

// tradingDay formats t as the IST trading date. Counters roll over at
// midnight IST, not UTC.
func (e *Engine) tradingDay(t time.Time) string {
	ist := time.FixedZone("IST", 19800)
	return t.In(ist).Format("2006-01-02")
}

// fetchPrice asks the gateway with the configured per-call timeout so a
// stalled collaborator cannot wedge a loop.
func (e *Engine) fetchPrice(ctx context.Context, instrument string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout())
	defer cancel()
	return e.gw.CurrentPrice(ctx, instrument)
}

// recordError notes the most recent failure for the status surface. A state
// corruption finding latches the halt flag: entries stay disabled across
// rollovers until an operator restarts with a clean store. Exits keep
// running regardless.
func (e *Engine) recordError(ctx context.Context, err error) {
	kind := types.KindOf(err)
	e.mu.Lock()
	e.lastErrKind = kind
	e.lastErrAt = e.now()
	if kind == types.ErrKindStateCorruption {
		e.halted = true
	}
	e.mu.Unlock()
	if kind == types.ErrKindStateCorruption {
		logger.Error(ctx, "State corruption detected, trading disabled", "error", err.Error())
	}
}

// validatePosition rejects rows that violate the book's invariants. The
// violation is reported, never auto-corrected.
func validatePosition(p types.Position) error {
	if p.Quantity <= 0 {
		return types.NewStateCorruptionErr("position %s has non-positive quantity %v", p.Instrument, p.Quantity)
	}
	if p.AvgEntryPrice <= 0 {
		return types.NewStateCorruptionErr("position %s has non-positive entry price %v", p.Instrument, p.AvgEntryPrice)
	}
	if p.Side != types.SideBuy && p.Side != types.SideSell {
		return types.NewStateCorruptionErr("position %s has invalid side %q", p.Instrument, p.Side)
	}
	switch p.State {
	case types.StateOpen, types.StatePendingEntry, types.StatePendingExit:
		return nil
	default:
		return types.NewStateCorruptionErr("position %s has invalid state %q", p.Instrument, p.State)
	}
}
