package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/sentiment"
	"auto-trading-engine/internal/store"
	"auto-trading-engine/internal/types"
)

// stubGateway serves a fixed price and records every submission.
type stubGateway struct {
	mu         sync.Mutex
	prices     map[string]float64
	submits    []types.OrderReq
	failSubmit bool
	emptyFill  bool
}

func (g *stubGateway) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[instrument]
	if !ok {
		return 0, types.ErrNoPrice
	}
	return p, nil
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, req)
	if g.failSubmit {
		return types.OrderResult{}, types.ErrOrderRejected
	}
	if g.emptyFill {
		return types.OrderResult{}, nil
	}
	price := g.prices[req.Instrument]
	return types.OrderResult{Success: true, ExecutedPrice: price, ExecutedQty: req.Qty, Fees: 1}, nil
}

func (g *stubGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

func newTestEngine(t *testing.T, gw *stubGateway) *Engine {
	t.Helper()
	cfg := config.Default([]string{"RELIANCE"}, 10_000_000)
	cfg.Engine.RetryAttempts = 1
	cfg.Engine.RetryBackoffMs = 1
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	e, err := New(cfg, gw, st, sentiment.Noop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.running = true
	e.tradingEnabled = true
	e.counters.Date = e.tradingDay(time.Now())
	return e
}

func buySignal(conf float64) types.Signal {
	return types.Signal{StrategyID: "consensus", Direction: types.Buy, Confidence: conf, Ts: time.Now()}
}

func TestEntryCreatesBracketedPosition(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.9), 2500, types.RegimeSideways, 0.015)

	if gw.submitCount() != 1 {
		t.Fatalf("expected 1 submission, got %d", gw.submitCount())
	}
	pos, ok := e.book.get("RELIANCE")
	if !ok {
		t.Fatal("expected open position")
	}
	if pos.State != types.StateOpen {
		t.Fatalf("state = %v, want OPEN", pos.State)
	}
	if !(pos.StopLoss < pos.AvgEntryPrice && pos.AvgEntryPrice < pos.TakeProfit) {
		t.Fatalf("bracket not around entry: stop=%v entry=%v target=%v", pos.StopLoss, pos.AvgEntryPrice, pos.TakeProfit)
	}
	if e.Status().DailyTrades != 1 {
		t.Fatalf("daily trades = %d, want 1", e.Status().DailyTrades)
	}

	persisted, err := e.st.LoadPositions(context.Background())
	if err != nil || len(persisted) != 1 {
		t.Fatalf("expected 1 persisted position, got %d (err %v)", len(persisted), err)
	}
}

func TestEntryBlockedBelowMinConfidence(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.65), 2500, types.RegimeSideways, 0.015)

	if gw.submitCount() != 0 {
		t.Fatalf("expected no submissions, got %d", gw.submitCount())
	}
	if e.Status().DailyTrades != 0 {
		t.Fatalf("daily trades = %d, want 0", e.Status().DailyTrades)
	}
}

func TestEntryBlockedAtMaxDailyTrades(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)
	e.mu.Lock()
	e.counters.TradeCount = e.cfg.Engine.MaxDailyTrades
	e.mu.Unlock()

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.95), 2500, types.RegimeSideways, 0.015)

	if gw.submitCount() != 0 {
		t.Fatalf("expected no submissions at trade cap, got %d", gw.submitCount())
	}
	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("no position should exist")
	}
}

func TestEntryRollbackOnGatewayFailure(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}, failSubmit: true}
	e := newTestEngine(t, gw)

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.9), 2500, types.RegimeSideways, 0.015)

	if gw.submitCount() != 1 {
		t.Fatalf("expected 1 attempted submission, got %d", gw.submitCount())
	}
	if e.Status().DailyTrades != 0 {
		t.Fatalf("reservation not rolled back: daily trades = %d", e.Status().DailyTrades)
	}
	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("placeholder position not removed after failure")
	}
	if e.Status().LastErrorKind != string(types.ErrKindGateway) {
		t.Fatalf("last error kind = %q, want gateway", e.Status().LastErrorKind)
	}
}

func TestStopHitProducesSingleExit(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2400}}
	e := newTestEngine(t, gw)

	e.book.upsert(types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StateOpen,
	})

	e.checkExits(context.Background())
	e.checkExits(context.Background())

	if gw.submitCount() != 1 {
		t.Fatalf("expected exactly one exit order, got %d", gw.submitCount())
	}
	if gw.submits[0].Side != types.SideSell {
		t.Fatalf("exit side = %v, want SELL", gw.submits[0].Side)
	}
	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("position should be removed after exit")
	}
	if e.Status().DailyPnL >= 0 {
		t.Fatalf("stop exit should realize a loss, got %v", e.Status().DailyPnL)
	}
}

func TestExitFailureRevertsToOpen(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2400}, failSubmit: true}
	e := newTestEngine(t, gw)

	e.book.upsert(types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StateOpen,
	})

	e.checkExits(context.Background())
	pos, ok := e.book.get("RELIANCE")
	if !ok {
		t.Fatal("position must survive a failed exit")
	}
	if pos.State != types.StateOpen {
		t.Fatalf("state = %v, want OPEN for retry next tick", pos.State)
	}

	// The next tick retries the same crossing.
	gw.mu.Lock()
	gw.failSubmit = false
	gw.mu.Unlock()
	e.checkExits(context.Background())
	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("position should close once the gateway recovers")
	}
}

func TestBreakerDisablesEntriesNotExits(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2400}}
	e := newTestEngine(t, gw)
	e.mu.Lock()
	e.counters.RealizedPnL = -e.cfg.Engine.MaxDailyLoss - 1
	e.tradingEnabled = false
	e.mu.Unlock()

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.95), 2400, types.RegimeSideways, 0.015)
	if gw.submitCount() != 0 {
		t.Fatalf("entries must be blocked by breaker, got %d submissions", gw.submitCount())
	}

	e.book.upsert(types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StateOpen,
	})
	e.checkExits(context.Background())
	if gw.submitCount() != 1 {
		t.Fatalf("exits must still fire under breaker, got %d submissions", gw.submitCount())
	}
}

func TestExitTripsBreaker(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2400}}
	e := newTestEngine(t, gw)
	e.cfg.Engine.MaxDailyLoss = 500

	e.book.upsert(types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StateOpen,
	})
	e.checkExits(context.Background())

	s := e.Status()
	if s.TradingEnabled {
		t.Fatalf("breaker should trip on %v loss with limit 500", s.DailyPnL)
	}
}

func TestRecoverHaltsOnCorruptPosition(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)

	corrupt := types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      -10,
		AvgEntryPrice: 2500,
		State:         types.StateOpen,
	}
	if err := e.st.UpsertPosition(context.Background(), corrupt); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}

	if err := e.recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("corrupt position must not enter the book")
	}
	s := e.Status()
	if s.TradingEnabled {
		t.Fatal("corrupt persisted row must disable trading")
	}
	if s.LastErrorKind != string(types.ErrKindStateCorruption) {
		t.Fatalf("last error kind = %q, want state_corruption", s.LastErrorKind)
	}
	if e.reserveEntry("TCS", 0.95, time.Now()) {
		t.Fatal("entries must stay blocked after a corruption finding")
	}

	// The offending row is reported, not auto-corrected.
	rows, err := e.st.LoadPositions(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("store row must survive untouched, got %d rows (err %v)", len(rows), err)
	}
}

func TestEmptyEntryFillHaltsTrading(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}, emptyFill: true}
	e := newTestEngine(t, gw)

	e.tryEnter(context.Background(), "RELIANCE", buySignal(0.9), 2500, types.RegimeSideways, 0.015)

	if _, ok := e.book.get("RELIANCE"); ok {
		t.Fatal("no-quantity fill must not create a position")
	}
	s := e.Status()
	if s.DailyTrades != 0 {
		t.Fatalf("reservation not rolled back: daily trades = %d", s.DailyTrades)
	}
	if s.TradingEnabled {
		t.Fatal("no-quantity fill must halt trading")
	}
	if s.LastErrorKind != string(types.ErrKindStateCorruption) {
		t.Fatalf("last error kind = %q, want state_corruption", s.LastErrorKind)
	}
}

func TestEmptyExitFillKeepsPosition(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2400}, emptyFill: true}
	e := newTestEngine(t, gw)

	e.book.upsert(types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StateOpen,
	})
	e.checkExits(context.Background())

	pos, ok := e.book.get("RELIANCE")
	if !ok {
		t.Fatal("position must not be dropped on a no-quantity exit fill")
	}
	if pos.State != types.StateOpen {
		t.Fatalf("state = %v, want OPEN for retry", pos.State)
	}
	if e.Status().TradingEnabled {
		t.Fatal("no-quantity exit fill must halt trading")
	}
}

func TestReentryCooldown(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)
	now := time.Now()

	e.mu.Lock()
	e.lastExit["RELIANCE"] = now.Add(-time.Minute)
	e.mu.Unlock()
	if e.reserveEntry("RELIANCE", 0.9, now) {
		t.Fatal("reservation must be blocked inside the cooldown window")
	}

	e.mu.Lock()
	e.lastExit["RELIANCE"] = now.Add(-e.cfg.ReentryInterval() - time.Minute)
	e.mu.Unlock()
	if !e.reserveEntry("RELIANCE", 0.9, now) {
		t.Fatal("reservation must pass once the cooldown has elapsed")
	}
}

func TestDailyRollover(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	e := newTestEngine(t, gw)
	e.mu.Lock()
	e.counters = types.DailyCounters{Date: "2026-03-01", RealizedPnL: -4000, TradeCount: 7}
	e.tradingEnabled = false
	e.mu.Unlock()

	e.rolloverIfNeeded(context.Background())

	s := e.Status()
	if s.DailyTrades != 0 || s.DailyPnL != 0 {
		t.Fatalf("counters not reset: %+v", s)
	}
	if !s.TradingEnabled {
		t.Fatal("trading must re-enable on rollover")
	}

	prev, err := e.st.LoadCounters(context.Background(), "2026-03-01")
	if err != nil {
		t.Fatalf("LoadCounters: %v", err)
	}
	if prev.RealizedPnL != -4000 || prev.TradeCount != 7 {
		t.Fatalf("finished day not persisted: %+v", prev)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	cfg := config.Default([]string{"RELIANCE"}, 10_000_000)
	cfg.Engine.ScanIntervalSec = 3600
	cfg.Engine.ExitIntervalSec = 3600
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	e, err := New(cfg, gw, st, sentiment.Noop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.Status().Running {
		t.Fatal("status should report running")
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Status().Running {
		t.Fatal("status should report stopped")
	}
	if err := e.Stop(stopCtx); err == nil {
		t.Fatal("second Stop must fail")
	}
}

func TestRecoverRestoresPositions(t *testing.T) {
	gw := &stubGateway{prices: map[string]float64{"RELIANCE": 2500}}
	cfg := config.Default([]string{"RELIANCE"}, 10_000_000)
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "engine.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	p := types.Position{
		Instrument:    "RELIANCE",
		Side:          types.SideBuy,
		Quantity:      10,
		AvgEntryPrice: 2500,
		StopLoss:      2437.5,
		TakeProfit:    2625,
		State:         types.StatePendingExit,
	}
	if err := st.UpsertPosition(context.Background(), p); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}

	e, err := New(cfg, gw, st, sentiment.Noop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	got, ok := e.book.get("RELIANCE")
	if !ok {
		t.Fatal("position not recovered")
	}
	if got.State != types.StateOpen {
		t.Fatalf("pending state must normalize to OPEN, got %v", got.State)
	}
}
