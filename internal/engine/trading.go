package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/risk"
	"auto-trading-engine/internal/types"
)

// tradingLoop scans every instrument on the configured interval, feeding
// prices to the strategies and acting on consensus signals.
func (e *Engine) tradingLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.ScanInterval())
	defer ticker.Stop()

	e.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.scanOnce(ctx)
		}
	}
}

func (e *Engine) scanOnce(ctx context.Context) {
	now := e.now()
	prices := make(map[string]float64, len(e.cfg.Instruments))

	for _, inst := range e.cfg.Instruments {
		price, err := e.fetchPrice(ctx, inst)
		if err != nil {
			e.recordError(ctx, err)
			logger.Warn(ctx, "Price fetch failed, skipping instrument", "instrument", inst, "error", err.Error())
			continue
		}
		prices[inst] = price
		e.managers[inst].UpdatePrice(ctx, price, now)
		e.recordHistory(inst, price)
	}
	if len(prices) == 0 {
		return
	}

	regime, marketVol := e.marketView(prices)
	logger.Debug(ctx, "Scan market view", "regime", string(regime), "market_vol", marketVol, "instruments", len(prices))

	for _, inst := range e.cfg.Instruments {
		price, ok := prices[inst]
		if !ok {
			continue
		}
		signals, combined := e.managers[inst].GenerateSignals(ctx)
		for _, s := range signals {
			logger.Signal(ctx, inst, s.StrategyID, s.Direction.String(), s.Confidence)
		}
		if combined == nil {
			continue
		}
		logger.Signal(ctx, inst, combined.StrategyID, combined.Direction.String(), combined.Confidence,
			"agreeing", combined.Evidence["agreeing"])
		e.tryEnter(ctx, inst, *combined, price, regime, marketVol)
	}
}

// recordHistory appends one price to the bounded per-instrument series used
// for volatility estimates.
func (e *Engine) recordHistory(instrument string, price float64) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	h := append(e.instHist[instrument], price)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	e.instHist[instrument] = h
}

// marketView derives the broad-market regime and volatility from the
// equal-weight average of this scan's prices.
func (e *Engine) marketView(prices map[string]float64) (types.MarketRegime, float64) {
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	avg := sum / float64(len(prices))

	e.histMu.Lock()
	e.marketHist = append(e.marketHist, avg)
	if len(e.marketHist) > historyLimit {
		e.marketHist = e.marketHist[len(e.marketHist)-historyLimit:]
	}
	series := make([]float64, len(e.marketHist))
	copy(series, e.marketHist)
	e.histMu.Unlock()

	return risk.DetectRegime(series), risk.Volatility(series)
}

func (e *Engine) instrumentVol(instrument string) float64 {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	return risk.Volatility(e.instHist[instrument])
}

// tryEnter runs the gate, sizing and submission for one consensus signal.
// The gate and counter reservation happen in a single critical section; the
// gateway call happens outside any lock and the reservation is rolled back
// if it fails.
func (e *Engine) tryEnter(ctx context.Context, instrument string, sig types.Signal, price float64, regime types.MarketRegime, marketVol float64) {
	if sig.Direction == types.Hold {
		return
	}

	conf := sig.Confidence
	if adj, err := e.snt.Adjust(ctx, instrument); err != nil {
		logger.Warn(ctx, "Sentiment adjustment unavailable", "instrument", instrument, "error", err.Error())
	} else if adj != 0 {
		conf = math.Max(0, math.Min(1, conf+adj))
		logger.Debug(ctx, "Sentiment applied", "instrument", instrument, "adjustment", adj, "confidence", conf)
	}

	now := e.now()
	if !e.reserveEntry(instrument, conf, now) {
		return
	}

	instVol := e.instrumentVol(instrument)
	assessment := e.riskM.PriceTargets(risk.TargetInput{
		Direction:     sig.Direction,
		Confidence:    conf,
		Price:         price,
		MarketVol:     marketVol,
		InstrumentVol: instVol,
		Regime:        regime,
	})
	size := e.riskM.PositionSize(risk.SizeInput{
		Capital:       e.cfg.Capital,
		Bucket:        assessment.Bucket,
		Confidence:    conf,
		InstrumentVol: instVol,
		RegimeMult:    e.cfg.Regimes[regime].SizeMult,
		SessionMult:   e.cfg.SessionSizeMult(now),
	})
	qty := math.Floor(size / price)
	if qty <= 0 {
		e.rollbackEntry(instrument)
		logger.Debug(ctx, "Sized to zero, entry skipped", "instrument", instrument, "size", size, "price", price)
		return
	}

	side := types.SideBuy
	if sig.Direction.IsSell() {
		side = types.SideSell
	}
	order := types.Order{
		ID:             uuid.NewString(),
		Instrument:     instrument,
		Side:           side,
		Qty:            qty,
		RequestedPrice: price,
		Status:         types.OrderPending,
		CreatedAt:      now,
	}
	if err := e.st.SaveOrder(ctx, order); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist pending order", err, "order_id", order.ID)
	}

	var result types.OrderResult
	err := withRetry(ctx, e.cfg.Engine.RetryAttempts, time.Duration(e.cfg.Engine.RetryBackoffMs)*time.Millisecond, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout())
		defer cancel()
		var submitErr error
		result, submitErr = e.gw.SubmitOrder(callCtx, types.OrderReq{
			Instrument: instrument,
			Side:       side,
			Qty:        qty,
			Price:      price,
			Tag:        sig.StrategyID,
		})
		return submitErr
	})
	if err != nil {
		order.Status = types.OrderFailed
		if saveErr := e.st.SaveOrder(ctx, order); saveErr != nil {
			logger.ErrorWithErr(ctx, "Failed to persist failed order", saveErr, "order_id", order.ID)
		}
		e.rollbackEntry(instrument)
		e.recordError(ctx, types.NewGatewayErr(err))
		logger.ErrorWithErr(ctx, "Entry order failed, reservation rolled back", err,
			"instrument", instrument, "side", side, "qty", qty)
		return
	}

	// A nil error with no fill would put a zero-quantity position on the
	// book; halt instead of corrupting it.
	if !result.Success || result.ExecutedQty <= 0 || result.ExecutedPrice <= 0 {
		order.Status = types.OrderFailed
		if saveErr := e.st.SaveOrder(ctx, order); saveErr != nil {
			logger.ErrorWithErr(ctx, "Failed to persist failed order", saveErr, "order_id", order.ID)
		}
		e.rollbackEntry(instrument)
		e.recordError(ctx, types.NewStateCorruptionErr(
			"entry fill for %s reports no quantity (success=%v qty=%v price=%v)",
			instrument, result.Success, result.ExecutedQty, result.ExecutedPrice))
		return
	}

	order.Status = types.OrderExecuted
	order.ExecutedPrice = result.ExecutedPrice
	order.ExecutedQty = result.ExecutedQty
	order.Fees = result.Fees
	if err := e.st.SaveOrder(ctx, order); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist executed order", err, "order_id", order.ID)
	}

	// Brackets are anchored at the actual fill, not the signal price.
	filled := e.riskM.PriceTargets(risk.TargetInput{
		Direction:     sig.Direction,
		Confidence:    conf,
		Price:         result.ExecutedPrice,
		MarketVol:     marketVol,
		InstrumentVol: instVol,
		Regime:        regime,
	})
	pos := types.Position{
		Instrument:    instrument,
		Side:          side,
		Quantity:      result.ExecutedQty,
		AvgEntryPrice: result.ExecutedPrice,
		CurrentPrice:  result.ExecutedPrice,
		StopLoss:      filled.StopPrice,
		TakeProfit:    filled.TargetPrice,
		EntryTime:     now,
		LastUpdate:    now,
		State:         types.StateOpen,
	}
	e.book.upsert(pos)
	if err := e.st.UpsertPosition(ctx, pos); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist position", err, "instrument", instrument)
	}
	e.persistCounters(ctx)

	logger.Trade(ctx, instrument, string(side), result.ExecutedQty, result.ExecutedPrice, order.ID,
		"stop_loss", pos.StopLoss,
		"take_profit", pos.TakeProfit,
		"bucket", assessment.Bucket.String(),
		"confidence", conf,
	)
}

// reserveEntry is the single critical section gating new exposure. On
// success the daily trade counter is already incremented and a pending
// placeholder occupies the book, so concurrent scans cannot double-enter.
func (e *Engine) reserveEntry(instrument string, conf float64, now time.Time) bool {
	if _, exists := e.book.get(instrument); exists {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.running || !e.tradingEnabled || e.halted:
		return false
	case conf < e.cfg.Engine.MinConfidence:
		return false
	case e.counters.TradeCount >= e.cfg.Engine.MaxDailyTrades:
		return false
	case e.counters.RealizedPnL <= -e.cfg.Engine.MaxDailyLoss:
		return false
	}
	if last, ok := e.lastExit[instrument]; ok && now.Sub(last) < e.cfg.ReentryInterval() {
		return false
	}
	if _, exists := e.book.get(instrument); exists {
		return false
	}

	e.counters.TradeCount++
	e.book.upsert(types.Position{
		Instrument: instrument,
		State:      types.StatePendingEntry,
		EntryTime:  now,
		LastUpdate: now,
	})
	return true
}

// rollbackEntry releases a reservation after a failed or zero-sized entry.
func (e *Engine) rollbackEntry(instrument string) {
	e.mu.Lock()
	if e.counters.TradeCount > 0 {
		e.counters.TradeCount--
	}
	e.mu.Unlock()
	if p, ok := e.book.get(instrument); ok && p.State == types.StatePendingEntry {
		e.book.remove(instrument)
	}
}

func (e *Engine) persistCounters(ctx context.Context) {
	e.mu.Lock()
	counters := e.counters
	counters.Date = e.tradingDay(e.now())
	e.counters.Date = counters.Date
	e.mu.Unlock()
	if err := e.st.SaveCounters(ctx, counters); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist daily counters", err, "date", counters.Date)
	}
}
