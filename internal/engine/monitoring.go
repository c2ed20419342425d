package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/types"
)

// monitoringLoop runs faster than the trading loop. It marks open positions
// to market, fires stop/target exits, rolls counters over at the IST day
// boundary and trips the daily-loss breaker. Exits are never disabled, even
// when the breaker has halted entries.
func (e *Engine) monitoringLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.ExitInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.rolloverIfNeeded(ctx)
			e.checkExits(ctx)
		}
	}
}

func (e *Engine) checkExits(ctx context.Context) {
	for _, pos := range e.book.list() {
		if pos.State != types.StateOpen {
			continue
		}
		price, err := e.fetchPrice(ctx, pos.Instrument)
		if err != nil {
			e.recordError(ctx, err)
			logger.Warn(ctx, "Exit check price fetch failed", "instrument", pos.Instrument, "error", err.Error())
			continue
		}

		now := e.now()
		pos.MarkPrice(price, now)
		e.book.upsert(pos)
		if err := e.st.UpsertPosition(ctx, pos); err != nil {
			logger.ErrorWithErr(ctx, "Failed to persist mark", err, "instrument", pos.Instrument)
		}

		hit, reason := pos.ExitHit(price)
		if !hit {
			continue
		}
		// Only the goroutine that wins this transition submits the exit
		// order; a re-check on the same crossing is a no-op.
		if !e.book.transition(pos.Instrument, types.StateOpen, types.StatePendingExit) {
			continue
		}
		logger.Risk(ctx, pos.Instrument, reason,
			"price", price,
			"stop_loss", pos.StopLoss,
			"take_profit", pos.TakeProfit,
			"unrealized_pnl", pos.UnrealizedPnL,
		)
		e.exitPosition(ctx, pos, price, reason)
	}
}

// exitPosition closes one position at market. On gateway failure the
// position reverts to OPEN so the next tick retries the exit.
func (e *Engine) exitPosition(ctx context.Context, pos types.Position, price float64, reason string) {
	side := types.SideSell
	if pos.Side == types.SideSell {
		side = types.SideBuy
	}
	now := e.now()
	order := types.Order{
		ID:             uuid.NewString(),
		Instrument:     pos.Instrument,
		Side:           side,
		Qty:            pos.Quantity,
		RequestedPrice: price,
		Status:         types.OrderPending,
		CreatedAt:      now,
	}
	if err := e.st.SaveOrder(ctx, order); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist pending exit order", err, "order_id", order.ID)
	}

	var result types.OrderResult
	err := withRetry(ctx, e.cfg.Engine.RetryAttempts, time.Duration(e.cfg.Engine.RetryBackoffMs)*time.Millisecond, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout())
		defer cancel()
		var submitErr error
		result, submitErr = e.gw.SubmitOrder(callCtx, types.OrderReq{
			Instrument: pos.Instrument,
			Side:       side,
			Qty:        pos.Quantity,
			Price:      price,
			Tag:        reason,
		})
		return submitErr
	})
	if err != nil {
		order.Status = types.OrderFailed
		if saveErr := e.st.SaveOrder(ctx, order); saveErr != nil {
			logger.ErrorWithErr(ctx, "Failed to persist failed exit order", saveErr, "order_id", order.ID)
		}
		e.book.transition(pos.Instrument, types.StatePendingExit, types.StateOpen)
		e.recordError(ctx, types.NewGatewayErr(err))
		logger.ErrorWithErr(ctx, "Exit order failed, will retry next tick", err,
			"instrument", pos.Instrument, "reason", reason)
		return
	}

	// An unfilled exit reported as success would drop the position while
	// the holding still exists at the broker. Keep the position and halt.
	if !result.Success || result.ExecutedQty <= 0 {
		order.Status = types.OrderFailed
		if saveErr := e.st.SaveOrder(ctx, order); saveErr != nil {
			logger.ErrorWithErr(ctx, "Failed to persist failed exit order", saveErr, "order_id", order.ID)
		}
		e.book.transition(pos.Instrument, types.StatePendingExit, types.StateOpen)
		e.recordError(ctx, types.NewStateCorruptionErr(
			"exit fill for %s reports no quantity (success=%v qty=%v)",
			pos.Instrument, result.Success, result.ExecutedQty))
		return
	}

	order.Status = types.OrderExecuted
	order.ExecutedPrice = result.ExecutedPrice
	order.ExecutedQty = result.ExecutedQty
	order.Fees = result.Fees
	if err := e.st.SaveOrder(ctx, order); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist executed exit order", err, "order_id", order.ID)
	}

	pnl := (result.ExecutedPrice - pos.AvgEntryPrice) * result.ExecutedQty
	if pos.Side == types.SideSell {
		pnl = (pos.AvgEntryPrice - result.ExecutedPrice) * result.ExecutedQty
	}
	pnl -= result.Fees

	fill := types.TradeFill{
		ID:         uuid.NewString(),
		Instrument: pos.Instrument,
		Side:       side,
		Qty:        result.ExecutedQty,
		Price:      result.ExecutedPrice,
		PnL:        pnl,
		Reason:     reason,
		ExecutedAt: now,
	}
	if err := e.st.AppendFill(ctx, fill); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist trade fill", err, "fill_id", fill.ID)
	}

	e.book.remove(pos.Instrument)
	if err := e.st.DeletePosition(ctx, pos.Instrument); err != nil {
		logger.ErrorWithErr(ctx, "Failed to delete persisted position", err, "instrument", pos.Instrument)
	}

	breakerTripped := false
	e.mu.Lock()
	e.counters.RealizedPnL += pnl
	e.lastExit[pos.Instrument] = now
	if e.tradingEnabled && e.counters.RealizedPnL <= -e.cfg.Engine.MaxDailyLoss {
		e.tradingEnabled = false
		breakerTripped = true
	}
	dailyPnL := e.counters.RealizedPnL
	e.mu.Unlock()
	e.persistCounters(ctx)

	logger.Trade(ctx, pos.Instrument, string(side), result.ExecutedQty, result.ExecutedPrice, order.ID,
		"reason", reason,
		"pnl", pnl,
		"daily_pnl", dailyPnL,
	)
	if breakerTripped {
		logger.Risk(ctx, pos.Instrument, "DAILY_LOSS_BREAKER",
			"daily_pnl", dailyPnL,
			"max_daily_loss", e.cfg.Engine.MaxDailyLoss,
		)
	}
}

// rolloverIfNeeded resets counters and re-enables trading when the IST
// trading day changes. The finished day's totals are persisted first.
func (e *Engine) rolloverIfNeeded(ctx context.Context) {
	day := e.tradingDay(e.now())

	e.mu.Lock()
	if e.counters.Date == "" {
		e.counters.Date = day
	}
	if e.counters.Date == day {
		e.mu.Unlock()
		return
	}
	finished := e.counters
	e.counters = types.DailyCounters{Date: day}
	e.tradingEnabled = true
	e.mu.Unlock()

	if err := e.st.SaveCounters(ctx, finished); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist finished day", err, "date", finished.Date)
	}
	if err := e.st.SaveCounters(ctx, types.DailyCounters{Date: day}); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist new day", err, "date", day)
	}
	logger.Info(ctx, "Daily rollover",
		"previous_date", finished.Date,
		"previous_pnl", finished.RealizedPnL,
		"previous_trades", finished.TradeCount,
		"new_date", day,
	)
}
