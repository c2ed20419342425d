package strategy

import (
	"time"

	"auto-trading-engine/internal/ta"
	"auto-trading-engine/internal/types"
)

// BollingerBreakout signals when price sits at or through a band and the
// prior sample was already there. Requiring two consecutive samples at the
// band suppresses single-tick noise triggers.
type BollingerBreakout struct {
	win    *window
	period int
	stddev float64
	evals  int
}

func NewBollingerBreakout(period, windowSize int, stddev float64) *BollingerBreakout {
	if period <= 0 {
		period = 20
	}
	if stddev <= 0 {
		stddev = 2.0
	}
	return &BollingerBreakout{
		win:    newWindow(windowSize),
		period: period,
		stddev: stddev,
	}
}

func (s *BollingerBreakout) Name() string { return "bollinger_breakout" }

func (s *BollingerBreakout) AddPrice(price float64, ts time.Time) error {
	return s.win.add(price, ts)
}

func (s *BollingerBreakout) Evaluate() *types.Signal {
	s.evals++
	prices := s.win.prices()
	mid, upper, lower := ta.Bollinger(prices, s.period, s.stddev)
	if len(mid) < 2 {
		return nil
	}
	cur := prices[len(prices)-1]
	prev := prices[len(prices)-2]
	curUp, prevUp := upper[len(upper)-1], upper[len(upper)-2]
	curLow, prevLow := lower[len(lower)-1], lower[len(lower)-2]
	width := curUp - curLow
	if width <= 0 {
		return nil
	}

	var dir types.Direction
	var conf float64
	switch {
	case cur <= curLow && prev <= prevLow:
		dir = types.Buy
		conf = clampConfidence(0.6 + (curLow-cur)/width)
	case cur >= curUp && prev >= prevUp:
		dir = types.Sell
		conf = clampConfidence(0.6 + (cur-curUp)/width)
	default:
		return nil
	}

	last := s.win.last()
	return &types.Signal{
		StrategyID: s.Name(),
		Direction:  dir,
		Confidence: conf,
		Price:      last.Price,
		Ts:         last.Ts,
		Evidence: map[string]float64{
			"band_upper": curUp,
			"band_mid":   mid[len(mid)-1],
			"band_lower": curLow,
			"evals":      float64(s.evals),
		},
	}
}
