package strategy

import (
	"time"

	"auto-trading-engine/internal/ta"
	"auto-trading-engine/internal/types"
)

// RSIReversal signals when RSI reaches an extreme and momentum has already
// turned: oversold plus a non-decreasing RSI run buys, overbought plus a
// non-increasing run sells. The confirmation run filters out single-tick
// spikes deep in the extreme zone.
type RSIReversal struct {
	win        *window
	period     int
	oversold   float64
	overbought float64
	confirmN   int
	evals      int
}

func NewRSIReversal(period, windowSize, confirmN int, oversold, overbought float64) *RSIReversal {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= oversold {
		overbought = 70
	}
	if confirmN <= 0 {
		confirmN = 3
	}
	return &RSIReversal{
		win:        newWindow(windowSize),
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		confirmN:   confirmN,
	}
}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) AddPrice(price float64, ts time.Time) error {
	return s.win.add(price, ts)
}

func (s *RSIReversal) Evaluate() *types.Signal {
	s.evals++
	rsi := ta.RSI(s.win.prices(), s.period)
	if len(rsi) < s.confirmN {
		return nil
	}
	cur := rsi[len(rsi)-1]
	tail := rsi[len(rsi)-s.confirmN:]

	var dir types.Direction
	var conf float64
	switch {
	case cur <= s.oversold && nonDecreasing(tail):
		dir = types.Buy
		conf = clampConfidence(0.55 + (s.oversold-cur)/s.oversold)
	case cur >= s.overbought && nonIncreasing(tail):
		dir = types.Sell
		conf = clampConfidence(0.55 + (cur-s.overbought)/(100-s.overbought))
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
			"rsi":   cur,
			"evals": float64(s.evals),
		},
	}
}

func nonDecreasing(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			return false
		}
	}
	return true
}

func nonIncreasing(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[i-1] {
			return false
		}
	}
	return true
}
