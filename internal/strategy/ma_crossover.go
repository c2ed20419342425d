package strategy

import (
	"math"
	"time"

	"auto-trading-engine/internal/ta"
	"auto-trading-engine/internal/types"
)

// MACrossover signals when the short moving average crosses the long one by
// more than a relative gap. Equal averages never signal, so a flat market
// cannot toggle the strategy back and forth.
type MACrossover struct {
	win       *window
	shortN    int
	longN     int
	minGapPct float64
	evals     int
}

func NewMACrossover(shortN, longN, windowSize int, minGapPct float64) *MACrossover {
	if shortN <= 0 {
		shortN = 5
	}
	if longN <= shortN {
		longN = shortN * 4
	}
	if minGapPct <= 0 {
		minGapPct = 0.001
	}
	return &MACrossover{
		win:       newWindow(windowSize),
		shortN:    shortN,
		longN:     longN,
		minGapPct: minGapPct,
	}
}

func (s *MACrossover) Name() string { return "ma_crossover" }

func (s *MACrossover) AddPrice(price float64, ts time.Time) error {
	return s.win.add(price, ts)
}

func (s *MACrossover) Evaluate() *types.Signal {
	s.evals++
	if s.win.len() < s.longN+1 {
		return nil
	}
	prices := s.win.prices()
	shortMA := ta.SMA(prices, s.shortN)
	longMA := ta.SMA(prices, s.longN)
	if len(longMA) < 2 {
		return nil
	}
	// Align the short series to the long series' tail.
	curShort := shortMA[len(shortMA)-1]
	prevShort := shortMA[len(shortMA)-2]
	curLong := longMA[len(longMA)-1]
	prevLong := longMA[len(longMA)-2]
	if curLong == 0 || prevLong == 0 {
		return nil
	}

	gap := (curShort - curLong) / curLong
	prevGap := (prevShort - prevLong) / prevLong

	var dir types.Direction
	switch {
	case prevGap <= 0 && gap > s.minGapPct:
		dir = types.Buy
	case prevGap >= 0 && gap < -s.minGapPct:
		dir = types.Sell
	default:
		return nil
	}

	last := s.win.last()
	conf := clampConfidence(0.55 + math.Min(math.Abs(gap)/s.minGapPct, 4)*0.1)
	return &types.Signal{
		StrategyID: s.Name(),
		Direction:  dir,
		Confidence: conf,
		Price:      last.Price,
		Ts:         last.Ts,
		Evidence: map[string]float64{
			"short_ma": curShort,
			"long_ma":  curLong,
			"gap_pct":  gap,
			"evals":    float64(s.evals),
		},
	}
}
