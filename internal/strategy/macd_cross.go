package strategy

import (
	"math"
	"time"

	"auto-trading-engine/internal/ta"
	"auto-trading-engine/internal/types"
)

// MACDCross signals when the MACD line crosses its signal line by more than
// a minimum gap.
type MACDCross struct {
	win     *window
	fastN   int
	slowN   int
	signalN int
	minGap  float64
	evals   int
}

func NewMACDCross(fastN, slowN, signalN, windowSize int, minGap float64) *MACDCross {
	if fastN <= 0 {
		fastN = 12
	}
	if slowN <= fastN {
		slowN = 26
	}
	if signalN <= 0 {
		signalN = 9
	}
	if minGap <= 0 {
		minGap = 0.01
	}
	return &MACDCross{
		win:     newWindow(windowSize),
		fastN:   fastN,
		slowN:   slowN,
		signalN: signalN,
		minGap:  minGap,
	}
}

func (s *MACDCross) Name() string { return "macd_cross" }

func (s *MACDCross) AddPrice(price float64, ts time.Time) error {
	return s.win.add(price, ts)
}

func (s *MACDCross) Evaluate() *types.Signal {
	s.evals++
	line, signal, _ := ta.MACD(s.win.prices(), s.fastN, s.slowN, s.signalN)
	if len(line) < 2 {
		return nil
	}
	cur := line[len(line)-1] - signal[len(signal)-1]
	prev := line[len(line)-2] - signal[len(signal)-2]

	var dir types.Direction
	switch {
	case prev <= 0 && cur > s.minGap:
		dir = types.Buy
	case prev >= 0 && cur < -s.minGap:
		dir = types.Sell
	default:
		return nil
	}

	last := s.win.last()
	conf := clampConfidence(0.55 + math.Min(math.Abs(cur)/s.minGap, 4)*0.1)
	return &types.Signal{
		StrategyID: s.Name(),
		Direction:  dir,
		Confidence: conf,
		Price:      last.Price,
		Ts:         last.Ts,
		Evidence: map[string]float64{
			"macd":      line[len(line)-1],
			"signal":    signal[len(signal)-1],
			"histogram": cur,
			"evals":     float64(s.evals),
		},
	}
}
