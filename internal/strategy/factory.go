package strategy

import "auto-trading-engine/internal/config"

// FromConfig builds a Manager with every enabled strategy registered under
// its configured parameters.
func FromConfig(cfg *config.Config) *Manager {
	m := NewManager(ConsensusConfig{
		MinAgreement:  cfg.Consensus.MinAgreement,
		MinConfidence: cfg.Consensus.MinConfidence,
		StrongCutoff:  cfg.Consensus.StrongCutoff,
	})
	s := cfg.Strategies
	if s.MACrossover.Enabled {
		m.Register(NewMACrossover(s.MACrossover.ShortPeriod, s.MACrossover.LongPeriod, s.WindowSize, s.MACrossover.MinGapPct))
	}
	if s.RSIReversal.Enabled {
		m.Register(NewRSIReversal(s.RSIReversal.Period, s.WindowSize, s.RSIReversal.ConfirmWindow, s.RSIReversal.Oversold, s.RSIReversal.Overbought))
	}
	if s.Bollinger.Enabled {
		m.Register(NewBollingerBreakout(s.Bollinger.Period, s.WindowSize, s.Bollinger.StdDev))
	}
	if s.MACDCross.Enabled {
		m.Register(NewMACDCross(s.MACDCross.FastPeriod, s.MACDCross.SlowPeriod, s.MACDCross.SignalPeriod, s.WindowSize, s.MACDCross.MinGap))
	}
	return m
}
