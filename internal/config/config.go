package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"auto-trading-engine/internal/types"
)

// RiskProfile is an immutable named bundle of bracket/sizing bounds.
type RiskProfile struct {
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
}

// RegimeAdjustment scales brackets and sizing for one market regime.
type RegimeAdjustment struct {
	StopMult   float64 `yaml:"stop_mult"`
	TargetMult float64 `yaml:"target_mult"`
	SizeMult   float64 `yaml:"size_mult"`
}

// SessionWindow applies a size multiplier inside an intraday window.
type SessionWindow struct {
	Name     string  `yaml:"name"`
	From     string  `yaml:"from"` // HH:MM
	To       string  `yaml:"to"`   // HH:MM
	SizeMult float64 `yaml:"size_mult"`
}

type Config struct {
	Mode        string   `yaml:"mode"` // DRY_RUN or LIVE
	Instruments []string `yaml:"instruments"`
	Capital     float64  `yaml:"capital"`

	Profile  string                                   `yaml:"profile"` // conservative/moderate/aggressive
	Profiles map[string]RiskProfile                   `yaml:"profiles"`
	Regimes  map[types.MarketRegime]RegimeAdjustment  `yaml:"regimes"`
	Sessions []SessionWindow                          `yaml:"sessions"`

	Strategies struct {
		WindowSize int `yaml:"window_size"`
		MACrossover struct {
			Enabled      bool    `yaml:"enabled"`
			ShortPeriod  int     `yaml:"short_period"`
			LongPeriod   int     `yaml:"long_period"`
			MinGapPct    float64 `yaml:"min_gap_pct"`
		} `yaml:"ma_crossover"`
		RSIReversal struct {
			Enabled       bool    `yaml:"enabled"`
			Period        int     `yaml:"period"`
			Oversold      float64 `yaml:"oversold"`
			Overbought    float64 `yaml:"overbought"`
			ConfirmWindow int     `yaml:"confirm_window"`
		} `yaml:"rsi_reversal"`
		Bollinger struct {
			Enabled bool    `yaml:"enabled"`
			Period  int     `yaml:"period"`
			StdDev  float64 `yaml:"std_dev"`
		} `yaml:"bollinger"`
		MACDCross struct {
			Enabled      bool    `yaml:"enabled"`
			FastPeriod   int     `yaml:"fast_period"`
			SlowPeriod   int     `yaml:"slow_period"`
			SignalPeriod int     `yaml:"signal_period"`
			MinGap       float64 `yaml:"min_gap"`
		} `yaml:"macd_cross"`
	} `yaml:"strategies"`

	Consensus struct {
		MinAgreement  int     `yaml:"min_agreement"`
		MinConfidence float64 `yaml:"min_confidence"`
		StrongCutoff  float64 `yaml:"strong_cutoff"`
	} `yaml:"consensus"`

	Engine struct {
		ScanIntervalSec   int     `yaml:"scan_interval_sec"`
		ExitIntervalSec   int     `yaml:"exit_interval_sec"`
		GatewayTimeoutSec int     `yaml:"gateway_timeout_sec"`
		MaxDailyTrades    int     `yaml:"max_daily_trades"`
		MaxDailyLoss      float64 `yaml:"max_daily_loss"`
		MinConfidence     float64 `yaml:"min_confidence"`
		ReentryMinutes    int     `yaml:"reentry_minutes"`
		RetryAttempts     int     `yaml:"retry_attempts"`
		RetryBackoffMs    int     `yaml:"retry_backoff_ms"`
	} `yaml:"engine"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Engine.ScanIntervalSec) * time.Second
}

func (c *Config) ExitInterval() time.Duration {
	return time.Duration(c.Engine.ExitIntervalSec) * time.Second
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Engine.GatewayTimeoutSec) * time.Second
}

func (c *Config) ReentryInterval() time.Duration {
	return time.Duration(c.Engine.ReentryMinutes) * time.Minute
}

// ActiveProfile resolves the configured risk profile.
func (c *Config) ActiveProfile() (RiskProfile, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return RiskProfile{}, fmt.Errorf("%w: %q", types.ErrUnknownProfile, c.Profile)
	}
	return p, nil
}

// SessionSizeMult returns the size multiplier for the wall-clock time t, 1.0
// outside any configured window.
func (c *Config) SessionSizeMult(t time.Time) float64 {
	hm := t.Format("15:04")
	for _, w := range c.Sessions {
		if w.From <= hm && hm < w.To && w.SizeMult > 0 {
			return w.SizeMult
		}
	}
	return 1.0
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return types.NewConfigurationErr("invalid mode %q: must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Instruments) == 0 {
		return types.NewConfigurationErr("instruments cannot be empty")
	}
	if c.Capital <= 0 {
		return types.NewConfigurationErr("capital must be positive, got %.2f", c.Capital)
	}
	if _, ok := c.Profiles[c.Profile]; !ok {
		return types.NewConfigurationErr("profile %q not defined", c.Profile)
	}
	for name, p := range c.Profiles {
		if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
			return types.NewConfigurationErr("profile %s: stop_loss_pct must be in (0,1), got %v", name, p.StopLossPct)
		}
		if p.TakeProfitPct <= 0 || p.TakeProfitPct >= 1 {
			return types.NewConfigurationErr("profile %s: take_profit_pct must be in (0,1), got %v", name, p.TakeProfitPct)
		}
		if p.MaxPositionFraction <= 0 || p.MaxPositionFraction > 1 {
			return types.NewConfigurationErr("profile %s: max_position_fraction must be in (0,1], got %v", name, p.MaxPositionFraction)
		}
	}
	if c.Consensus.MinAgreement < 1 {
		return types.NewConfigurationErr("consensus.min_agreement must be >= 1, got %d", c.Consensus.MinAgreement)
	}
	if c.Consensus.MinConfidence < 0 || c.Consensus.MinConfidence > 1 {
		return types.NewConfigurationErr("consensus.min_confidence must be in [0,1], got %v", c.Consensus.MinConfidence)
	}
	if c.Engine.MaxDailyTrades <= 0 {
		return types.NewConfigurationErr("engine.max_daily_trades must be positive, got %d", c.Engine.MaxDailyTrades)
	}
	if c.Engine.MaxDailyLoss <= 0 {
		return types.NewConfigurationErr("engine.max_daily_loss must be positive, got %v", c.Engine.MaxDailyLoss)
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return types.NewConfigurationErr("engine.min_confidence must be in [0,1], got %v", c.Engine.MinConfidence)
	}
	if c.Engine.ExitIntervalSec > c.Engine.ScanIntervalSec {
		return types.NewConfigurationErr("engine.exit_interval_sec (%d) must not exceed scan_interval_sec (%d): stops must react faster than entries",
			c.Engine.ExitIntervalSec, c.Engine.ScanIntervalSec)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Profile == "" {
		c.Profile = "moderate"
	}
	if c.Profiles == nil {
		c.Profiles = map[string]RiskProfile{
			"conservative": {StopLossPct: 0.015, TakeProfitPct: 0.03, MaxPositionFraction: 0.10},
			"moderate":     {StopLossPct: 0.025, TakeProfitPct: 0.05, MaxPositionFraction: 0.15},
			"aggressive":   {StopLossPct: 0.04, TakeProfitPct: 0.08, MaxPositionFraction: 0.20},
		}
	}
	if c.Regimes == nil {
		c.Regimes = map[types.MarketRegime]RegimeAdjustment{
			types.RegimeBull:     {StopMult: 1.0, TargetMult: 1.1, SizeMult: 1.1},
			types.RegimeBear:     {StopMult: 0.8, TargetMult: 1.0, SizeMult: 0.8},
			types.RegimeSideways: {StopMult: 1.0, TargetMult: 1.0, SizeMult: 1.0},
			types.RegimeVolatile: {StopMult: 0.7, TargetMult: 0.9, SizeMult: 0.7},
		}
	}
	if c.Strategies.WindowSize == 0 {
		c.Strategies.WindowSize = 1000
	}
	s := &c.Strategies
	if s.MACrossover.ShortPeriod == 0 {
		s.MACrossover.ShortPeriod = 5
	}
	if s.MACrossover.LongPeriod == 0 {
		s.MACrossover.LongPeriod = 20
	}
	if s.MACrossover.MinGapPct == 0 {
		s.MACrossover.MinGapPct = 0.001
	}
	if s.RSIReversal.Period == 0 {
		s.RSIReversal.Period = 14
	}
	if s.RSIReversal.Oversold == 0 {
		s.RSIReversal.Oversold = 30
	}
	if s.RSIReversal.Overbought == 0 {
		s.RSIReversal.Overbought = 70
	}
	if s.RSIReversal.ConfirmWindow == 0 {
		s.RSIReversal.ConfirmWindow = 3
	}
	if s.Bollinger.Period == 0 {
		s.Bollinger.Period = 20
	}
	if s.Bollinger.StdDev == 0 {
		s.Bollinger.StdDev = 2.0
	}
	if s.MACDCross.FastPeriod == 0 {
		s.MACDCross.FastPeriod = 12
	}
	if s.MACDCross.SlowPeriod == 0 {
		s.MACDCross.SlowPeriod = 26
	}
	if s.MACDCross.SignalPeriod == 0 {
		s.MACDCross.SignalPeriod = 9
	}
	if s.MACDCross.MinGap == 0 {
		s.MACDCross.MinGap = 0.01
	}
	if c.Consensus.MinAgreement == 0 {
		c.Consensus.MinAgreement = 2
	}
	if c.Consensus.MinConfidence == 0 {
		c.Consensus.MinConfidence = 0.6
	}
	if c.Consensus.StrongCutoff == 0 {
		c.Consensus.StrongCutoff = 0.8
	}
	if c.Engine.ScanIntervalSec == 0 {
		c.Engine.ScanIntervalSec = 30
	}
	if c.Engine.ExitIntervalSec == 0 {
		c.Engine.ExitIntervalSec = 5
	}
	if c.Engine.GatewayTimeoutSec == 0 {
		c.Engine.GatewayTimeoutSec = 10
	}
	if c.Engine.MaxDailyTrades == 0 {
		c.Engine.MaxDailyTrades = 10
	}
	if c.Engine.MaxDailyLoss == 0 {
		c.Engine.MaxDailyLoss = 0.03 * c.Capital
	}
	if c.Engine.MinConfidence == 0 {
		c.Engine.MinConfidence = 0.7
	}
	if c.Engine.ReentryMinutes == 0 {
		c.Engine.ReentryMinutes = 30
	}
	if c.Engine.RetryAttempts == 0 {
		c.Engine.RetryAttempts = 3
	}
	if c.Engine.RetryBackoffMs == 0 {
		c.Engine.RetryBackoffMs = 500
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/engine.db"
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, types.NewConfigurationErr("parse %s: %v", path, err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// Default returns a validated configuration without reading a file. Used by
// tests and the DRY_RUN bootstrap path.
func Default(instruments []string, capital float64) *Config {
	c := &Config{Mode: "DRY_RUN", Instruments: instruments, Capital: capital}
	applyDefaults(c)
	return c
}
