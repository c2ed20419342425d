// Package risk derives stop/target brackets, position sizes and market
// regime classification from signal quality and observed volatility. All
// functions are pure so identical inputs always produce identical outputs.
package risk

import (
	"math"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/types"
)

// Bucket grades how much risk a prospective trade carries. Lower buckets get
// wider targets and larger sizes.
type Bucket int

const (
	BucketVeryLow Bucket = iota
	BucketLow
	BucketMedium
	BucketHigh
	BucketVeryHigh
)

func (b Bucket) String() string {
	switch b {
	case BucketVeryLow:
		return "VERY_LOW"
	case BucketLow:
		return "LOW"
	case BucketMedium:
		return "MEDIUM"
	case BucketHigh:
		return "HIGH"
	default:
		return "VERY_HIGH"
	}
}

// DetermineBucket grades a signal. Confidence sets the base grade; a strong
// direction upgrades only the two riskiest grades one step, LOW and MEDIUM
// stay put. A hold collapses the best grade to the floor since no new
// exposure is being taken.
func DetermineBucket(dir types.Direction, confidence float64) Bucket {
	var b Bucket
	switch {
	case confidence >= 0.8:
		b = BucketLow
	case confidence >= 0.6:
		b = BucketMedium
	case confidence >= 0.4:
		b = BucketHigh
	default:
		b = BucketVeryHigh
	}
	if dir.IsStrong() && (b == BucketHigh || b == BucketVeryHigh) {
		b--
	}
	if dir == types.Hold && b == BucketLow {
		b = BucketVeryLow
	}
	return b
}

// bracketMults returns the stop and target multipliers for a bucket.
func (b Bucket) bracketMults() (stop, target float64) {
	switch b {
	case BucketVeryLow:
		return 0.8, 1.2
	case BucketLow:
		return 0.9, 1.1
	case BucketMedium:
		return 1.0, 1.0
	case BucketHigh:
		return 1.2, 0.8
	default:
		return 1.4, 0.7
	}
}

// sizeMult returns the sizing multiplier for a bucket.
func (b Bucket) sizeMult() float64 {
	switch b {
	case BucketVeryLow:
		return 1.5
	case BucketLow:
		return 1.2
	case BucketMedium:
		return 1.0
	case BucketHigh:
		return 0.7
	default:
		return 0.5
	}
}

// TargetInput carries everything PriceTargets needs about one signal.
type TargetInput struct {
	Direction     types.Direction
	Confidence    float64
	Price         float64
	MarketVol     float64 // broad-market volatility, e.g. 0.02 for 2%
	InstrumentVol float64 // per-instrument volatility
	Regime        types.MarketRegime
}

// Assessment is the fully derived bracket for one prospective trade.
type Assessment struct {
	Bucket      Bucket
	StopPct     float64
	TargetPct   float64
	StopPrice   float64
	TargetPrice float64
}

// Manager applies the configured risk profile and regime table.
type Manager struct {
	profile config.RiskProfile
	regimes map[types.MarketRegime]config.RegimeAdjustment
}

func New(profile config.RiskProfile, regimes map[types.MarketRegime]config.RegimeAdjustment) *Manager {
	return &Manager{profile: profile, regimes: regimes}
}

// PriceTargets computes the stop/target bracket for a signal. The base
// percentages come from the profile and are scaled through a fixed sequence
// of multipliers: signal bucket, broad-market volatility, signal strength,
// market regime, instrument volatility. Sell brackets mirror buy brackets
// around the entry price.
func (m *Manager) PriceTargets(in TargetInput) Assessment {
	bucket := DetermineBucket(in.Direction, in.Confidence)
	stopPct := m.profile.StopLossPct
	targetPct := m.profile.TakeProfitPct

	s, t := bucket.bracketMults()
	stopPct *= s
	targetPct *= t

	s, t = marketVolMults(in.MarketVol)
	stopPct *= s
	targetPct *= t

	switch {
	case in.Direction.IsStrong():
		stopPct *= 0.8
		targetPct *= 1.2
	case in.Direction == types.Hold:
		stopPct *= 0.6
		targetPct *= 0.8
	}

	if adj, ok := m.regimes[in.Regime]; ok {
		if adj.StopMult > 0 {
			stopPct *= adj.StopMult
		}
		if adj.TargetMult > 0 {
			targetPct *= adj.TargetMult
		}
	}

	s, t = instrumentVolMults(in.InstrumentVol)
	stopPct *= s
	targetPct *= t

	a := Assessment{Bucket: bucket, StopPct: stopPct, TargetPct: targetPct}
	if in.Direction.IsSell() {
		a.StopPrice = in.Price * (1 + stopPct)
		a.TargetPrice = in.Price * (1 - targetPct)
	} else {
		a.StopPrice = in.Price * (1 - stopPct)
		a.TargetPrice = in.Price * (1 + targetPct)
	}
	return a
}

// marketVolMults scales brackets by the broad-market volatility tier. Calm
// markets tighten stops and stretch targets; turbulent ones do the reverse.
func marketVolMults(vol float64) (stop, target float64) {
	switch {
	case vol < 0.01:
		return 0.8, 1.2
	case vol < 0.02:
		return 1.0, 1.0
	case vol < 0.04:
		return 1.2, 0.8
	default:
		return 1.4, 0.6
	}
}

// instrumentVolMults applies nothing when no volatility estimate exists yet
// (fewer than 3 samples report 0).
func instrumentVolMults(vol float64) (stop, target float64) {
	switch {
	case vol > 0.03:
		return 1.2, 0.9
	case vol > 0 && vol < 0.01:
		return 0.8, 1.1
	default:
		return 1.0, 1.0
	}
}

// SizeInput carries the sizing parameters for one prospective entry.
type SizeInput struct {
	Capital       float64
	Bucket        Bucket
	Confidence    float64
	InstrumentVol float64
	RegimeMult    float64 // regime size multiplier, <=0 means 1.0
	SessionMult   float64 // intraday session multiplier, <=0 means 1.0
}

// maxPositionFraction is the hard ceiling on any single position regardless
// of profile or multipliers.
const maxPositionFraction = 0.20

// PositionSize returns the capital to commit to one entry. The 10% base
// allocation is scaled by bucket, confidence, instrument volatility, regime
// and session, then capped by the profile fraction and the hard ceiling.
func (m *Manager) PositionSize(in SizeInput) float64 {
	if in.Capital <= 0 {
		return 0
	}
	frac := 0.10 * in.Bucket.sizeMult()
	frac *= 0.5 + 0.5*clamp01(in.Confidence)
	switch {
	case in.InstrumentVol > 0.03:
		frac *= 0.7
	case in.InstrumentVol < 0.01 && in.InstrumentVol > 0:
		frac *= 1.2
	}
	if in.RegimeMult > 0 {
		frac *= in.RegimeMult
	}
	if in.SessionMult > 0 {
		frac *= in.SessionMult
	}

	limit := maxPositionFraction
	if m.profile.MaxPositionFraction > 0 && m.profile.MaxPositionFraction < limit {
		limit = m.profile.MaxPositionFraction
	}
	if frac > limit {
		frac = limit
	}
	return frac * in.Capital
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Volatility returns the population standard deviation of simple returns
// over the series, 0 when there are fewer than 3 samples.
func Volatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// DetectRegime classifies the market from a broad-index price series using
// net trend and return volatility. Volatility dominates trend.
func DetectRegime(prices []float64) types.MarketRegime {
	if len(prices) < 3 || prices[0] == 0 {
		return types.RegimeSideways
	}
	vol := Volatility(prices)
	if vol >= 0.025 {
		return types.RegimeVolatile
	}
	trend := (prices[len(prices)-1] - prices[0]) / prices[0]
	switch {
	case trend > 0.02:
		return types.RegimeBull
	case trend < -0.02:
		return types.RegimeBear
	default:
		return types.RegimeSideways
	}
}
