package risk

import (
	"math"
	"testing"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/types"
)

var moderate = config.RiskProfile{StopLossPct: 0.025, TakeProfitPct: 0.05, MaxPositionFraction: 0.15}

var regimes = map[types.MarketRegime]config.RegimeAdjustment{
	types.RegimeBull:     {StopMult: 1.0, TargetMult: 1.1, SizeMult: 1.1},
	types.RegimeBear:     {StopMult: 0.8, TargetMult: 1.0, SizeMult: 0.8},
	types.RegimeSideways: {StopMult: 1.0, TargetMult: 1.0, SizeMult: 1.0},
	types.RegimeVolatile: {StopMult: 0.7, TargetMult: 0.9, SizeMult: 0.7},
}

func TestDetermineBucket(t *testing.T) {
	cases := []struct {
		dir  types.Direction
		conf float64
		want Bucket
	}{
		{types.Buy, 0.85, BucketLow},
		{types.StrongBuy, 0.85, BucketLow},
		{types.StrongBuy, 0.9, BucketLow},
		{types.Buy, 0.7, BucketMedium},
		{types.StrongBuy, 0.7, BucketMedium},
		{types.Sell, 0.5, BucketHigh},
		{types.StrongSell, 0.5, BucketMedium},
		{types.Buy, 0.3, BucketVeryHigh},
		{types.StrongSell, 0.3, BucketHigh},
		{types.Hold, 0.9, BucketVeryLow},
		{types.Hold, 0.5, BucketHigh},
	}
	for _, c := range cases {
		if got := DetermineBucket(c.dir, c.conf); got != c.want {
			t.Errorf("DetermineBucket(%v, %v) = %v, want %v", c.dir, c.conf, got, c.want)
		}
	}
}

func TestPriceTargetsNeutralPipeline(t *testing.T) {
	m := New(moderate, regimes)
	// Medium bucket, calm-but-normal market, sideways regime and mid-range
	// instrument volatility leave the profile percentages untouched.
	a := m.PriceTargets(TargetInput{
		Direction:     types.Buy,
		Confidence:    0.7,
		Price:         100,
		MarketVol:     0.015,
		InstrumentVol: 0.02,
		Regime:        types.RegimeSideways,
	})
	if a.Bucket != BucketMedium {
		t.Fatalf("bucket = %v, want MEDIUM", a.Bucket)
	}
	if math.Abs(a.StopPrice-97.5) > 1e-9 {
		t.Errorf("stop = %v, want 97.5", a.StopPrice)
	}
	if math.Abs(a.TargetPrice-105) > 1e-9 {
		t.Errorf("target = %v, want 105", a.TargetPrice)
	}
}

func TestPriceTargetsNoVolEstimateIsNeutral(t *testing.T) {
	m := New(moderate, regimes)
	// A brand-new instrument has no volatility estimate; the bracket must
	// not be tightened or stretched on missing data.
	a := m.PriceTargets(TargetInput{
		Direction:     types.Buy,
		Confidence:    0.7,
		Price:         100,
		MarketVol:     0.015,
		InstrumentVol: 0,
		Regime:        types.RegimeSideways,
	})
	if math.Abs(a.StopPct-0.025) > 1e-9 {
		t.Errorf("stop pct = %v, want 0.025 with no vol estimate", a.StopPct)
	}
	if math.Abs(a.TargetPct-0.05) > 1e-9 {
		t.Errorf("target pct = %v, want 0.05 with no vol estimate", a.TargetPct)
	}
}

func TestPriceTargetsBearTightensStop(t *testing.T) {
	m := New(moderate, regimes)
	in := TargetInput{
		Direction:     types.Buy,
		Confidence:    0.7,
		Price:         100,
		MarketVol:     0.015,
		InstrumentVol: 0.02,
		Regime:        types.RegimeBear,
	}
	a := m.PriceTargets(in)
	if math.Abs(a.StopPct-0.02) > 1e-9 {
		t.Errorf("bear stop pct = %v, want 0.02", a.StopPct)
	}
	if math.Abs(a.TargetPct-0.05) > 1e-9 {
		t.Errorf("bear target pct = %v, want 0.05 unchanged", a.TargetPct)
	}
}

func TestPriceTargetsTurbulentMarket(t *testing.T) {
	m := New(moderate, regimes)
	a := m.PriceTargets(TargetInput{
		Direction:     types.Buy,
		Confidence:    0.7,
		Price:         100,
		MarketVol:     0.05,
		InstrumentVol: 0.02,
		Regime:        types.RegimeSideways,
	})
	if math.Abs(a.StopPct-0.035) > 1e-9 {
		t.Errorf("stop pct = %v, want 0.035", a.StopPct)
	}
	if math.Abs(a.TargetPct-0.03) > 1e-9 {
		t.Errorf("target pct = %v, want 0.03", a.TargetPct)
	}
}

func TestPriceTargetsSellMirrors(t *testing.T) {
	m := New(moderate, regimes)
	in := TargetInput{
		Direction:     types.Sell,
		Confidence:    0.7,
		Price:         200,
		MarketVol:     0.015,
		InstrumentVol: 0.02,
		Regime:        types.RegimeSideways,
	}
	a := m.PriceTargets(in)
	if a.StopPrice <= in.Price {
		t.Errorf("short stop %v must sit above entry %v", a.StopPrice, in.Price)
	}
	if a.TargetPrice >= in.Price {
		t.Errorf("short target %v must sit below entry %v", a.TargetPrice, in.Price)
	}
}

func TestPriceTargetsDeterministic(t *testing.T) {
	m := New(moderate, regimes)
	in := TargetInput{
		Direction:     types.StrongBuy,
		Confidence:    0.92,
		Price:         1234.5,
		MarketVol:     0.031,
		InstrumentVol: 0.008,
		Regime:        types.RegimeVolatile,
	}
	first := m.PriceTargets(in)
	for i := 0; i < 5; i++ {
		if got := m.PriceTargets(in); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestPositionSizeBaseCase(t *testing.T) {
	m := New(moderate, regimes)
	got := m.PositionSize(SizeInput{
		Capital:       10_000_000,
		Bucket:        BucketMedium,
		Confidence:    0.8,
		InstrumentVol: 0.02,
	})
	if math.Abs(got-900_000) > 1e-6 {
		t.Fatalf("size = %v, want 900000", got)
	}
}

func TestPositionSizeCapped(t *testing.T) {
	m := New(moderate, regimes)
	got := m.PositionSize(SizeInput{
		Capital:       1_000_000,
		Bucket:        BucketVeryLow,
		Confidence:    1.0,
		InstrumentVol: 0.005,
		RegimeMult:    1.1,
	})
	if math.Abs(got-150_000) > 1e-6 {
		t.Fatalf("size = %v, want profile cap 150000", got)
	}

	aggressive := New(config.RiskProfile{StopLossPct: 0.04, TakeProfitPct: 0.08, MaxPositionFraction: 0.20}, regimes)
	got = aggressive.PositionSize(SizeInput{
		Capital:       1_000_000,
		Bucket:        BucketVeryLow,
		Confidence:    1.0,
		InstrumentVol: 0.005,
		RegimeMult:    1.3,
	})
	if math.Abs(got-200_000) > 1e-6 {
		t.Fatalf("size = %v, want hard cap 200000", got)
	}
}

func TestPositionSizeZeroCapital(t *testing.T) {
	m := New(moderate, regimes)
	if got := m.PositionSize(SizeInput{Bucket: BucketMedium, Confidence: 0.9}); got != 0 {
		t.Fatalf("size = %v, want 0", got)
	}
}

func TestVolatility(t *testing.T) {
	if v := Volatility([]float64{100, 100, 100, 100}); v != 0 {
		t.Errorf("flat series volatility = %v, want 0", v)
	}
	if v := Volatility([]float64{100, 110}); v != 0 {
		t.Errorf("short series volatility = %v, want 0", v)
	}
	if v := Volatility([]float64{100, 110, 95, 108, 92}); v <= 0 {
		t.Errorf("jagged series volatility = %v, want > 0", v)
	}
}

func TestDetectRegime(t *testing.T) {
	bull := []float64{100, 100.5, 101, 101.5, 102, 102.5, 103}
	if r := DetectRegime(bull); r != types.RegimeBull {
		t.Errorf("rising series = %v, want bull", r)
	}
	bear := []float64{103, 102.5, 102, 101.5, 101, 100.5, 100}
	if r := DetectRegime(bear); r != types.RegimeBear {
		t.Errorf("falling series = %v, want bear", r)
	}
	flat := []float64{100, 100.1, 99.9, 100, 100.1, 99.9, 100}
	if r := DetectRegime(flat); r != types.RegimeSideways {
		t.Errorf("flat series = %v, want sideways", r)
	}
	jagged := []float64{100, 106, 98, 107, 96, 108, 95}
	if r := DetectRegime(jagged); r != types.RegimeVolatile {
		t.Errorf("jagged series = %v, want volatile", r)
	}
}
