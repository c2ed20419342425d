// Package ta provides pure indicator math over ordered price sequences.
// Every function returns an aligned, possibly shorter series; when there is
// not enough history the result is empty, never an error.
package ta

import "math"

// SMA returns the trailing simple moving average. Result length is
// len(prices)-n+1, aligned so the last element covers the latest window.
func SMA(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n {
		return nil
	}
	out := make([]float64, 0, len(prices)-n+1)
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= n {
			sum -= prices[i-n]
		}
		if i >= n-1 {
			out = append(out, sum/float64(n))
		}
	}
	return out
}

// EMA returns the exponential moving average seeded with the SMA of the first
// n samples, then ema[t] = a*price[t] + (1-a)*ema[t-1] with a = 2/(n+1).
func EMA(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n {
		return nil
	}
	a := 2.0 / float64(n+1)
	seed := 0.0
	for _, p := range prices[:n] {
		seed += p
	}
	seed /= float64(n)
	out := make([]float64, 0, len(prices)-n+1)
	out = append(out, seed)
	prev := seed
	for _, p := range prices[n:] {
		prev = a*p + (1-a)*prev
		out = append(out, prev)
	}
	return out
}

// RSI returns the Wilder-smoothed relative strength index. The first value
// needs n+1 samples; a zero smoothed loss forces RSI to 100.
func RSI(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) < n+1 {
		return nil
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= n; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)

	out := make([]float64, 0, len(prices)-n)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := n + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// Bollinger returns the middle band (SMA) with upper/lower bands at k
// population standard deviations. All three series share SMA alignment.
func Bollinger(prices []float64, n int, k float64) (mid, upper, lower []float64) {
	if n <= 0 || len(prices) < n {
		return nil, nil, nil
	}
	mid = SMA(prices, n)
	upper = make([]float64, len(mid))
	lower = make([]float64, len(mid))
	for i := range mid {
		window := prices[i : i+n]
		s := 0.0
		for _, p := range window {
			d := p - mid[i]
			s += d * d
		}
		sd := math.Sqrt(s / float64(n))
		upper[i] = mid[i] + k*sd
		lower[i] = mid[i] - k*sd
	}
	return mid, upper, lower
}

// MACD returns the MACD line (EMA(fast)-EMA(slow)), its signal line
// (EMA(signalN) of the MACD line) and the histogram. The three series are
// trimmed to the signal line's alignment.
func MACD(prices []float64, fast, slow, signalN int) (line, signal, hist []float64) {
	if fast <= 0 || slow <= fast || signalN <= 0 || len(prices) < slow {
		return nil, nil, nil
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)
	// emaFast is longer; align both to the slow series' start.
	offset := len(emaFast) - len(emaSlow)
	raw := make([]float64, len(emaSlow))
	for i := range emaSlow {
		raw[i] = emaFast[i+offset] - emaSlow[i]
	}
	signal = EMA(raw, signalN)
	if signal == nil {
		return nil, nil, nil
	}
	line = raw[len(raw)-len(signal):]
	hist = make([]float64, len(signal))
	for i := range signal {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// Stochastic returns the %K and %D oscillator series. %K compares the close
// to the kN-period high/low range; %D is the dN-period SMA of %K.
func Stochastic(highs, lows, closes []float64, kN, dN int) (k, d []float64) {
	if kN <= 0 || dN <= 0 || len(closes) < kN || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil, nil
	}
	k = make([]float64, 0, len(closes)-kN+1)
	for i := kN - 1; i < len(closes); i++ {
		hi, lo := highs[i-kN+1], lows[i-kN+1]
		for j := i - kN + 2; j <= i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		if hi == lo {
			k = append(k, 50.0)
			continue
		}
		k = append(k, 100.0*(closes[i]-lo)/(hi-lo))
	}
	d = SMA(k, dN)
	return k, d
}

// ATR returns the Wilder-smoothed average true range.
func ATR(highs, lows, closes []float64, n int) []float64 {
	if n <= 0 || len(closes) < n+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}
	trs := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr := highs[i] - lows[i]
		tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
		tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		trs[i-1] = tr
	}
	first := 0.0
	for _, v := range trs[:n] {
		first += v
	}
	first /= float64(n)
	out := make([]float64, 0, len(trs)-n+1)
	out = append(out, first)
	prev := first
	for _, v := range trs[n:] {
		prev = (prev*float64(n-1) + v) / float64(n)
		out = append(out, prev)
	}
	return out
}

// Last returns the final element of a series, or NaN when empty. Keeps call
// sites that only care about the latest value terse.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
