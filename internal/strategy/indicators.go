package strategy

import "math"

// Indicator series use NaN for positions without enough observations.

// EMA returns the exponential moving average with span n, seeded with the first valid value.
// The first n-1 valid positions are NaN.
func EMA(x []float64, n int) []float64 {
	return ewm(x, 2.0/(float64(n)+1), n)
}

// ewm is an exponentially weighted mean without bias correction. Leading NaNs are skipped.
func ewm(x []float64, alpha float64, minPeriods int) []float64 {
	out := make([]float64, len(x))
	var avg float64
	seen := 0
	for i, v := range x {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		if seen == 0 {
			avg = v
		} else {
			avg = alpha*v + (1-alpha)*avg
		}
		seen++
		if seen < minPeriods {
			out[i] = math.NaN()
		} else {
			out[i] = avg
		}
	}
	return out
}

// RSI is the relative strength index with Wilder smoothing over n periods.
func RSI(closes []float64, n int) []float64 {
	up := make([]float64, len(closes))
	down := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			up[i], down[i] = math.NaN(), math.NaN()
			continue
		}
		d := closes[i] - closes[i-1]
		up[i] = math.Max(d, 0)
		down[i] = math.Max(-d, 0)
	}
	alpha := 1.0 / float64(n)
	emaUp := ewm(up, alpha, n)
	emaDown := ewm(down, alpha, n)

	out := make([]float64, len(closes))
	for i := range out {
		switch {
		case math.IsNaN(emaUp[i]) || math.IsNaN(emaDown[i]):
			out[i] = math.NaN()
		case emaDown[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+emaUp[i]/emaDown[i])
		}
	}
	return out
}

// StochK is the stochastic oscillator %K over n periods.
func StochK(highs, lows, closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i+1 < n {
			out[i] = math.NaN()
			continue
		}
		hi, lo := highs[i], lows[i]
		for j := i - n + 1; j < i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		if hi == lo {
			out[i] = math.NaN()
			continue
		}
		out[i] = 100 * (closes[i] - lo) / (hi - lo)
	}
	return out
}

// MACDHistogram returns the MACD line minus its signal line.
func MACDHistogram(closes []float64, fast, slow, signal int) []float64 {
	f, s := EMA(closes, fast), EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	sig := EMA(line, signal)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = line[i] - sig[i]
	}
	return out
}

// Bollinger returns the n-period moving average and population standard deviation
// of the latest window, or ok=false without enough data.
func Bollinger(closes []float64, n int) (mid, std float64, ok bool) {
	if n <= 0 || len(closes) < n {
		return 0, 0, false
	}
	window := closes[len(closes)-n:]
	for _, v := range window {
		mid += v
	}
	mid /= float64(n)
	for _, v := range window {
		std += (v - mid) * (v - mid)
	}
	return mid, math.Sqrt(std / float64(n)), true
}

// LinearSlope is the least squares slope of ys against their index.
func LinearSlope(ys []float64) float64 {
	n := float64(len(ys))
	if len(ys) < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

func last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

func valid(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
