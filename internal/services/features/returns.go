package features

import (
	"math"
	"time"
)

// outcomeScale is the per-horizon return treated as a full-strength move
// when squashing realized outcomes into [-1, 1].
const outcomeScale = 0.02

// Raw field names read and filled by DeriveSpotFields. FieldSpotReturn and
// FieldRealizedVol match the schema's source fields.
const (
	FieldClose       = "close"
	FieldSpotReturn  = "spot_return"
	FieldRealizedVol = "realized_vol"
)

// ComputeLogReturns computes log returns r_t = ln(p_t / p_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func ComputeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the latest
// rolling window using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForBucket returns the approximate number of buckets per year.
func BarsPerYearForBucket(bucket time.Duration) float64 {
	if bucket <= 0 {
		return 365 * 24 * 60
	}
	return float64(365*24*time.Hour) / float64(bucket)
}

// DeriveSpotFields fills spot_return and realized_vol on a record's raw
// fields from a trailing series of closes, for feeds that carry OHLCV prices
// instead of precomputed returns. Fields already present are left alone;
// realized_vol is only set once a full volWindow of returns exists.
func DeriveSpotFields(fields map[string]any, closes []float64, volWindow int, bucket time.Duration) {
	rets := ComputeLogReturns(closes)
	if rets == nil {
		return
	}
	if _, ok := fields[FieldSpotReturn]; !ok {
		fields[FieldSpotReturn] = rets[len(rets)-1]
	}
	if _, ok := fields[FieldRealizedVol]; !ok {
		if vol := RealizedVolatility(rets, volWindow, BarsPerYearForBucket(bucket)); vol > 0 {
			fields[FieldRealizedVol] = vol
		}
	}
}

// RealizedOutcome squashes a horizon's summed log returns into [-1, 1],
// preserving direction; the sign is what weight adaptation scores against.
func RealizedOutcome(returns []float64) float64 {
	var sum float64
	for _, r := range returns {
		sum += r
	}
	return math.Tanh(sum / outcomeScale)
}
