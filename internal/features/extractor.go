package features

import (
	"math"
	"sort"
	"time"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// Feature slot names, in vector order. Keep in sync with Extract.
var Names = []string{
	"value",
	"rate_of_change",
	"ma_5",
	"ma_15",
	"ma_60",
	"volatility_5",
	"volatility_15",
	"trend_slope_15",
	"trend_slope_60",
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"is_business_hours",
	"deviation_from_mean",
	"deviation_from_median",
	"percentile_rank",
	"z_score",
	"iqr_score",
	"seasonal_deviation",
}

// MinSamples is the smallest window Extract will compute features from.
// Below it, the vector is all zeros and callers must treat the result as
// "insufficient signal" rather than act on it.
const MinSamples = 5

// Vector is a fixed-size engineered feature vector for one sample.
type Vector []float64

// Valid reports whether the vector is usable for detection: right length and
// every slot finite.
func (v Vector) Valid() bool {
	if len(v) != len(Names) {
		return false
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// IsZero reports whether every slot is exactly zero, the "insufficient
// signal" marker.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Extractor turns a metric's recent sample window into feature vectors.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract computes the feature vector for history[index], using everything at
// or before index. Points with non-finite values contribute zero to derived
// statistics; a single malformed point never fails extraction.
func (e *Extractor) Extract(history []models.MetricSample, index int) Vector {
	v := make(Vector, len(Names))
	if index < 0 || index >= len(history) {
		return v
	}
	window := history[:index+1]
	if len(window) < MinSamples {
		return v
	}

	values := make([]float64, len(window))
	for i, s := range window {
		values[i] = finiteOrZero(s.Value)
	}
	current := values[index]
	ts := history[index].Timestamp

	v[0] = current
	v[1] = current - values[index-1]
	v[2] = movingAverage(values, 5)
	v[3] = movingAverage(values, 15)
	v[4] = movingAverage(values, 60)
	v[5] = rollingStdDev(values, 5)
	v[6] = rollingStdDev(values, 15)
	v[7] = trendSlope(values, 15)
	v[8] = trendSlope(values, 60)

	v[9] = float64(ts.Hour()) / 23.0
	v[10] = float64(ts.Weekday()) / 6.0
	if isWeekend(ts) {
		v[11] = 1
	}
	if isBusinessHours(ts) {
		v[12] = 1
	}

	// Distribution features against all prior samples.
	prior := values[:index]
	mean, std := meanStd(prior)
	med := median(prior)
	v[13] = current - mean
	v[14] = current - med
	v[15] = percentileRank(prior, current)
	if std > 0 {
		v[16] = (current - mean) / std
	}
	v[17] = iqrScore(prior, current)
	v[18] = seasonalDeviation(window, current, ts)

	// Clamp any residual non-finite slot so downstream scaling stays sane.
	for i, x := range v {
		v[i] = finiteOrZero(x)
	}
	return v
}

func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// movingAverage averages the last n values (fewer if the series is shorter).
func movingAverage(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, x := range values[start:] {
		sum += x
	}
	return sum / float64(len(values)-start)
}

func rollingStdDev(values []float64, n int) float64 {
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	_, std := meanStd(values[start:])
	return std
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range values {
		sum += x
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range values {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

// trendSlope fits an OLS line over the last n values and returns its slope
// per sample step.
func trendSlope(values []float64, n int) float64 {
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	window := values[start:]
	m := len(window)
	if m < 2 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	for i, y := range window {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := float64(m)*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (float64(m)*sxy - sx*sy) / den
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// percentileRank returns the fraction of prior values strictly below x.
func percentileRank(prior []float64, x float64) float64 {
	if len(prior) == 0 {
		return 0
	}
	below := 0
	for _, p := range prior {
		if p < x {
			below++
		}
	}
	return float64(below) / float64(len(prior))
}

// iqrScore measures how far x sits outside the interquartile range of prior
// values, in IQR units. Zero inside the box.
func iqrScore(prior []float64, x float64) float64 {
	if len(prior) < 4 {
		return 0
	}
	sorted := append([]float64(nil), prior...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	if iqr <= 0 {
		return 0
	}
	switch {
	case x < q1:
		return (q1 - x) / iqr
	case x > q3:
		return (x - q3) / iqr
	default:
		return 0
	}
}

// quantile interpolates the q-th quantile of an already sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// seasonalDeviation compares the current value with the historical mean for
// the same hour of day, in standard deviations for that hour.
func seasonalDeviation(window []models.MetricSample, current float64, ts time.Time) float64 {
	hour := ts.Hour()
	var hourly []float64
	for _, s := range window[:len(window)-1] {
		if s.Timestamp.Hour() == hour {
			hourly = append(hourly, finiteOrZero(s.Value))
		}
	}
	if len(hourly) < 2 {
		return 0
	}
	mean, std := meanStd(hourly)
	if std == 0 {
		return 0
	}
	return (current - mean) / std
}

func isWeekend(ts time.Time) bool {
	wd := ts.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func isBusinessHours(ts time.Time) bool {
	h := ts.Hour()
	return !isWeekend(ts) && h >= 9 && h < 17
}
