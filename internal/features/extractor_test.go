package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigil-core/internal/models"
)

func samplesAt(start time.Time, step time.Duration, values ...float64) []models.MetricSample {
	out := make([]models.MetricSample, len(values))
	for i, v := range values {
		out[i] = models.MetricSample{
			Name:      "cpu_usage",
			Value:     v,
			Timestamp: start.Add(time.Duration(i) * step),
		}
	}
	return out
}

func TestExtract_InsufficientHistoryIsAllZeros(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	history := samplesAt(start, time.Minute, 1, 2, 3, 4)
	v := e.Extract(history, len(history)-1)

	require.Len(t, v, len(Names))
	assert.True(t, v.IsZero(), "fewer than %d samples must yield the zero vector", MinSamples)
	assert.True(t, v.Valid())
}

func TestExtract_OutOfRangeIndex(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Minute, 1, 2, 3, 4, 5, 6)

	assert.True(t, e.Extract(history, -1).IsZero())
	assert.True(t, e.Extract(history, len(history)).IsZero())
}

func TestExtract_BasicFeatures(t *testing.T) {
	e := NewExtractor()
	// Tuesday, 10:00 UTC - business hours, not weekend.
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Second, 10, 10, 10, 10, 20)

	v := e.Extract(history, 4)
	require.True(t, v.Valid())

	assert.InDelta(t, 20.0, v[0], 1e-9, "value")
	assert.InDelta(t, 10.0, v[1], 1e-9, "rate of change")
	assert.InDelta(t, 12.0, v[2], 1e-9, "ma_5")
	assert.InDelta(t, 1.0, v[12], 1e-9, "is_business_hours")
	assert.InDelta(t, 0.0, v[11], 1e-9, "is_weekend")
	assert.InDelta(t, 10.0, v[13], 1e-9, "deviation from mean of prior samples")
	assert.InDelta(t, 10.0, v[14], 1e-9, "deviation from median of prior samples")
	assert.InDelta(t, 1.0, v[15], 1e-9, "every prior value sits below 20")
}

func TestExtract_PercentileRank(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Second, 1, 2, 3, 4, 100)

	v := e.Extract(history, 4)
	assert.InDelta(t, 1.0, v[15], 1e-9, "100 is above every prior value")
}

func TestExtract_WeekendFlags(t *testing.T) {
	e := NewExtractor()
	// Saturday, 3:00 UTC.
	start := time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Second, 1, 2, 3, 4, 5)

	v := e.Extract(history, 4)
	assert.InDelta(t, 1.0, v[11], 1e-9, "is_weekend")
	assert.InDelta(t, 0.0, v[12], 1e-9, "is_business_hours")
}

func TestExtract_NonFinitePointContributesZero(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Second, 5, 5, 5, 5, 5, 5)
	history[2].Value = math.NaN()
	history[3].Value = math.Inf(1)

	v := e.Extract(history, 5)
	require.True(t, v.Valid(), "malformed points must not poison the vector")
	// Means include the zeroed slots rather than NaN.
	assert.Less(t, v[2], 5.0)
}

func TestExtract_TrendSlope(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	// Perfect line: slope 2 per step.
	history := samplesAt(start, time.Second, 0, 2, 4, 6, 8, 10, 12, 14)

	v := e.Extract(history, len(history)-1)
	assert.InDelta(t, 2.0, v[7], 1e-9, "trend_slope_15")
	assert.InDelta(t, 2.0, v[8], 1e-9, "trend_slope_60")
}

func TestExtract_ZScore(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	history := samplesAt(start, time.Second, 10, 12, 8, 10, 11, 9, 50)

	v := e.Extract(history, len(history)-1)
	assert.Greater(t, v[16], 3.0, "an extreme point should have a large z-score")
	assert.Greater(t, v[17], 0.0, "and sit outside the IQR box")
}

func TestSeasonalDeviation_UsesHourOfDayBaseline(t *testing.T) {
	e := NewExtractor()
	// One sample per hour for a week at hour-of-day value 10, then a spike at
	// the same hour.
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	var history []models.MetricSample
	for i := 0; i < 7*24; i++ {
		val := 10.0 + float64(i%5) // small variance so stddev is non-zero
		history = append(history, models.MetricSample{
			Name:      "api_response_time",
			Value:     val,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		})
	}
	history = append(history, models.MetricSample{
		Name:      "api_response_time",
		Value:     100.0,
		Timestamp: start.Add(time.Duration(7*24) * time.Hour),
	})

	v := e.Extract(history, len(history)-1)
	assert.Greater(t, v[18], 10.0, "100 is far above the hour's baseline")
}
