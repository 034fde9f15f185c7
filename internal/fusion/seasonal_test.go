package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// weekOfHourly produces 168 hourly samples with per-hour variation so every
// hour's baseline has a usable standard deviation.
func weekOfHourly(metric string) []models.MetricSample {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	out := make([]models.MetricSample, 168)
	for i := range out {
		out[i] = models.MetricSample{
			Name:      metric,
			Value:     10 + float64(i%5),
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestSeasonalAnalyzer_FlagsLargeDeviation(t *testing.T) {
	sa := NewSeasonalAnalyzer(168, 2.5, 4.0)
	history := weekOfHourly("api_response_time")

	current := models.MetricSample{
		Name:      "api_response_time",
		Value:     100, // far from the 10-14 band
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
	}
	sig := sa.Signal(current, history)
	require.NotNil(t, sig)
	assert.Equal(t, models.DetectorSeasonal, sig.Type)
	assert.Equal(t, models.SeverityCritical, sig.Severity)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9, "a huge deviation saturates confidence")
}

func TestSeasonalAnalyzer_InRangeValueIsSilent(t *testing.T) {
	sa := NewSeasonalAnalyzer(168, 2.5, 4.0)
	history := weekOfHourly("api_response_time")

	current := models.MetricSample{
		Name:      "api_response_time",
		Value:     12,
		Timestamp: history[len(history)-1].Timestamp.Add(time.Hour),
	}
	assert.Nil(t, sa.Signal(current, history))
}

func TestSeasonalAnalyzer_RequiresFullWeek(t *testing.T) {
	sa := NewSeasonalAnalyzer(168, 2.5, 4.0)
	history := weekOfHourly("api_response_time")[:100]

	current := models.MetricSample{
		Name:      "api_response_time",
		Value:     100,
		Timestamp: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	assert.Nil(t, sa.Signal(current, history))
}

func TestSeasonalAnalyzer_DegenerateBaseline(t *testing.T) {
	sa := NewSeasonalAnalyzer(168, 2.5, 4.0)

	// Constant history: every hour's std is zero, so the detector stays quiet
	// instead of dividing by zero.
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	history := make([]models.MetricSample, 168)
	for i := range history {
		history[i] = models.MetricSample{
			Name:      "queue_depth",
			Value:     5,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
	}
	current := models.MetricSample{
		Name:      "queue_depth",
		Value:     50,
		Timestamp: start.Add(168 * time.Hour),
	}
	assert.Nil(t, sa.Signal(current, history))
}
