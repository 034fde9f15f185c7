package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigil-core/internal/models"
)

func seriesOf(values []float64) []models.MetricSample {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	out := make([]models.MetricSample, len(values))
	for i, v := range values {
		out[i] = models.MetricSample{
			Name:      "cpu_usage",
			Value:     v,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestTrendAnalyzer_PerfectLine(t *testing.T) {
	ta := NewTrendAnalyzer(20, 0.5, 0.7)

	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i) * 2 // slope 2
	}
	res := ta.Analyze(seriesOf(values))
	require.NotNil(t, res)
	assert.InDelta(t, 2.0, res.Slope, 1e-9)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
	assert.True(t, res.Significant)
}

func TestTrendAnalyzer_FlatSeriesNotSignificant(t *testing.T) {
	ta := NewTrendAnalyzer(20, 0.5, 0.7)

	values := make([]float64, 20)
	for i := range values {
		values[i] = 50
	}
	assert.Nil(t, ta.Signal(seriesOf(values)))
}

func TestTrendAnalyzer_UsesOnlyTheWindow(t *testing.T) {
	ta := NewTrendAnalyzer(10, 0.5, 0.7)

	// Falling for 30 points, then rising steeply over the last 10.
	values := make([]float64, 40)
	for i := 0; i < 30; i++ {
		values[i] = 100 - float64(i)
	}
	for i := 30; i < 40; i++ {
		values[i] = 70 + float64(i-30)*3
	}
	res := ta.Analyze(seriesOf(values))
	require.NotNil(t, res)
	assert.Greater(t, res.Slope, 0.0, "only the recent window counts")
}

func TestTrendAnalyzer_TooFewSamples(t *testing.T) {
	ta := NewTrendAnalyzer(20, 0.5, 0.7)
	assert.Nil(t, ta.Analyze(seriesOf([]float64{1, 2})))
}

func TestTrendAnalyzer_NonFiniteSkipped(t *testing.T) {
	ta := NewTrendAnalyzer(20, 0.5, 0.7)
	assert.NotPanics(t, func() {
		ta.Analyze(seriesOf([]float64{1, math.NaN(), 3, math.Inf(1), 5}))
	})
}

func TestTrendAnalyzer_SignalSeverity(t *testing.T) {
	ta := NewTrendAnalyzer(20, 0.5, 0.7)

	gentle := make([]float64, 20)
	steep := make([]float64, 20)
	for i := range gentle {
		gentle[i] = float64(i) * 0.8
		steep[i] = float64(i) * 3
	}

	sig := ta.Signal(seriesOf(gentle))
	require.NotNil(t, sig)
	assert.Equal(t, models.DetectorTrend, sig.Type)
	assert.Equal(t, models.SeverityWarning, sig.Severity)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9, "confidence is the fit quality")

	sig = ta.Signal(seriesOf(steep))
	require.NotNil(t, sig)
	assert.Equal(t, models.SeverityCritical, sig.Severity, "steep slopes escalate")
}
