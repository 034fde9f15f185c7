package fusion

import (
	"fmt"
	"math"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// SeasonalAnalyzer compares the current value against the historical
// distribution for its hour of day. Baselines need at least a week of
// samples, otherwise the detector stays silent.
type SeasonalAnalyzer struct {
	minSamples    int
	warningSigma  float64
	criticalSigma float64
}

func NewSeasonalAnalyzer(minSamples int, warningSigma, criticalSigma float64) *SeasonalAnalyzer {
	return &SeasonalAnalyzer{
		minSamples:    minSamples,
		warningSigma:  warningSigma,
		criticalSigma: criticalSigma,
	}
}

// Signal flags the current sample when it deviates from its hour's baseline
// by more than the configured number of standard deviations. Nil when the
// history is too short, the hour's baseline is degenerate, or the value is
// in range.
func (s *SeasonalAnalyzer) Signal(current models.MetricSample, history []models.MetricSample) *models.DetectorSignal {
	if len(history) < s.minSamples {
		return nil
	}
	if math.IsNaN(current.Value) || math.IsInf(current.Value, 0) {
		return nil
	}

	hour := current.Timestamp.Hour()
	var sum, sumSq float64
	var n int
	for _, h := range history {
		if h.Timestamp.Hour() != hour {
			continue
		}
		if math.IsNaN(h.Value) || math.IsInf(h.Value, 0) {
			continue
		}
		sum += h.Value
		sumSq += h.Value * h.Value
		n++
	}
	if n < 2 {
		return nil
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return nil
	}
	std := math.Sqrt(variance)

	deviation := math.Abs(current.Value-mean) / std
	if deviation < s.warningSigma {
		return nil
	}

	severity := models.SeverityWarning
	if deviation >= s.criticalSigma {
		severity = models.SeverityCritical
	}
	confidence := deviation / s.criticalSigma
	if confidence > 1 {
		confidence = 1
	}
	return &models.DetectorSignal{
		Type:       models.DetectorSeasonal,
		Severity:   severity,
		Confidence: confidence,
		Summary: fmt.Sprintf("value %.2f is %.1f standard deviations from the %02d:00 baseline (mean %.2f)",
			current.Value, deviation, hour, mean),
	}
}
