package fusion

import (
	"fmt"
	"math"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// TrendAnalyzer fits an ordinary least-squares line over the most recent
// window of samples. A trend is significant when the slope is steep enough
// and the fit explains most of the variance.
type TrendAnalyzer struct {
	window         int
	slopeThreshold float64
	r2Threshold    float64
}

// TrendResult is the raw fit; Significant applies both thresholds.
type TrendResult struct {
	Slope       float64
	RSquared    float64
	Significant bool
}

func NewTrendAnalyzer(window int, slopeThreshold, r2Threshold float64) *TrendAnalyzer {
	if window < 3 {
		window = 3
	}
	return &TrendAnalyzer{
		window:         window,
		slopeThreshold: slopeThreshold,
		r2Threshold:    r2Threshold,
	}
}

// Analyze fits the line over the last window samples. Nil when fewer than
// three usable points exist.
func (t *TrendAnalyzer) Analyze(history []models.MetricSample) *TrendResult {
	if len(history) > t.window {
		history = history[len(history)-t.window:]
	}

	var xs, ys []float64
	for i, s := range history {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, s.Value)
	}
	if len(ys) < 3 {
		return nil
	}

	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i := range ys {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i := range ys {
		predicted := intercept + slope*xs[i]
		ssRes += (ys[i] - predicted) * (ys[i] - predicted)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return &TrendResult{
		Slope:       slope,
		RSquared:    r2,
		Significant: math.Abs(slope) > t.slopeThreshold && r2 > t.r2Threshold,
	}
}

// Signal converts a significant trend into a detector vote; nil otherwise.
// Confidence is the fit quality, so a noisy trend carries less weight.
func (t *TrendAnalyzer) Signal(history []models.MetricSample) *models.DetectorSignal {
	res := t.Analyze(history)
	if res == nil || !res.Significant {
		return nil
	}

	severity := models.SeverityWarning
	if math.Abs(res.Slope) > 2*t.slopeThreshold {
		severity = models.SeverityCritical
	}
	direction := "rising"
	if res.Slope < 0 {
		direction = "falling"
	}
	return &models.DetectorSignal{
		Type:       models.DetectorTrend,
		Severity:   severity,
		Confidence: res.RSquared,
		Summary: fmt.Sprintf("%s trend, slope %.2f per sample (r²=%.2f)",
			direction, res.Slope, res.RSquared),
	}
}
