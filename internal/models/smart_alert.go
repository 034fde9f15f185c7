package models

import "time"

// DetectorType identifies which analysis path contributed to a smart alert.
type DetectorType string

const (
	DetectorRule        DetectorType = "rule"
	DetectorAnomaly     DetectorType = "anomaly"
	DetectorTrend       DetectorType = "trend"
	DetectorSeasonal    DetectorType = "seasonal"
	DetectorCorrelation DetectorType = "correlation"

	// AlertTypeHybrid is used when more than one detector fired.
	AlertTypeHybrid = "hybrid"
)

// DetectorSignal is one detector's vote for a given evaluation.
type DetectorSignal struct {
	Type       DetectorType `json:"type"`
	Severity   Severity     `json:"severity"`
	Confidence float64      `json:"confidence"`
	Summary    string       `json:"summary"`
}

// SmartAlert is a confidence-scored synthesis of all detector signals for one
// evaluated sample. It is a pure result: the caller decides whether to store
// or forward it.
type SmartAlert struct {
	ID                  string            `json:"id"`
	MetricName          string            `json:"metric_name"`
	AlertType           string            `json:"alert_type"`
	Severity            Severity          `json:"severity"`
	Confidence          float64           `json:"confidence"`
	Message             string            `json:"message"`
	ContributingFactors []string          `json:"contributing_factors"`
	Recommendations     []string          `json:"recommendations"`
	Context             map[string]string `json:"context,omitempty"`
	TriggeredAt         time.Time         `json:"triggered_at"`
}
