package models

import "time"

// MetricSample is a single observed value for a named metric. Samples are
// ephemeral: the engine evaluates them and keeps only bounded in-memory
// history, never persisting raw points.
type MetricSample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// TimeRange bounds a metric history request.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EvaluationStats summarizes evaluation activity over a lookback window.
// Suppressed counts are tracked separately so alert-fatigue debugging can see
// what was deliberately dropped.
type EvaluationStats struct {
	WindowHours           int            `json:"window_hours"`
	TotalEvaluations      int            `json:"total_evaluations"`
	TriggeredEvaluations  int            `json:"triggered_evaluations"`
	SuppressedEvaluations int            `json:"suppressed_evaluations"`
	TriggerRatePercent    float64        `json:"trigger_rate_percent"`
	PerMetricTriggers     map[string]int `json:"per_metric_triggers"`
}
