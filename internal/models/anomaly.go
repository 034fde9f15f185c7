package models

import "time"

// AnomalyResult is the outcome of scoring one sample against a trained
// per-metric model. Lower anomaly scores are more anomalous (isolation-forest
// convention). A nil result means "no signal", not an error.
type AnomalyResult struct {
	MetricName           string             `json:"metric_name"`
	IsAnomaly            bool               `json:"is_anomaly"`
	AnomalyScore         float64            `json:"anomaly_score"`
	Confidence           float64            `json:"confidence"`
	FeatureContributions map[string]float64 `json:"feature_contributions,omitempty"`
	ModelVersion         int                `json:"model_version"`
	ThresholdUsed        float64            `json:"threshold_used"`
	EvaluatedAt          time.Time          `json:"evaluated_at"`
}

// ModelPerformance holds the self-evaluated quality of a trained model.
// The labels are pseudo-ground-truth (bottom decile of training scores treated
// as anomalies), so these numbers are diagnostic only and never gate detection.
type ModelPerformance struct {
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1Score           float64 `json:"f1_score"`
	Accuracy          float64 `json:"accuracy"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// ModelInfo describes a trained per-metric model.
type ModelInfo struct {
	MetricName      string           `json:"metric_name"`
	Version         int              `json:"version"`
	TrainedAt       time.Time        `json:"trained_at"`
	TrainingSamples int              `json:"training_samples"`
	Contamination   float64          `json:"contamination"`
	ScoreThreshold  float64          `json:"score_threshold"`
	Performance     ModelPerformance `json:"performance"`
}
