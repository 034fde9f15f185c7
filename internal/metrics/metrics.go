// ================================
// internal/metrics/metrics.go - Self-monitoring for VIGIL-CORE
// ================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation path metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_evaluations_total",
			Help: "Total number of sample evaluations processed",
		},
		[]string{"metric"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_core_evaluation_duration_seconds",
			Help:    "Evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"path"}, // rules, fusion
	)

	// Rule engine metrics
	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_incidents_total",
			Help: "Total number of incidents created",
		},
		[]string{"rule_id", "severity"},
	)

	ActiveIncidents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_core_incidents_active",
			Help: "Number of currently active incidents",
		},
		[]string{"severity"},
	)

	// Fusion metrics
	SmartAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_smart_alerts_total",
			Help: "Total number of smart alerts emitted",
		},
		[]string{"metric", "alert_type", "severity"},
	)

	// Suppression is not an error but must be observable for alert-fatigue
	// debugging.
	SuppressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_suppressions_total",
			Help: "Total number of incidents or alerts dropped by suppression",
		},
		[]string{"kind", "reason"}, // incident/smart_alert, cooldown/quiet_hours/weekend
	)

	// Anomaly model metrics
	ModelTrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_model_trainings_total",
			Help: "Total number of anomaly model training runs",
		},
		[]string{"metric", "result"}, // success/skipped/failed
	)

	ModelTrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_core_model_training_duration_seconds",
			Help:    "Anomaly model training duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"metric"},
	)

	// Valkey cache metrics
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_cache_requests_total",
			Help: "Total number of cache requests",
		},
		[]string{"operation", "result"}, // get/set/delete, hit/miss/error/success
	)

	// External integration metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"integration", "type", "success"}, // slack/teams/email, incident/smart_alert/escalation, true/false
	)

	EscalationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_core_escalations_fired_total",
			Help: "Total number of escalation steps fired",
		},
		[]string{"step", "outcome"}, // 0/1/2..., sent/cancelled/noop
	)
)
