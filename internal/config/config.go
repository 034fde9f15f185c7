package config

import (
	"time"

	"github.com/platformbuilds/vigil-core/internal/models"
)

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Integrations IntegrationsConfig `mapstructure:"integrations" yaml:"integrations"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring" yaml:"monitoring"`
	Alerting     AlertingConfig     `mapstructure:"alerting" yaml:"alerting"`
}

// CacheConfig handles the optional Valkey shared-state cache. An empty node
// address keeps the engine fully in-process.
type CacheConfig struct {
	Node     string `mapstructure:"node" yaml:"node"`
	TTL      int    `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// IntegrationsConfig handles external notification channels
type IntegrationsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack" yaml:"slack"`
	MSTeams MSTeamsConfig `mapstructure:"ms_teams" yaml:"ms_teams"`
	Email   EmailConfig   `mapstructure:"email" yaml:"email"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

type MSTeamsConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

type EmailConfig struct {
	SMTPHost    string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort    int      `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username    string   `mapstructure:"username" yaml:"username"`
	Password    string   `mapstructure:"password" yaml:"password"`
	FromAddress string   `mapstructure:"from_address" yaml:"from_address"`
	Recipients  []string `mapstructure:"recipients" yaml:"recipients"`
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
}

// MonitoringConfig handles self-monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// AlertingConfig holds all tunables of the alerting and anomaly engine.
type AlertingConfig struct {
	// EvaluationInterval drives the periodic rule evaluation loop.
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval" yaml:"evaluation_interval"`

	// RulesPath optionally points to a YAML file of alert conditions that is
	// hot-reloaded on change.
	RulesPath string `mapstructure:"rules_path" yaml:"rules_path"`

	// MaxIncidentHistory bounds the in-memory incident history (oldest
	// evicted first).
	MaxIncidentHistory int `mapstructure:"max_incident_history" yaml:"max_incident_history"`

	Suppression []models.SuppressionRule `mapstructure:"suppression" yaml:"suppression"`
	Escalation  EscalationConfig         `mapstructure:"escalation" yaml:"escalation"`
	Anomaly     AnomalyConfig            `mapstructure:"anomaly" yaml:"anomaly"`
	Fusion      FusionConfig             `mapstructure:"fusion" yaml:"fusion"`
}

// EscalationConfig describes the delayed re-notification steps fired while an
// incident stays unresolved.
type EscalationConfig struct {
	Enabled bool            `mapstructure:"enabled" yaml:"enabled"`
	Delays  []time.Duration `mapstructure:"delays" yaml:"delays"`
}

// AnomalyConfig holds per-metric model training parameters.
type AnomalyConfig struct {
	MinTrainingSamples int           `mapstructure:"min_training_samples" yaml:"min_training_samples"`
	MaxTrainingSamples int           `mapstructure:"max_training_samples" yaml:"max_training_samples"`
	TreeCount          int           `mapstructure:"tree_count" yaml:"tree_count"`
	Contamination      float64       `mapstructure:"contamination" yaml:"contamination"`
	RetrainInterval    time.Duration `mapstructure:"retrain_interval" yaml:"retrain_interval"`
	ModelMaxAge        time.Duration `mapstructure:"model_max_age" yaml:"model_max_age"`
}

// FusionConfig holds signal-fusion thresholds and analyzer tunables.
type FusionConfig struct {
	MinHistoryPoints int     `mapstructure:"min_history_points" yaml:"min_history_points"`
	MinConfidence    float64 `mapstructure:"min_confidence" yaml:"min_confidence"`

	TrendWindow            int     `mapstructure:"trend_window" yaml:"trend_window"`
	TrendSlopeThreshold    float64 `mapstructure:"trend_slope_threshold" yaml:"trend_slope_threshold"`
	TrendRSquaredThreshold float64 `mapstructure:"trend_r_squared_threshold" yaml:"trend_r_squared_threshold"`

	SeasonalMinSamples    int     `mapstructure:"seasonal_min_samples" yaml:"seasonal_min_samples"`
	SeasonalWarningSigma  float64 `mapstructure:"seasonal_warning_sigma" yaml:"seasonal_warning_sigma"`
	SeasonalCriticalSigma float64 `mapstructure:"seasonal_critical_sigma" yaml:"seasonal_critical_sigma"`

	CorrelationWindow time.Duration `mapstructure:"correlation_window" yaml:"correlation_window"`
	// RelatedMetrics maps a metric to the metrics it is known to move with.
	RelatedMetrics map[string][]string `mapstructure:"related_metrics" yaml:"related_metrics"`

	// AlertCooldown is the per-metric cooldown between smart alerts.
	AlertCooldown time.Duration `mapstructure:"alert_cooldown" yaml:"alert_cooldown"`
	// MaxAlertHistory bounds the per-metric smart alert history.
	MaxAlertHistory int `mapstructure:"max_alert_history" yaml:"max_alert_history"`
}
