package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from various sources with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/vigil/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VIGIL")

	setDefaults(v)

	// Read configuration file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets reasonable default values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	// Cache defaults (Valkey, optional)
	v.SetDefault("cache.node", "")
	v.SetDefault("cache.ttl", 300) // 5 minutes
	v.SetDefault("cache.db", 0)

	// Integrations defaults
	v.SetDefault("integrations.slack.enabled", false)
	v.SetDefault("integrations.ms_teams.enabled", false)
	v.SetDefault("integrations.email.enabled", false)
	v.SetDefault("integrations.email.smtp_port", 587)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Alerting defaults
	v.SetDefault("alerting.evaluation_interval", 30*time.Second)
	v.SetDefault("alerting.max_incident_history", 1000)
	v.SetDefault("alerting.escalation.enabled", true)
	v.SetDefault("alerting.escalation.delays", []time.Duration{0, 15 * time.Minute, 30 * time.Minute})

	// Anomaly model defaults
	v.SetDefault("alerting.anomaly.min_training_samples", 100)
	v.SetDefault("alerting.anomaly.max_training_samples", 5000)
	v.SetDefault("alerting.anomaly.tree_count", 100)
	v.SetDefault("alerting.anomaly.contamination", 0.10)
	v.SetDefault("alerting.anomaly.retrain_interval", 24*time.Hour)
	v.SetDefault("alerting.anomaly.model_max_age", 7*24*time.Hour)

	// Fusion defaults
	v.SetDefault("alerting.fusion.min_history_points", 10)
	v.SetDefault("alerting.fusion.min_confidence", 0.6)
	v.SetDefault("alerting.fusion.trend_window", 20)
	v.SetDefault("alerting.fusion.trend_slope_threshold", 0.5)
	v.SetDefault("alerting.fusion.trend_r_squared_threshold", 0.7)
	v.SetDefault("alerting.fusion.seasonal_min_samples", 168)
	v.SetDefault("alerting.fusion.seasonal_warning_sigma", 2.5)
	v.SetDefault("alerting.fusion.seasonal_critical_sigma", 4.0)
	v.SetDefault("alerting.fusion.correlation_window", 10*time.Minute)
	v.SetDefault("alerting.fusion.alert_cooldown", 5*time.Minute)
	v.SetDefault("alerting.fusion.max_alert_history", 100)
	v.SetDefault("alerting.fusion.related_metrics", map[string][]string{
		"cpu_usage":         {"memory_usage", "api_response_time"},
		"memory_usage":      {"cpu_usage", "error_rate"},
		"api_response_time": {"cpu_usage", "error_rate", "request_rate"},
		"error_rate":        {"api_response_time", "request_rate"},
	})
}

// overrideWithEnvVars explicitly handles environment variable overrides
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	if cacheNode := os.Getenv("VALKEY_CACHE_NODE"); cacheNode != "" {
		v.Set("cache.node", strings.TrimSpace(cacheNode))
	}

	if cacheTTL := os.Getenv("CACHE_TTL"); cacheTTL != "" {
		if ttl, err := strconv.Atoi(cacheTTL); err == nil {
			v.Set("cache.ttl", ttl)
		}
	}

	if rulesPath := os.Getenv("ALERT_RULES_PATH"); rulesPath != "" {
		v.Set("alerting.rules_path", rulesPath)
	}

	// External integrations
	if slackWebhook := os.Getenv("SLACK_WEBHOOK_URL"); slackWebhook != "" {
		v.Set("integrations.slack.webhook_url", slackWebhook)
		v.Set("integrations.slack.enabled", true)
	}

	if teamsWebhook := os.Getenv("TEAMS_WEBHOOK_URL"); teamsWebhook != "" {
		v.Set("integrations.ms_teams.webhook_url", teamsWebhook)
		v.Set("integrations.ms_teams.enabled", true)
	}

	if smtpHost := os.Getenv("SMTP_HOST"); smtpHost != "" {
		v.Set("integrations.email.smtp_host", smtpHost)
		v.Set("integrations.email.enabled", true)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	if config.Cache.TTL < 1 {
		return fmt.Errorf("cache TTL must be at least 1 second")
	}

	a := config.Alerting
	if a.EvaluationInterval <= 0 {
		return fmt.Errorf("evaluation interval must be positive")
	}
	if a.Anomaly.MinTrainingSamples < 1 {
		return fmt.Errorf("min training samples must be at least 1")
	}
	if a.Anomaly.MaxTrainingSamples < a.Anomaly.MinTrainingSamples {
		return fmt.Errorf("max training samples (%d) below min (%d)",
			a.Anomaly.MaxTrainingSamples, a.Anomaly.MinTrainingSamples)
	}
	if a.Anomaly.Contamination <= 0 || a.Anomaly.Contamination >= 1 {
		return fmt.Errorf("contamination must be in (0, 1), got %f", a.Anomaly.Contamination)
	}
	if a.Fusion.MinConfidence < 0 || a.Fusion.MinConfidence > 1 {
		return fmt.Errorf("fusion min confidence must be between 0 and 1")
	}
	for _, s := range a.Suppression {
		if s.Target == "" {
			return fmt.Errorf("suppression rule with empty target")
		}
		if s.QuietHoursStart < 0 || s.QuietHoursStart > 23 || s.QuietHoursEnd < 0 || s.QuietHoursEnd > 23 {
			return fmt.Errorf("suppression quiet hours out of range for target %s", s.Target)
		}
	}

	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
