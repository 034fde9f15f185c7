package models

import "time"

// Severity classifies how urgent an incident or alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns a numeric ordering so severities can be compared; higher is
// more urgent. Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the most urgent of the given severities.
func MaxSeverity(severities ...Severity) Severity {
	best := Severity("")
	for _, s := range severities {
		if s.Rank() > best.Rank() {
			best = s
		}
	}
	if best == "" {
		best = SeverityInfo
	}
	return best
}

// AlertCondition is a user-defined threshold rule evaluated against incoming
// samples. Duration is the hysteresis window: the condition must hold
// continuously for at least this long before an incident is created.
type AlertCondition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	MetricName  string            `json:"metric_name"`
	Operator    string            `json:"operator"`
	Threshold   float64           `json:"threshold"`
	ValueSet    []string          `json:"value_set,omitempty"` // for in / not_in operators
	Pattern     string            `json:"pattern,omitempty"`   // for contains / regex operators
	Duration    time.Duration     `json:"duration"`
	Severity    Severity          `json:"severity"`
	Enabled     bool              `json:"enabled"`
	Tags        map[string]string `json:"tags,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IncidentStatus tracks an incident through its lifecycle.
type IncidentStatus string

const (
	IncidentActive       IncidentStatus = "active"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
)

// Incident is a sustained rule breach. At most one active incident exists per
// rule at any time; repeated breaches while active never create a second one.
type Incident struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	MetricName     string            `json:"metric_name"`
	Status         IncidentStatus    `json:"status"`
	Severity       Severity          `json:"severity"`
	TriggerValue   float64           `json:"trigger_value"`
	Message        string            `json:"message"`
	TriggeredAt    time.Time         `json:"triggered_at"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy     string            `json:"resolved_by,omitempty"`
	Notes          []string          `json:"notes,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

// SuppressionRule withholds otherwise-valid incidents or smart alerts.
// Target matches either a rule ID or a metric name. A zero CooldownSeconds
// means no cooldown; quiet hours are local hours [start, end) during which the
// target stays silent, enabled whenever start != end.
type SuppressionRule struct {
	Target           string `json:"target" mapstructure:"target" yaml:"target"`
	CooldownSeconds  int    `json:"cooldown_seconds,omitempty" mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
	QuietHoursStart  int    `json:"quiet_hours_start,omitempty" mapstructure:"quiet_hours_start" yaml:"quiet_hours_start"`
	QuietHoursEnd    int    `json:"quiet_hours_end,omitempty" mapstructure:"quiet_hours_end" yaml:"quiet_hours_end"`
	SuppressWeekends bool   `json:"suppress_weekends,omitempty" mapstructure:"suppress_weekends" yaml:"suppress_weekends"`
}

// QuietHoursEnabled reports whether the rule defines a quiet-hours window.
func (s SuppressionRule) QuietHoursEnabled() bool {
	return s.QuietHoursStart != s.QuietHoursEnd
}

// InQuietHours reports whether t falls inside the quiet-hours window. Windows
// may wrap midnight (e.g. 22 to 6).
func (s SuppressionRule) InQuietHours(t time.Time) bool {
	if !s.QuietHoursEnabled() {
		return false
	}
	h := t.Hour()
	if s.QuietHoursStart < s.QuietHoursEnd {
		return h >= s.QuietHoursStart && h < s.QuietHoursEnd
	}
	return h >= s.QuietHoursStart || h < s.QuietHoursEnd
}

// Notification is the payload handed to notification channels. The core
// records that delivery was attempted; retry policy belongs to the sink.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // incident, smart_alert, escalation
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}
