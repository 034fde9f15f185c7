package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// CorrelationAnalyzer checks whether metrics known to be related to the one
// under evaluation have fired recently. The relation map is static
// configuration; the recent activity is supplied by the caller on each
// evaluation.
type CorrelationAnalyzer struct {
	related map[string][]string
	window  time.Duration
}

func NewCorrelationAnalyzer(related map[string][]string, window time.Duration) *CorrelationAnalyzer {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &CorrelationAnalyzer{related: related, window: window}
}

// Signal reports correlated recent activity: any incident or smart alert for
// a related metric within the lookback window. Nil when the metric has no
// configured relations or nothing related fired.
func (c *CorrelationAnalyzer) Signal(metric string, now time.Time, incidents []*models.Incident, alerts []*models.SmartAlert) *models.DetectorSignal {
	related := c.related[metric]
	if len(related) == 0 {
		return nil
	}
	cutoff := now.Add(-c.window)

	hits := make(map[string]models.Severity)
	for _, inc := range incidents {
		if inc.TriggeredAt.Before(cutoff) || !contains(related, inc.MetricName) {
			continue
		}
		if inc.Severity.Rank() > hits[inc.MetricName].Rank() {
			hits[inc.MetricName] = inc.Severity
		}
	}
	for _, alert := range alerts {
		if alert.TriggeredAt.Before(cutoff) || !contains(related, alert.MetricName) {
			continue
		}
		if alert.Severity.Rank() > hits[alert.MetricName].Rank() {
			hits[alert.MetricName] = alert.Severity
		}
	}
	if len(hits) == 0 {
		return nil
	}

	names := make([]string, 0, len(hits))
	severities := make([]models.Severity, 0, len(hits))
	for name, sev := range hits {
		names = append(names, name)
		severities = append(severities, sev)
	}
	sort.Strings(names)

	confidence := 0.7
	if len(hits) > 1 {
		confidence = 0.85
	}
	return &models.DetectorSignal{
		Type:       models.DetectorCorrelation,
		Severity:   models.MaxSeverity(severities...),
		Confidence: confidence,
		Summary: fmt.Sprintf("related metric activity in the last %s: %s",
			c.window, strings.Join(names, ", ")),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
