package engine

import (
	"strconv"
	"time"

	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
)

// scheduleEscalations arms one timer per configured delay for a new
// incident. Timers are cancelled when the incident resolves, and each timer
// additionally re-checks the incident's status on wake, so a resolve that
// races a firing timer still results in a no-op.
func (e *Engine) scheduleEscalations(inc *models.Incident) {
	if !e.cfg.Escalation.Enabled || e.sink == nil || len(e.cfg.Escalation.Delays) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	incidentID := inc.ID
	for step, delay := range e.cfg.Escalation.Delays {
		step := step
		t := time.AfterFunc(delay, func() {
			e.fireEscalation(incidentID, step)
		})
		e.escalations[incidentID] = append(e.escalations[incidentID], t)
	}
}

func (e *Engine) fireEscalation(incidentID string, step int) {
	label := strconv.Itoa(step)

	current, ok := e.ruleEngine.IncidentByID(incidentID)
	if !ok || current.Status == models.IncidentResolved {
		metrics.EscalationsFired.WithLabelValues(label, "noop").Inc()
		e.logger.Debug("Escalation no-op, incident no longer active",
			"incident_id", incidentID, "step", step)
		return
	}

	e.notify(models.Notification{
		ID:        incidentID,
		Type:      "escalation",
		Title:     "Escalation " + label + ": " + current.RuleName,
		Message:   current.Message,
		Metric:    current.MetricName,
		Severity:  current.Severity,
		Timestamp: current.TriggeredAt,
	})
	metrics.EscalationsFired.WithLabelValues(label, "sent").Inc()
	e.logger.Info("Escalation fired",
		"incident_id", incidentID, "step", step, "severity", current.Severity)
}

// cancelEscalations stops every pending timer for the incident.
func (e *Engine) cancelEscalations(incidentID string) {
	e.mu.Lock()
	timers := e.escalations[incidentID]
	delete(e.escalations, incidentID)
	e.mu.Unlock()

	for step, t := range timers {
		if t.Stop() {
			metrics.EscalationsFired.WithLabelValues(strconv.Itoa(step), "cancelled").Inc()
		}
	}
	if len(timers) > 0 {
		e.logger.Debug("Escalations cancelled", "incident_id", incidentID)
	}
}
