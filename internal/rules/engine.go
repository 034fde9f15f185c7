package rules

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// Engine evaluates threshold rules against incoming samples and owns the
// incident lifecycle. Per rule the state machine is:
//
//	NORMAL -> BREACHING(since) -> ACTIVE -> ACKNOWLEDGED -> RESOLVED
//
// A condition must hold continuously for the rule's Duration before an
// incident is created; a non-breaching sample clears the hysteresis timer and
// auto-resolves any active incident. At most one active incident exists per
// rule at any time.
//
// All state lives behind one mutex. Evaluation does no I/O, so holding the
// lock for a full pass is cheap.
type Engine struct {
	logger     logger.Logger
	suppressor *Suppressor
	maxHistory int

	mu             sync.Mutex
	conditions     map[string]models.AlertCondition
	operators      map[string]Operator
	breachingSince map[string]time.Time
	active         map[string]*models.Incident // rule id -> non-resolved incident
	history        []*models.Incident          // oldest first, bounded by maxHistory
}

func NewEngine(maxHistory int, suppressor *Suppressor, log logger.Logger) *Engine {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Engine{
		logger:         log,
		suppressor:     suppressor,
		maxHistory:     maxHistory,
		conditions:     make(map[string]models.AlertCondition),
		operators:      make(map[string]Operator),
		breachingSince: make(map[string]time.Time),
		active:         make(map[string]*models.Incident),
	}
}

// AddRule registers or replaces a rule. The operator is parsed once here so
// evaluation never sees an unparseable rule.
func (e *Engine) AddRule(cond models.AlertCondition) error {
	if cond.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if cond.MetricName == "" {
		return fmt.Errorf("rule %s: metric_name is required", cond.ID)
	}
	op, ok := ParseOperator(cond.Operator)
	if !ok {
		return fmt.Errorf("rule %s: unknown operator %q", cond.ID, cond.Operator)
	}
	if cond.Severity.Rank() == 0 {
		cond.Severity = models.SeverityWarning
	}
	now := time.Now()
	if cond.CreatedAt.IsZero() {
		cond.CreatedAt = now
	}
	cond.UpdatedAt = now

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conditions[cond.ID] = cond
	e.operators[cond.ID] = op
	delete(e.breachingSince, cond.ID)
	e.logger.Info("Rule added", "rule_id", cond.ID, "metric", cond.MetricName, "operator", cond.Operator)
	return nil
}

// RemoveRule deletes a rule and auto-resolves its active incident, if any.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.conditions[id]; !ok {
		return false
	}
	delete(e.conditions, id)
	delete(e.operators, id)
	delete(e.breachingSince, id)
	if inc := e.active[id]; inc != nil {
		e.resolveLocked(inc, time.Now(), "system", "rule removed")
	}
	e.logger.Info("Rule removed", "rule_id", id)
	return true
}

func (e *Engine) EnableRule(id string) bool {
	return e.setEnabled(id, true)
}

// DisableRule stops evaluation for the rule and auto-resolves its active
// incident, since nothing would ever resolve it otherwise.
func (e *Engine) DisableRule(id string) bool {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cond, ok := e.conditions[id]
	if !ok {
		return false
	}
	cond.Enabled = enabled
	cond.UpdatedAt = time.Now()
	e.conditions[id] = cond
	if !enabled {
		delete(e.breachingSince, id)
		if inc := e.active[id]; inc != nil {
			e.resolveLocked(inc, time.Now(), "system", "rule disabled")
		}
	}
	return true
}

// Rules returns a snapshot of all registered rules.
func (e *Engine) Rules() []models.AlertCondition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.AlertCondition, 0, len(e.conditions))
	for _, cond := range e.conditions {
		out = append(out, cond)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evaluate runs every enabled rule matching the sample's metric and returns
// any incidents created by this sample. A bad rule (failed regex, unknown
// operator) is logged and skipped; it can never abort the pass.
func (e *Engine) Evaluate(sample models.MetricSample) []*models.Incident {
	started := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("rules").Observe(time.Since(started).Seconds())
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	var created []*models.Incident
	for id, cond := range e.conditions {
		if !cond.Enabled || cond.MetricName != sample.Name {
			continue
		}

		holds, err := e.operators[id].Matches(sample.Value, cond, sample.Context)
		if err != nil {
			e.logger.Warn("Rule evaluation failed, treating as not holding",
				"rule_id", id, "error", err)
			holds = false
		}

		if !holds {
			delete(e.breachingSince, id)
			if inc := e.active[id]; inc != nil {
				e.resolveLocked(inc, sample.Timestamp, "auto", "condition cleared")
			}
			continue
		}

		if e.active[id] != nil {
			continue // at most one active incident per rule
		}

		since, breaching := e.breachingSince[id]
		if !breaching {
			since = sample.Timestamp
			e.breachingSince[id] = since
		}
		if sample.Timestamp.Sub(since) < cond.Duration {
			continue // still inside the hysteresis window
		}

		if suppressed, reason := e.suppressor.ShouldSuppress(
			"incident", []string{cond.ID, cond.MetricName}, sample.Timestamp); suppressed {
			e.logger.Debug("Incident suppressed",
				"rule_id", id, "metric", sample.Name, "reason", reason)
			continue
		}

		inc := e.createIncidentLocked(cond, sample)
		created = append(created, inc)
	}
	return created
}

func (e *Engine) createIncidentLocked(cond models.AlertCondition, sample models.MetricSample) *models.Incident {
	inc := &models.Incident{
		ID:           uuid.NewString(),
		RuleID:       cond.ID,
		RuleName:     cond.Name,
		MetricName:   cond.MetricName,
		Status:       models.IncidentActive,
		Severity:     cond.Severity,
		TriggerValue: sample.Value,
		Message:      incidentMessage(cond, sample.Value),
		TriggeredAt:  sample.Timestamp,
		Context:      sample.Context,
	}
	e.active[cond.ID] = inc
	e.appendHistoryLocked(inc)
	e.suppressor.RecordFired([]string{cond.ID, cond.MetricName}, sample.Timestamp)

	metrics.IncidentsTotal.WithLabelValues(cond.ID, string(cond.Severity)).Inc()
	metrics.ActiveIncidents.WithLabelValues(string(cond.Severity)).Inc()
	e.logger.Info("Incident created",
		"incident_id", inc.ID,
		"rule_id", cond.ID,
		"metric", cond.MetricName,
		"severity", cond.Severity,
		"value", sample.Value)
	return inc
}

// Acknowledge marks an active incident as acknowledged. It returns false
// when the incident does not exist or is not active, so a second call is a
// safe no-op that changes nothing.
func (e *Engine) Acknowledge(incidentID, user string, notes ...string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inc := e.findLocked(incidentID)
	if inc == nil || inc.Status != models.IncidentActive {
		return false
	}
	now := time.Now()
	inc.Status = models.IncidentAcknowledged
	inc.AcknowledgedAt = &now
	inc.AcknowledgedBy = user
	inc.Notes = append(inc.Notes, notes...)
	e.logger.Info("Incident acknowledged", "incident_id", incidentID, "user", user)
	return true
}

// Resolve closes an active or acknowledged incident. Resolving twice returns
// false on the second call.
func (e *Engine) Resolve(incidentID, user string, notes ...string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inc := e.findLocked(incidentID)
	if inc == nil || inc.Status == models.IncidentResolved {
		return false
	}
	e.resolveLocked(inc, time.Now(), user, notes...)
	return true
}

func (e *Engine) resolveLocked(inc *models.Incident, at time.Time, by string, notes ...string) {
	if inc.Status == models.IncidentResolved {
		return
	}
	inc.Status = models.IncidentResolved
	resolved := at
	inc.ResolvedAt = &resolved
	inc.ResolvedBy = by
	inc.Notes = append(inc.Notes, notes...)
	delete(e.active, inc.RuleID)

	metrics.ActiveIncidents.WithLabelValues(string(inc.Severity)).Dec()
	e.logger.Info("Incident resolved",
		"incident_id", inc.ID,
		"rule_id", inc.RuleID,
		"resolved_by", by)
}

// GetActiveAlerts returns non-resolved incidents, newest first, optionally
// filtered by severity.
func (e *Engine) GetActiveAlerts(severity models.Severity) []*models.Incident {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.Incident, 0, len(e.active))
	for _, inc := range e.active {
		if severity != "" && inc.Severity != severity {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out
}

// GetAlertHistory returns incidents triggered within the last given hours,
// newest first.
func (e *Engine) GetAlertHistory(hours int) []*models.Incident {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	var out []*models.Incident
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].TriggeredAt.Before(cutoff) {
			continue
		}
		out = append(out, e.history[i])
	}
	return out
}

// ConditionSignal is the instantaneous rule check used by the fusion layer:
// it reports the most severe enabled rule whose condition holds for this
// value right now, ignoring hysteresis and suppression. Nil when no rule
// matches.
func (e *Engine) ConditionSignal(sample models.MetricSample) *models.DetectorSignal {
	e.mu.Lock()
	defer e.mu.Unlock()

	var best *models.DetectorSignal
	for id, cond := range e.conditions {
		if !cond.Enabled || cond.MetricName != sample.Name {
			continue
		}
		holds, err := e.operators[id].Matches(sample.Value, cond, sample.Context)
		if err != nil || !holds {
			continue
		}
		if best != nil && cond.Severity.Rank() <= best.Severity.Rank() {
			continue
		}
		best = &models.DetectorSignal{
			Type:       models.DetectorRule,
			Severity:   cond.Severity,
			Confidence: 1.0,
			Summary:    incidentMessage(cond, sample.Value),
		}
	}
	return best
}

// IncidentByID returns a copy of the incident, or false when unknown. Used
// by escalation timers to re-check activity on wake.
func (e *Engine) IncidentByID(incidentID string) (models.Incident, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inc := e.findLocked(incidentID)
	if inc == nil {
		return models.Incident{}, false
	}
	return *inc, true
}

func (e *Engine) findLocked(incidentID string) *models.Incident {
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].ID == incidentID {
			return e.history[i]
		}
	}
	return nil
}

func (e *Engine) appendHistoryLocked(inc *models.Incident) {
	e.history = append(e.history, inc)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
}

func incidentMessage(cond models.AlertCondition, value float64) string {
	msg := fmt.Sprintf("%s: %s %s %s (current: %s)",
		cond.Name, cond.MetricName, cond.Operator,
		formatValue(cond.Threshold), formatValue(value))
	if cond.Description != "" {
		msg = cond.Description + ". " + msg
	}
	return msg
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
