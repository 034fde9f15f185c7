package engine

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/vigil-core/internal/anomaly"
	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/fusion"
	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/internal/rules"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// MetricSource supplies bounded, timestamp-ascending history for a metric.
// Gaps are tolerated. The engine never persists samples itself.
type MetricSource interface {
	History(ctx context.Context, metric string, window time.Duration) ([]models.MetricSample, error)
}

// NotificationSink delivers a notification to its channels and reports
// per-channel success. Fire-and-forget from the engine's perspective: the
// sink owns retry and backoff policy.
type NotificationSink interface {
	Send(ctx context.Context, n models.Notification) map[string]bool
}

// historyWindow is how much history the periodic loop pulls per metric. One
// week covers the seasonal baselines.
const historyWindow = 7 * 24 * time.Hour

// evalRecord is one evaluation outcome kept for stats.
type evalRecord struct {
	at        time.Time
	metric    string
	triggered bool
}

const maxEvalRecords = 100000

// Engine wires the rule engine, anomaly detector and fusion layer together
// and owns the background loops: periodic evaluation, daily retraining and
// per-incident escalation timers. Construct one per process and pass it by
// reference; there is no package-level state.
type Engine struct {
	cfg    config.AlertingConfig
	logger logger.Logger

	source MetricSource
	sink   NotificationSink

	ruleEngine *rules.Engine
	detector   *anomaly.Detector
	fusion     *fusion.Fusion
	suppressor *rules.Suppressor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	escalations map[string][]*time.Timer // incident id -> pending timers
	evalLog     []evalRecord
	started     bool
}

func New(cfg config.AlertingConfig, source MetricSource, sink NotificationSink, store cache.Store, log logger.Logger) *Engine {
	suppressor := rules.NewSuppressor(cfg.Suppression, store, log)
	ruleEngine := rules.NewEngine(cfg.MaxIncidentHistory, suppressor, log)
	detector := anomaly.NewDetector(cfg.Anomaly, log)

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		logger:      log,
		source:      source,
		sink:        sink,
		ruleEngine:  ruleEngine,
		detector:    detector,
		fusion:      fusion.New(cfg.Fusion, ruleEngine, detector, suppressor, log),
		suppressor:  suppressor,
		ctx:         ctx,
		cancel:      cancel,
		escalations: make(map[string][]*time.Timer),
	}
}

// Start launches the periodic evaluation and retraining loops. Callers that
// only push samples through Evaluate directly may skip Start entirely.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.evaluationLoop()

	if e.cfg.Anomaly.RetrainInterval > 0 {
		e.wg.Add(1)
		go e.retrainLoop()
	}
	e.logger.Info("Alerting engine started",
		"evaluation_interval", e.cfg.EvaluationInterval,
		"retrain_interval", e.cfg.Anomaly.RetrainInterval)
}

// Stop cancels the loops and every pending escalation timer. In-flight
// notification sends run to completion; nothing is retried.
func (e *Engine) Stop() {
	e.cancel()

	e.mu.Lock()
	for id, timers := range e.escalations {
		for _, t := range timers {
			t.Stop()
		}
		delete(e.escalations, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Alerting engine stopped")
}

// AddRule registers a threshold rule.
func (e *Engine) AddRule(cond models.AlertCondition) error {
	return e.ruleEngine.AddRule(cond)
}

// RemoveRule deletes a rule, auto-resolving its active incident.
func (e *Engine) RemoveRule(id string) bool {
	return e.ruleEngine.RemoveRule(id)
}

func (e *Engine) EnableRule(id string) bool  { return e.ruleEngine.EnableRule(id) }
func (e *Engine) DisableRule(id string) bool { return e.ruleEngine.DisableRule(id) }

// Rules returns a snapshot of the registered rules.
func (e *Engine) Rules() []models.AlertCondition { return e.ruleEngine.Rules() }

// ReplaceRules swaps the whole rule set, used by the rules-file hot reload.
// Rules present in both sets are updated in place so their incident state
// survives; rules that disappeared are removed (auto-resolving incidents).
func (e *Engine) ReplaceRules(conds []models.AlertCondition) {
	keep := make(map[string]struct{}, len(conds))
	for _, cond := range conds {
		if err := e.ruleEngine.AddRule(cond); err != nil {
			e.logger.Warn("Skipping invalid rule on reload", "rule_id", cond.ID, "error", err)
			continue
		}
		keep[cond.ID] = struct{}{}
	}
	for _, existing := range e.ruleEngine.Rules() {
		if _, ok := keep[existing.ID]; !ok {
			e.ruleEngine.RemoveRule(existing.ID)
		}
	}
}

// Evaluate runs one sample through both paths: the rule engine's incident
// lifecycle and the fusion layer. History is pulled from the metric source
// when available; without a source the fusion path degrades to rules only.
// Either return value may be nil; both nil means nothing fired.
func (e *Engine) Evaluate(sample models.MetricSample) (*models.Incident, *models.SmartAlert) {
	metrics.EvaluationsTotal.WithLabelValues(sample.Name).Inc()

	history := e.pullHistory(sample.Name)
	// The ingest path stores a sample before evaluating it, so the pulled
	// history can already end with the sample under evaluation. Only points
	// strictly before it count as history.
	for len(history) > 0 && !history[len(history)-1].Timestamp.Before(sample.Timestamp) {
		history = history[:len(history)-1]
	}

	var incident *models.Incident
	if created := e.ruleEngine.Evaluate(sample); len(created) > 0 {
		incident = created[0]
		for _, inc := range created {
			e.onIncident(inc)
		}
	}

	alert := e.fusion.Evaluate(sample, history)
	if alert != nil {
		e.onSmartAlert(alert)
	}

	e.recordEvaluation(sample.Name, incident != nil || alert != nil)
	return incident, alert
}

// Acknowledge marks an incident acknowledged; false when it is not active.
func (e *Engine) Acknowledge(incidentID, user string, notes ...string) bool {
	return e.ruleEngine.Acknowledge(incidentID, user, notes...)
}

// Resolve closes an incident and cancels its pending escalations; false when
// it is already resolved or unknown.
func (e *Engine) Resolve(incidentID, user string, notes ...string) bool {
	if !e.ruleEngine.Resolve(incidentID, user, notes...) {
		return false
	}
	e.cancelEscalations(incidentID)
	return true
}

func (e *Engine) GetActiveAlerts(severity models.Severity) []*models.Incident {
	return e.ruleEngine.GetActiveAlerts(severity)
}

func (e *Engine) GetAlertHistory(hours int) []*models.Incident {
	return e.ruleEngine.GetAlertHistory(hours)
}

// TrainModel trains (or force-retrains) the metric's anomaly model.
func (e *Engine) TrainModel(metric string, history []models.MetricSample, force bool) bool {
	return e.detector.Train(metric, history, force)
}

// GetModelInfo describes the metric's current anomaly model, nil if none.
func (e *Engine) GetModelInfo(metric string) *models.ModelInfo {
	return e.detector.ModelInfo(metric)
}

// GetEvaluationStats summarizes evaluation activity over the last hours.
func (e *Engine) GetEvaluationStats(hours int) models.EvaluationStats {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	e.mu.Lock()
	stats := models.EvaluationStats{
		WindowHours:       hours,
		PerMetricTriggers: make(map[string]int),
	}
	for _, rec := range e.evalLog {
		if rec.at.Before(cutoff) {
			continue
		}
		stats.TotalEvaluations++
		if rec.triggered {
			stats.TriggeredEvaluations++
			stats.PerMetricTriggers[rec.metric]++
		}
	}
	e.mu.Unlock()

	stats.SuppressedEvaluations = e.suppressor.SuppressionsSince(cutoff)
	if stats.TotalEvaluations > 0 {
		stats.TriggerRatePercent = 100 * float64(stats.TriggeredEvaluations) / float64(stats.TotalEvaluations)
	}
	return stats
}

func (e *Engine) pullHistory(metric string) []models.MetricSample {
	if e.source == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	history, err := e.source.History(ctx, metric, historyWindow)
	if err != nil {
		e.logger.Warn("Metric source history failed", "metric", metric, "error", err)
		return nil
	}
	return history
}

func (e *Engine) recordEvaluation(metric string, triggered bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evalLog = append(e.evalLog, evalRecord{at: time.Now(), metric: metric, triggered: triggered})
	if len(e.evalLog) > maxEvalRecords {
		e.evalLog = e.evalLog[len(e.evalLog)-maxEvalRecords:]
	}
}

func (e *Engine) onIncident(inc *models.Incident) {
	e.notify(models.Notification{
		ID:        inc.ID,
		Type:      "incident",
		Title:     inc.RuleName,
		Message:   inc.Message,
		Metric:    inc.MetricName,
		Severity:  inc.Severity,
		Timestamp: inc.TriggeredAt,
	})
	e.scheduleEscalations(inc)
}

func (e *Engine) onSmartAlert(alert *models.SmartAlert) {
	e.notify(models.Notification{
		ID:        alert.ID,
		Type:      "smart_alert",
		Title:     alert.MetricName + " (" + alert.AlertType + ")",
		Message:   alert.Message,
		Metric:    alert.MetricName,
		Severity:  alert.Severity,
		Timestamp: alert.TriggeredAt,
	})
}

// notify dispatches asynchronously; delivery results are the sink's problem.
// Sends use a fresh context so an engine shutdown lets in-flight deliveries
// complete instead of cancelling them.
func (e *Engine) notify(n models.Notification) {
	if e.sink == nil || e.ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e.sink.Send(ctx, n)
	}()
}

// evaluationLoop ticks at the configured interval and evaluates the latest
// sample of every metric that has a rule. Ticks never overlap: the body runs
// synchronously and a missed tick is simply dropped by the ticker.
func (e *Engine) evaluationLoop() {
	defer e.wg.Done()

	interval := e.cfg.EvaluationInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.refreshSharedState()
			e.evaluateTick()
		}
	}
}

// refreshSharedState folds cross-replica suppression markers into the local
// view between evaluation passes. Evaluation itself never touches the cache.
func (e *Engine) refreshSharedState() {
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()
	e.suppressor.RefreshShared(ctx)
}

func (e *Engine) evaluateTick() {
	if e.source == nil {
		return
	}
	for _, metric := range e.trackedMetrics() {
		history := e.pullHistory(metric)
		if len(history) == 0 {
			continue
		}
		current := history[len(history)-1]
		// Evaluate pulls history again internally, which is redundant but
		// keeps one code path; sources are expected to be cheap local reads.
		e.Evaluate(current)
	}
}

// trackedMetrics is the set of metrics worth evaluating periodically: every
// metric named by a rule plus every key of the related-metrics map.
func (e *Engine) trackedMetrics() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, cond := range e.ruleEngine.Rules() {
		if _, ok := seen[cond.MetricName]; ok {
			continue
		}
		seen[cond.MetricName] = struct{}{}
		out = append(out, cond.MetricName)
	}
	for metric := range e.cfg.Fusion.RelatedMetrics {
		if _, ok := seen[metric]; ok {
			continue
		}
		seen[metric] = struct{}{}
		out = append(out, metric)
	}
	return out
}

// retrainLoop force-retrains every tracked metric's model on the configured
// interval. Failures are independent per metric.
func (e *Engine) retrainLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Anomaly.RetrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.retrainTick()
		}
	}
}

func (e *Engine) retrainTick() {
	if e.source == nil {
		return
	}
	histories := make(map[string][]models.MetricSample)
	for _, metric := range e.trackedMetrics() {
		if history := e.pullHistory(metric); len(history) > 0 {
			histories[metric] = history
		}
	}
	results := e.detector.RetrainAll(histories)
	e.logger.Info("Retraining pass finished", "metrics", len(results))
}
