package fusion

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/vigil-core/internal/anomaly"
	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/internal/rules"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// detectorFloors are the per-detector minimum confidences: a vote weaker
// than its floor is treated as noise and never reaches synthesis. These sit
// well below the combined min_confidence threshold, which does the real
// gating.
var detectorFloors = map[models.DetectorType]float64{
	models.DetectorRule:        0.3,
	models.DetectorAnomaly:     0.3,
	models.DetectorTrend:       0.3,
	models.DetectorSeasonal:    0.3,
	models.DetectorCorrelation: 0.3,
}

// Fusion combines the rule, anomaly, trend, seasonal and correlation
// detectors into at most one SmartAlert per evaluated sample.
type Fusion struct {
	cfg    config.FusionConfig
	logger logger.Logger

	rules      *rules.Engine
	detector   *anomaly.Detector
	suppressor *rules.Suppressor

	trend       *TrendAnalyzer
	seasonal    *SeasonalAnalyzer
	correlation *CorrelationAnalyzer

	mu           sync.Mutex
	alertHistory map[string][]*models.SmartAlert // per metric, oldest first
	lastAlertAt  map[string]time.Time
}

func New(cfg config.FusionConfig, ruleEngine *rules.Engine, detector *anomaly.Detector, suppressor *rules.Suppressor, log logger.Logger) *Fusion {
	return &Fusion{
		cfg:          cfg,
		logger:       log,
		rules:        ruleEngine,
		detector:     detector,
		suppressor:   suppressor,
		trend:        NewTrendAnalyzer(cfg.TrendWindow, cfg.TrendSlopeThreshold, cfg.TrendRSquaredThreshold),
		seasonal:     NewSeasonalAnalyzer(cfg.SeasonalMinSamples, cfg.SeasonalWarningSigma, cfg.SeasonalCriticalSigma),
		correlation:  NewCorrelationAnalyzer(cfg.RelatedMetrics, cfg.CorrelationWindow),
		alertHistory: make(map[string][]*models.SmartAlert),
		lastAlertAt:  make(map[string]time.Time),
	}
}

// Evaluate runs all detectors for the sample and returns a SmartAlert, or nil
// when the signals are too weak, too few, or suppressed. A failing detector
// contributes nothing; it can never abort the evaluation.
func (f *Fusion) Evaluate(sample models.MetricSample, history []models.MetricSample) *models.SmartAlert {
	started := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("fusion").Observe(time.Since(started).Seconds())
	}()

	if len(history) < f.cfg.MinHistoryPoints {
		return nil
	}

	signals := f.collectSignals(sample, history)
	if len(signals) == 0 {
		return nil
	}

	if f.suppressed(sample.Name, sample.Timestamp) {
		return nil
	}

	alert := f.synthesize(sample, signals)
	if alert == nil {
		return nil
	}

	f.recordAlert(alert)
	metrics.SmartAlertsTotal.WithLabelValues(alert.MetricName, alert.AlertType, string(alert.Severity)).Inc()
	f.logger.Info("Smart alert emitted",
		"alert_id", alert.ID,
		"metric", alert.MetricName,
		"type", alert.AlertType,
		"severity", alert.Severity,
		"confidence", alert.Confidence)
	return alert
}

// collectSignals runs the five detectors and keeps the votes above their
// floors.
func (f *Fusion) collectSignals(sample models.MetricSample, history []models.MetricSample) []models.DetectorSignal {
	window := make([]models.MetricSample, 0, len(history)+1)
	window = append(window, history...)
	window = append(window, sample)

	var candidates []*models.DetectorSignal
	candidates = append(candidates, f.rules.ConditionSignal(sample))
	candidates = append(candidates, f.anomalySignal(sample, history))
	candidates = append(candidates, f.trend.Signal(window))
	candidates = append(candidates, f.seasonal.Signal(sample, history))
	candidates = append(candidates, f.correlation.Signal(
		sample.Name, sample.Timestamp,
		f.rules.GetAlertHistory(1), f.recentAlerts()))

	var fired []models.DetectorSignal
	for _, sig := range candidates {
		if sig == nil {
			continue
		}
		if sig.Confidence < detectorFloors[sig.Type] {
			continue
		}
		fired = append(fired, *sig)
	}
	return fired
}

func (f *Fusion) anomalySignal(sample models.MetricSample, history []models.MetricSample) *models.DetectorSignal {
	res := f.detector.Detect(sample.Name, sample, history)
	if res == nil || !res.IsAnomaly {
		return nil
	}
	severity := models.SeverityWarning
	if res.Confidence >= 0.9 {
		severity = models.SeverityCritical
	}
	return &models.DetectorSignal{
		Type:       models.DetectorAnomaly,
		Severity:   severity,
		Confidence: res.Confidence,
		Summary: fmt.Sprintf("anomalous value %.2f (score %.3f, threshold %.3f, model v%d)",
			sample.Value, res.AnomalyScore, res.ThresholdUsed, res.ModelVersion),
	}
}

// synthesize folds the firing signals into one alert; nil when the combined
// confidence stays below the minimum. Severity takes the worst vote,
// confidence the mean.
func (f *Fusion) synthesize(sample models.MetricSample, fired []models.DetectorSignal) *models.SmartAlert {
	if len(fired) == 0 {
		return nil
	}

	var confidenceSum float64
	severities := make([]models.Severity, 0, len(fired))
	factors := make([]string, 0, len(fired))
	summaries := make([]string, 0, len(fired))
	for _, sig := range fired {
		confidenceSum += sig.Confidence
		severities = append(severities, sig.Severity)
		factors = append(factors, string(sig.Type))
		summaries = append(summaries, sig.Summary)
	}
	confidence := confidenceSum / float64(len(fired))
	if confidence < f.cfg.MinConfidence {
		f.logger.Debug("Combined confidence below threshold",
			"metric", sample.Name,
			"confidence", confidence,
			"detectors", factors)
		return nil
	}

	alertType := string(fired[0].Type)
	if len(fired) > 1 {
		alertType = models.AlertTypeHybrid
	}

	return &models.SmartAlert{
		ID:                  uuid.NewString(),
		MetricName:          sample.Name,
		AlertType:           alertType,
		Severity:            models.MaxSeverity(severities...),
		Confidence:          confidence,
		Message:             fmt.Sprintf("%s: %s", sample.Name, strings.Join(summaries, "; ")),
		ContributingFactors: factors,
		Recommendations:     recommendationsFor(sample.Name, fired),
		Context:             sample.Context,
		TriggeredAt:         sample.Timestamp,
	}
}

// suppressed applies the per-metric cooldown since the last smart alert plus
// any configured suppression rules targeting the metric.
func (f *Fusion) suppressed(metric string, now time.Time) bool {
	f.mu.Lock()
	last, ok := f.lastAlertAt[metric]
	f.mu.Unlock()
	if ok && f.cfg.AlertCooldown > 0 && now.Sub(last) < f.cfg.AlertCooldown {
		f.suppressor.RecordSuppression("smart_alert", metric, rules.ReasonCooldown, now)
		return true
	}

	suppressed, _ := f.suppressor.ShouldSuppress("smart_alert", []string{metric}, now)
	return suppressed
}

func (f *Fusion) recordAlert(alert *models.SmartAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hist := append(f.alertHistory[alert.MetricName], alert)
	if f.cfg.MaxAlertHistory > 0 && len(hist) > f.cfg.MaxAlertHistory {
		hist = hist[len(hist)-f.cfg.MaxAlertHistory:]
	}
	f.alertHistory[alert.MetricName] = hist
	f.lastAlertAt[alert.MetricName] = alert.TriggeredAt

	f.suppressor.RecordFired([]string{alert.MetricName}, alert.TriggeredAt)
}

// recentAlerts flattens the per-metric histories for the correlation check.
func (f *Fusion) recentAlerts() []*models.SmartAlert {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.SmartAlert
	for _, hist := range f.alertHistory {
		out = append(out, hist...)
	}
	return out
}

// AlertHistory returns the recorded smart alerts for a metric, oldest first.
func (f *Fusion) AlertHistory(metric string) []*models.SmartAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.SmartAlert(nil), f.alertHistory[metric]...)
}
