package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigil-core/internal/anomaly"
	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/internal/rules"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

func testFusionConfig() config.FusionConfig {
	return config.FusionConfig{
		MinHistoryPoints:       10,
		MinConfidence:          0.6,
		TrendWindow:            20,
		TrendSlopeThreshold:    0.5,
		TrendRSquaredThreshold: 0.7,
		SeasonalMinSamples:     168,
		SeasonalWarningSigma:   2.5,
		SeasonalCriticalSigma:  4.0,
		CorrelationWindow:      10 * time.Minute,
		AlertCooldown:          5 * time.Minute,
		MaxAlertHistory:        100,
	}
}

func newTestFusion(t *testing.T, cfg config.FusionConfig) (*Fusion, *rules.Engine) {
	t.Helper()
	log := logger.NewNop()
	ruleEngine := rules.NewEngine(100, rules.NewSuppressor(nil, nil, log), log)
	detector := anomaly.NewDetector(config.AnomalyConfig{
		MinTrainingSamples: 100,
		MaxTrainingSamples: 5000,
		TreeCount:          50,
		Contamination:      0.10,
		RetrainInterval:    24 * time.Hour,
		ModelMaxAge:        7 * 24 * time.Hour,
	}, log)
	return New(cfg, ruleEngine, detector, rules.NewSuppressor(nil, nil, log), log), ruleEngine
}

func flatHistory(metric string, n int, value float64) []models.MetricSample {
	start := time.Now().Add(-time.Duration(n) * time.Minute)
	out := make([]models.MetricSample, n)
	for i := range out {
		out[i] = models.MetricSample{
			Name:      metric,
			Value:     value,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestSynthesize_SingleWeakDetectorBelowThreshold(t *testing.T) {
	f, _ := newTestFusion(t, testFusionConfig())
	sample := models.MetricSample{Name: "cpu_usage", Value: 85, Timestamp: time.Now()}

	alert := f.synthesize(sample, []models.DetectorSignal{
		{Type: models.DetectorAnomaly, Severity: models.SeverityWarning, Confidence: 0.4},
	})
	assert.Nil(t, alert, "0.4 alone is below the 0.6 combined threshold")
}

func TestSynthesize_TwoDetectorsCombineToHybrid(t *testing.T) {
	f, _ := newTestFusion(t, testFusionConfig())
	sample := models.MetricSample{Name: "cpu_usage", Value: 85, Timestamp: time.Now()}

	alert := f.synthesize(sample, []models.DetectorSignal{
		{Type: models.DetectorAnomaly, Severity: models.SeverityWarning, Confidence: 0.7, Summary: "anomalous value"},
		{Type: models.DetectorTrend, Severity: models.SeverityCritical, Confidence: 0.65, Summary: "rising trend"},
	})
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertTypeHybrid, alert.AlertType)
	assert.InDelta(t, 0.675, alert.Confidence, 1e-9)
	assert.Equal(t, models.SeverityCritical, alert.Severity, "severity takes the worst vote")
	assert.ElementsMatch(t, []string{"anomaly", "trend"}, alert.ContributingFactors)
	assert.NotEmpty(t, alert.Recommendations)
	assert.LessOrEqual(t, len(alert.Recommendations), 5)
	assert.Contains(t, alert.Message, "cpu_usage")
}

func TestSynthesize_SingleStrongDetectorKeepsItsType(t *testing.T) {
	f, _ := newTestFusion(t, testFusionConfig())
	sample := models.MetricSample{Name: "cpu_usage", Value: 85, Timestamp: time.Now()}

	alert := f.synthesize(sample, []models.DetectorSignal{
		{Type: models.DetectorRule, Severity: models.SeverityWarning, Confidence: 1.0, Summary: "threshold breach"},
	})
	require.NotNil(t, alert)
	assert.Equal(t, "rule", alert.AlertType)
}

func TestEvaluate_RequiresMinimumHistory(t *testing.T) {
	f, ruleEngine := newTestFusion(t, testFusionConfig())
	require.NoError(t, ruleEngine.AddRule(models.AlertCondition{
		ID: "cpu-high", Name: "High CPU", MetricName: "cpu_usage",
		Operator: ">", Threshold: 80, Severity: models.SeverityWarning, Enabled: true,
	}))

	sample := models.MetricSample{Name: "cpu_usage", Value: 90, Timestamp: time.Now()}
	assert.Nil(t, f.Evaluate(sample, flatHistory("cpu_usage", 9, 50)), "9 points are not enough")
}

func TestEvaluate_RuleBreachEmitsAlert(t *testing.T) {
	f, ruleEngine := newTestFusion(t, testFusionConfig())
	require.NoError(t, ruleEngine.AddRule(models.AlertCondition{
		ID: "cpu-high", Name: "High CPU", MetricName: "cpu_usage",
		Operator: ">", Threshold: 80, Severity: models.SeverityWarning, Enabled: true,
	}))

	history := flatHistory("cpu_usage", 30, 50)
	sample := models.MetricSample{Name: "cpu_usage", Value: 90, Timestamp: time.Now()}

	alert := f.Evaluate(sample, history)
	require.NotNil(t, alert)
	assert.Equal(t, "rule", alert.AlertType, "only the rule detector fires on flat history")
	assert.Equal(t, []string{"rule"}, alert.ContributingFactors)
	assert.InDelta(t, 1.0, alert.Confidence, 1e-9)

	require.Len(t, f.AlertHistory("cpu_usage"), 1)
}

func TestEvaluate_CooldownSuppressesRepeat(t *testing.T) {
	f, ruleEngine := newTestFusion(t, testFusionConfig())
	require.NoError(t, ruleEngine.AddRule(models.AlertCondition{
		ID: "cpu-high", Name: "High CPU", MetricName: "cpu_usage",
		Operator: ">", Threshold: 80, Severity: models.SeverityWarning, Enabled: true,
	}))
	history := flatHistory("cpu_usage", 30, 50)

	first := models.MetricSample{Name: "cpu_usage", Value: 90, Timestamp: time.Now()}
	require.NotNil(t, f.Evaluate(first, history))

	soon := models.MetricSample{Name: "cpu_usage", Value: 92, Timestamp: first.Timestamp.Add(time.Minute)}
	assert.Nil(t, f.Evaluate(soon, history), "inside the per-metric cooldown")

	later := models.MetricSample{Name: "cpu_usage", Value: 92, Timestamp: first.Timestamp.Add(6 * time.Minute)}
	assert.NotNil(t, f.Evaluate(later, history), "cooldown expired")
	assert.Len(t, f.AlertHistory("cpu_usage"), 2)
}

func TestEvaluate_CooldownCountsAsSuppression(t *testing.T) {
	log := logger.NewNop()
	ruleEngine := rules.NewEngine(100, rules.NewSuppressor(nil, nil, log), log)
	detector := anomaly.NewDetector(config.AnomalyConfig{
		MinTrainingSamples: 100,
		MaxTrainingSamples: 5000,
		TreeCount:          50,
		Contamination:      0.10,
		RetrainInterval:    24 * time.Hour,
		ModelMaxAge:        7 * 24 * time.Hour,
	}, log)
	suppressor := rules.NewSuppressor(nil, nil, log)
	f := New(testFusionConfig(), ruleEngine, detector, suppressor, log)
	require.NoError(t, ruleEngine.AddRule(models.AlertCondition{
		ID: "cpu-high", Name: "High CPU", MetricName: "cpu_usage",
		Operator: ">", Threshold: 80, Severity: models.SeverityWarning, Enabled: true,
	}))
	history := flatHistory("cpu_usage", 30, 50)

	first := models.MetricSample{Name: "cpu_usage", Value: 90, Timestamp: time.Now()}
	require.NotNil(t, f.Evaluate(first, history))

	soon := models.MetricSample{Name: "cpu_usage", Value: 92, Timestamp: first.Timestamp.Add(time.Minute)}
	require.Nil(t, f.Evaluate(soon, history))

	// The cooldown drop must show up in suppression stats, not just metrics.
	assert.Equal(t, 1, suppressor.SuppressionsSince(first.Timestamp.Add(-time.Hour)))
}

func TestEvaluate_NoDetectorNoAlert(t *testing.T) {
	f, _ := newTestFusion(t, testFusionConfig())
	history := flatHistory("cpu_usage", 30, 50)
	sample := models.MetricSample{Name: "cpu_usage", Value: 51, Timestamp: time.Now()}

	assert.Nil(t, f.Evaluate(sample, history))
}

func TestEvaluate_AlertHistoryIsBounded(t *testing.T) {
	cfg := testFusionConfig()
	cfg.AlertCooldown = 0
	cfg.MaxAlertHistory = 3
	f, ruleEngine := newTestFusion(t, cfg)
	require.NoError(t, ruleEngine.AddRule(models.AlertCondition{
		ID: "cpu-high", Name: "High CPU", MetricName: "cpu_usage",
		Operator: ">", Threshold: 80, Severity: models.SeverityWarning, Enabled: true,
	}))
	history := flatHistory("cpu_usage", 30, 50)

	for i := 0; i < 6; i++ {
		sample := models.MetricSample{
			Name: "cpu_usage", Value: 90,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NotNil(t, f.Evaluate(sample, history), "pass %d", i)
	}
	assert.Len(t, f.AlertHistory("cpu_usage"), 3)
}

func TestRecommendationsFor_DedupedAndCapped(t *testing.T) {
	fired := []models.DetectorSignal{
		{Type: models.DetectorAnomaly},
		{Type: models.DetectorAnomaly}, // duplicate source
		{Type: models.DetectorTrend},
		{Type: models.DetectorCorrelation},
		{Type: models.DetectorSeasonal},
		{Type: models.DetectorRule},
	}
	recs := recommendationsFor("cpu_usage", fired)
	assert.NotEmpty(t, recs)
	assert.LessOrEqual(t, len(recs), 5)
	seen := map[string]int{}
	for _, r := range recs {
		seen[r]++
		assert.Equal(t, 1, seen[r], "no duplicates")
	}
}

func TestRecommendationsFor_FallbackWhenNothingMatches(t *testing.T) {
	recs := recommendationsFor("unheard_of_metric", nil)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "unheard_of_metric")
}
