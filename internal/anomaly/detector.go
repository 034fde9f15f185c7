package anomaly

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/features"
	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// model is one trained per-metric detector. Models are immutable after
// training: retraining builds a replacement and publishes it wholesale, so
// detection never observes a half-trained model.
type model struct {
	metric          string
	version         int
	trainedAt       time.Time
	trainingSamples int
	contamination   float64

	forest    *Forest
	scaler    *standardScaler
	threshold float64

	// Raw-feature training distribution, used for per-feature contributions.
	featMean []float64
	featStd  []float64

	perf models.ModelPerformance
}

// Detector trains and serves unsupervised per-metric outlier models.
// Training and detection are decoupled: detection never blocks on training,
// and one metric's training failure cannot affect another's.
type Detector struct {
	cfg       config.AnomalyConfig
	extractor *features.Extractor
	logger    logger.Logger

	mu     sync.RWMutex
	models map[string]*model
}

func NewDetector(cfg config.AnomalyConfig, log logger.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		extractor: features.NewExtractor(),
		logger:    log,
		models:    make(map[string]*model),
	}
}

func (d *Detector) getModel(metric string) *model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.models[metric]
}

func (d *Detector) publishModel(m *model) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.models[m.metric] = m
}

// Train fits a fresh model for the metric from historical samples. It returns
// true when a usable model exists afterwards - including the skip case where
// an existing model is still younger than the configured max age and force is
// not set. It returns false (and logs) on insufficient or all-invalid data.
func (d *Detector) Train(metric string, history []models.MetricSample, force bool) bool {
	existing := d.getModel(metric)
	if existing != nil && !force && time.Since(existing.trainedAt) < d.cfg.ModelMaxAge {
		d.logger.Debug("Skipping retrain, model still fresh",
			"metric", metric,
			"trained_at", existing.trainedAt)
		metrics.ModelTrainingsTotal.WithLabelValues(metric, "skipped").Inc()
		return true
	}

	started := time.Now()
	vectors := d.validVectors(history)
	if len(vectors) < d.cfg.MinTrainingSamples {
		d.logger.Warn("Not enough valid feature vectors to train",
			"metric", metric,
			"valid", len(vectors),
			"required", d.cfg.MinTrainingSamples)
		metrics.ModelTrainingsTotal.WithLabelValues(metric, "failed").Inc()
		return false
	}
	if len(vectors) > d.cfg.MaxTrainingSamples {
		vectors = vectors[len(vectors)-d.cfg.MaxTrainingSamples:]
	}

	featMean, featStd := columnStats(vectors)
	scaler := fitScaler(vectors)
	scaled := scaler.transformAll(vectors)

	rng := rand.New(rand.NewSource(started.UnixNano()))
	forest := NewForest(scaled, d.cfg.TreeCount, rng)

	decisions := make([]float64, len(scaled))
	for i, row := range scaled {
		decisions[i] = forest.DecisionScore(row)
	}
	threshold := decisionQuantile(decisions, d.cfg.Contamination)
	perf := pseudoLabelPerformance(decisions, threshold, d.cfg.Contamination)

	version := 1
	if existing != nil {
		version = existing.version + 1
	}
	d.publishModel(&model{
		metric:          metric,
		version:         version,
		trainedAt:       started,
		trainingSamples: len(vectors),
		contamination:   d.cfg.Contamination,
		forest:          forest,
		scaler:          scaler,
		threshold:       threshold,
		featMean:        featMean,
		featStd:         featStd,
		perf:            perf,
	})

	metrics.ModelTrainingsTotal.WithLabelValues(metric, "success").Inc()
	metrics.ModelTrainingDuration.WithLabelValues(metric).Observe(time.Since(started).Seconds())
	d.logger.Info("Trained anomaly model",
		"metric", metric,
		"version", version,
		"samples", len(vectors),
		"threshold", threshold,
		"false_positive_rate", perf.FalsePositiveRate)
	return true
}

// Detect scores the current sample against the metric's model. A nil result
// means "no signal": no model and not enough history to train one, or an
// invalid feature vector.
func (d *Detector) Detect(metric string, current models.MetricSample, history []models.MetricSample) *models.AnomalyResult {
	m := d.getModel(metric)
	if m == nil {
		// One-shot auto-train when the caller supplied enough history for a
		// full training set. The first MinSamples-1 points only yield zero
		// vectors, so a bare MinTrainingSamples of history would retrain and
		// fail on every call.
		if len(history) >= d.cfg.MinTrainingSamples+features.MinSamples-1 {
			d.Train(metric, history, false)
			m = d.getModel(metric)
		}
		if m == nil {
			return nil
		}
	}

	window := make([]models.MetricSample, 0, len(history)+1)
	window = append(window, history...)
	window = append(window, current)

	vec := d.extractor.Extract(window, len(window)-1)
	if !vec.Valid() || vec.IsZero() {
		return nil
	}

	decision := m.forest.DecisionScore(m.scaler.transform(vec))
	isAnomaly := decision < m.threshold

	return &models.AnomalyResult{
		MetricName:           metric,
		IsAnomaly:            isAnomaly,
		AnomalyScore:         decision,
		Confidence:           m.confidence(decision),
		FeatureContributions: m.contributions(vec),
		ModelVersion:         m.version,
		ThresholdUsed:        m.threshold,
		EvaluatedAt:          current.Timestamp,
	}
}

// RetrainAll retrains every supplied metric independently; one failure never
// cancels the rest.
func (d *Detector) RetrainAll(histories map[string][]models.MetricSample) map[string]bool {
	results := make(map[string]bool, len(histories))
	for metric, history := range histories {
		results[metric] = d.Train(metric, history, true)
	}
	return results
}

// ModelInfo describes the metric's current model, or nil when none exists.
func (d *Detector) ModelInfo(metric string) *models.ModelInfo {
	m := d.getModel(metric)
	if m == nil {
		return nil
	}
	return &models.ModelInfo{
		MetricName:      m.metric,
		Version:         m.version,
		TrainedAt:       m.trainedAt,
		TrainingSamples: m.trainingSamples,
		Contamination:   m.contamination,
		ScoreThreshold:  m.threshold,
		Performance:     m.perf,
	}
}

// validVectors extracts feature vectors for every usable point in history,
// dropping zero (insufficient signal) and non-finite vectors.
func (d *Detector) validVectors(history []models.MetricSample) [][]float64 {
	var out [][]float64
	for i := range history {
		vec := d.extractor.Extract(history, i)
		if !vec.Valid() || vec.IsZero() {
			continue
		}
		out = append(out, vec)
	}
	return out
}

// confidence maps the distance between decision score and threshold into
// [0, 1], nudged down by the model's historical false-positive rate.
func (m *model) confidence(decision float64) float64 {
	dist := math.Abs(decision - m.threshold)
	conf := dist * 4 // decision scores live in roughly [-0.5, 0.5]
	if conf > 1 {
		conf = 1
	}
	conf *= 1 - 0.5*m.perf.FalsePositiveRate
	if conf < 0 {
		conf = 0
	}
	return conf
}

// contributions reports each feature's absolute z-score against the training
// distribution, a cheap explanation of what made the point unusual.
func (m *model) contributions(vec features.Vector) map[string]float64 {
	out := make(map[string]float64, len(features.Names))
	for i, name := range features.Names {
		if i >= len(m.featMean) {
			break
		}
		if m.featStd[i] <= 0 {
			out[name] = 0
			continue
		}
		out[name] = math.Abs((vec[i] - m.featMean[i]) / m.featStd[i])
	}
	return out
}

func columnStats(data [][]float64) ([]float64, []float64) {
	if len(data) == 0 {
		return nil, nil
	}
	dims := len(data[0])
	mean := make([]float64, dims)
	std := make([]float64, dims)
	for _, row := range data {
		for j, x := range row {
			mean[j] += x
		}
	}
	n := float64(len(data))
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range data {
		for j, x := range row {
			diff := x - mean[j]
			std[j] += diff * diff
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}
	return mean, std
}

// decisionQuantile returns the contamination-quantile of decision scores:
// scores at or below it are classified anomalous.
func decisionQuantile(decisions []float64, contamination float64) float64 {
	sorted := append([]float64(nil), decisions...)
	sort.Float64s(sorted)
	idx := int(contamination * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// pseudoLabelPerformance self-evaluates the model by treating the bottom
// contamination-share of training scores as "true" anomalies. There are no
// real labels, so these numbers are diagnostic only.
func pseudoLabelPerformance(decisions []float64, threshold, contamination float64) models.ModelPerformance {
	sorted := append([]float64(nil), decisions...)
	sort.Float64s(sorted)
	cut := int(contamination * float64(len(sorted)))
	if cut >= len(sorted) {
		cut = len(sorted) - 1
	}
	labelCutoff := sorted[cut]

	var tp, fp, tn, fn float64
	for _, dec := range decisions {
		truth := dec <= labelCutoff
		predicted := dec < threshold
		switch {
		case truth && predicted:
			tp++
		case !truth && predicted:
			fp++
		case !truth && !predicted:
			tn++
		default:
			fn++
		}
	}

	perf := models.ModelPerformance{}
	if tp+fp > 0 {
		perf.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		perf.Recall = tp / (tp + fn)
	}
	if perf.Precision+perf.Recall > 0 {
		perf.F1Score = 2 * perf.Precision * perf.Recall / (perf.Precision + perf.Recall)
	}
	total := tp + fp + tn + fn
	if total > 0 {
		perf.Accuracy = (tp + tn) / total
	}
	if fp+tn > 0 {
		perf.FalsePositiveRate = fp / (fp + tn)
	}
	return perf
}
