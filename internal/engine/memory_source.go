package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// MemorySource is a bounded in-process MetricSource fed by pushed samples.
// It keeps the newest samples per metric and serves them in ascending
// timestamp order.
type MemorySource struct {
	mu           sync.Mutex
	perMetric    map[string][]models.MetricSample
	maxPerMetric int
}

func NewMemorySource(maxPerMetric int) *MemorySource {
	if maxPerMetric <= 0 {
		maxPerMetric = 10000
	}
	return &MemorySource{
		perMetric:    make(map[string][]models.MetricSample),
		maxPerMetric: maxPerMetric,
	}
}

// Add records a sample. Out-of-order pushes are reordered on insert so
// History never has to sort.
func (m *MemorySource) Add(sample models.MetricSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append(m.perMetric[sample.Name], sample)
	if len(samples) > 1 && samples[len(samples)-2].Timestamp.After(sample.Timestamp) {
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})
	}
	if len(samples) > m.maxPerMetric {
		samples = samples[len(samples)-m.maxPerMetric:]
	}
	m.perMetric[sample.Name] = samples
}

// History returns the metric's samples within the window, oldest first.
func (m *MemorySource) History(ctx context.Context, metric string, window time.Duration) ([]models.MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.perMetric[metric]
	cutoff := time.Now().Add(-window)
	start := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(cutoff)
	})
	return append([]models.MetricSample(nil), samples[start:]...), nil
}
