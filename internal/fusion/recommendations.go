package fusion

import (
	"fmt"

	"github.com/platformbuilds/vigil-core/internal/models"
)

const maxRecommendations = 5

// genericAdvice is keyed by the detector that fired; metricAdvice by the
// metric under evaluation. Both feed recommendationsFor, which dedupes and
// caps the combined list.
var genericAdvice = map[models.DetectorType][]string{
	models.DetectorRule: {
		"Review the breached threshold and recent deployments",
	},
	models.DetectorAnomaly: {
		"Compare the current value against the same window yesterday",
		"Check for unusual traffic patterns or batch jobs",
	},
	models.DetectorTrend: {
		"Project the trend forward to estimate time until saturation",
		"Check for a resource leak or unbounded queue growth",
	},
	models.DetectorSeasonal: {
		"Compare against the same hour on previous days before paging",
	},
	models.DetectorCorrelation: {
		"Check for cascading failures across related services",
		"Review shared infrastructure (network, database, load balancer)",
	},
}

var metricAdvice = map[string][]string{
	"cpu_usage": {
		"Inspect the highest-CPU processes and recent code changes",
	},
	"memory_usage": {
		"Check for memory leaks and review heap profiles",
	},
	"disk_usage": {
		"Clean up old logs and verify retention policies",
	},
	"api_response_time": {
		"Check downstream dependency latency and connection pool saturation",
	},
	"error_rate": {
		"Inspect recent error logs and roll back the latest deployment if correlated",
	},
}

// recommendationsFor builds 1-5 deduplicated remediation hints from the
// detectors that fired plus metric-specific advice.
func recommendationsFor(metric string, fired []models.DetectorSignal) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(rec string) {
		if len(out) >= maxRecommendations {
			return
		}
		if _, dup := seen[rec]; dup {
			return
		}
		seen[rec] = struct{}{}
		out = append(out, rec)
	}

	for _, rec := range metricAdvice[metric] {
		add(rec)
	}
	for _, sig := range fired {
		for _, rec := range genericAdvice[sig.Type] {
			add(rec)
		}
	}
	if len(out) == 0 {
		add(fmt.Sprintf("Investigate recent changes affecting %s", metric))
	}
	return out
}
