package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// rulesFile is the on-disk schema for alert conditions.
type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Metric      string            `yaml:"metric"`
	Operator    string            `yaml:"operator"`
	Threshold   float64           `yaml:"threshold"`
	ValueSet    []string          `yaml:"value_set"`
	Pattern     string            `yaml:"pattern"`
	Duration    string            `yaml:"duration"` // e.g. "5m"
	Severity    string            `yaml:"severity"`
	Enabled     *bool             `yaml:"enabled"`
	Tags        map[string]string `yaml:"tags"`
}

// LoadRulesFile parses a YAML rules file into alert conditions. Malformed
// individual rules are reported; the rest of the file still loads.
func LoadRulesFile(path string) ([]models.AlertCondition, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read rules file: %w", err)}
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, []error{fmt.Errorf("parse rules file: %w", err)}
	}

	var (
		conditions []models.AlertCondition
		problems   []error
	)
	for i, spec := range file.Rules {
		cond, err := spec.toCondition()
		if err != nil {
			problems = append(problems, fmt.Errorf("rule %d (%s): %w", i, spec.ID, err))
			continue
		}
		conditions = append(conditions, cond)
	}
	return conditions, problems
}

func (r ruleSpec) toCondition() (models.AlertCondition, error) {
	if r.ID == "" {
		return models.AlertCondition{}, fmt.Errorf("missing id")
	}
	if r.Metric == "" {
		return models.AlertCondition{}, fmt.Errorf("missing metric")
	}

	duration := time.Duration(0)
	if r.Duration != "" {
		d, err := time.ParseDuration(r.Duration)
		if err != nil {
			return models.AlertCondition{}, fmt.Errorf("invalid duration %q: %w", r.Duration, err)
		}
		duration = d
	}

	severity := models.Severity(r.Severity)
	if severity == "" {
		severity = models.SeverityWarning
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	now := time.Now()
	return models.AlertCondition{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		MetricName:  r.Metric,
		Operator:    r.Operator,
		Threshold:   r.Threshold,
		ValueSet:    r.ValueSet,
		Pattern:     r.Pattern,
		Duration:    duration,
		Severity:    severity,
		Enabled:     enabled,
		Tags:        r.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WatchRulesFile watches path and invokes onReload with the freshly parsed
// rule set whenever the file changes. The watcher runs until ctx is done.
// Reload failures keep the previous rule set in place.
func WatchRulesFile(ctx context.Context, path string, log logger.Logger, onReload func([]models.AlertCondition)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}

	// Watch the directory: editors often replace files atomically, which
	// drops a watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				conditions, problems := LoadRulesFile(path)
				for _, p := range problems {
					log.Warn("Skipping malformed alert rule", "error", p)
				}
				if conditions == nil && len(problems) > 0 {
					log.Error("Rules file reload failed, keeping previous rules", "path", path)
					continue
				}
				log.Info("Reloaded alert rules", "path", path, "rules", len(conditions))
				onReload(conditions)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("Rules watcher error", "error", err)
			}
		}
	}()

	return nil
}
