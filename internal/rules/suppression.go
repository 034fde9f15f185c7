package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// Suppression reasons, also used as metric labels.
const (
	ReasonCooldown   = "cooldown"
	ReasonQuietHours = "quiet_hours"
	ReasonWeekend    = "weekend"
)

// Suppressor decides whether an otherwise-valid incident or smart alert must
// be withheld. Suppression is a normal outcome, never an error: callers get a
// yes/no plus a reason, and the drop is counted in metrics.
//
// The decision path is purely in-memory. Cross-replica cooldown markers are
// published to the shared cache asynchronously and folded back in by
// RefreshShared from a background loop, so ShouldSuppress never does I/O even
// while its callers hold their own mutexes.
type Suppressor struct {
	logger logger.Logger
	store  cache.Store

	mu        sync.Mutex
	rules     []models.SuppressionRule
	lastFired map[string]time.Time
	shared    map[string]time.Time // cooldown markers from other replicas
	events    []time.Time          // suppression timestamps, bounded, for stats
}

const maxSuppressionEvents = 10000

func NewSuppressor(rules []models.SuppressionRule, store cache.Store, log logger.Logger) *Suppressor {
	return &Suppressor{
		logger:    log,
		store:     store,
		rules:     append([]models.SuppressionRule(nil), rules...),
		lastFired: make(map[string]time.Time),
		shared:    make(map[string]time.Time),
	}
}

// ShouldSuppress checks every suppression rule whose target matches one of
// the given targets (a rule ID, a metric name, or both). kind is "incident"
// or "smart_alert" and only feeds observability.
func (s *Suppressor) ShouldSuppress(kind string, targets []string, now time.Time) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range s.rules {
		if !matchesAny(rule.Target, targets) {
			continue
		}
		if rule.SuppressWeekends && isWeekend(now) {
			s.record(kind, rule.Target, ReasonWeekend, now)
			return true, ReasonWeekend
		}
		if rule.InQuietHours(now) {
			s.record(kind, rule.Target, ReasonQuietHours, now)
			return true, ReasonQuietHours
		}
		if rule.CooldownSeconds > 0 {
			cooldown := time.Duration(rule.CooldownSeconds) * time.Second
			if last, ok := s.lastFiredAt(rule.Target); ok && now.Sub(last) < cooldown {
				s.record(kind, rule.Target, ReasonCooldown, now)
				return true, ReasonCooldown
			}
		}
	}
	return false, ""
}

// RecordFired marks the targets as having just fired, starting their
// cooldown windows. Shared markers are published outside the lock so callers
// holding their own mutexes never wait on the cache.
func (s *Suppressor) RecordFired(targets []string, now time.Time) {
	type marker struct {
		target string
		ttl    time.Duration
	}
	var share []marker

	s.mu.Lock()
	for _, target := range targets {
		s.lastFired[target] = now
		if s.store == nil {
			continue
		}
		for _, rule := range s.rules {
			if rule.Target == target && rule.CooldownSeconds > 0 {
				share = append(share, marker{target, time.Duration(rule.CooldownSeconds) * time.Second})
			}
		}
	}
	s.mu.Unlock()

	for _, m := range share {
		go s.shareFired(m.target, now, m.ttl)
	}
}

// RecordSuppression counts a drop decided outside the rule-matching path,
// e.g. the fusion layer's per-metric alert cooldown, so stats and metrics see
// every suppression.
func (s *Suppressor) RecordSuppression(kind, target, reason string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(kind, target, reason, at)
}

// UpdateRules swaps the suppression rule set, e.g. after a config reload.
func (s *Suppressor) UpdateRules(rules []models.SuppressionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]models.SuppressionRule(nil), rules...)
}

// RefreshShared pulls cooldown markers written by other replicas into the
// local view. All cache reads happen here, off the evaluation path; callers
// run it from a background loop. Cache failures keep the previous view.
func (s *Suppressor) RefreshShared(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.rules))
	targets := make([]string, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.CooldownSeconds <= 0 {
			continue
		}
		if _, ok := seen[rule.Target]; ok {
			continue
		}
		seen[rule.Target] = struct{}{}
		targets = append(targets, rule.Target)
	}
	s.mu.Unlock()

	for _, target := range targets {
		raw, err := s.store.Get(ctx, firedKey(target))
		if err != nil || len(raw) == 0 {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			continue
		}
		s.mu.Lock()
		if cur, ok := s.shared[target]; !ok || at.After(cur) {
			s.shared[target] = at
		}
		s.mu.Unlock()
	}
}

func (s *Suppressor) shareFired(target string, at time.Time, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.Set(ctx, firedKey(target), at.UTC().Format(time.RFC3339Nano), ttl); err != nil {
		s.logger.Debug("Failed to share cooldown marker", "target", target, "error", err)
	}
}

// lastFiredAt prefers the newest of the local record and the shared view.
func (s *Suppressor) lastFiredAt(target string) (time.Time, bool) {
	local, haveLocal := s.lastFired[target]
	shared, haveShared := s.shared[target]
	if haveShared && (!haveLocal || shared.After(local)) {
		return shared, true
	}
	return local, haveLocal
}

func (s *Suppressor) record(kind, target, reason string, at time.Time) {
	s.events = append(s.events, at)
	if len(s.events) > maxSuppressionEvents {
		s.events = s.events[len(s.events)-maxSuppressionEvents:]
	}
	metrics.SuppressionsTotal.WithLabelValues(kind, reason).Inc()
	s.logger.Debug("Suppressed", "kind", kind, "target", target, "reason", reason)
}

// SuppressionsSince counts suppression decisions made at or after the cutoff.
// Feeds evaluation stats so alert-fatigue debugging can see what was dropped.
func (s *Suppressor) SuppressionsSince(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, at := range s.events {
		if !at.Before(cutoff) {
			count++
		}
	}
	return count
}

func matchesAny(target string, candidates []string) bool {
	for _, c := range candidates {
		if c == target {
			return true
		}
	}
	return false
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func firedKey(target string) string {
	return fmt.Sprintf("vigil:suppress:last_fired:%s", target)
}
