package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// Tuesday, outside any quiet-hours window used below.
var tuesdayNoon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func TestSuppressor_Cooldown(t *testing.T) {
	s := NewSuppressor([]models.SuppressionRule{
		{Target: "rule-1", CooldownSeconds: 300},
	}, nil, logger.NewNop())

	suppressed, _ := s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon)
	assert.False(t, suppressed, "nothing fired yet")

	s.RecordFired([]string{"rule-1"}, tuesdayNoon)

	suppressed, reason := s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon.Add(120*time.Second))
	assert.True(t, suppressed)
	assert.Equal(t, ReasonCooldown, reason)

	suppressed, _ = s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon.Add(400*time.Second))
	assert.False(t, suppressed, "cooldown expired")
}

func TestSuppressor_CooldownSharedThroughCache(t *testing.T) {
	store := cache.NewNoop(time.Hour)
	local := NewSuppressor([]models.SuppressionRule{
		{Target: "cpu_usage", CooldownSeconds: 300},
	}, store, logger.NewNop())
	peer := NewSuppressor([]models.SuppressionRule{
		{Target: "cpu_usage", CooldownSeconds: 300},
	}, store, logger.NewNop())

	local.RecordFired([]string{"cpu_usage"}, tuesdayNoon)

	// The marker is published asynchronously; the peer never fired locally
	// but folds it in on its next refresh.
	assert.Eventually(t, func() bool {
		peer.RefreshShared(context.Background())
		suppressed, reason := peer.ShouldSuppress("smart_alert", []string{"cpu_usage"}, tuesdayNoon.Add(time.Minute))
		return suppressed && reason == ReasonCooldown
	}, time.Second, 5*time.Millisecond)
}

// slowStore hangs on every read and write until the context expires,
// imitating an unreachable Valkey node.
type slowStore struct{}

func (slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowStore) Delete(ctx context.Context, key string) error { return nil }

func (slowStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestSuppressor_DecisionPathNeverBlocksOnCache(t *testing.T) {
	s := NewSuppressor([]models.SuppressionRule{
		{Target: "cpu_usage", CooldownSeconds: 300},
	}, slowStore{}, logger.NewNop())

	done := make(chan struct{})
	go func() {
		s.RecordFired([]string{"cpu_usage"}, tuesdayNoon)
		suppressed, _ := s.ShouldSuppress("incident", []string{"cpu_usage"}, tuesdayNoon.Add(time.Minute))
		assert.True(t, suppressed, "the local record alone drives the decision")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("suppression decision blocked on the cache")
	}
}

func TestSuppressor_QuietHours(t *testing.T) {
	s := NewSuppressor([]models.SuppressionRule{
		{Target: "rule-1", QuietHoursStart: 22, QuietHoursEnd: 6},
	}, nil, logger.NewNop())

	night := time.Date(2025, 3, 4, 23, 30, 0, 0, time.UTC)
	suppressed, reason := s.ShouldSuppress("incident", []string{"rule-1"}, night)
	assert.True(t, suppressed)
	assert.Equal(t, ReasonQuietHours, reason)

	earlyMorning := time.Date(2025, 3, 5, 4, 0, 0, 0, time.UTC)
	suppressed, _ = s.ShouldSuppress("incident", []string{"rule-1"}, earlyMorning)
	assert.True(t, suppressed, "window wraps midnight")

	suppressed, _ = s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon)
	assert.False(t, suppressed)
}

func TestSuppressor_Weekends(t *testing.T) {
	s := NewSuppressor([]models.SuppressionRule{
		{Target: "rule-1", SuppressWeekends: true},
	}, nil, logger.NewNop())

	saturday := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	suppressed, reason := s.ShouldSuppress("incident", []string{"rule-1"}, saturday)
	assert.True(t, suppressed)
	assert.Equal(t, ReasonWeekend, reason)

	suppressed, _ = s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon)
	assert.False(t, suppressed)
}

func TestSuppressor_UnmatchedTarget(t *testing.T) {
	s := NewSuppressor([]models.SuppressionRule{
		{Target: "rule-1", CooldownSeconds: 300, SuppressWeekends: true},
	}, nil, logger.NewNop())
	s.RecordFired([]string{"rule-1"}, tuesdayNoon)

	suppressed, _ := s.ShouldSuppress("incident", []string{"rule-2", "memory_usage"}, tuesdayNoon.Add(time.Minute))
	assert.False(t, suppressed, "rules apply only to their own target")
}

func TestSuppressor_UpdateRules(t *testing.T) {
	s := NewSuppressor(nil, nil, logger.NewNop())
	suppressed, _ := s.ShouldSuppress("incident", []string{"rule-1"}, tuesdayNoon)
	assert.False(t, suppressed)

	s.UpdateRules([]models.SuppressionRule{{Target: "rule-1", SuppressWeekends: true}})
	saturday := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	suppressed, _ = s.ShouldSuppress("incident", []string{"rule-1"}, saturday)
	assert.True(t, suppressed)
}
