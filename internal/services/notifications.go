package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/metrics"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// dedupTTL is how long a sent notification blocks identical re-sends across
// replicas.
const dedupTTL = time.Hour

// NotificationService fans a notification out to every configured channel
// and reports per-channel success. Channels are independent: one failing
// never blocks or fails the others, and nothing is retried here - retry
// policy belongs to the channel owner.
type NotificationService struct {
	integrations *IntegrationsService
	store        cache.Store
	logger       logger.Logger
}

func NewNotificationService(cfg config.IntegrationsConfig, store cache.Store, log logger.Logger) *NotificationService {
	return &NotificationService{
		integrations: NewIntegrationsService(cfg, log),
		store:        store,
		logger:       log,
	}
}

// Send dispatches to Slack, MS Teams and email concurrently. The returned
// map has one entry per channel. When another replica already sent this
// notification, the map is empty.
func (s *NotificationService) Send(ctx context.Context, n models.Notification) map[string]bool {
	if !s.claim(ctx, n) {
		s.logger.Debug("Notification already sent by another replica", "id", n.ID, "type", n.Type)
		return map[string]bool{}
	}

	type channel struct {
		name string
		send func(context.Context, *models.Notification) error
	}
	channels := []channel{
		{"slack", s.integrations.SendSlackNotification},
		{"teams", s.integrations.SendMSTeamsNotification},
		{"email", s.integrations.SendEmailNotification},
	}

	results := make(map[string]bool, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch channel) {
			defer wg.Done()
			err := ch.send(ctx, &n)
			if err != nil {
				s.logger.Error("Notification channel failed",
					"channel", ch.name, "type", n.Type, "error", err)
			}
			metrics.NotificationsSent.WithLabelValues(ch.name, n.Type, fmt.Sprintf("%t", err == nil)).Inc()
			mu.Lock()
			results[ch.name] = err == nil
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

// claim takes the cross-replica dedup lock for this notification. Without a
// shared store every claim succeeds locally.
func (s *NotificationService) claim(ctx context.Context, n models.Notification) bool {
	if s.store == nil {
		return true
	}
	key := fmt.Sprintf("vigil:notify:sent:%s:%s:%s", n.Type, n.ID, n.Title)
	ok, err := s.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), dedupTTL)
	if err != nil {
		// Fail open: a flaky cache must not drop notifications.
		s.logger.Debug("Notification dedup check failed", "id", n.ID, "error", err)
		return true
	}
	return ok
}
