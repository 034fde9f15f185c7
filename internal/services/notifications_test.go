package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/cache"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

func testNotification() models.Notification {
	return models.Notification{
		ID:        "inc-123",
		Type:      "incident",
		Title:     "High CPU",
		Message:   "High CPU: cpu_usage > 80 (current: 92)",
		Metric:    "cpu_usage",
		Severity:  models.SeverityWarning,
		Timestamp: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	}
}

func TestSend_FanOutIndependentChannels(t *testing.T) {
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "#alerts", payload["channel"])
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	teams := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer teams.Close()

	svc := NewNotificationService(config.IntegrationsConfig{
		Slack:   config.SlackConfig{WebhookURL: slack.URL, Channel: "#alerts", Enabled: true},
		MSTeams: config.MSTeamsConfig{WebhookURL: teams.URL, Enabled: true},
	}, nil, logger.NewNop())

	results := svc.Send(context.Background(), testNotification())
	assert.True(t, results["slack"])
	assert.False(t, results["teams"], "teams failure is reported, not propagated")
	assert.True(t, results["email"], "a disabled channel counts as a no-op success")
}

func TestSend_DedupAcrossReplicas(t *testing.T) {
	var hits int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	store := cache.NewNoop(time.Hour)
	cfg := config.IntegrationsConfig{
		Slack: config.SlackConfig{WebhookURL: slack.URL, Channel: "#alerts", Enabled: true},
	}
	replica1 := NewNotificationService(cfg, store, logger.NewNop())
	replica2 := NewNotificationService(cfg, store, logger.NewNop())

	n := testNotification()
	first := replica1.Send(context.Background(), n)
	assert.True(t, first["slack"])

	second := replica2.Send(context.Background(), n)
	assert.Empty(t, second, "the shared dedup key blocks the repeat send")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSendSlackNotification_DisabledIsNoop(t *testing.T) {
	svc := NewIntegrationsService(config.IntegrationsConfig{}, logger.NewNop())
	assert.NoError(t, svc.SendSlackNotification(context.Background(), &models.Notification{}))
	assert.NoError(t, svc.SendMSTeamsNotification(context.Background(), &models.Notification{}))
	assert.NoError(t, svc.SendEmailNotification(context.Background(), &models.Notification{}))
}

func TestSendEmailNotification_MisconfiguredFails(t *testing.T) {
	svc := NewIntegrationsService(config.IntegrationsConfig{
		Email: config.EmailConfig{Enabled: true},
	}, logger.NewNop())
	err := svc.SendEmailNotification(context.Background(), &models.Notification{})
	assert.Error(t, err)
}

func TestSanitizeEmailHeader(t *testing.T) {
	out, err := sanitizeEmailHeader("title", "  High CPU  ")
	require.NoError(t, err)
	assert.Equal(t, "High CPU", out)

	_, err = sanitizeEmailHeader("title", "evil\r\nBcc: attacker@example.com")
	assert.Error(t, err)
}

func TestChannelColors(t *testing.T) {
	assert.Equal(t, "danger", slackColor(models.SeverityCritical))
	assert.Equal(t, "warning", slackColor(models.SeverityWarning))
	assert.Equal(t, "good", slackColor(models.SeverityInfo))
	assert.Equal(t, "FF0000", teamsColor(models.SeverityCritical))
}
