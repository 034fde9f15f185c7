package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/platformbuilds/vigil-core/internal/config"
	"github.com/platformbuilds/vigil-core/internal/models"
	"github.com/platformbuilds/vigil-core/pkg/logger"
)

// IntegrationsService delivers notifications to the configured external
// channels: Slack and MS Teams webhooks plus SMTP email. A disabled channel
// is a silent no-op.
type IntegrationsService struct {
	config config.IntegrationsConfig
	client *http.Client
	logger logger.Logger
}

func NewIntegrationsService(cfg config.IntegrationsConfig, log logger.Logger) *IntegrationsService {
	return &IntegrationsService{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log,
	}
}

// SendSlackNotification posts the notification to the Slack webhook.
func (s *IntegrationsService) SendSlackNotification(ctx context.Context, n *models.Notification) error {
	if !s.config.Slack.Enabled {
		return nil
	}

	payload := map[string]interface{}{
		"channel": s.config.Slack.Channel,
		"attachments": []map[string]interface{}{
			{
				"color":     slackColor(n.Severity),
				"title":     n.Title,
				"text":      n.Message,
				"timestamp": n.Timestamp.Unix(),
				"fields": []map[string]interface{}{
					{"title": "Metric", "value": n.Metric, "short": true},
					{"title": "Severity", "value": string(n.Severity), "short": true},
				},
			},
		},
	}
	if err := s.postJSON(ctx, s.config.Slack.WebhookURL, payload); err != nil {
		return fmt.Errorf("slack notification failed: %w", err)
	}

	s.logger.Info("Slack notification sent", "type", n.Type, "metric", n.Metric)
	return nil
}

// SendMSTeamsNotification posts a MessageCard to the Teams webhook.
func (s *IntegrationsService) SendMSTeamsNotification(ctx context.Context, n *models.Notification) error {
	if !s.config.MSTeams.Enabled {
		return nil
	}

	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"summary":    n.Title,
		"themeColor": teamsColor(n.Severity),
		"sections": []map[string]interface{}{
			{
				"activityTitle":    n.Title,
				"activitySubtitle": n.Metric,
				"text":             n.Message,
				"facts": []map[string]interface{}{
					{"name": "Severity", "value": string(n.Severity)},
					{"name": "Time", "value": n.Timestamp.Format(time.RFC3339)},
					{"name": "Type", "value": n.Type},
				},
			},
		},
	}
	if err := s.postJSON(ctx, s.config.MSTeams.WebhookURL, payload); err != nil {
		return fmt.Errorf("ms teams notification failed: %w", err)
	}

	s.logger.Info("MS Teams notification sent", "type", n.Type, "metric", n.Metric)
	return nil
}

func (s *IntegrationsService) postJSON(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func slackColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "danger"
	case models.SeverityWarning:
		return "warning"
	case models.SeverityInfo:
		return "good"
	default:
		return "#439FE0"
	}
}

func teamsColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "FF0000"
	case models.SeverityWarning:
		return "FFA500"
	case models.SeverityInfo:
		return "00FF00"
	default:
		return "0078D4"
	}
}

// SendEmailNotification sends the alert over SMTP with optional auth.
func (s *IntegrationsService) SendEmailNotification(ctx context.Context, n *models.Notification) error {
	if !s.config.Email.Enabled {
		return nil
	}
	if s.config.Email.SMTPHost == "" || s.config.Email.SMTPPort == 0 || s.config.Email.FromAddress == "" {
		return fmt.Errorf("email integration not properly configured")
	}

	recipients := s.config.Email.Recipients
	if len(recipients) == 0 {
		recipients = []string{s.config.Email.FromAddress}
	}

	safeFrom, err := sanitizeEmailHeader("from address", s.config.Email.FromAddress)
	if err != nil {
		return err
	}
	if safeFrom == "" {
		return fmt.Errorf("from address cannot be empty")
	}

	safeRecipients := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		safeRecipient, err := sanitizeEmailHeader("recipient", recipient)
		if err != nil {
			return err
		}
		if safeRecipient == "" {
			return fmt.Errorf("recipient cannot be empty")
		}
		safeRecipients = append(safeRecipients, safeRecipient)
	}

	safeTitle, err := sanitizeEmailHeader("title", n.Title)
	if err != nil {
		return err
	}
	safeMetric, err := sanitizeEmailHeader("metric", n.Metric)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("[VIGIL] %s - %s", strings.ToUpper(string(n.Severity)), safeTitle)
	body := fmt.Sprintf(
		"Metric: %s\nSeverity: %s\nTime: %s\nType: %s\n\n%s",
		safeMetric,
		n.Severity,
		n.Timestamp.Format(time.RFC3339),
		n.Type,
		n.Message,
	)

	var msg strings.Builder
	msg.WriteString("From: ")
	msg.WriteString(safeFrom)
	msg.WriteString("\r\n")
	msg.WriteString("To: ")
	msg.WriteString(strings.Join(safeRecipients, ","))
	msg.WriteString("\r\n")
	msg.WriteString("Subject: ")
	msg.WriteString(subject)
	msg.WriteString("\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.config.Email.Username != "" && s.config.Email.Password != "" {
		auth = smtp.PlainAuth("", s.config.Email.Username, s.config.Email.Password, s.config.Email.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	if err := smtp.SendMail(addr, auth, safeFrom, safeRecipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email notification sent",
		"type", n.Type,
		"metric", n.Metric,
		"to", safeRecipients)
	return nil
}

// sanitizeEmailHeader rejects header values that could break out of email headers.
func sanitizeEmailHeader(fieldName, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("%s contains invalid newline characters", fieldName)
	}
	return trimmed, nil
}
