package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// webhookTimeout bounds a webhook request.
const webhookTimeout = 10 * time.Second

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event      string `json:"event"`
	Source     string `json:"source,omitempty"`
	Failures   int    `json:"consecutive_failures,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"degraded_duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// SendWebhook posts alert to webhookURL. An empty URL is a no-op.
func SendWebhook(ctx context.Context, webhookURL string, alert Alert) error {
	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:      alert.Event,
		Source:     alert.Source,
		Failures:   alert.Failures,
		Error:      alert.Error,
		DurationMs: alert.Duration.Milliseconds(),
		Message:    alertSummary(alert),
		Timestamp:  timestampUTC(alert.Time),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(ctx context.Context, webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:     EventTest,
		Source:    sourceName(""),
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(time.Now()),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(ctx context.Context, webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// alertSummary is the one-line human description of an alert.
func alertSummary(alert Alert) string {
	switch alert.Event {
	case EventDegraded:
		return fmt.Sprintf("Audio sampler failed %d times in a row; speaker switching is paused", alert.Failures)
	case EventRecovered:
		return "Audio sampler recovered after " + util.FormatDuration(alert.Duration)
	default:
		return ""
	}
}
