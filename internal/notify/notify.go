// Package notify delivers notifications: operational alerts raised by
// the ingestor and Pushover pushes for trigger events.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Alerter receives operational alerts (feed down, ingest stalls).
// Implementations never return errors; an alert must not take down its
// caller.
type Alerter interface {
	Alert(ctx context.Context, subject, message string)
}

// LogAlerter writes alerts to the process log.
type LogAlerter struct{}

// NewLogAlerter creates a log-based alerter.
func NewLogAlerter() *LogAlerter { return &LogAlerter{} }

func (a *LogAlerter) Alert(ctx context.Context, subject, message string) {
	log.Printf("[notify] ALERT %s: %s", subject, message)
}

// WebhookAlerter POSTs alerts to an HTTP endpoint as JSON. Failures are
// logged and swallowed.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

// NewWebhookAlerter creates an alerter posting to url.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *WebhookAlerter) Alert(ctx context.Context, subject, message string) {
	payload, err := json.Marshal(map[string]any{
		"subject": subject,
		"message": message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("[notify] webhook marshal: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[notify] webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[notify] webhook send: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[notify] webhook status %d for %q", resp.StatusCode, subject)
	}
}
