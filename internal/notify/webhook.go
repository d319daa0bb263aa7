package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// webhookPayload is the body of an outbound chat webhook call.
type webhookPayload struct {
	Text string `json:"text"`
}

// WebhookClient delivers messages to per-user chat webhooks. A delivery is
// successful only for a 2xx response; anything else, including transport
// errors, is a delivery failure for that recipient and channel.
type WebhookClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookClient creates a webhook client with the given per-call timeout.
func NewWebhookClient(timeout time.Duration, logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send posts a JSON object with a text field to the given webhook URL.
func (c *WebhookClient) Send(ctx context.Context, url, text string) error {
	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
