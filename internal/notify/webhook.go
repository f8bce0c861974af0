package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookTransport POSTs each push as JSON to a gateway URL.
type WebhookTransport struct {
	URL     string
	Headers map[string]string
	client  *http.Client
}

func NewWebhookTransport(url string, headers map[string]string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookTransport{URL: url, Headers: headers, client: &http.Client{Timeout: timeout}}
}

func (t *WebhookTransport) Deliver(ctx context.Context, p Push) error {
	if t.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
