package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

const (
	DefaultSecretHeader = "X-Forwarded-Secret"
	defaultTimeout      = 15 * time.Second
	maxErrorBodyPreview = 512
	maxResponseBodySize = 64 << 10 // 64 KiB
)

type Config struct {
	WebhookURL   string
	Secret       string
	SecretHeader string
	Timeout      time.Duration
}

// Client posts sale payloads to the downstream automation webhook. It never retries.
type Client struct {
	cfg       Config
	transport core.TransportAdapter
}

func NewClient(cfg Config, transport core.TransportAdapter) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("forward: transport adapter is required")
	}
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("forward: webhook url is required")
	}
	cfg.SecretHeader = strings.TrimSpace(cfg.SecretHeader)
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = DefaultSecretHeader
	}
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg, transport: transport}, nil
}

func (c *Client) Forward(ctx context.Context, payload core.ForwardPayload) (core.ForwardResult, error) {
	if c == nil {
		return core.ForwardResult{}, core.NewForwardError(nil, "forward: client is nil", nil)
	}
	metadata := map[string]any{"order_id": payload.OrderID}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.ForwardResult{}, core.NewForwardError(err, "forward: encode payload", metadata)
	}
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.cfg.Secret != "" {
		headers[c.cfg.SecretHeader] = c.cfg.Secret
	}

	startedAt := time.Now()
	response, err := c.transport.Do(ctx, core.TransportRequest{
		Method:               http.MethodPost,
		URL:                  c.cfg.WebhookURL,
		Headers:              headers,
		Body:                 body,
		Timeout:              c.cfg.Timeout,
		MaxResponseBodyBytes: maxResponseBodySize,
	})
	result := core.ForwardResult{
		StatusCode: response.StatusCode,
		Duration:   time.Since(startedAt),
	}
	if err != nil {
		return result, core.NewForwardError(err, "forward: webhook request failed", metadata)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		metadata["status_code"] = response.StatusCode
		metadata["response"] = preview(response.Body)
		return result, core.NewForwardError(
			nil,
			fmt.Sprintf("forward: webhook returned status %d", response.StatusCode),
			metadata,
		)
	}
	return result, nil
}

func preview(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyPreview {
		return text[:maxErrorBodyPreview]
	}
	return text
}

var _ core.Forwarder = (*Client)(nil)
