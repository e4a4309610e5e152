package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"aura/internal/types"
)

// WebhookBus delivers audit events as JSON POSTs to a single endpoint. It is
// the default Bus when an endpoint is configured; delivery guarantees are the
// emitter's concern (none — best effort), so this client stays deliberately
// plain: one request, no retries.
type WebhookBus struct {
	endpoint string
	client   *http.Client
}

// NewWebhookBus returns a bus posting to endpoint.
func NewWebhookBus(endpoint string) *WebhookBus {
	return &WebhookBus{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// envelope is the wire shape: the raw event payload nested under its topic.
type envelope struct {
	Topic     string          `json:"topic"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publish implements types.Bus.
func (b *WebhookBus) Publish(ctx context.Context, topic string, payload []byte) error {
	body, err := json.Marshal(envelope{
		Topic:     topic,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("bus marshal: %w (%w)", err, types.ErrEventPublish)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bus request: %w (%w)", err, types.ErrEventPublish)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bus post: %w (%w)", err, types.ErrEventPublish)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("bus post: status %d: %w", resp.StatusCode, types.ErrEventPublish)
	}
	return nil
}

// NopBus discards events. Used when no endpoint is configured.
type NopBus struct {
	logger *zap.Logger
}

// NewNopBus returns a bus that drops everything with a debug log.
func NewNopBus(logger *zap.Logger) *NopBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NopBus{logger: logger}
}

// Publish implements types.Bus.
func (b *NopBus) Publish(_ context.Context, topic string, _ []byte) error {
	b.logger.Debug("audit event discarded, no bus configured", zap.String("topic", topic))
	return nil
}

var (
	_ types.Bus = (*WebhookBus)(nil)
	_ types.Bus = (*NopBus)(nil)
)
