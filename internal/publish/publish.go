// Package publish delivers normalized blocks to the downstream event bus.
// Delivery is at-least-once and best-effort: the engine logs publish failures
// but does not withhold cursor advancement on them.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devblac/chainsyncd/internal/adapter"
)

// Publisher sends one normalized block per call.
type Publisher interface {
	Publish(ctx context.Context, topic string, block *adapter.NormalizedBlock) error
}

// Error marks a delivery failure at the publish boundary.
type Error struct {
	Topic string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("publish %s: %v", e.Topic, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type httpPublisher struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewWebhookPublisher builds an HTTP publisher that POSTs each block as JSON
// to <baseURL>/<topic>.
func NewWebhookPublisher(baseURL string, headers map[string]string) (Publisher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("publish url required")
	}
	return &httpPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(),
		headers: headers,
	}, nil
}

func (p *httpPublisher) Publish(ctx context.Context, topic string, block *adapter.NormalizedBlock) error {
	body, err := json.Marshal(block)
	if err != nil {
		return &Error{Topic: topic, Err: fmt.Errorf("marshal block: %w", err)}
	}

	url := p.baseURL + "/" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Topic: topic, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &Error{Topic: topic, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &Error{Topic: topic, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	return nil
}

// NopPublisher discards blocks; used for dry runs and when no publish URL is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *adapter.NormalizedBlock) error { return nil }

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
