// Package pagerduty raises PagerDuty incidents for security-relevant account events.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/culturemaker/cmk-api/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	RetryDelay time.Duration
	Client     *http.Client
	Endpoint   string // defaults to APIEndpoint
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	retryDelay time.Duration
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     fallbackString(strings.TrimSpace(cfg.Source), "culturemaker"),
		component:  fallbackString(strings.TrimSpace(cfg.Component), "session-core"),
		endpoint:   fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		retryDelay: delay,
		client:     hc,
	}, nil
}

// Pages reports whether the event is worth an incident. Informational events are skipped.
func Pages(event notify.AccountEvent) bool {
	switch strings.ToLower(event.DefaultSeverity()) {
	case notify.SeverityCritical, notify.SeverityWarning:
		return true
	default:
		return false
	}
}

// SendAccountEvent submits a trigger event to PagerDuty.
func (c *Client) SendAccountEvent(ctx context.Context, event notify.AccountEvent) error {
	if !Pages(event) {
		return nil
	}
	body, err := json.Marshal(c.buildEvent(event))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryDelay
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.submit(ctx, body)
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(c.retryLimit+1)))
	return err
}

func (c *Client) buildEvent(event notify.AccountEvent) map[string]any {
	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"kind":         string(event.Kind),
		"principal_id": event.PrincipalID,
		"email":        event.Email,
		"directory":    event.Directory,
	}
	for k, v := range event.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	dedupKey := strings.Trim(fmt.Sprintf("%s:%s", event.Kind, event.PrincipalID), ":")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary": fmt.Sprintf("%s: %s",
				event.Title(),
				fallbackString(event.Email, fallbackString(event.PrincipalID, "unknown principal")),
			),
			"severity":       strings.ToLower(event.DefaultSeverity()),
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create pagerduty request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return fmt.Errorf("drain pagerduty response body: %w", err)
		}
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
