package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/culturemaker/cmk-api/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.AccountEvent{
		Kind:        notify.EventOrphanedCredential,
		PrincipalID: "u2",
		Email:       "ghost@acme.test",
		Metadata:    map[string]string{"client_id": "c-1", "kind": "ignored"},
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityWarning {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "culturemaker" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "session-core" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}
	if summary, _ := payloadSection["summary"].(string); !strings.Contains(summary, "ghost@acme.test") {
		t.Fatalf("expected summary to name the principal, got %q", summary)
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}
	if custom["kind"] != "orphaned_credential" {
		t.Fatalf("metadata must not override kind, got %v", custom["kind"])
	}
	if custom["client_id"] != "c-1" {
		t.Fatalf("expected metadata in custom details, got %v", custom["client_id"])
	}
	if event["dedup_key"] != "orphaned_credential:u2" {
		t.Fatalf("unexpected dedup key %v", event["dedup_key"])
	}
}

func TestSendAccountEventSkipsInformational(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendAccountEvent(context.Background(), notify.AccountEvent{Kind: notify.EventRegistrationPending}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("informational events must not page")
	}
}

func TestSendAccountEventSubmitsTrigger(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.SendAccountEvent(context.Background(), notify.AccountEvent{Kind: notify.EventOrphanedCredential, PrincipalID: "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["routing_key"] != "key" || got["event_action"] != "trigger" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestSendAccountEventRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"invalid event"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryLimit: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.SendAccountEvent(context.Background(), notify.AccountEvent{Kind: notify.EventOrphanedCredential})
	if err == nil || !strings.Contains(err.Error(), "invalid event") {
		t.Fatalf("expected api error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}
