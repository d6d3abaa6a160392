// Package notify fans account events out to operator channels such as Slack and PagerDuty.
package notify

import (
	"context"
	"time"
)

// EventKind identifies what happened to an account.
type EventKind string

const (
	// EventRegistrationPending is emitted when a self-registered account awaits approval.
	EventRegistrationPending EventKind = "registration_pending"
	// EventOrphanedCredential is emitted when a signed-in principal had no role record
	// and was signed out.
	EventOrphanedCredential EventKind = "orphaned_credential"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// AccountEvent is the canonical payload delivered to every sink.
type AccountEvent struct {
	Kind        EventKind
	PrincipalID string
	Email       string
	Directory   string
	Name        string
	CompanyRef  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// DefaultSeverity returns the severity to use when the event carries none.
func (e AccountEvent) DefaultSeverity() string {
	if e.Severity != "" {
		return e.Severity
	}
	if e.Kind == EventOrphanedCredential {
		return SeverityWarning
	}
	return SeverityInfo
}

// Title is a short human readable headline for the event.
func (e AccountEvent) Title() string {
	switch e.Kind {
	case EventRegistrationPending:
		return "Account awaiting approval"
	case EventOrphanedCredential:
		return "Orphaned credential signed out"
	default:
		return "Account event"
	}
}

// Sink describes a destination capable of consuming account events.
type Sink interface {
	SendAccountEvent(ctx context.Context, event AccountEvent) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event AccountEvent) error

// SendAccountEvent implements the Sink interface.
func (f SinkFunc) SendAccountEvent(ctx context.Context, event AccountEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
