package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, event AccountEvent)
}

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Sinks   []Sink
	Logger  *slog.Logger
	Timeout time.Duration // per event, across all sinks; defaults to 10s
	Now     func() time.Time
}

// Dispatcher delivers events to its sinks in the background. Delivery failures are
// logged and never reach the publisher.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher constructs a Dispatcher. Nil sinks are dropped.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sinks := make([]Sink, 0, len(opts.Sinks))
	for _, s := range opts.Sinks {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger.With("component", "notify"),
		timeout: timeout,
		now:     now,
	}
}

// Enabled reports whether any sink is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.sinks) > 0
}

// Publish hands the event to every sink asynchronously. The request context only
// contributes values; its cancellation does not abort delivery.
func (d *Dispatcher) Publish(ctx context.Context, event AccountEvent) {
	if !d.Enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}
	if event.Severity == "" {
		event.Severity = event.DefaultSeverity()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		for _, s := range d.sinks {
			if err := s.SendAccountEvent(sendCtx, event); err != nil {
				d.logger.WarnContext(sendCtx, "account event not delivered",
					"kind", event.Kind, "principal_id", event.PrincipalID, "error", err)
			}
		}
	}()
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
