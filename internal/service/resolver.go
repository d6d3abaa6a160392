package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/observability/metrics"
	"github.com/culturemaker/cmk-api/internal/observability/notify"
	"github.com/culturemaker/cmk-api/internal/observability/statsd"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// Ticket is a resolution sequence number. Only the newest ticket may commit.
type Ticket uint64

// Telemetry groups optional logging, metrics and notification sinks shared by session services.
type Telemetry struct {
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Notifier notify.Publisher
}

func (t Telemetry) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// ResolverOptions groups dependencies for Resolver.
type ResolverOptions struct {
	Directory ports.Directory   // Required: role record lookups
	Gateway   ports.AuthGateway // Required: used to sign orphaned principals out
	Cache     *SessionCache     // Required: where results are committed
	Telemetry Telemetry         // Optional
}

// Resolver turns a principal into a Session by probing the role directories in
// precedence order: Admin, then SubAdmin (by id, then by email), then Employee.
type Resolver struct {
	dir      ports.Directory
	gateway  ports.AuthGateway
	cache    *SessionCache
	logger   *slog.Logger
	metrics  statsd.Sink
	notifier notify.Publisher

	// mu guards seq and serialises commits so a check-then-write is atomic.
	mu  sync.Mutex
	seq uint64
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Directory == nil {
		panic("Directory is required")
	}
	if opts.Gateway == nil {
		panic("Gateway is required")
	}
	if opts.Cache == nil {
		panic("Cache is required")
	}
	return &Resolver{
		dir:      opts.Directory,
		gateway:  opts.Gateway,
		cache:    opts.Cache,
		logger:   opts.Telemetry.logger().With("component", "resolver", "client_id", opts.Cache.ClientID()),
		metrics:  opts.Telemetry.Metrics,
		notifier: opts.Telemetry.Notifier,
	}
}

// Begin reserves the next sequence number. Every earlier ticket becomes stale.
func (r *Resolver) Begin() Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return Ticket(r.seq)
}

// Resolve reserves a ticket and resolves p with it.
func (r *Resolver) Resolve(ctx context.Context, p *domainauth.Principal) (*domainauth.Session, error) {
	return r.ResolveTicket(ctx, r.Begin(), p)
}

// ResolveTicket resolves p and commits the outcome to the cache if t is still the newest
// ticket. A nil principal resolves to no session. A stale ticket returns
// domainauth.ErrStaleResolution and writes nothing. On a ResolutionError the cached
// session is left as it was.
func (r *Resolver) ResolveTicket(
	ctx context.Context,
	t Ticket,
	p *domainauth.Principal,
) (*domainauth.Session, error) {
	start := time.Now()

	if p == nil {
		if err := r.commitClear(ctx, t); err != nil {
			return nil, r.fail(ctx, t, start, err)
		}
		r.emit(metrics.ResolutionMetric{Outcome: metrics.OutcomeUnauthenticated, Duration: time.Since(start)})
		return nil, nil
	}

	rec, kind, err := r.find(ctx, *p)
	switch {
	case errors.Is(err, domainauth.ErrRecordNotFound):
		return nil, r.orphan(ctx, t, start, *p)
	case err != nil:
		return nil, r.fail(ctx, t, start, err)
	}

	sess, err := sessionFromRecord(*p, kind, rec)
	if err != nil {
		return nil, r.fail(ctx, t, start, err)
	}

	if err := r.commitSet(ctx, t, sess); err != nil {
		return nil, r.fail(ctx, t, start, err)
	}

	r.logger.DebugContext(ctx, "principal resolved",
		"principal_id", p.ID, "role", sess.Role, "status", sess.Status, "ticket", uint64(t))
	r.emit(metrics.ResolutionMetric{
		Outcome:  metrics.OutcomeSession,
		Role:     string(sess.Role),
		Status:   string(sess.Status),
		Duration: time.Since(start),
	})
	return &sess, nil
}

type probe struct {
	kind   domainauth.DirectoryKind
	key    string
	lookup func(context.Context, string) (domainauth.RoleRecord, error)
}

func (r *Resolver) probes(p domainauth.Principal) []probe {
	byID := func(kind domainauth.DirectoryKind) func(context.Context, string) (domainauth.RoleRecord, error) {
		return func(ctx context.Context, key string) (domainauth.RoleRecord, error) {
			return r.dir.Lookup(ctx, kind, key)
		}
	}
	out := []probe{
		{kind: domainauth.DirectoryAdmins, key: p.ID, lookup: byID(domainauth.DirectoryAdmins)},
		{kind: domainauth.DirectorySubAdmins, key: p.ID, lookup: byID(domainauth.DirectorySubAdmins)},
	}
	if email := domainauth.NormalizeEmail(p.Email); email != "" {
		out = append(out, probe{kind: domainauth.DirectorySubAdmins, key: email, lookup: r.dir.SubAdminByEmail})
	}
	return append(out, probe{kind: domainauth.DirectoryEmployees, key: p.ID, lookup: byID(domainauth.DirectoryEmployees)})
}

// find runs the probes one after another; the first hit wins.
func (r *Resolver) find(ctx context.Context, p domainauth.Principal) (domainauth.RoleRecord, domainauth.DirectoryKind, error) {
	for _, pr := range r.probes(p) {
		if pr.key == "" {
			continue
		}
		rec, err := pr.lookup(ctx, pr.key)
		if err == nil {
			return rec, pr.kind, nil
		}
		if errors.Is(err, domainauth.ErrRecordNotFound) {
			continue
		}
		return domainauth.RoleRecord{}, "", &domainauth.ResolutionError{
			Directory: pr.kind,
			Key:       pr.key,
			Retryable: true,
			Err:       err,
		}
	}
	return domainauth.RoleRecord{}, "", domainauth.ErrRecordNotFound
}

func sessionFromRecord(
	p domainauth.Principal,
	kind domainauth.DirectoryKind,
	rec domainauth.RoleRecord,
) (domainauth.Session, error) {
	if rec.Kind != "" && rec.Kind != kind {
		return domainauth.Session{}, &domainauth.ResolutionError{
			Directory: kind,
			Key:       p.ID,
			Err:       fmt.Errorf("record reports directory %q", rec.Kind),
		}
	}

	sess := domainauth.Session{
		PrincipalID: p.ID,
		Email:       p.Email,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Role:        kind.Role(),
		CompanyRef:  rec.CompanyRef,
	}
	if sess.Email == "" {
		sess.Email = rec.Email
	}

	if kind == domainauth.DirectoryAdmins {
		sess.Status = domainauth.StatusApproved
		sess.CompanyRef = ""
		return sess, nil
	}

	status, err := domainauth.ParseStatus(rec.Status)
	if err != nil {
		return domainauth.Session{}, &domainauth.ResolutionError{Directory: kind, Key: p.ID, Err: err}
	}
	sess.Status = status
	return sess, nil
}

func (r *Resolver) isCurrentLocked(t Ticket) bool { return uint64(t) == r.seq }

func (r *Resolver) commitSet(ctx context.Context, t Ticket, sess domainauth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(t) {
		return domainauth.ErrStaleResolution
	}
	if err := r.cache.Set(ctx, sess); err != nil {
		return &domainauth.ResolutionError{Retryable: true, Err: err}
	}
	return nil
}

func (r *Resolver) commitClear(ctx context.Context, t Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isCurrentLocked(t) {
		return domainauth.ErrStaleResolution
	}
	if err := r.cache.Clear(ctx); err != nil {
		// Memory is already cleared; retrying converges the durable slot.
		return &domainauth.ResolutionError{Retryable: true, Err: err}
	}
	return nil
}

// orphan handles a live principal with no role record: the session is cleared and
// the principal signed out. Sign-out happens outside the commit lock since the
// gateway notifies listeners synchronously and they may reserve new tickets.
func (r *Resolver) orphan(ctx context.Context, t Ticket, start time.Time, p domainauth.Principal) error {
	if err := r.commitClear(ctx, t); err != nil {
		return r.fail(ctx, t, start, err)
	}

	r.logger.WarnContext(ctx, "orphaned credential signed out",
		"principal_id", p.ID, "email", p.Email, "error", domainauth.ErrOrphanedCredential)
	if err := r.gateway.Logout(ctx); err != nil {
		r.logger.ErrorContext(ctx, "sign out orphaned principal", "principal_id", p.ID, "error", err)
	}
	r.emit(metrics.ResolutionMetric{Outcome: metrics.OutcomeOrphan, Duration: time.Since(start)})
	if r.notifier != nil {
		r.notifier.Publish(ctx, notify.AccountEvent{
			Kind:        notify.EventOrphanedCredential,
			PrincipalID: p.ID,
			Email:       p.Email,
			Metadata:    map[string]string{"client_id": r.cache.ClientID()},
		})
	}
	return nil
}

func (r *Resolver) fail(ctx context.Context, t Ticket, start time.Time, err error) error {
	if errors.Is(err, domainauth.ErrStaleResolution) {
		r.logger.DebugContext(ctx, "stale resolution dropped", "ticket", uint64(t))
		r.emit(metrics.ResolutionMetric{Outcome: metrics.OutcomeStale})
		return err
	}

	r.mu.Lock()
	stale := !r.isCurrentLocked(t)
	r.mu.Unlock()
	if stale {
		r.logger.DebugContext(ctx, "stale resolution dropped", "ticket", uint64(t), "error", err)
		r.emit(metrics.ResolutionMetric{Outcome: metrics.OutcomeStale})
		return domainauth.ErrStaleResolution
	}

	r.logger.ErrorContext(ctx, "resolve principal", "ticket", uint64(t),
		"retryable", domainauth.IsRetryable(err), "error", err)
	r.emit(metrics.ResolutionMetric{Outcome: metrics.OutcomeError, Duration: time.Since(start), Err: err})
	return err
}

func (r *Resolver) emit(m metrics.ResolutionMetric) {
	metrics.EmitResolution(r.metrics, m)
}
