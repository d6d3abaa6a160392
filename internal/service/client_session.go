package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/observability/metrics"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// ClientSessionConfig tunes the resolution loop.
type ClientSessionConfig struct {
	ResolveTimeout  time.Duration // per attempt; default 5s
	RetryInitial    time.Duration // default 200ms
	RetryMaxElapsed time.Duration // default 10s
	RetryDisabled   bool
	Telemetry       Telemetry
}

// ClientSessionOptions groups dependencies for ClientSession.
type ClientSessionOptions struct {
	ClientID  string
	Gateway   ports.AuthGateway  // Required
	Directory ports.Directory    // Required
	Sessions  ports.SessionStore // Optional: durable slot; memory-only when nil
	Config    ClientSessionConfig
}

type principalEvent struct {
	ticket    Ticket
	principal *domainauth.Principal
}

// ClientSession is the per-client runtime: one gateway, one resolver, one cache and a
// single goroutine that resolves principal changes one at a time. Newer events cancel
// and supersede the resolution in flight.
type ClientSession struct {
	clientID string
	gateway  ports.AuthGateway
	resolver *Resolver
	cache    *SessionCache
	cfg      ClientSessionConfig
	logger   *slog.Logger

	mu       sync.Mutex
	pending  *principalEvent
	inflight context.CancelFunc
	idle     chan struct{}
	idleSet  bool
	lastErr  error
	started  bool

	kick        chan struct{}
	unsubscribe func()
	stop        context.CancelFunc
	done        chan struct{}

	lastActive atomic.Int64
}

// NewClientSession constructs a ClientSession. Call Start before use.
func NewClientSession(opts ClientSessionOptions) *ClientSession {
	if opts.Gateway == nil {
		panic("Gateway is required")
	}
	if opts.Directory == nil {
		panic("Directory is required")
	}
	cfg := withSessionDefaults(opts.Config)
	cache := NewSessionCache(opts.Sessions, opts.ClientID)

	idle := make(chan struct{})
	close(idle)

	s := &ClientSession{
		clientID: opts.ClientID,
		gateway:  opts.Gateway,
		cache:    cache,
		cfg:      cfg,
		logger:   cfg.Telemetry.logger().With("component", "client_session", "client_id", opts.ClientID),
		idle:     idle,
		idleSet:  true,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.resolver = NewResolver(ResolverOptions{
		Directory: opts.Directory,
		Gateway:   opts.Gateway,
		Cache:     cache,
		Telemetry: cfg.Telemetry,
	})
	s.touch()
	return s
}

func withSessionDefaults(cfg ClientSessionConfig) ClientSessionConfig {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 10 * time.Second
	}
	return cfg
}

// ID returns the client id.
func (s *ClientSession) ID() string { return s.clientID }

// Start loads the durable slot, restores the gateway and starts the resolution loop.
// The loop stops when ctx is cancelled or Close is called.
func (s *ClientSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("client session already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.cache.Init(ctx); err != nil {
		s.logger.WarnContext(ctx, "session slot unavailable, starting empty", "error", err)
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop
	go s.run(loopCtx)

	if err := s.gateway.Restore(ctx); err != nil {
		s.logger.WarnContext(ctx, "restore principal", "error", err)
	}
	s.unsubscribe = s.gateway.Subscribe(s.onPrincipal)
	return nil
}

// Close unsubscribes from the gateway and stops the loop.
func (s *ClientSession) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.stop != nil {
		s.stop()
		<-s.done
	}
}

// onPrincipal is the gateway listener. It reserves a ticket right away so that any
// resolution started earlier becomes stale, then hands the event to the loop.
func (s *ClientSession) onPrincipal(p *domainauth.Principal) {
	s.enqueue(p)
}

func (s *ClientSession) enqueue(p *domainauth.Principal) {
	t := s.resolver.Begin()

	s.mu.Lock()
	s.pending = &principalEvent{ticket: t, principal: p}
	if s.inflight != nil {
		s.inflight()
	}
	if s.idleSet {
		s.idle = make(chan struct{})
		s.idleSet = false
	}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *ClientSession) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}
		s.drain(ctx)
	}
}

func (s *ClientSession) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		ev := s.pending
		s.pending = nil
		if ev == nil {
			if !s.idleSet {
				close(s.idle)
				s.idleSet = true
			}
			s.mu.Unlock()
			return
		}
		rctx, cancel := context.WithCancel(ctx)
		s.inflight = cancel
		s.mu.Unlock()

		err := s.process(rctx, ev)
		cancel()

		s.mu.Lock()
		s.inflight = nil
		if !errors.Is(err, domainauth.ErrStaleResolution) {
			s.lastErr = err
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

// process resolves one event, retrying retryable failures with exponential backoff.
func (s *ClientSession) process(ctx context.Context, ev *principalEvent) error {
	attempt := func() (*domainauth.Session, error) {
		actx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
		defer cancel()
		sess, err := s.resolver.ResolveTicket(actx, ev.ticket, ev.principal)
		if err == nil || domainauth.IsRetryable(err) {
			return sess, err
		}
		return sess, backoff.Permanent(err)
	}

	if s.cfg.RetryDisabled {
		_, err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInitial
	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(s.cfg.RetryMaxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.WarnContext(ctx, "retrying resolution", "ticket", uint64(ev.ticket), "wait", wait, "error", err)
		}),
	)
	if err != nil && ctx.Err() != nil && !errors.Is(err, domainauth.ErrStaleResolution) {
		// Cancelled by a newer event or by shutdown.
		return domainauth.ErrStaleResolution
	}
	return err
}

// Await blocks until no resolution is pending or in flight and returns the error of
// the last completed resolution, if any.
func (s *ClientSession) Await(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idle
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Loading reports whether a resolution is pending or running.
func (s *ClientSession) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.idleSet
}

// Login signs in through the gateway and waits for the resulting session.
// A nil session with nil error means the principal was orphaned and signed out.
func (s *ClientSession) Login(ctx context.Context, creds domainauth.Credentials) (*domainauth.Session, error) {
	s.touch()
	before := s.gateway.Current()
	p, err := s.gateway.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if before != nil && *before == p {
		// Same principal again: no change event, but records may have changed.
		s.enqueue(&p)
	}
	if err := s.Await(ctx); err != nil {
		return nil, err
	}
	return s.verified(), nil
}

// Logout signs out and waits until the session is cleared.
func (s *ClientSession) Logout(ctx context.Context) error {
	s.touch()
	err := s.gateway.Logout(ctx)
	if awaitErr := s.Await(ctx); awaitErr != nil && err == nil {
		err = awaitErr
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Refresh re-resolves the current principal, e.g. after its record changed.
func (s *ClientSession) Refresh(ctx context.Context) (*domainauth.Session, error) {
	s.touch()
	s.enqueue(s.gateway.Current())
	if err := s.Await(ctx); err != nil {
		return nil, err
	}
	return s.verified(), nil
}

// Current returns the cached session and how far it can be trusted. A session that
// belongs to another principal than the gateway's is never returned.
func (s *ClientSession) Current() (*domainauth.Session, SessionState) {
	s.touch()
	sess, state := s.cache.Get()
	if sess == nil {
		return nil, StateUnauthenticated
	}
	p := s.gateway.Current()
	if p != nil && p.ID != sess.PrincipalID {
		return nil, StateUnauthenticated
	}
	if p == nil && state == StateVerified {
		// Signed out; the clear has not committed yet.
		return nil, StateUnauthenticated
	}
	return sess, state
}

// verified returns the verified session while it still belongs to the gateway's
// current principal. A failed resolution for a new principal leaves the previous
// principal's session in the cache.
func (s *ClientSession) verified() *domainauth.Session {
	sess := s.cache.Verified()
	if sess == nil {
		return nil
	}
	if p := s.gateway.Current(); p == nil || p.ID != sess.PrincipalID {
		return nil
	}
	return sess
}

// Authorize evaluates the route guard against the verified session only.
func (s *ClientSession) Authorize(area domainauth.Area) domainauth.Decision {
	s.touch()
	d := domainauth.Authorize(s.verified(), area)
	s.emitGuard(string(area), d)
	return d
}

// Navigate evaluates a request path against the verified session only.
func (s *ClientSession) Navigate(path string) domainauth.Decision {
	s.touch()
	d := domainauth.Navigate(s.verified(), path)
	s.emitGuard(string(domainauth.Classify(path).Area), d)
	return d
}

func (s *ClientSession) emitGuard(area string, d domainauth.Decision) {
	result := "allow"
	if !d.Allow {
		result = "redirect"
	}
	if area == "" {
		area = "none"
	}
	metrics.EmitGuard(s.cfg.Telemetry.Metrics, metrics.GuardMetric{Area: area, Result: result})
}

// Gateway exposes the client's auth gateway.
func (s *ClientSession) Gateway() ports.AuthGateway { return s.gateway }

func (s *ClientSession) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// IdleSince returns the last time the session was used.
func (s *ClientSession) IdleSince() time.Time { return time.Unix(0, s.lastActive.Load()) }
