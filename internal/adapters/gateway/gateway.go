package gateway

// Package gateway implements ports.AuthGateway: the per-client source of truth for
// whether a principal is signed in, with change subscriptions.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// Options configures a Gateway.
type Options struct {
	Verifier ports.CredentialVerifier // Required
	Store    ports.PrincipalStore     // Optional: persists the principal across restarts
	ClientID string
	Logger   *slog.Logger
}

// Gateway holds the signed-in principal for one client and notifies subscribers
// when it changes.
type Gateway struct {
	verifier ports.CredentialVerifier
	store    ports.PrincipalStore
	clientID string
	logger   *slog.Logger

	// notifyMu serialises state changes with their notifications so every listener
	// observes changes in order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   *domainauth.Principal
	listeners map[uint64]ports.PrincipalListener
	nextID    uint64
}

var _ ports.AuthGateway = (*Gateway)(nil)

// New constructs a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Verifier == nil {
		return nil, errors.New("gateway: verifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		verifier:  opts.Verifier,
		store:     opts.Store,
		clientID:  opts.ClientID,
		logger:    logger.With("component", "auth_gateway", "client_id", opts.ClientID),
		listeners: make(map[uint64]ports.PrincipalListener),
	}, nil
}

// Login verifies creds and makes the resulting principal current. Rejected credentials
// yield domainauth.ErrInvalidCredentials; the current principal is kept in that case.
func (g *Gateway) Login(ctx context.Context, creds domainauth.Credentials) (domainauth.Principal, error) {
	p, err := g.verifier.Verify(ctx, creds)
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidCredentials) {
			return domainauth.Principal{}, err
		}
		return domainauth.Principal{}, fmt.Errorf("login: %w", err)
	}
	if p.ID == "" {
		return domainauth.Principal{}, fmt.Errorf("%w: provider returned no principal id", domainauth.ErrInvalidCredentials)
	}

	if g.store != nil {
		if saveErr := g.store.Save(ctx, g.clientID, p); saveErr != nil {
			g.logger.WarnContext(ctx, "persist principal", "error", saveErr)
		}
	}
	g.set(&p)
	return p, nil
}

// Logout signs the current principal out and notifies subscribers before returning.
func (g *Gateway) Logout(ctx context.Context) error {
	var storeErr error
	if g.store != nil {
		if err := g.store.Delete(ctx, g.clientID); err != nil {
			storeErr = fmt.Errorf("delete persisted principal: %w", err)
		}
	}
	g.set(nil)
	return storeErr
}

// Restore loads a persisted principal, if one exists.
func (g *Gateway) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	p, err := g.store.Load(ctx, g.clientID)
	if err != nil {
		return fmt.Errorf("load persisted principal: %w", err)
	}
	if p != nil {
		g.set(p)
	}
	return nil
}

// Current returns a copy of the signed-in principal, or nil.
func (g *Gateway) Current() *domainauth.Principal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return clonePrincipal(g.current)
}

// Subscribe registers fn and immediately calls it with the current principal.
func (g *Gateway) Subscribe(fn ports.PrincipalListener) func() {
	if fn == nil {
		return func() {}
	}

	g.notifyMu.Lock()
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	cur := clonePrincipal(g.current)
	g.mu.Unlock()
	fn(cur)
	g.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// set replaces the current principal and notifies listeners if it actually changed.
func (g *Gateway) set(p *domainauth.Principal) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if samePrincipal(g.current, p) {
		g.mu.Unlock()
		return
	}
	g.current = clonePrincipal(p)
	listeners := make([]ports.PrincipalListener, 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(clonePrincipal(p))
	}
}

func samePrincipal(a, b *domainauth.Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePrincipal(p *domainauth.Principal) *domainauth.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
