package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/culturemaker/cmk-api/internal/ports"
)

// GatewayFactory builds the auth gateway for one client.
type GatewayFactory func(clientID string) (ports.AuthGateway, error)

// ClientRegistryOptions groups dependencies for ClientRegistry.
type ClientRegistryOptions struct {
	Gateways  GatewayFactory   // Required
	Directory ports.Directory  // Required
	Config    RegistryConfig   // Optional tuning
}

// RegistryConfig carries optional registry settings.
type RegistryConfig struct {
	Sessions ports.SessionStore // durable slots; memory-only when nil
	IdleTTL  time.Duration      // default 30m
	Session  ClientSessionConfig
}

// ClientRegistry owns the ClientSession of every known client.
type ClientRegistry struct {
	gateways  GatewayFactory
	directory ports.Directory
	cfg       RegistryConfig
	logger    *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	clients map[string]*ClientSession
}

// NewClientRegistry constructs a registry.
func NewClientRegistry(opts ClientRegistryOptions) *ClientRegistry {
	if opts.Gateways == nil {
		panic("Gateways is required")
	}
	if opts.Directory == nil {
		panic("Directory is required")
	}
	cfg := opts.Config
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &ClientRegistry{
		gateways:  opts.Gateways,
		directory: opts.Directory,
		cfg:       cfg,
		logger:    cfg.Session.Telemetry.logger().With("component", "client_registry"),
		clients:   make(map[string]*ClientSession),
	}
}

// NewClientID returns a fresh opaque client identifier.
func NewClientID() string { return uuid.NewString() }

// ValidClientID reports whether id looks like an identifier issued by NewClientID.
func ValidClientID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && id != ""
}

// Get returns the session for clientID, starting one if needed. Concurrent calls for
// the same client share a single construction.
func (r *ClientRegistry) Get(ctx context.Context, clientID string) (*ClientSession, error) {
	if !ValidClientID(clientID) {
		return nil, fmt.Errorf("invalid client id %q", clientID)
	}

	r.mu.RLock()
	cs, ok := r.clients[clientID]
	r.mu.RUnlock()
	if ok {
		return cs, nil
	}

	v, err, _ := r.group.Do(clientID, func() (any, error) {
		r.mu.RLock()
		existing, found := r.clients[clientID]
		r.mu.RUnlock()
		if found {
			return existing, nil
		}

		gw, gwErr := r.gateways(clientID)
		if gwErr != nil {
			return nil, fmt.Errorf("build gateway: %w", gwErr)
		}
		created := NewClientSession(ClientSessionOptions{
			ClientID:  clientID,
			Gateway:   gw,
			Directory: r.directory,
			Sessions:  r.cfg.Sessions,
			Config:    r.cfg.Session,
		})
		if startErr := created.Start(ctx); startErr != nil {
			return nil, fmt.Errorf("start client session: %w", startErr)
		}

		r.mu.Lock()
		r.clients[clientID] = created
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "client session started", "client_id", clientID)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	cs, ok = v.(*ClientSession)
	if !ok {
		return nil, errors.New("unexpected client session type")
	}
	return cs, nil
}

// Len returns the number of live client sessions.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Evict closes and forgets a client session. Durable state is kept so the client
// can be restored later.
func (r *ClientRegistry) Evict(clientID string) {
	r.mu.Lock()
	cs, ok := r.clients[clientID]
	delete(r.clients, clientID)
	r.mu.Unlock()
	if ok {
		cs.Close()
	}
}

// EvictIdle closes sessions unused for longer than the idle TTL and returns how many.
func (r *ClientRegistry) EvictIdle(now time.Time) int {
	var stale []string
	r.mu.RLock()
	for id, cs := range r.clients {
		if now.Sub(cs.IdleSince()) > r.cfg.IdleTTL && !cs.Loading() {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Evict(id)
	}
	return len(stale)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (r *ClientRegistry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.EvictIdle(now); n > 0 {
				r.logger.InfoContext(ctx, "evicted idle client sessions", "count", n)
			}
		}
	}
}

// Close stops every client session.
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*ClientSession)
	r.mu.Unlock()
	for _, cs := range clients {
		cs.Close()
	}
}
