package service

import (
	"context"
	"fmt"
	"sync"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// SessionState describes how far the cached session can be trusted.
type SessionState int

const (
	// StateUnauthenticated means no session is cached.
	StateUnauthenticated SessionState = iota
	// StateProvisional is a session loaded from the durable slot and not yet re-resolved.
	// It may be shown but never used for authorization.
	StateProvisional
	// StateVerified is a session produced by a resolution in this process.
	StateVerified
)

func (s SessionState) String() string {
	switch s {
	case StateProvisional:
		return "provisional"
	case StateVerified:
		return "verified"
	default:
		return "unauthenticated"
	}
}

// SessionCache holds the resolved session for one client, in memory and in its durable slot.
// There is exactly one cache per client, injected into whatever needs it.
type SessionCache struct {
	store    ports.SessionStore
	clientID string

	mu      sync.RWMutex
	current *domainauth.Session
	state   SessionState
}

// NewSessionCache builds a cache backed by store under clientID. A nil store keeps
// the cache memory-only.
func NewSessionCache(store ports.SessionStore, clientID string) *SessionCache {
	return &SessionCache{store: store, clientID: clientID}
}

// ClientID returns the client the cache belongs to.
func (c *SessionCache) ClientID() string { return c.clientID }

// Init loads the durable slot. A stored session becomes provisional until the next
// resolution commits.
func (c *SessionCache) Init(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	sess, err := c.store.Get(ctx, c.clientID)
	if err != nil {
		return fmt.Errorf("load session slot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateVerified {
		return nil
	}
	if sess == nil {
		c.current, c.state = nil, StateUnauthenticated
		return nil
	}
	c.current, c.state = sess, StateProvisional
	return nil
}

// Get returns a copy of the cached session and its state. The session is nil when
// the state is StateUnauthenticated.
func (c *SessionCache) Get() (*domainauth.Session, SessionState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, StateUnauthenticated
	}
	cp := *c.current
	return &cp, c.state
}

// Verified returns the session only when it was resolved by this process.
func (c *SessionCache) Verified() *domainauth.Session {
	sess, state := c.Get()
	if state != StateVerified {
		return nil
	}
	return sess
}

// Set replaces the session. The durable slot is written first; memory is updated
// only when that succeeds.
func (c *SessionCache) Set(ctx context.Context, sess domainauth.Session) error {
	if c.store != nil {
		if err := c.store.Save(ctx, c.clientID, sess); err != nil {
			return fmt.Errorf("save session slot: %w", err)
		}
	}
	c.mu.Lock()
	c.current, c.state = &sess, StateVerified
	c.mu.Unlock()
	return nil
}

// Clear drops the session from memory and then from the durable slot.
func (c *SessionCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.current, c.state = nil, StateUnauthenticated
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, c.clientID); err != nil {
		return fmt.Errorf("clear session slot: %w", err)
	}
	return nil
}
