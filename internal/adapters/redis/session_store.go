package redis

// Package redis provides Redis-backed durable state for client sessions.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// Default key prefixes.
const (
	DefaultSessionPrefix   = "cmk:session:"
	DefaultPrincipalPrefix = "cmk:principal:"
)

// jsonSlot stores one JSON value per client id under prefix, refreshing the TTL on write.
type jsonSlot struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (s jsonSlot) key(clientID string) string { return s.prefix + clientID }

func (s jsonSlot) save(ctx context.Context, clientID string, v any) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(clientID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// load decodes the slot into v and reports whether it existed.
func (s jsonSlot) load(ctx context.Context, clientID string, v any) (bool, error) {
	if clientID == "" {
		return false, nil
	}
	data, err := s.client.Get(ctx, s.key(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	return true, nil
}

func (s jsonSlot) delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(clientID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SessionStore is the durable session slot, one key per client.
type SessionStore struct {
	slot jsonSlot
}

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Prefix string        // default DefaultSessionPrefix
	TTL    time.Duration // zero keeps the slot until deleted
}

// NewSessionStore creates a Redis-backed session slot store.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &SessionStore{slot: jsonSlot{client: client, prefix: prefix, ttl: opts.TTL}}
}

func (s *SessionStore) Save(ctx context.Context, clientID string, sess domainauth.Session) error {
	if err := s.slot.save(ctx, clientID, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the stored session, or nil when the slot is empty or has expired.
func (s *SessionStore) Get(ctx context.Context, clientID string) (*domainauth.Session, error) {
	var sess domainauth.Session
	ok, err := s.slot.load(ctx, clientID, &sess)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, clientID string) error {
	return s.slot.delete(ctx, clientID)
}
