package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/ports"
)

// PrincipalStore persists the auth gateway's signed-in principal per client so a
// restarted process can restore it.
type PrincipalStore struct {
	slot jsonSlot
}

var _ ports.PrincipalStore = (*PrincipalStore)(nil)

// NewPrincipalStore creates a Redis-backed principal store. An empty prefix uses
// DefaultPrincipalPrefix.
func NewPrincipalStore(client redis.UniversalClient, prefix string, ttl time.Duration) *PrincipalStore {
	if prefix == "" {
		prefix = DefaultPrincipalPrefix
	}
	return &PrincipalStore{slot: jsonSlot{client: client, prefix: prefix, ttl: ttl}}
}

func (s *PrincipalStore) Save(ctx context.Context, clientID string, p domainauth.Principal) error {
	if err := s.slot.save(ctx, clientID, p); err != nil {
		return fmt.Errorf("save principal: %w", err)
	}
	return nil
}

func (s *PrincipalStore) Load(ctx context.Context, clientID string) (*domainauth.Principal, error) {
	var p domainauth.Principal
	ok, err := s.slot.load(ctx, clientID, &p)
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *PrincipalStore) Delete(ctx context.Context, clientID string) error {
	return s.slot.delete(ctx, clientID)
}
