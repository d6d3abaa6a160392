package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func sampleSession() domainauth.Session {
	return domainauth.Session{
		PrincipalID: "u1",
		Email:       "u1@acme.test",
		FirstName:   "Una",
		LastName:    "One",
		Role:        domainauth.RoleEmployee,
		Status:      domainauth.StatusApproved,
		CompanyRef:  "acme",
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-1", sampleSession()))

	got, err := store.Get(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleSession(), *got)

	ttl := client.TTL(ctx, DefaultSessionPrefix+"client-1").Val()
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestSessionStore_GetEmptySlot(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{})
	ctx := context.Background()

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-del", sampleSession()))
	require.NoError(t, store.Delete(ctx, "client-del"))
	require.NoError(t, store.Delete(ctx, "client-del"))

	got, err := store.Get(ctx, "client-del")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_TTLExpiration(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{TTL: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-ttl", sampleSession()))
	time.Sleep(250 * time.Millisecond)

	got, err := store.Get(ctx, "client-ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{Prefix: "test-prefix:"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "client-p", sampleSession()))
	assert.Equal(t, int64(1), client.Exists(ctx, "test-prefix:client-p").Val())
}

func TestSessionStore_SaveEmptyClientID(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	err := NewSessionStore(client, SessionStoreOptions{}).Save(context.Background(), "", sampleSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID cannot be empty")
}

func TestSessionStore_CorruptSlot(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionStore(client, SessionStoreOptions{})
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, DefaultSessionPrefix+"client-bad", "{not json", 0).Err())

	_, err := store.Get(ctx, "client-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestPrincipalStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewPrincipalStore(client, "", time.Hour)
	ctx := context.Background()

	p, err := store.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, store.Save(ctx, "client-1", domainauth.Principal{ID: "u3", Email: "lead@acme.test"}))
	p, err = store.Load(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domainauth.Principal{ID: "u3", Email: "lead@acme.test"}, *p)

	require.NoError(t, store.Delete(ctx, "client-1"))
	p, err = store.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, p)
}
