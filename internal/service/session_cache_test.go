package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	authmocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
)

func TestSessionCache_InitLoadsProvisional(t *testing.T) {
	store := authmocks.NewMemorySessionStore()
	ctx := context.Background()
	stored := domainauth.Session{PrincipalID: "u1", Role: domainauth.RoleEmployee, Status: domainauth.StatusApproved}
	require.NoError(t, store.Save(ctx, "c1", stored))

	cache := NewSessionCache(store, "c1")
	require.NoError(t, cache.Init(ctx))

	got, state := cache.Get()
	require.NotNil(t, got)
	assert.Equal(t, stored, *got)
	assert.Equal(t, StateProvisional, state)
	assert.Nil(t, cache.Verified(), "provisional data is never used for authorization")
}

func TestSessionCache_InitEmpty(t *testing.T) {
	cache := NewSessionCache(authmocks.NewMemorySessionStore(), "c1")
	require.NoError(t, cache.Init(context.Background()))
	got, state := cache.Get()
	assert.Nil(t, got)
	assert.Equal(t, StateUnauthenticated, state)
}

func TestSessionCache_InitError(t *testing.T) {
	store := authmocks.NewMemorySessionStore()
	store.GetErr = errors.New("redis down")
	cache := NewSessionCache(store, "c1")
	assert.Error(t, cache.Init(context.Background()))
	_, state := cache.Get()
	assert.Equal(t, StateUnauthenticated, state)
}

func TestSessionCache_SetWritesDurableFirst(t *testing.T) {
	store := authmocks.NewMemorySessionStore()
	cache := NewSessionCache(store, "c1")
	ctx := context.Background()
	sess := domainauth.Session{PrincipalID: "u1", Role: domainauth.RoleAdmin, Status: domainauth.StatusApproved}

	store.SaveErr = errors.New("write failed")
	require.Error(t, cache.Set(ctx, sess))
	got, state := cache.Get()
	assert.Nil(t, got)
	assert.Equal(t, StateUnauthenticated, state)

	store.SaveErr = nil
	require.NoError(t, cache.Set(ctx, sess))
	assert.Equal(t, &sess, cache.Verified())
	persisted, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, sess, *persisted)
}

func TestSessionCache_ClearAlwaysClearsMemory(t *testing.T) {
	store := authmocks.NewMemorySessionStore()
	cache := NewSessionCache(store, "c1")
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, domainauth.Session{PrincipalID: "u1"}))

	store.DeleteErr = errors.New("delete failed")
	require.Error(t, cache.Clear(ctx))
	got, state := cache.Get()
	assert.Nil(t, got)
	assert.Equal(t, StateUnauthenticated, state)
}

func TestSessionCache_GetReturnsCopy(t *testing.T) {
	cache := NewSessionCache(nil, "c1")
	require.NoError(t, cache.Set(context.Background(), domainauth.Session{PrincipalID: "u1", FirstName: "A"}))
	got, _ := cache.Get()
	got.FirstName = "changed"
	again, _ := cache.Get()
	assert.Equal(t, "A", again.FirstName)
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "provisional", StateProvisional.String())
	assert.Equal(t, "verified", StateVerified.String())
}
