package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culturemaker/cmk-api/internal/ports"
	authmocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
)

func newTestRegistry(t *testing.T, built *atomic.Int32) *ClientRegistry {
	t.Helper()
	reg := NewClientRegistry(ClientRegistryOptions{
		Gateways: func(string) (ports.AuthGateway, error) {
			built.Add(1)
			return authmocks.NewFakeGateway(), nil
		},
		Directory: authmocks.NewMemoryDirectory(),
		Config: RegistryConfig{
			Sessions: authmocks.NewMemorySessionStore(),
			IdleTTL:  time.Minute,
			Session:  fastRetry(),
		},
	})
	t.Cleanup(reg.Close)
	return reg
}

func TestValidClientID(t *testing.T) {
	assert.True(t, ValidClientID(NewClientID()))
	assert.False(t, ValidClientID(""))
	assert.False(t, ValidClientID("not-a-uuid"))
}

func TestClientRegistry_RejectsInvalidID(t *testing.T) {
	var built atomic.Int32
	reg := newTestRegistry(t, &built)

	_, err := reg.Get(context.Background(), "../../etc")
	require.Error(t, err)
	assert.Zero(t, built.Load())
	assert.Zero(t, reg.Len())
}

func TestClientRegistry_ConcurrentGetSharesSession(t *testing.T) {
	var built atomic.Int32
	reg := newTestRegistry(t, &built)
	id := NewClientID()

	const n = 16
	got := make([]*ClientSession, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cs, err := reg.Get(context.Background(), id)
			assert.NoError(t, err)
			got[i] = cs
		}(i)
	}
	wg.Wait()

	for _, cs := range got {
		assert.Same(t, got[0], cs)
	}
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, id, got[0].ID())
}

func TestClientRegistry_SeparateClientsAreIsolated(t *testing.T) {
	var built atomic.Int32
	reg := newTestRegistry(t, &built)
	ctx := context.Background()

	a, err := reg.Get(ctx, NewClientID())
	require.NoError(t, err)
	b, err := reg.Get(ctx, NewClientID())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Gateway(), b.Gateway())
	assert.Equal(t, 2, reg.Len())
}

func TestClientRegistry_GatewayFactoryError(t *testing.T) {
	reg := NewClientRegistry(ClientRegistryOptions{
		Gateways: func(string) (ports.AuthGateway, error) {
			return nil, errors.New("provider misconfigured")
		},
		Directory: authmocks.NewMemoryDirectory(),
	})
	defer reg.Close()

	_, err := reg.Get(context.Background(), NewClientID())
	require.ErrorContains(t, err, "provider misconfigured")
	assert.Zero(t, reg.Len())
}

func TestClientRegistry_EvictIdle(t *testing.T) {
	var built atomic.Int32
	reg := newTestRegistry(t, &built)
	ctx := context.Background()
	id := NewClientID()

	cs, err := reg.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, awaitClient(t, cs))

	assert.Zero(t, reg.EvictIdle(time.Now()))
	assert.Equal(t, 1, reg.EvictIdle(time.Now().Add(2*time.Minute)))
	assert.Zero(t, reg.Len())

	again, err := reg.Get(ctx, id)
	require.NoError(t, err)
	assert.NotSame(t, cs, again)
	assert.Equal(t, int32(2), built.Load())
}

func TestClientRegistry_RunJanitorStopsOnCancel(t *testing.T) {
	var built atomic.Int32
	reg := newTestRegistry(t, &built)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reg.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestNewClientRegistry_RequiresDependencies(t *testing.T) {
	assert.Panics(t, func() { NewClientRegistry(ClientRegistryOptions{Directory: authmocks.NewMemoryDirectory()}) })
	assert.Panics(t, func() {
		NewClientRegistry(ClientRegistryOptions{
			Gateways: func(string) (ports.AuthGateway, error) { return authmocks.NewFakeGateway(), nil },
		})
	})
}
