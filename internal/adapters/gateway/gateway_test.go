package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	mocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
)

type recorder struct {
	mu     sync.Mutex
	events []*domainauth.Principal
}

func (r *recorder) listen(p *domainauth.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, p := range r.events {
		if p == nil {
			out = append(out, "<nil>")
			continue
		}
		out = append(out, p.ID)
	}
	return out
}

func newGateway(t *testing.T, store *mocks.MemoryPrincipalStore) (*Gateway, *mocks.StaticVerifier) {
	t.Helper()
	v := mocks.NewStaticVerifier().
		AddAccount(domainauth.Principal{ID: "u1", Email: "u1@acme.test"}, "pw1").
		AddAccount(domainauth.Principal{ID: "u9", Email: "u9@acme.test"}, "pw9")
	opts := Options{Verifier: v, ClientID: "client-1"}
	if store != nil {
		opts.Store = store
	}
	g, err := New(opts)
	require.NoError(t, err)
	return g, v
}

func TestNew_RequiresVerifier(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestGateway_SubscribeDeliversCurrentImmediately(t *testing.T) {
	g, _ := newGateway(t, nil)
	var rec recorder

	unsubscribe := g.Subscribe(rec.listen)
	defer unsubscribe()

	assert.Equal(t, []string{"<nil>"}, rec.ids())
}

func TestGateway_LoginLogoutNotifiesChanges(t *testing.T) {
	g, _ := newGateway(t, nil)
	ctx := context.Background()
	var rec recorder
	unsubscribe := g.Subscribe(rec.listen)
	defer unsubscribe()

	p, err := g.Login(ctx, domainauth.Credentials{Email: "u1@acme.test", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	// Same principal again is not a change.
	_, err = g.Login(ctx, domainauth.Credentials{Email: "U1@acme.test", Password: "pw1"})
	require.NoError(t, err)

	_, err = g.Login(ctx, domainauth.Credentials{Email: "u9@acme.test", Password: "pw9"})
	require.NoError(t, err)

	require.NoError(t, g.Logout(ctx))
	require.NoError(t, g.Logout(ctx))

	assert.Equal(t, []string{"<nil>", "u1", "u9", "<nil>"}, rec.ids())
	assert.Nil(t, g.Current())
}

func TestGateway_InvalidCredentialsKeepCurrent(t *testing.T) {
	g, _ := newGateway(t, nil)
	ctx := context.Background()

	_, err := g.Login(ctx, domainauth.Credentials{Email: "u1@acme.test", Password: "pw1"})
	require.NoError(t, err)

	_, err = g.Login(ctx, domainauth.Credentials{Email: "u1@acme.test", Password: "wrong"})
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	require.NotNil(t, g.Current())
	assert.Equal(t, "u1", g.Current().ID)
}

func TestGateway_ProviderErrorIsWrapped(t *testing.T) {
	g, v := newGateway(t, nil)
	v.VerifyFunc = func(context.Context, domainauth.Credentials) (domainauth.Principal, error) {
		return domainauth.Principal{}, errors.New("idp timeout")
	}

	_, err := g.Login(context.Background(), domainauth.Credentials{Email: "u1@acme.test"})
	require.ErrorContains(t, err, "idp timeout")
	assert.NotErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestGateway_EmptyPrincipalRejected(t *testing.T) {
	g, v := newGateway(t, nil)
	v.VerifyFunc = func(context.Context, domainauth.Credentials) (domainauth.Principal, error) {
		return domainauth.Principal{Email: "anon@acme.test"}, nil
	}

	_, err := g.Login(context.Background(), domainauth.Credentials{})
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	assert.Nil(t, g.Current())
}

func TestGateway_UnsubscribeIsIdempotent(t *testing.T) {
	g, _ := newGateway(t, nil)
	var rec recorder
	unsubscribe := g.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()

	_, err := g.Login(context.Background(), domainauth.Credentials{Email: "u1@acme.test", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"<nil>"}, rec.ids())
}

func TestGateway_RestoreFromStore(t *testing.T) {
	store := mocks.NewMemoryPrincipalStore()
	ctx := context.Background()

	first, _ := newGateway(t, store)
	_, err := first.Login(ctx, domainauth.Credentials{Email: "u9@acme.test", Password: "pw9"})
	require.NoError(t, err)

	second, _ := newGateway(t, store)
	var rec recorder
	unsubscribe := second.Subscribe(rec.listen)
	defer unsubscribe()
	require.NoError(t, second.Restore(ctx))

	assert.Equal(t, []string{"<nil>", "u9"}, rec.ids())

	require.NoError(t, second.Logout(ctx))
	persisted, err := store.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestGateway_RestoreWithoutStore(t *testing.T) {
	g, _ := newGateway(t, nil)
	require.NoError(t, g.Restore(context.Background()))
	assert.Nil(t, g.Current())
}

func TestGateway_CurrentReturnsCopy(t *testing.T) {
	g, _ := newGateway(t, nil)
	_, err := g.Login(context.Background(), domainauth.Credentials{Email: "u1@acme.test", Password: "pw1"})
	require.NoError(t, err)

	cur := g.Current()
	cur.ID = "tampered"
	assert.Equal(t, "u1", g.Current().ID)
}
