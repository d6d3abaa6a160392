package bootstrap

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/culturemaker/cmk-api/config"
	"github.com/culturemaker/cmk-api/internal/adapters/password"
	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	"github.com/culturemaker/cmk-api/internal/mocks"
	authmocks "github.com/culturemaker/cmk-api/internal/mocks/auth"
	"github.com/culturemaker/cmk-api/internal/observability/notify"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

func testContainer(t *testing.T, accounts ports.AccountRepository) ServiceContainer {
	t.Helper()
	dir := authmocks.NewMemoryDirectory().Put(domainauth.RoleRecord{
		Kind: domainauth.DirectoryEmployees, ID: "u1", Email: "u1@acme.test",
		FirstName: "Emp", LastName: "One", CompanyRef: "acme", Status: "approved",
	})
	c := assembleServices(assembleOptions{
		Gateways: func(string) (ports.AuthGateway, error) {
			return authmocks.NewFakeGateway().Allow(domainauth.Principal{ID: "u1", Email: "u1@acme.test"}), nil
		},
		Directory: dir,
		Accounts:  accounts,
		Auth:      AuthComponents{Hasher: password.Hasher{Cost: 4}},
		Clients: config.ClientsConfig{
			IdleTTL:         time.Minute,
			RetryInitial:    time.Millisecond,
			RetryMaxElapsed: time.Second,
		},
		Observability: ObservabilityContainer{
			Notifier: notify.NewDispatcher(notify.DispatcherOptions{Logger: discardLogger()}),
		},
		Logger: discardLogger(),
	})
	t.Cleanup(c.Close)
	return c
}

func TestNewServices_RequiresDependencies(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: &config.AppConfig{}})
	assert.ErrorContains(t, err, "database is required")
}

func TestAssembleServices_PasswordLogin(t *testing.T) {
	c := testContainer(t, nil)
	assert.Nil(t, c.Accounts)
	assert.False(t, c.OIDCEnabled)

	ctx := context.Background()
	id := service.NewClientID()
	result, err := c.Auth.PasswordLogin(ctx, id, service.PasswordLoginInput{
		Email: "u1@acme.test", Password: "pw", Area: domainauth.AreaEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.PathEmployeeDashboard, result.Redirect)
	assert.Equal(t, 1, c.Registry.Len())
}

func TestAssembleServices_WiresAccounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAccountRepository(ctrl)
	repo.EXPECT().
		SetStatus(gomock.Any(), domainauth.DirectoryEmployees, "u1", domainauth.StatusApproved).
		Return(domainauth.RoleRecord{Kind: domainauth.DirectoryEmployees, ID: "u1", Status: "approved"}, nil)

	c := testContainer(t, repo)
	require.NotNil(t, c.Accounts)

	rec, err := c.Accounts.SetStatus(context.Background(), domainauth.DirectoryEmployees, "u1", domainauth.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.Status)
}

func TestRunServices_Validation(t *testing.T) {
	assert.Error(t, RunServices(context.Background(), nil))
	assert.Error(t, RunServices(context.Background(), &ServiceOrchestrationConfig{Config: &config.AppConfig{}}))
}

func TestRunServices_StopsOnCancel(t *testing.T) {
	cfg := &config.AppConfig{}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Clients.JanitorInterval = 10 * time.Millisecond

	services := testContainer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunServices(ctx, &ServiceOrchestrationConfig{
			Config:   cfg,
			Services: services,
			Logger:   discardLogger(),
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServices did not return after cancel")
	}
}

func TestRunServices_ListenFailure(t *testing.T) {
	cfg := &config.AppConfig{}
	cfg.HTTP.Addr = "127.0.0.1:-1"

	err := RunServices(context.Background(), &ServiceOrchestrationConfig{
		Config:   cfg,
		Services: testContainer(t, nil),
		Logger:   discardLogger(),
	})
	assert.ErrorContains(t, err, "http server")
}

func TestHealthChecks(t *testing.T) {
	db, err := sql.Open("pgx", "postgres://u:p@127.0.0.1:1/cmk?sslmode=disable&connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	checks := healthChecks(db, nil)
	assert.Len(t, checks, 1)
	assert.Contains(t, checks, "postgres")

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	checks = healthChecks(db, rdb)
	require.Contains(t, checks, "redis")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, checks["redis"](ctx))
}
