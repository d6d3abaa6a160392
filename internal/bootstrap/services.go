package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/culturemaker/cmk-api/config"
	redisadapter "github.com/culturemaker/cmk-api/internal/adapters/redis"
	"github.com/culturemaker/cmk-api/internal/data"
	httpx "github.com/culturemaker/cmk-api/internal/http"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Registry      *service.ClientRegistry
	Auth          *service.AuthService
	Accounts      *service.AccountService
	Observability ObservabilityContainer

	// OIDCEnabled reports whether a redirect login flow is configured.
	OIDCEnabled bool
	LogoutURL   string

	// HealthChecks probe the backing stores for the readiness endpoint.
	HealthChecks map[string]httpx.HealthCheck
}

// Close releases the sessions and flushes pending notifications.
func (c ServiceContainer) Close() {
	if c.Registry != nil {
		c.Registry.Close()
	}
	c.Observability.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: sessions are memory-only without it
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	Accounts  *data.AccountRepo
	Directory *data.DirectoryRepo
	Sessions  ports.SessionStore
}

func buildRepositories(db *sql.DB, rdb redis.UniversalClient, clients config.ClientsConfig) *serviceRepositories {
	repos := &serviceRepositories{
		Accounts:  data.NewAccountRepo(db),
		Directory: data.NewDirectoryRepo(db),
	}
	if rdb != nil {
		repos.Sessions = redisadapter.NewSessionStore(rdb, redisadapter.SessionStoreOptions{
			Prefix: clients.SlotPrefix,
			TTL:    clients.SlotTTL,
		})
	}
	return repos
}

// NewServices wires repositories, the configured auth mode and the per-client runtime.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	repos := buildRepositories(deps.DB, deps.RedisClient, cfg.Clients)
	if repos.Sessions == nil {
		logger.Warn("redis not configured; sessions will not survive a restart")
	}

	auth, err := BuildAuth(AuthConfig{Auth: cfg.Auth, Credentials: repos.Accounts, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	obs := buildObservability(logger, cfg.Observability, cfg.HTTP.BaseURL)

	container := assembleServices(assembleOptions{
		Gateways: NewGatewayFactory(GatewayFactoryConfig{
			Verifier:    auth.Verifier,
			RedisClient: deps.RedisClient,
			Prefix:      cfg.Clients.PrincipalPrefix,
			TTL:         cfg.Auth.PrincipalTTL,
			Logger:      logger,
		}),
		Directory:     repos.Directory,
		Sessions:      repos.Sessions,
		Accounts:      repos.Accounts,
		Auth:          auth,
		Clients:       cfg.Clients,
		Observability: obs,
		Logger:        logger,
	})
	container.HealthChecks = healthChecks(deps.DB, deps.RedisClient)
	return container, nil
}

func healthChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{"postgres": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

type assembleOptions struct {
	Gateways      service.GatewayFactory
	Directory     ports.Directory
	Sessions      ports.SessionStore
	Accounts      ports.AccountRepository
	Auth          AuthComponents
	Clients       config.ClientsConfig
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

// assembleServices builds the services from already constructed adapters.
func assembleServices(opts assembleOptions) ServiceContainer {
	telemetry := service.Telemetry{
		Logger:   opts.Logger,
		Metrics:  opts.Observability.MetricsSink(),
		Notifier: opts.Observability.Notifier,
	}

	registry := service.NewClientRegistry(service.ClientRegistryOptions{
		Gateways:  opts.Gateways,
		Directory: opts.Directory,
		Config: service.RegistryConfig{
			Sessions: opts.Sessions,
			IdleTTL:  opts.Clients.IdleTTL,
			Session: service.ClientSessionConfig{
				ResolveTimeout:  opts.Clients.ResolveTimeout,
				RetryInitial:    opts.Clients.RetryInitial,
				RetryMaxElapsed: opts.Clients.RetryMaxElapsed,
				RetryDisabled:   opts.Clients.RetryDisabled,
				Telemetry:       telemetry,
			},
		},
	})

	container := ServiceContainer{
		Registry: registry,
		Auth: service.NewAuthService(service.AuthServiceOptions{
			Clients: registry,
			Flow:    opts.Auth.Flow,
			Logger:  opts.Logger,
		}),
		Observability: opts.Observability,
		OIDCEnabled:   opts.Auth.Flow != nil,
		LogoutURL:     opts.Auth.LogoutURL,
	}

	if opts.Accounts != nil {
		container.Accounts = service.NewAccountService(service.AccountServiceOptions{
			Repo:      opts.Accounts,
			Hasher:    opts.Auth.Hasher,
			Logger:    opts.Logger,
			Notifier:  opts.Observability.Notifier,
			Directory: opts.Directory,
		})
	}
	return container
}

// ServiceOrchestrationConfig contains what RunServices needs to start the runtime.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts the HTTP server and the idle-session janitor and
// blocks until SIGINT or SIGTERM, or until one of them fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunServices(ctx, cfg)
}

// RunServices runs until ctx is done, then shuts the server down gracefully.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Services.Registry == nil || cfg.Services.Auth == nil {
		return errors.New("service orchestration config missing services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := NewHTTPServer(&HTTPServerConfig{Config: cfg.Config, Services: cfg.Services, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cfg.Services.Registry.RunJanitor(gctx, cfg.Config.Clients.JanitorInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownWait(cfg.Config.HTTP))
		defer cancel()
		return ShutdownHTTPServer(ShutdownConfig{Context: shutdownCtx, Server: server, Logger: logger})
	})

	err := g.Wait()
	cfg.Services.Close()
	if err != nil {
		logger.Error("service error", "error", err)
	}
	return err
}

func shutdownWait(h config.HTTPConfig) time.Duration {
	if h.ShutdownTimeout > 0 {
		return h.ShutdownTimeout
	}
	return shutdownWaitTimeout
}
