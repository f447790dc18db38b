package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/api-token-service/internal/api/http"
	"github.com/spec-kit/api-token-service/internal/api/http/handlers"
	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/config"
	"github.com/spec-kit/api-token-service/internal/events"
	"github.com/spec-kit/api-token-service/internal/observability"
	"github.com/spec-kit/api-token-service/internal/persistence"
	"github.com/spec-kit/api-token-service/internal/repository"
	"github.com/spec-kit/api-token-service/internal/service"
	"github.com/spec-kit/api-token-service/internal/worker"
)

func main() {
	settingsPath := pflag.String("settings", os.Getenv("SETTINGS_FILE"), "path to the persisted settings file (YAML)")
	migrateOnly := pflag.Bool("migrate", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*settingsPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("the user directory requires POSTGRES_DSN")
	}

	if cfg.Postgres.RunMigrations || *migrateOnly {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *migrateOnly {
		return
	}

	if _, _, ok := cfg.JWT.Offsets(); !ok {
		logger.Warn("JWT_REQUEST_TIME or JWT_EXPIRE not configured; logins will fail until both are set")
	}

	healthDeps := map[string]handlers.Pinger{"postgres": pg}
	var redisConn *persistence.Redis
	if cfg.Auth.TokenStore == config.StoreRedis {
		redisConn = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redisConn.Close()
		healthDeps["redis"] = redisConn
	}

	store, err := newTokenStore(cfg, pg, redisConn)
	if err != nil {
		logger.Fatal("failed to build token store", zap.Error(err))
	}
	logger.Info("token store selected", zap.String("backend", cfg.Auth.TokenStore))

	var metrics *observability.Metrics
	if cfg.App.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	directory := repository.NewUserDirectory(pool)
	codec := auth.NewCodec(cfg.JWT.SecretKey, cfg.JWT.Issuer)
	issuer := service.NewTokenIssuer(*cfg, service.IssuerDependencies{
		Store:      store,
		Codec:      codec,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	authService := service.NewAuthService(service.AuthDependencies{
		Users:      directory,
		Issuer:     issuer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	gate := auth.NewGate(codec, store, directory, auth.GateConfig{
		Permission: cfg.Auth.APIPermission,
		Group:      cfg.Auth.APIGroup,
	})
	authMiddleware := auth.NewAuthMiddleware(gate, dispatcher, metrics, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Auth:           handlers.NewAuthHandler(authService),
		Token:          handlers.NewTokenHandler(),
		AuthMiddleware: authMiddleware,
	}
	if metrics != nil {
		routes.Metrics = metrics.Handler()
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func newTokenStore(cfg *config.Config, pg *persistence.Postgres, rdb *persistence.Redis) (repository.TokenStore, error) {
	switch cfg.Auth.TokenStore {
	case config.StorePostgres:
		return repository.NewTokenRepository(pg.PoolHandle()), nil
	case config.StoreRedis:
		return repository.NewRedisTokenStore(rdb.Client, cfg.Redis.KeyPrefix), nil
	case config.StoreMemory:
		return repository.NewMemoryTokenStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Auth.TokenStore)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
