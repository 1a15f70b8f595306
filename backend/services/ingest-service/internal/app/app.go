package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "gasledger/backend/libs/redis"
	"gasledger/backend/services/ingest-service/internal/auth"
	"gasledger/backend/services/ingest-service/internal/config"
	"gasledger/backend/services/ingest-service/internal/db"
	httpserver "gasledger/backend/services/ingest-service/internal/http"
	"gasledger/backend/services/ingest-service/internal/http/handlers"
	"gasledger/backend/services/ingest-service/internal/http/middleware"
	"gasledger/backend/services/ingest-service/internal/metrics"
	"gasledger/backend/services/ingest-service/internal/portal"
	redisstore "gasledger/backend/services/ingest-service/internal/redis"
	"gasledger/backend/services/ingest-service/internal/repository"
	"gasledger/backend/services/ingest-service/internal/scheduler"
	"gasledger/backend/services/ingest-service/internal/service"
)

const ingestJob = "ingest"

// App wires ingest service dependencies.
type App struct {
	cfg         *config.Config
	server      *httpserver.Server
	scheduler   *scheduler.Scheduler
	ingestion   *service.IngestionService
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg
	m := metrics.New()

	store, err := a.openStore()
	if err != nil {
		return err
	}

	var snapshots service.SnapshotCache = service.NewMemorySnapshotCache()
	if cfg.Redis.Addr != "" {
		a.redisClient, err = libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		snapshots = redisstore.NewSnapshotStore(a.redisClient, cfg.Portal.Provider, cfg.Redis.TTL)
	}

	provider, err := portal.LookupProvider(cfg.Portal.Provider)
	if err != nil {
		return err
	}
	client, err := portal.NewClient(provider,
		portal.Credentials{Username: cfg.Portal.Username, Password: cfg.Portal.Password},
		portal.Options{
			Timeout:           cfg.Portal.Timeout,
			RequestsPerSecond: cfg.Portal.RequestsPerSecond,
			StrictLogin:       cfg.Portal.StrictLogin,
			Observer:          m.ObservePortalRequest,
		},
		a.logger,
	)
	if err != nil {
		return err
	}

	ingestion := service.NewIngestionService(client, store, snapshots, service.Options{
		MarkerPolicy:  cfg.MarkerPolicy(),
		FetchPayments: cfg.Ingest.FetchPayments,
		Recorder:      m,
	}, a.logger)

	a.ingestion = ingestion
	a.scheduler = scheduler.NewScheduler(cfg.Ingest.CycleTimeout, a.logger)
	if err := a.scheduler.Register(ingestJob, cfg.Ingest.Schedule, func(ctx context.Context) error {
		_, err := ingestion.Refresh(ctx)
		return err
	}); err != nil {
		return err
	}

	var tokens middleware.TokenValidator
	if cfg.JWT.Secret != "" {
		tokens = auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	} else {
		a.logger.Warn("jwt secret not set, api is unauthenticated")
	}

	stats := handlers.NewStatisticsHandlers(store, a.logger)
	snaps := handlers.NewSnapshotHandlers(ingestion, a.logger)
	routes := httpserver.Routes{
		Health:          handlers.NewHealthHandler(a.scheduler),
		Metrics:         m.Handler(),
		StatisticsRange: stats.Range,
		LatestPoint:     stats.Latest,
		Projections:     snaps.Projections,
		Usage:           snaps.Usage,
		Refresh:         handlers.NewRefreshHandler(a.scheduler, ingestJob, ingestion, a.logger),
	}

	router := httpserver.NewRouter(routes, tokens)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, a.logger)

	a.logger.Info("ingest service configured",
		zap.String("provider", provider.Code),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", a.redisClient != nil),
		zap.String("schedule", cfg.Ingest.Schedule),
	)
	return nil
}

func (a *App) openStore() (repository.StatisticsStore, error) {
	var (
		sqlDB   *sql.DB
		dialect repository.Dialect
		err     error
	)
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		sqlDB, err = db.NewPostgres(a.cfg.Store.DSN)
		dialect = repository.DialectPostgres
	case config.DriverSQLite:
		sqlDB, err = db.NewSQLite(a.cfg.Store.DSN)
		dialect = repository.DialectSQLite
	default:
		return repository.NewMemoryStore(), nil
	}
	if err != nil {
		return nil, err
	}
	a.db = sqlDB

	store, err := repository.NewSQLStore(sqlDB, dialect)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

// Run starts the scheduler and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	if a.cfg.Ingest.RunOnStart {
		if err := a.scheduler.Trigger(ingestJob); err != nil {
			return err
		}
	}
	return a.server.Run(ctx)
}

// RunOnce runs a single ingestion cycle outside the scheduler.
func (a *App) RunOnce(ctx context.Context) (*service.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Ingest.CycleTimeout)
	defer cancel()
	return a.ingestion.Refresh(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
