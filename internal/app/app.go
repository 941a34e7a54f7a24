// Package app wires the configured backends into the services shared by
// the HTTP server and planctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/api"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/cache"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/config"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/drive"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/reconcile"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository/memory"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository/sqlstore"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/storage"
)

type App struct {
	Config *config.Config
	Store  *repository.Store
	// DB is nil for STORE_DRIVER=memory.
	DB     *sqlstore.DB
	Engine *reconcile.Engine

	Reconcile   *service.ReconcileService
	Plan        *service.PlanService
	StockImport *service.StockImportService
	Health      *service.HealthService

	closers []func() error
}

// New connects every configured backend. Only the record store is
// mandatory; optional backends that fail to start are logged and skipped.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(cfg.Cache)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, plan report cache disabled")
		} else {
			redisClient = client
			a.closers = append(a.closers, client.Close)
		}
	}
	reportCache := cache.NewReportCache(cfg.Cache, redisClient)

	engineOpts := []reconcile.Option{
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithDefaultNode(cfg.Reconcile.DefaultNode),
		reconcile.WithCountry(cfg.Reconcile.StockCountry),
	}
	if cfg.Reconcile.LockEnabled {
		if redisClient != nil {
			ttl := time.Duration(cfg.Reconcile.LockTTLSeconds) * time.Second
			engineOpts = append(engineOpts, reconcile.WithLocker(cache.NewRedisCohortLocker(redisClient, ttl)))
		} else {
			engineOpts = append(engineOpts, reconcile.WithLocker(reconcile.NewLocalLocker()))
		}
	}
	a.Engine = reconcile.NewEngine(a.Store.Demand, a.Store.Stock, engineOpts...)

	archive := storage.NewArchiver(nil)
	if cfg.Archive.Enabled {
		s3, err := storage.NewS3Client(cfg.Archive)
		if err != nil {
			log.Warn().Err(err).Msg("upload archive disabled")
		} else {
			archive = storage.NewArchiver(s3)
		}
	}

	reconcileOpts := []service.ReconcileOption{
		service.WithReportCache(reportCache),
		service.WithArchiver(archive),
	}
	var salesSource repository.SalesSource
	if cfg.SalesSource.DSN != "" {
		src, err := sqlstore.NewMySQLSalesSource(cfg.SalesSource.DSN, cfg.SalesSource.Query)
		if err != nil {
			log.Warn().Err(err).Msg("sales source disabled")
		} else {
			salesSource = src
			a.closers = append(a.closers, src.Close)
			reconcileOpts = append(reconcileOpts, service.WithSalesSource(src))
		}
	}

	var driveSrc service.DriveSource
	if cfg.Drive.CredentialsJSON != "" {
		srv, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
		if err != nil {
			log.Warn().Err(err).Msg("google drive disabled")
		} else {
			driveSrc = srv
		}
	}

	a.Reconcile = service.NewReconcileService(a.Engine, a.Store.Runs, reconcileOpts...)
	a.Plan = service.NewPlanService(a.Store, reportCache, archive, a.Engine.DefaultNode())
	a.StockImport = service.NewStockImportService(a.Store.Stock, driveSrc, archive, cfg.Reconcile.StockCountry)
	a.Health = service.NewHealthService(a.Store.Demand, reportCache, salesSource)
	return a, nil
}

func (a *App) openStore() error {
	cfg := a.Config.Database
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("store configuration: %w", err)
	}
	if cfg.Driver == "memory" {
		log.Warn().Msg("using in-memory record store, data is lost on exit")
		a.Store = memory.NewStore()
		return nil
	}

	db, err := sqlstore.Open(cfg)
	if err != nil {
		return err
	}
	a.DB = db
	a.Store = sqlstore.NewStore(db)
	a.closers = append(a.closers, a.Store.Close)
	log.Info().Str("driver", cfg.Driver).Msg("record store connected")
	return nil
}

// Services exposes the services to the HTTP router.
func (a *App) Services() *api.Services {
	return &api.Services{
		Reconcile:   a.Reconcile,
		Plan:        a.Plan,
		StockImport: a.StockImport,
		Health:      a.Health,
		DriveFolder: a.Config.Drive.StockFolderID,
	}
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
