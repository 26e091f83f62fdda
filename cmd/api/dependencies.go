package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/handler"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/repository"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth/service"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/cloudsync"
	financehandler "github.com/FACorreiaa/family-finance-tracker/internal/domain/finance/handler"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery"
	recoveryhandler "github.com/FACorreiaa/family-finance-tracker/internal/domain/recovery/handler"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"

	"github.com/FACorreiaa/family-finance-tracker/pkg/config"
	"github.com/FACorreiaa/family-finance-tracker/pkg/cron"
	"github.com/FACorreiaa/family-finance-tracker/pkg/db"
	"github.com/FACorreiaa/family-finance-tracker/pkg/docstore"
	"github.com/FACorreiaa/family-finance-tracker/pkg/metrics"
	"github.com/FACorreiaa/family-finance-tracker/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Stores
	DocStore docstore.Store
	KV       storage.KV

	// Services
	AuthRepo     repository.AuthRepository
	TokenManager service.TokenManager
	AuthService  *service.AuthService
	Registry     *workspace.Registry
	Orchestrator *recovery.Orchestrator
	Restorer     *recovery.Restorer
	Syncer       *cloudsync.Syncer
	Scheduler    *cron.Scheduler

	// Handlers
	AuthHandler     *handler.AuthHandler
	FinanceHandler  *financehandler.FinanceHandler
	RecoveryHandler *recoveryhandler.RecoveryHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if err := deps.initStores(ctx); err != nil {
		return nil, err
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// InitStores opens only the document store and the key-value store, for
// tools that do not serve RPCs.
func InitStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}
	if err := deps.initStores(ctx); err != nil {
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) initStores(ctx context.Context) error {
	// Initialize document store (and database when it is Postgres)
	if err := d.initDocStore(); err != nil {
		return fmt.Errorf("failed to init document store: %w", err)
	}

	if err := d.initStorage(ctx); err != nil {
		d.Cleanup()
		return fmt.Errorf("failed to init storage: %w", err)
	}
	return nil
}

// initDocStore connects the document store. Postgres runs migrations first.
func (d *Dependencies) initDocStore() error {
	switch d.Config.DocStore.Type {
	case "memory":
		d.DocStore = docstore.NewMemoryStore()
		d.Logger.Warn("using in-memory document store, data is lost on restart")
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown document store type %q", d.Config.DocStore.Type)
	}

	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.DocStore = docstore.NewPostgresStore(d.DB.Pool)
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initStorage opens the key-value store holding user data and recovery backups
func (d *Dependencies) initStorage(ctx context.Context) error {
	kv, err := storage.New(ctx, &storage.Config{
		Type:      storage.StorageType(d.Config.Storage.Type),
		BoltPath:  d.Config.Storage.BoltPath,
		GCSBucket: d.Config.Storage.GCSBucket,
		GCSPrefix: d.Config.Storage.GCSPrefix,
	})
	if err != nil {
		return err
	}
	d.KV = kv

	d.Logger.Info("storage initialized", slog.String("type", d.Config.Storage.Type))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	jwtSecret := []byte(d.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		return fmt.Errorf("jwt secret is required")
	}

	refreshTokenTTL := 30 * 24 * time.Hour

	d.AuthRepo = repository.NewDocStoreAuthRepository(d.DocStore)
	d.TokenManager = service.NewTokenManager(jwtSecret, jwtSecret, d.Config.Auth.AccessTokenTTL, refreshTokenTTL)
	d.AuthService = service.NewAuthService(d.AuthRepo, d.TokenManager, d.Logger)

	d.Registry = workspace.NewRegistry(d.KV, d.Logger)

	// Legacy data recovery reads the document store and backs up to the local store
	prober := recovery.NewProber(d.DocStore, recovery.ProberConfig{
		Candidates: d.Config.Recovery.Candidates,
		SampleSize: d.Config.Recovery.SampleSize,
		FetchLimit: d.Config.Recovery.FetchLimit,
	}, d.Logger, d.Metrics)
	d.Orchestrator = recovery.NewOrchestrator(prober, recovery.RuleClassifier{}, d.KV, d.Logger, d.Metrics)
	d.Restorer = recovery.NewRestorer(d.KV)

	d.Syncer = cloudsync.NewSyncer(d.DocStore, d.Logger, d.Metrics)
	if d.Config.Sync.Enabled {
		d.Scheduler = cron.NewScheduler(d.Registry, d.Syncer, d.Config.Sync.Schedule, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.AuthHandler = handler.NewAuthHandler(d.AuthService)
	d.FinanceHandler = financehandler.NewFinanceHandler(d.Registry, d.Config.Finance.DefaultCurrency, d.Logger).
		WithSyncer(d.Syncer)
	d.RecoveryHandler = recoveryhandler.NewRecoveryHandler(d.Orchestrator, d.Restorer, d.Registry, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.KV != nil {
		if err := d.KV.Close(); err != nil {
			d.Logger.Warn("failed to close storage", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
