// Package bootstrap assembles the storage backend, settings and engine services shared by
// the HTTP server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/config"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/observability"
	"github.com/fieldops/dispatch-service/internal/persistence"
	"github.com/fieldops/dispatch-service/internal/repository"
	"github.com/fieldops/dispatch-service/internal/repository/memstore"
	"github.com/fieldops/dispatch-service/internal/service"
	"github.com/fieldops/dispatch-service/internal/settings"
)

// Runtime holds the wired backend.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Tx         repository.Transactor
	Reads      repository.Repositories
	Users      repository.UserRepository
	Fees       repository.TechnicianFeeRepository
	Settings   *settings.Store
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher
}

// Services are the engine entry points.
type Services struct {
	Tickets   *service.TicketService
	Dispatch  *service.DispatchService
	Assign    *service.AssignmentService
	Lifecycle *service.LifecycleService
	Bonus     *service.BonusService
	Admin     *service.AdminService
}

// Open connects to Postgres when a DSN is configured and falls back to the in-memory store
// otherwise. Migrations run first when enabled, then the settings seed is applied.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Postgres:   pg,
		Metrics:    observability.NewMetrics(),
		Dispatcher: events.NewInMemoryDispatcher(logger),
	}

	var settingsRepo repository.SettingsRepository
	if pg.Enabled() {
		pool := pg.PoolHandle()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		rt.Tx = repository.NewTransactor(pool)
		rt.Reads = repository.NewRepositories(pool)
		rt.Users = repository.NewUserRepository(pool)
		rt.Fees = repository.NewTechnicianFeeRepository(pool)
		settingsRepo = repository.NewSettingsRepository(pool)
	} else {
		mem := memstore.New()
		rt.Tx = mem
		rt.Reads = mem.Repositories()
		rt.Users = mem.Users()
		rt.Fees = mem.TechnicianFees()
		settingsRepo = mem.Settings()
	}

	rt.Redis = persistence.NewRedis(cfg.Redis, logger)
	opts := settings.Options{
		TTL: cfg.Settings.CacheTTL(),
		DefaultRatio: domain.DispatchRatio{
			Maintenance:  cfg.Dispatch.DefaultRatioMaintenance,
			Installation: cfg.Dispatch.DefaultRatioInstallation,
		},
		Logger: logger,
	}
	if rt.Redis.Enabled() {
		opts.Cache = settings.NewRedisCache(rt.Redis.Client)
	}
	rt.Settings = settings.NewStore(settingsRepo, opts)

	if cfg.Settings.SeedFile != "" {
		if err := rt.ApplySeed(ctx, cfg.Settings.SeedFile); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// ApplySeed writes settings from a YAML seed file without overwriting existing keys.
func (rt *Runtime) ApplySeed(ctx context.Context, path string) error {
	seed, err := settings.LoadSeed(path)
	if err != nil {
		return err
	}
	written, err := rt.Settings.ApplySeed(ctx, seed)
	if err != nil {
		return fmt.Errorf("apply settings seed: %w", err)
	}
	rt.Logger.Info("settings seed applied", zap.String("file", path), zap.Int("keys_written", written))
	return nil
}

// Services builds the engine services over the runtime's backend.
func (rt *Runtime) Services() *Services {
	deps := service.Dependencies{
		Tx:         rt.Tx,
		Users:      rt.Users,
		Fees:       rt.Fees,
		Settings:   rt.Settings,
		Dispatcher: rt.Dispatcher,
		Metrics:    rt.Metrics,
		Logger:     rt.Logger,
		Location:   rt.Config.App.Location(),
		RadiusKm:   rt.Config.Dispatch.ProximityRadiusKm,
	}
	return &Services{
		Tickets:   service.NewTicketService(deps, rt.Reads),
		Dispatch:  service.NewDispatchService(deps),
		Assign:    service.NewAssignmentService(deps),
		Lifecycle: service.NewLifecycleService(deps),
		Bonus:     service.NewBonusService(deps, rt.Reads.Tickets),
		Admin:     service.NewAdminService(deps, rt.Settings),
	}
}

// Close releases connections.
func (rt *Runtime) Close() {
	rt.Redis.Close()
	rt.Postgres.Close()
}
