package cli

import (
	"context"
	"fmt"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backend"
	"kakeibo/internal/cache"
	"kakeibo/internal/config"
	"kakeibo/internal/gacha"
	"kakeibo/internal/log"
	"kakeibo/internal/metrics"
	"kakeibo/internal/ports"
	"kakeibo/internal/scoring"
	"kakeibo/internal/services"
)

const masterCacheTTL = 10 * time.Minute

// App is the service graph every binary runs on.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Store   ports.Store
	Caches  *cache.Manager
	// Events is nil when AMQP is not configured or was unreachable.
	Events *amqp.Client

	Master      *services.MasterService
	Chores      *services.ChoreService
	Expenses    *services.ExpenseService
	Summary     *services.SummaryService
	Coordinator *services.RewardCoordinator
	Gacha       *services.GachaService
	Recovery    *services.GrantRecoveryProcessor

	cleanup backend.CleanupFunc
}

// NewApp opens the configured backend and builds the services on it.
// Events are published only when the backend connected to AMQP.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Store:   res.Store,
		Caches:  cache.NewManager(logger),
		Events:  res.Events,
		cleanup: res.Cleanup,
	}

	opts := services.Options{Metrics: app.Metrics, Logger: logger}
	if res.Events != nil {
		opts.Publisher = res.Events
	}

	store := res.Store
	app.Master = services.NewMasterService(store, cfg.BonusSalt, masterCacheTTL, opts)
	for _, c := range app.Master.Caches() {
		app.Caches.Register(c)
	}
	app.Chores = services.NewChoreService(store, app.Master, scoring.NewEngine(nil), cfg.ChoreListLimit, opts)
	app.Expenses = services.NewExpenseService(store, opts)
	app.Summary = services.NewSummaryService(store, store, opts)
	app.Coordinator = services.NewRewardCoordinator(store, store, store, store, gacha.NewEngine(nil), cfg.GachaCost, opts)
	app.Gacha = services.NewGachaService(app.Coordinator, app.Chores, app.Master, store, store, cfg.GrantRecovery, opts)
	app.Recovery = services.NewGrantRecoveryProcessor(store, app.Coordinator, services.GrantRecoveryConfig{
		PollInterval: cfg.RecoveryInterval,
		MaxRetries:   cfg.RecoveryMaxRetries,
	}, opts)
	return app, nil
}

// Close stops the cache manager and releases the backend.
func (a *App) Close() error {
	a.Caches.Stop()
	return a.cleanup()
}
