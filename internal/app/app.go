// Package app wires every component together from one Config and runs
// the daemon until a shutdown signal arrives.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/config"
	"github.com/campuswatch/campuswatch/internal/cron"
	"github.com/campuswatch/campuswatch/internal/gateway"
	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/messenger"
	"github.com/campuswatch/campuswatch/internal/observe"
	"github.com/campuswatch/campuswatch/internal/store"
	"github.com/campuswatch/campuswatch/internal/task"
	"github.com/campuswatch/campuswatch/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// App owns the daemon's lifecycle.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger, version: version}
}

// Run starts everything and blocks until ctx is cancelled or a shutdown
// signal is received. Components stop in reverse start order.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Version:  a.version,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	cacheStore, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	apps := make([]intra.Application, len(cfg.Intra.Applications))
	for i, app := range cfg.Intra.Applications {
		apps[i] = intra.Application{UID: app.UID, Secret: app.Secret}
	}
	client := intra.NewClient(intra.Options{
		BaseURL:        cfg.Intra.BaseURL,
		AuthURL:        cfg.Intra.AuthURL,
		RedirectURL:    cfg.Intra.RedirectURL,
		Applications:   apps,
		RateLimit:      cfg.Intra.RateLimit,
		RequestTimeout: time.Duration(cfg.Intra.RequestTimeoutSeconds) * time.Second,
		Cache:          cacheStore,
		Logger:         a.logger,
	})
	if err := client.Load(ctx); err != nil {
		return err
	}

	msgr := messenger.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL)
	bot, err := msgr.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("app: telegram getMe failed (check token): %w", err)
	}
	a.logger.Info("telegram bot authenticated", "id", bot.ID, "username", bot.Username)

	observer := observe.NewObserver(observe.Config{
		PageSize:  cfg.Observer.PageSize,
		Cycle:     time.Duration(cfg.Observer.CycleSeconds) * time.Second,
		SendDelay: time.Duration(cfg.Observer.SendDelayMS) * time.Millisecond,
		Logger:    a.logger,
	}, client, cacheStore, db, msgr)

	events := observe.NewEventNotifier(observe.EventConfig{
		PageSize:     cfg.Events.PageSize,
		Cycle:        time.Duration(cfg.Events.CycleSeconds) * time.Second,
		SafetyMargin: time.Duration(cfg.Events.SafetyMarginSeconds) * time.Second,
		SendDelay:    time.Duration(cfg.Observer.SendDelayMS) * time.Millisecond,
		Logger:       a.logger,
	}, client, cacheStore, db, msgr)

	supervisor := task.NewSupervisor(a.logger)
	supervisor.Add("observation", observer.Run)
	supervisor.Add("event_notify", events.Run)
	if err := supervisor.Start(ctx); err != nil {
		return err
	}

	scheduler := cron.NewScheduler(a.logger)
	if err := scheduler.Register(&cron.CampusSyncJob{
		Catalog:      client,
		Store:        db,
		Cache:        cacheStore,
		Logger:       a.logger,
		ScheduleExpr: cfg.Catalog.Schedule,
	}); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway.Listen, client, db, a.logger)
	if err := gw.Start(); err != nil {
		return err
	}

	a.logger.Info("campuswatch started", "version", a.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gw.Stop(stopCtx); err != nil {
		a.logger.Error("gateway stop error", "error", err)
	}
	if err := scheduler.Stop(stopCtx); err != nil {
		a.logger.Error("scheduler stop error", "error", err)
	}
	if err := supervisor.Stop(stopCtx); err != nil {
		a.logger.Error("supervisor stop error", "error", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// openCache builds the configured cache backend.
func (a *App) openCache(ctx context.Context) (cache.Store, func(), error) {
	switch a.cfg.Cache.Backend {
	case "redis":
		r, err := cache.NewRedis(ctx, &redis.Options{
			Addr:     a.cfg.Cache.Redis.Addr,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("cache backend ready", "backend", "redis", "addr", a.cfg.Cache.Redis.Addr)
		return r, func() { _ = r.Close() }, nil
	default:
		m := cache.NewMemory()
		a.logger.Info("cache backend ready", "backend", "memory")
		return m, func() { _ = m.Close() }, nil
	}
}
