package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/workforce-ai/meter/pkg/audit"
	rediscache "github.com/workforce-ai/meter/pkg/cache/redis"
	cachepkg "github.com/workforce-ai/meter/pkg/cache/sqlite"
	"github.com/workforce-ai/meter/pkg/config"
	"github.com/workforce-ai/meter/pkg/logger"
	"github.com/workforce-ai/meter/pkg/meter"
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/tracker"
	"github.com/workforce-ai/meter/pkg/tracker/postgres"
)

// store is what the CLI needs from either backend.
type store interface {
	tracker.Tracker
	SetPlan(ctx context.Context, userID, tier string) error
	Summary(ctx context.Context, userID string, since time.Time) ([]models.UsageSummary, error)
}

// reportCache is implemented by both cache backends.
type reportCache interface {
	meter.ReportCache
	Stats(ctx context.Context) (models.CacheStats, error)
	Clear(ctx context.Context, expiredOnly bool) error
	Close() error
}

// app bundles everything a command may need. Fields for disabled
// components are nil.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store
	cache   reportCache
	audit   *audit.Logger
	service *meter.Service
	closers []func()
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Env, cfg.LogLevel)
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return postgres.NewStore(pool), pool.Close, nil
	default:
		tr, err := tracker.New(cfg.Store.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracker: %w", err)
		}
		return tr, func() { _ = tr.Close() }, nil
	}
}

func openCache(ctx context.Context, cfg *config.Config) (reportCache, error) {
	switch cfg.Cache.Driver {
	case "redis":
		c, err := rediscache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		return c, nil
	default:
		c, err := cachepkg.New(cfg.Cache.DBPath, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		return c, nil
	}
}

// openApp loads config and opens the store, cache and audit log according
// to it, then builds the evaluation service.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	opts := meter.Options{
		Providers: cfg.ProviderIDs(),
		Strict:    cfg.Evaluator.Strict,
		Logger:    log,
	}

	if cfg.Cache.Enabled {
		c, err := openCache(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.cache = c
		a.closers = append(a.closers, func() { _ = c.Close() })
		opts.Cache = c
	}

	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		a.audit = l
		a.closers = append(a.closers, func() { _ = l.Close() })
		opts.Audit = l
	}

	a.service = meter.New(st, st, opts)
	log.Debug("meter initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("audit", cfg.Audit.Enabled),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
