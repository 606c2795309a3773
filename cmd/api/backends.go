package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-orchestrator/internal/audit"
	"voice-orchestrator/internal/calls"
	"voice-orchestrator/internal/config"
	"voice-orchestrator/internal/feed"
	"voice-orchestrator/internal/numbers"
	"voice-orchestrator/migrations"
	"voice-orchestrator/pkg/utils"
)

type changeBus interface {
	calls.Notifier
	Subscribe(ctx context.Context, f feed.Filter) (<-chan calls.Change, error)
	Close()
}

// backends are the storage-dependent collaborators. Postgres mode also needs Redis
// for the change feed and the start guard; memory mode keeps everything in process.
type backends struct {
	store   calls.Store
	numbers numbers.Repository
	audit   audit.Repository
	bus     changeBus
	guard   calls.StartGuard
	health  func(ctx context.Context) error

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	if !cfg.UsesPostgres() {
		bus := feed.NewMemoryBus(log)
		log.Warn("using in-memory storage; data is lost on restart")
		return &backends{
			store:   calls.NewMemoryStore(),
			numbers: numbers.NewMemoryRepo(),
			audit:   audit.NewMemoryRepo(),
			bus:     bus,
			health:  func(context.Context) error { return nil },
			closers: []func(){bus.Close},
		}, nil
	}

	db, err := utils.OpenPostgres(ctx, utils.DriverPgx, cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns: cfg.DB.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.DB.AutoMigrate {
		applied, err := utils.Migrate(ctx, db, migrations.FS)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrations applied", "versions", applied)
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	bus := feed.NewRedisBus(rdb, log)
	return &backends{
		store:   calls.NewPostgresStore(db),
		numbers: numbers.NewPostgresRepository(db),
		audit:   audit.NewPostgresRepo(db),
		bus:     bus,
		guard: utils.ConcurrencyGuard{
			RDB:    rdb,
			Prefix: "calls:start:",
			Limit:  1,
			TTL:    cfg.Calls.StartLockTTL,
		},
		health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		closers: []func(){
			func() { _ = db.Close() },
			func() { _ = rdb.Close() },
			bus.Close,
		},
	}, nil
}
