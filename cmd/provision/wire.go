package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/modeer/staffprov/cmd/provision/cli"
	"github.com/modeer/staffprov/internal/app"
	"github.com/modeer/staffprov/internal/observability"
	"github.com/modeer/staffprov/internal/platform/cache"
	"github.com/modeer/staffprov/internal/platform/db"
	"github.com/modeer/staffprov/internal/platform/pgstore"
	"github.com/modeer/staffprov/internal/platform/supabase"
	"github.com/modeer/staffprov/internal/provisioning"
	"github.com/modeer/staffprov/jobs"
)

// backend holds the connections shared by the provisioning binaries.
type backend struct {
	identities provisioning.IdentityStore
	records    provisioning.RecordStore
	locker     provisioning.Locker
	redis      *redis.Client
	closers    []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// connect opens the Supabase client and, when configured, Postgres and Redis.
func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*backend, error) {
	client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseHTTPTimeout)
	repo := provisioning.NewRepository(client)
	b := &backend{identities: repo, records: repo}

	switch {
	case cfg.PGDSN != "" && cfg.RecordMode == "rpc":
		logger.Warn("PG_DSN ignored in rpc record mode")
	case cfg.PGDSN != "":
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.records = pgstore.New(pool)
		logger.Info("records stored through postgres")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		b.redis = rdb
		b.locker = cache.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)
	}
	return b, nil
}

// sequencerFactory binds configuration to a per-roster sequencer.
func sequencerFactory(cfg *app.Config, b *backend, logger *slog.Logger, metrics *observability.Metrics) cli.SequencerFactory {
	return func(seeds map[string]string) provisioning.Provisioner {
		opts := []provisioning.Option{
			provisioning.WithLogger(logger),
			provisioning.WithOptions(provisioning.Options{
				VisibilityTimeout: cfg.VisibilityTimeout,
				PollInterval:      cfg.PollInterval,
				RollbackIdentity:  cfg.RollbackIdentity,
				UseRPC:            cfg.RecordMode == "rpc",
			}),
		}
		if b.locker != nil {
			opts = append(opts, provisioning.WithLocker(b.locker))
		}
		if metrics != nil {
			opts = append(opts, provisioning.WithRecorder(metrics))
		}
		resolver := provisioning.SchemeResolver{
			Kind:  provisioning.SchemeKind(cfg.CodeScheme),
			Width: cfg.CodeWidth,
			Seeds: seeds,
		}
		return provisioning.NewSequencer(b.identities, b.records, resolver, opts...)
	}
}

// buildCLI wires the commands. The queue commands are only enabled with Redis.
func buildCLI(cfg *app.Config, b *backend, logger *slog.Logger) (*cli.ProvisionCLI, func(), error) {
	deps := cli.Deps{
		NewSequencer: sequencerFactory(cfg, b, logger, nil),
		Identities:   b.identities,
		Pause:        cfg.ProfilePause,
		Logger:       logger,
	}
	cleanup := func() {}
	if b.redis != nil {
		queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		deps.Queue = queue
		deps.Reports = jobs.NewRedisReports(b.redis, cfg.ReportListKey)
		cleanup = func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}
	}
	c, err := cli.New(deps)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build cli: %w", err)
	}
	return c, cleanup, nil
}
