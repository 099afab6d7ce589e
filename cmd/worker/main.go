package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/modeer/staffprov/internal/app"
	jobmetrics "github.com/modeer/staffprov/internal/jobs"
	"github.com/modeer/staffprov/internal/observability"
	"github.com/modeer/staffprov/internal/platform/cache"
	"github.com/modeer/staffprov/internal/platform/db"
	"github.com/modeer/staffprov/internal/platform/pgstore"
	"github.com/modeer/staffprov/internal/platform/supabase"
	"github.com/modeer/staffprov/internal/provisioning"
	"github.com/modeer/staffprov/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseHTTPTimeout)
	repo := provisioning.NewRepository(client)
	var records provisioning.RecordStore = repo
	if cfg.PGDSN != "" && cfg.RecordMode != "rpc" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		records = pgstore.New(pool)
	}

	metrics := observability.NewMetrics()
	var seeds map[string]string
	if cfg.RosterPath != "" {
		roster, err := provisioning.LoadRoster(cfg.RosterPath)
		if err != nil {
			logger.Error("load roster", slog.Any("error", err))
			os.Exit(1)
		}
		seeds = roster.CodeSeeds
	}
	sequencer := provisioning.NewSequencer(repo, records,
		provisioning.SchemeResolver{Kind: provisioning.SchemeKind(cfg.CodeScheme), Width: cfg.CodeWidth, Seeds: seeds},
		provisioning.WithLogger(logger),
		provisioning.WithRecorder(metrics),
		provisioning.WithLocker(cache.NewLocker(redisClient, cfg.LockTTL, cfg.LockWait)),
		provisioning.WithOptions(provisioning.Options{
			VisibilityTimeout: cfg.VisibilityTimeout,
			PollInterval:      cfg.PollInterval,
			RollbackIdentity:  cfg.RollbackIdentity,
			UseRPC:            cfg.RecordMode == "rpc",
		}),
	)

	reports := jobs.NewRedisReports(redisClient, cfg.ReportListKey)
	provisionJob := jobs.NewProvisionJob(sequencer, reports, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskProvisionEmployee, Handler: provisionJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()
	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, logger),
			Reports:    reports,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops endpoint listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
