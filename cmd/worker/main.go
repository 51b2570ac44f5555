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

	"github.com/sassyweb/storefront/internal/app"
	"github.com/sassyweb/storefront/internal/media"
	"github.com/sassyweb/storefront/internal/observability"
	"github.com/sassyweb/storefront/internal/platform/db"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/jobs"
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

	if cfg.OSSEndpoint == "" {
		logger.Error("OSS_ENDPOINT is required by the worker")
		os.Exit(1)
	}
	store, err := media.NewOSSStore(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey, cfg.OSSBucket)
	if err != nil {
		logger.Error("connect object store", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	productService := products.NewService(products.NewRepository(pool), products.Options{Logger: logger})
	mediaService := media.NewService(store, productService, cfg.MediaBaseURL(), logger)
	sweeper := media.NewSweeper(mediaService, productService, cfg.MediaSweepMinAge)
	metrics := observability.NewMetrics()

	var cron []jobs.CronRegistration
	if cfg.MediaSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.MediaSweepCron,
			Task:    asynq.NewTask(jobs.TaskMediaSweep, nil),
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMediaPurge, Handler: jobs.HandleMediaPurge(sweeper, logger, metrics)},
			{Type: jobs.TaskMediaSweep, Handler: jobs.HandleMediaSweep(sweeper, logger, metrics)},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
		return worker.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
