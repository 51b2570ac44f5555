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

	"github.com/sassyweb/storefront/internal/admin"
	"github.com/sassyweb/storefront/internal/app"
	"github.com/sassyweb/storefront/internal/audit"
	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/dashboard"
	"github.com/sassyweb/storefront/internal/media"
	"github.com/sassyweb/storefront/internal/observability"
	"github.com/sassyweb/storefront/internal/platform/cache"
	"github.com/sassyweb/storefront/internal/platform/db"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/shared"
	"github.com/sassyweb/storefront/internal/storefront"
	"github.com/sassyweb/storefront/internal/users"
	"github.com/sassyweb/storefront/internal/view"
	"github.com/sassyweb/storefront/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	sessionConfig, err := session.NewConfig(session.Options{
		Secret:      cfg.SessionSecret,
		Environment: cfg.AppEnv,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("session config", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
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

	revoker := session.NewRedisRevoker(redisClient, session.DefaultMaxAge)
	sessions, err := session.NewManager(sessionConfig, session.WithRevoker(revoker), session.WithLogger(logger))
	if err != nil {
		logger.Error("session manager", slog.Any("error", err))
		os.Exit(1)
	}
	guard := auth.Guard{Sessions: sessions, Logger: logger}
	csrf, err := shared.NewCSRFManager(cfg.SessionSecret, cfg.IsProduction())
	if err != nil {
		logger.Error("csrf manager", slog.Any("error", err))
		os.Exit(1)
	}

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	locator := media.NewLocator(cfg.MediaBaseURL())
	productService := products.NewService(products.NewRepository(dbpool), products.Options{
		Cache:  cache.NewVersioned(redisClient, "catalog", cfg.CatalogCacheTTL),
		Purger: jobClient,
		Keyer:  locator,
		Audit:  auditLogger,
		Logger: logger,
	})

	var (
		mediaHandler *media.Handler
		mediaCount   dashboard.Counter = dashboard.CounterFunc(func(context.Context) (int, error) { return 0, nil })
	)
	if cfg.OSSEndpoint != "" {
		store, err := media.NewOSSStore(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey, cfg.OSSBucket)
		if err != nil {
			logger.Error("connect object store", slog.Any("error", err))
			os.Exit(1)
		}
		mediaService := media.NewService(store, productService, cfg.MediaBaseURL(), logger)
		mediaHandler = media.NewHandler(logger, mediaService, guard, cfg.MediaMaxUploadBytes)
		mediaCount = dashboard.CounterFunc(mediaService.Count)
	} else {
		logger.Warn("OSS_ENDPOINT not set, media routes disabled")
	}

	authService := auth.NewService(auth.NewRepository(dbpool))
	userService := users.NewService(users.NewRepository(dbpool), auditLogger, revoker, logger)
	dashboardService := dashboard.NewService(
		dashboard.CounterFunc(productService.Count),
		mediaCount,
		dashboard.CounterFunc(userService.CountUsers),
	)

	adminHandler := admin.NewHandler(admin.Options{
		Products:  productService,
		Users:     userService,
		Stats:     dashboardService,
		Sessions:  sessions,
		Templates: templates,
		CSRF:      csrf,
		Guard:     guard,
		Logger:    logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Sessions:          sessions,
		Guard:             guard,
		Metrics:           metrics,
		AdminHandler:      adminHandler,
		AuthHandler:       auth.NewHandler(logger, authService, sessions, templates, csrf, metrics),
		AuditHandler:      audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard),
		UsersHandler:      users.NewHandler(logger, userService, guard),
		ProductsHandler:   products.NewHandler(logger, productService, guard),
		MediaHandler:      mediaHandler,
		DashboardHandler:  dashboard.NewHandler(logger, dashboardService, guard),
		StorefrontHandler: storefront.NewHandler(logger, productService, sessions, templates).WithCSRF(csrf),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
