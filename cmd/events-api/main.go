package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/campus-events-api/api/swagger"
	"github.com/noah-isme/campus-events-api/internal/handler"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/database"
	"github.com/noah-isme/campus-events-api/pkg/logger"
)

// @title Campus Events API
// @version 1.0.0
// @description Event approval, scheduling and registration for campus events.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logr.Info("database migrated")
	}

	metrics := service.NewMetricsService()
	store := repository.NewStore(db, cfg.Storage,
		repository.WithQueryObserver(metrics),
		repository.WithStoreLogger(logr))

	profiles := repository.NewProfileRepository(store)
	eventRepo := repository.NewEventRepository(store)
	subEventRepo := repository.NewSubEventRepository(store)
	registrationRepo := repository.NewRegistrationRepository(store)
	auditRepo := repository.NewAuditRepository(store)

	validate := validator.New()
	registry := service.NewRoleRegistry(profiles, validate, logr)
	gateway := service.NewGateway(
		registry,
		service.NewEventService(eventRepo, validate, logr),
		service.NewSubEventService(subEventRepo, eventRepo, validate, logr),
		service.NewRegistrationService(registrationRepo, registry, validate, logr),
		logr,
		service.WithGatewayAudit(auditRepo),
		service.WithGatewayMetrics(metrics),
	)
	queries := service.NewQueryService(registry, eventRepo, subEventRepo, registrationRepo, logr)
	exports := service.NewExportService(queries, logr)

	router := newRouter(routerDeps{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         service.NewTokenService(cfg.JWT),
		Principals:     registry,
		Intents:        handler.NewIntentHandler(gateway),
		Queries:        handler.NewQueryHandler(queries),
		Exports:        handler.NewExportHandler(exports),
		System:         handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Completion.Enabled {
		sweeper := service.NewCompletionService(eventRepo, gateway, metrics, service.CompletionConfig{
			SystemPrincipalID: cfg.Completion.SystemPrincipalID,
			Interval:          cfg.Completion.Interval,
			Workers:           cfg.Completion.Workers,
			BatchSize:         cfg.Completion.BatchSize,
			MaxRetries:        cfg.Completion.MaxRetries,
			RetryDelay:        cfg.Storage.RetryBaseDelay,
		}, logr)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	return g.Wait()
}
