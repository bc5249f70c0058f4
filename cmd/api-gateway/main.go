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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ops-audit-api/api/swagger"
	"github.com/noah-isme/ops-audit-api/internal/handler"
	"github.com/noah-isme/ops-audit-api/internal/middleware"
	"github.com/noah-isme/ops-audit-api/internal/models"
	"github.com/noah-isme/ops-audit-api/internal/repository"
	"github.com/noah-isme/ops-audit-api/internal/service"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
	"github.com/noah-isme/ops-audit-api/pkg/cache"
	"github.com/noah-isme/ops-audit-api/pkg/config"
	"github.com/noah-isme/ops-audit-api/pkg/database"
	"github.com/noah-isme/ops-audit-api/pkg/jobs"
	"github.com/noah-isme/ops-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ops-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ops-audit-api/pkg/middleware/requestid"
)

// @title Ops Audit API
// @version 1.0.0
// @description Normalized, human-readable audit trails for the operations console
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// The directory still loads straight from Postgres without a cache.
		logr.Warn("redis unavailable, reference lists will not be cached", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	labels, err := config.LoadFieldLabels(cfg.Audit.FieldLabelsFile)
	if err != nil {
		return fmt.Errorf("load field labels: %w", err)
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	auditRepo := repository.NewAuditLogRepository(db, logr)
	referenceRepo := repository.NewReferenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Audit.ReferenceCacheTTL, logr, redisClient != nil)
	referenceSvc := service.NewReferenceService(referenceRepo, cacheSvc, metricsSvc, logr, service.ReferenceServiceConfig{
		CacheTTL:    cfg.Audit.ReferenceCacheTTL,
		CachePrefix: cfg.Audit.ReferenceCachePrefix,
	})
	auditSvc := service.NewAuditTrailService(auditRepo, referenceSvc, metricsSvc, validate, logr, service.AuditTrailConfig{
		DefaultLimit:       cfg.Audit.DefaultLimit,
		MaxLimit:           cfg.Audit.MaxLimit,
		Workers:            cfg.Audit.NormalizeWorkers,
		PreviewMaxEntries:  cfg.Audit.PreviewMaxEntries,
		ExportMaxEntries:   cfg.Audit.ExportMaxEntries,
		ExtraIgnoredFields: cfg.Audit.ExtraIgnoredFields,
		SystemActorLabel:   cfg.Audit.SystemActorLabel,
	}, service.WithFieldLabels(audittrail.FieldLabels(labels)))
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Leeway:            30 * time.Second,
	})

	refreshQueue := jobs.NewQueue(service.RefreshJobType, referenceSvc.HandleRefreshJob, jobs.QueueConfig{
		Workers:    cfg.Audit.RefreshWorkers,
		BufferSize: 1,
		MaxRetries: cfg.Audit.RefreshRetries,
		RetryDelay: 5 * time.Second,
		JobTimeout: cfg.Audit.ReferenceLoadTimeout,
		Logger:     logr,
		OnResult: func(job jobs.Job, err error) {
			metricsSvc.ObserveJob(service.RefreshJobType, err)
		},
	})
	refreshQueue.Start(ctx)
	defer refreshQueue.Stop()

	// First load happens inline so the first trail request already resolves names.
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Audit.ReferenceLoadTimeout)
	if _, err := referenceSvc.Refresh(loadCtx, false); err != nil {
		logr.Warn("initial reference load failed, trails will show raw ids until the next refresh", zap.Error(err))
	}
	cancel()

	if err := refreshQueue.Every(cfg.Audit.ReferenceRefresh, func() jobs.Job { return service.NewRefreshJob(false) }); err != nil {
		return fmt.Errorf("schedule reference refresh: %w", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	auditHandler := handler.NewAuditHandler(auditSvc, referenceSvc, refreshQueue)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"database": db.PingContext,
		"cache":    cacheSvc.Ping,
		"references": func(context.Context) error {
			if _, ok := referenceSvc.RefreshedAt(); !ok {
				return errors.New("reference directory not loaded")
			}
			return nil
		},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	audit := api.Group("/audit")
	audit.POST("/normalize", auditHandler.Normalize)
	audit.GET("/references", auditHandler.References)
	audit.POST("/references/refresh",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
		auditHandler.RefreshReferences)
	audit.GET("/:entity/:entityId", auditHandler.Trail)
	audit.GET("/:entity/:entityId/export", auditHandler.Export)

	ops := api.Group("/ops", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	ops.GET("/metrics", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
