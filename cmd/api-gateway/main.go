package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/internal/handler"
	"github.com/noah-isme/convivencia-api/internal/repository"
	"github.com/noah-isme/convivencia-api/internal/service"
	"github.com/noah-isme/convivencia-api/pkg/cache"
	"github.com/noah-isme/convivencia-api/pkg/config"
	"github.com/noah-isme/convivencia-api/pkg/database"
	"github.com/noah-isme/convivencia-api/pkg/jobs"
	"github.com/noah-isme/convivencia-api/pkg/logger"
	"github.com/noah-isme/convivencia-api/pkg/storage"
)

// @title Convivencia Escolar API
// @version 1.0.0
// @description Disciplinary case files, procedural deadlines and compliance audit
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to configure database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Ping(ctx, db); err != nil {
		if !cfg.Cases.FallbackEnabled {
			logr.Fatal("case store unreachable", zap.Error(err))
		}
		logr.Warn("case store unreachable, serving reads from the local case cache", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, compliance cache and case mirror disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Compliance.CacheTTL, logr, redisClient != nil)

	caseRepo := repository.NewCaseRepository(db, service.ComputeLegalDeadline).WithQueryObserver(metrics.ObserveDBQuery)
	auditRepo := repository.NewAuditLogRepository(db)

	caseCache := service.NewCaseCache(cacheRepo, cfg.Cases.CacheKey, logr)
	source := caseCache.Load(ctx, caseRepo)
	logr.Info("case cache loaded", zap.String("source", source), zap.Int("cases", len(caseCache.Snapshot())))

	var fallback *service.CaseCache
	if cfg.Cases.FallbackEnabled {
		fallback = caseCache
	}
	compliance := service.NewComplianceService(caseRepo, logr,
		service.WithComplianceCache(cacheSvc, cfg.Compliance.CacheTTL),
		service.WithComplianceFallback(fallback),
		service.WithComplianceMetrics(metrics),
		service.WithCriticalWindow(cfg.Compliance.CriticalWindow),
	)

	table := service.MustTransitionTable(service.DefaultTransitions)
	transitions := service.NewCaseTransitionService(caseRepo, logr,
		service.WithTransitionTable(table),
		service.WithTransitionCache(caseCache),
		service.WithComplianceInvalidator(compliance),
		service.WithTransitionMetrics(metrics),
	)
	cases := service.NewCaseService(caseRepo, auditRepo, table, caseCache, compliance, validator.New(), logr, service.CaseServiceConfig{
		FolioPrefix:     cfg.Cases.FolioPrefix,
		PageSize:        cfg.Cases.PageSize,
		FallbackEnabled: cfg.Cases.FallbackEnabled,
	})
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Leeway: 30 * time.Second,
	})

	reportHandler := handler.NewReportHandler(nil)
	if cfg.Reports.Enabled {
		reports, queue, err := buildReports(ctx, cfg, db, caseRepo, auditRepo, logr)
		if err != nil {
			logr.Fatal("failed to initialise compliance reports", zap.Error(err))
		}
		defer queue.Stop()
		reportHandler = handler.NewReportHandler(reports)
	}

	r := gin.New()
	registerRoutes(r, cfg, routeDeps{
		logger:      logr,
		metrics:     metrics,
		tokens:      tokens,
		cases:       handler.NewCaseHandler(cases, transitions),
		compliance:  handler.NewComplianceHandler(compliance),
		reports:     reportHandler,
		diagnostics: handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildReports(ctx context.Context, cfg *config.Config, db *sqlx.DB, cases *repository.CaseRepository, audit *repository.AuditLogRepository, logr *zap.Logger) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(cases, audit, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr)

	reportRepo := repository.NewReportRepository(db)
	worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("compliance-reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		BufferSize: 64,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)

	reports := service.NewReportService(reportRepo, queue, exporter, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	go reports.RecoverPendingJobs(ctx)
	reports.StartCleanup(ctx)
	return reports, queue, nil
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
