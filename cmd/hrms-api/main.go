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
	"go.uber.org/zap"

	_ "github.com/noah-isme/hrms-api/api/swagger"
	"github.com/noah-isme/hrms-api/internal/handler"
	"github.com/noah-isme/hrms-api/internal/repository"
	"github.com/noah-isme/hrms-api/internal/service"
	"github.com/noah-isme/hrms-api/pkg/cache"
	"github.com/noah-isme/hrms-api/pkg/config"
	"github.com/noah-isme/hrms-api/pkg/database"
	"github.com/noah-isme/hrms-api/pkg/jobs"
	"github.com/noah-isme/hrms-api/pkg/logger"
	"github.com/noah-isme/hrms-api/pkg/storage"
)

// @title HRMS Document API
// @version 1.0.0
// @description Employee document upload and HR approval workflow
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, document cache disabled", zap.Error(err))
	}

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare document storage: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Documents.CacheTTL, logr, cacheRepo.Enabled())

	notificationService := service.NewNotificationService(notificationRepo, metrics, logr, service.NotificationServiceConfig{
		Workers:   cfg.Notifications.Workers,
		Retention: cfg.Notifications.Retention,
	})
	notificationService.Start(ctx)
	defer notificationService.Stop()

	retention := jobs.NewScheduler("notification-retention", notificationService.PurgeRead, jobs.SchedulerConfig{
		Interval:   cfg.Notifications.SweepInterval,
		RunTimeout: time.Minute,
		RunOnStart: true,
		Logger:     logr,
	})
	retention.Start(ctx)
	defer retention.Stop()

	documentService := service.NewDocumentService(
		documentRepo,
		userRepo,
		files,
		service.NewUploadValidator(service.UploadValidatorConfig{
			MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Documents.AllowedMIMEs,
			SniffContent: cfg.Documents.SniffContent,
		}),
		storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL),
		userRepo,
		notificationService,
		cacheService,
		metrics,
		logr,
		service.DocumentServiceConfig{APIPrefix: cfg.APIPrefix, CacheTTL: cfg.Documents.CacheTTL},
	)

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, routerDeps{
		Auth:          handler.NewAuthHandler(authService),
		Documents:     handler.NewDocumentHandler(documentService, validate),
		Employees:     handler.NewEmployeeHandler(service.NewEmployeeService(userRepo, validate, logr)),
		Notifications: handler.NewNotificationHandler(notificationService),
		Observability: handler.NewMetricsHandler(metrics, checks),
		Tokens:        authService,
		Metrics:       metrics,
		Audit:         userRepo,
		Logger:        logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
