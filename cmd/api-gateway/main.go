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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sd-cohort-api/api/swagger"
	"github.com/noah-isme/sd-cohort-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sd-cohort-api/internal/middleware"
	"github.com/noah-isme/sd-cohort-api/internal/models"
	"github.com/noah-isme/sd-cohort-api/internal/repository"
	"github.com/noah-isme/sd-cohort-api/internal/service"
	"github.com/noah-isme/sd-cohort-api/pkg/cache"
	"github.com/noah-isme/sd-cohort-api/pkg/config"
	"github.com/noah-isme/sd-cohort-api/pkg/database"
	"github.com/noah-isme/sd-cohort-api/pkg/jobs"
	"github.com/noah-isme/sd-cohort-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sd-cohort-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sd-cohort-api/pkg/middleware/requestid"
	"github.com/noah-isme/sd-cohort-api/pkg/notify"
)

// @title SD Cohort API
// @version 1.0.0
// @description Grade and section enrollment with instructor assignment for grades 1-6.
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate schema", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Sections.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, section cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Sections.CacheTTL, logr, cfg.Sections.CacheEnabled)

	notifier := newNotifier(cfg.Notify, logr)
	notificationSvc, err := service.NewNotificationService(notifier, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.Retries,
		RetryDelay: cfg.Notify.RetryDelay,
		Logger:     logr,
	}, metricsSvc, logr)
	if err != nil {
		logr.Fatal("failed to init notifications", zap.Error(err))
	}
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	validate := validator.New()
	store := repository.NewStore(db)

	assignmentSvc := service.NewAssignmentService(store, metricsSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(store, service.EnrollmentConfig{
		Capacity:     cfg.Sections.Capacity,
		StrictReject: cfg.Sections.StrictReject,
	}, cacheSvc, notificationSvc, metricsSvc, validate, logr)
	exportSvc := service.NewExportService(store, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	instructorHandler := handler.NewInstructorHandler(assignmentSvc)
	sectionHandler := handler.NewSectionHandler(enrollmentSvc, assignmentSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))
	admin := internalmiddleware.RequireAdmin()

	enrollments := api.Group("/enrollments")
	enrollments.POST("", enrollmentHandler.Submit)
	enrollments.GET("", admin, enrollmentHandler.List)
	enrollments.GET("/:id", admin, enrollmentHandler.Get)
	enrollments.POST("/:id/approve", admin, enrollmentHandler.Approve)
	enrollments.POST("/:id/reject", admin, enrollmentHandler.Reject)
	enrollments.POST("/:id/remove-section", admin, enrollmentHandler.RemoveFromSection)
	enrollments.POST("/:id/reassign", admin, enrollmentHandler.Reassign)

	instructors := api.Group("/instructors")
	instructors.GET("/:id/bindings",
		internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), internalmiddleware.SelfParam),
		instructorHandler.Bindings)
	instructors.PUT("/:id/primary", admin, instructorHandler.SetPrimary)
	instructors.DELETE("/:id/primary", admin, instructorHandler.ClearPrimary)
	instructors.POST("/:id/assignments", admin, instructorHandler.AddAssignment)
	instructors.PUT("/:id/assignments/:assignmentId", admin, instructorHandler.UpdateAssignment)
	instructors.DELETE("/:id/assignments/:assignmentId", admin, instructorHandler.RemoveAssignment)
	instructors.DELETE("/:id", admin, instructorHandler.Delete)

	grades := api.Group("/grades", admin)
	grades.GET("/:grade/sections", sectionHandler.Available)
	grades.GET("/:grade/bindings", sectionHandler.Bindings)

	api.GET("/sections/:grade/:section/roster", admin, sectionHandler.Roster)
	api.GET("/system/metrics", admin, metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newNotifier(cfg config.NotifyConfig, logr *zap.Logger) notify.Notifier {
	if cfg.Driver == config.NotifyDriverSendGrid {
		if cfg.SendGridAPIKey == "" {
			logr.Warn("sendgrid driver selected without an API key, notices will be logged")
			return notify.NewLogNotifier(logr)
		}
		return notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail)
	}
	return notify.NewLogNotifier(logr)
}
