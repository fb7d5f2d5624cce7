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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fpp-api/api/swagger"
	"github.com/noah-isme/fpp-api/internal/handler"
	internalmiddleware "github.com/noah-isme/fpp-api/internal/middleware"
	"github.com/noah-isme/fpp-api/internal/models"
	"github.com/noah-isme/fpp-api/internal/repository"
	"github.com/noah-isme/fpp-api/internal/service"
	"github.com/noah-isme/fpp-api/pkg/cache"
	"github.com/noah-isme/fpp-api/pkg/config"
	"github.com/noah-isme/fpp-api/pkg/database"
	"github.com/noah-isme/fpp-api/pkg/jobs"
	"github.com/noah-isme/fpp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fpp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fpp-api/pkg/middleware/requestid"
	"github.com/noah-isme/fpp-api/pkg/storage"
)

// @title Farmer Paddy Portal API
// @version 1.0.0
// @description Harvest procurement request workflow for farmers and village administrative officers
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	cacheEnabled := cfg.Analytics.CacheEnabled
	var cacheRepo service.CacheRepository
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
			cacheEnabled = false
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init uploads storage", "error", err)
	}
	exports, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init exports storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cacheEnabled)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	authSvc := service.NewAuthService(userRepo, notificationSvc, nil, logr, service.AuthConfig{
		TokenSecret:  cfg.JWT.Secret,
		TokenExpiry:  cfg.JWT.Expiration,
		Issuer:       cfg.JWT.Issuer,
		VAOSecretKey: cfg.Procurement.VAOSecretKey,
	})
	requestSvc := service.NewRequestService(requestRepo, signer, cacheSvc, nil, logr, cfg.Procurement.SeasonQuota)
	analyticsSvc := service.NewAnalyticsService(requestRepo, cacheSvc, exports, logr, cfg.Procurement.TargetBags, cfg.Analytics.CacheTTL)
	billSvc := service.NewBillService(requestRepo, userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc, metricsSvc, uploads, logr, cfg.Uploads.MaxFileSizeBytes)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc)
	billHandler := handler.NewBillHandler(billSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	cleanupQueue := jobs.NewQueue("exports-cleanup", func(ctx context.Context, job jobs.Job) error {
		removed, err := exports.CleanupOlderThan(cfg.Exports.RetentionTTL)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			logr.Info("expired reports removed", zap.Int("count", len(removed)))
		}
		return nil
	}, jobs.QueueConfig{Workers: 1, BufferSize: 4, Logger: logr})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", internalmiddleware.JWT(authSvc), authHandler.Me)
	auth.PUT("/me", internalmiddleware.JWT(authSvc), authHandler.UpdateProfile)

	// Signed token is the sole credential for file downloads.
	api.GET("/files/:token", requestHandler.DownloadFile)

	protected := api.Group("")
	protected.Use(internalmiddleware.JWT(authSvc))

	farmerOnly := internalmiddleware.RequireRoles(models.RoleFarmer)
	vaoOnly := internalmiddleware.RequireRoles(models.RoleVAO)

	requests := protected.Group("/requests")
	requests.POST("", farmerOnly, requestHandler.Submit)
	requests.GET("/mine", farmerOnly, requestHandler.ListMine)
	requests.GET("/village", vaoOnly, requestHandler.ListVillage)
	requests.POST("/:id/approve", vaoOnly, requestHandler.Approve)
	requests.POST("/:id/reject", vaoOnly, requestHandler.Reject)
	requests.POST("/:id/final-docs", farmerOnly, requestHandler.UploadFinalDocs)
	requests.POST("/:id/bill", vaoOnly, requestHandler.GenerateBill)
	requests.GET("/:id/bill.pdf", billHandler.Download)
	requests.GET("/:id/files", requestHandler.FileLinks)

	protected.GET("/village/serials", requestHandler.VillageSerials)

	analytics := protected.Group("/analytics", vaoOnly)
	analytics.GET("/dashboard", analyticsHandler.Dashboard)
	analytics.GET("/export", analyticsHandler.Export)

	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.PUT("/read", notificationHandler.MarkAllRead)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Exports.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupQueue.Enqueue(jobs.Job{Type: "cleanup"}); err != nil {
					logr.Warn("failed to enqueue cleanup job", zap.Error(err))
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
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
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
