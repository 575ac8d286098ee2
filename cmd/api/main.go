package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/reunitehq/reunite-api/api/swagger"
	"github.com/reunitehq/reunite-api/internal/handler"
	"github.com/reunitehq/reunite-api/internal/middleware"
	"github.com/reunitehq/reunite-api/internal/repository"
	"github.com/reunitehq/reunite-api/internal/service"
	"github.com/reunitehq/reunite-api/pkg/cache"
	"github.com/reunitehq/reunite-api/pkg/config"
	"github.com/reunitehq/reunite-api/pkg/database"
	"github.com/reunitehq/reunite-api/pkg/logger"
	corsmiddleware "github.com/reunitehq/reunite-api/pkg/middleware/cors"
	reqidmiddleware "github.com/reunitehq/reunite-api/pkg/middleware/requestid"
	"github.com/reunitehq/reunite-api/pkg/storage"
)

// @title Reunite API
// @version 1.0.0
// @description Community lost and found platform with automatic report matching
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare uploads directory", "error", err)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	itemRepo := repository.NewItemRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)
	notificationSvc := service.NewNotificationService(notificationRepo, cacheSvc, metricsSvc, logr, cfg.Notifications)
	matchSvc := service.NewMatchService(itemRepo, notificationSvc, metricsSvc, logr, cfg.Matching.MaxConflictRetries)
	authSvc := service.NewAuthService(userRepo, cfg.JWT, nil, logr)
	itemSvc := service.NewItemService(itemRepo, userRepo, activityRepo, matchSvc, notificationSvc, cacheSvc, nil, logr)
	adminSvc := service.NewAdminService(itemRepo, userRepo, activityRepo, cacheSvc, cfg.Dashboard, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	itemHandler := handler.NewItemHandler(itemSvc, uploadStore, cfg.Uploads)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	adminHandler := handler.NewAdminHandler(adminSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.Static("/uploads", uploadStore.BaseDir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	items := api.Group("/items")
	{
		items.GET("", middleware.OptionalJWT(authSvc), itemHandler.List)
		items.GET("/:id", middleware.OptionalJWT(authSvc), itemHandler.Get)
		items.POST("", middleware.JWT(authSvc), itemHandler.Report)
		items.GET("/my", middleware.JWT(authSvc), itemHandler.MyItems)
		items.GET("/stats", middleware.JWT(authSvc), itemHandler.Stats)
		items.POST("/:id/claim", middleware.JWT(authSvc), itemHandler.Claim)
		items.POST("/:id/return", middleware.JWT(authSvc), itemHandler.Return)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.AdminOnly())
	{
		admin.GET("/dashboard", adminHandler.Dashboard)
		admin.GET("/activities", adminHandler.Activities)
		admin.GET("/export/items", adminHandler.ExportItems)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
