package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"vip-bot/internal/config"
	"vip-bot/internal/handler"
	"vip-bot/internal/repository"
	"vip-bot/internal/services"
	"vip-bot/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	baseCtx := context.Background()
	ctx, shutdownManager := utils.NewShutdownManager(baseCtx)
	shutdownManager.StartListening()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Mongo connection failed:", err)
	}
	shutdownManager.Register(func(ctx context.Context) error {
		log.Println("[SHUTDOWN] Closing MongoDB connection...")
		return mongoClient.Disconnect(ctx)
	})

	db := mongoClient.Database("vip_bot")
	repo := repository.NewSubscriberRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create indexes:", err)
	}

	tg := utils.NewTelegramClient(cfg.BotToken)

	subscriptionService := services.NewSubscriptionService(repo, tg, cfg)

	if cfg.RedisURL != "" {
		cache, err := utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal("Redis connection failed:", err)
		}
		shutdownManager.Register(func(ctx context.Context) error {
			log.Println("[SHUTDOWN] Closing Redis connection...")
			return cache.Close()
		})
		subscriptionService.WithCache(cache)
	}

	if cfg.AlertsEnabled() {
		mailer := services.NewAlertMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.AlertEmail)
		subscriptionService.WithAlerter(mailer)
	}

	reconciler := services.NewReconciler(subscriptionService, cfg.ReconcileInterval)
	reconciler.Start(ctx)

	botHandler := handler.NewBotHandler(tg, subscriptionService, cfg)
	go botHandler.Run(ctx)

	adminHandler := handler.NewAdminHandler(subscriptionService)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	adminAuth := handler.AdminAuthMiddleware(cfg.AdminToken)
	api := router.Group("/api/subscribers")
	{
		api.GET("/", adminAuth, adminHandler.List)
		api.GET("/:id", adminAuth, adminHandler.Get)
		api.POST("/:id/expire", adminAuth, adminHandler.Expire)
	}

	server := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Println("VIP bot admin API running on", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	shutdownManager.Register(func(ctx context.Context) error {
		log.Println("[SHUTDOWN] Shutting down HTTP server...")
		return server.Shutdown(ctx)
	})

	log.Println("VIP bot started successfully")
	shutdownManager.Wait()
}
