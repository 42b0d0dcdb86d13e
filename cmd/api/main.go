package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lkmo/lkmo-backend/internal/config"
	"github.com/lkmo/lkmo-backend/internal/database"
	"github.com/lkmo/lkmo-backend/internal/handlers"
	"github.com/lkmo/lkmo-backend/internal/middleware"
	"github.com/lkmo/lkmo-backend/internal/passwordreset"
	"github.com/lkmo/lkmo-backend/internal/services"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := utils.NewLogger(cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.Missing) > 0 {
		logger.Fatal("missing required configuration", zap.Strings("keys", cfg.Missing))
	}

	db, err := database.Open(cfg.DB, cfg.IsDevelopment())
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.RunMigrations(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rate limiting is skipped when Redis is down rather than blocking startup
	var limiter middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			limiter = services.NewRedisRateLimiter(redisClient, "ratelimit", logger)
		}
	}

	mailer, err := services.NewMailer(cfg.Mail, logger)
	if err != nil {
		logger.Fatal("failed to initialize mailer", zap.Error(err))
	}
	notifier := services.NewEmailNotifier(mailer, cfg.AppName, logger)

	storage, err := services.NewImageStorage(cfg.Storage, cfg.BaseURL, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	users := services.NewUserDirectory(db)
	challenges := passwordreset.NewGormStore(db)
	resets := passwordreset.NewManager(challenges, users, notifier, utils.GenerateOTP, logger,
		passwordreset.WithStrictDelivery(cfg.StrictDelivery))
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)

	janitorDone := database.StartChallengeJanitor(ctx, challenges, cfg.JanitorInterval, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsConfig))

	if !cfg.Storage.UseS3() {
		r.Static("/uploads", cfg.Storage.UploadDir)
	}

	api := r.Group("/api")
	{
		api.GET("/health", handlers.Health())

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(users, tokens, logger))
			auth.POST("/login", handlers.Login(users, tokens, logger))
			auth.GET("/me", middleware.AuthMiddleware(tokens), handlers.Me(users))
		}

		reset := api.Group("/password-reset")
		reset.Use(middleware.RateLimit(limiter, "password-reset", cfg.RateLimit.ResetRequests, cfg.RateLimit.Window, logger))
		{
			reset.POST("/request", handlers.RequestPasswordReset(resets, logger))
			reset.POST("/verify", handlers.VerifyPasswordReset(resets, logger))
			reset.POST("/reset", handlers.CommitPasswordReset(resets, logger))
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(tokens))
		{
			profile := protected.Group("/users")
			{
				profile.GET("/profile", handlers.GetProfile(users))
				profile.PUT("/profile", handlers.UpdateProfile(users, storage, logger))
			}
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(tokens), middleware.RequireAdmin())
		{
			admin.GET("/users", handlers.ListUsers(users, logger))
			admin.PUT("/users/:id/role", handlers.UpdateUserRole(users, logger))
			admin.DELETE("/users/:id", handlers.DeleteUser(users, logger))
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	<-janitorDone
}
