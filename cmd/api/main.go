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

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/config"
	"github.com/carechat/server/internal/db"
	"github.com/carechat/server/internal/ephemeral"
	httphandler "github.com/carechat/server/internal/http"
	"github.com/carechat/server/internal/http/handlers"
	"github.com/carechat/server/internal/identity"
	"github.com/carechat/server/internal/logging"
	"github.com/carechat/server/internal/middleware"
	"github.com/carechat/server/internal/notify"
	"github.com/carechat/server/internal/repo"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()

	database, err := db.OpenGorm(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("target", cfg.DatabaseTarget()), zap.Error(err))
	}
	sqlDB, err := database.DB()
	if err != nil {
		logger.Fatal("failed to unwrap database pool", zap.Error(err))
	}
	defer sqlDB.Close()

	redisClient, err := ephemeral.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	store := ephemeral.NewRedisStore(redisClient)

	// Mail hand-off
	var sender notify.Sender = notify.NewLogSender(logger, cfg.DevMode)
	var kafkaSender *notify.KafkaSender
	if cfg.NotifyTransport == "kafka" {
		kafkaSender = notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaMailTopic)
		sender = kafkaSender
	}
	dispatcher := notify.NewDispatcher(notify.Config{
		QueueSize:   cfg.NotifyQueueSize,
		Workers:     cfg.NotifyWorkers,
		SendTimeout: cfg.NotifySendTimeout,
	}, sender, logger, otel.Meter("github.com/carechat/server/notify"))

	tokens, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}

	googleVerifier, err := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
	if err != nil {
		logger.Fatal("failed to initialise google verifier", zap.Error(err))
	}
	if cfg.GoogleClientID == "" {
		logger.Warn("GOOGLE_CLIENT_ID is not set, google sign-in is disabled")
	}

	// Initialize repositories
	accountRepo := repo.NewAccountRepo(database)
	deviceKeyRepo := repo.NewDeviceKeyRepo(database)

	// Initialize auth services
	hasher := auth.NewBcryptHasher(0)
	revocations := auth.NewRevocationList(store)
	authService := auth.NewAuthService(auth.Deps{
		Accounts:      accountRepo,
		DeviceKeys:    deviceKeyRepo,
		Credentials:   auth.NewPasswordCredentials(accountRepo, hasher),
		Hasher:        hasher,
		Tokens:        tokens,
		Otp:           auth.NewOtpGate(store, dispatcher, logger),
		Revocations:   revocations,
		Identity:      googleVerifier,
		DefaultAvatar: cfg.DefaultAvatarURL,
		Log:           logger,
	})

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:     handlers.NewAuthHandler(authService),
		Accounts: handlers.NewAccountHandler(authService),
		Health: handlers.NewHealthHandler(
			handlers.HealthCheck{Name: "database", Ping: func(ctx context.Context) error { return db.Ping(ctx, database) }},
			handlers.HealthCheck{Name: "redis", Ping: store.Ping},
		),
		Authenticator: middleware.NewAuthenticator(tokens, revocations),
		Limiter:       middleware.NewRateLimiter(store, time.Minute, cfg.RateLimitPerMinute),
		Log:           logger,

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("notify", cfg.NotifyTransport))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// in-flight OTP mail is delivered before the transports close
	dispatcher.Close()
	if kafkaSender != nil {
		if err := kafkaSender.Close(); err != nil {
			logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}

	logger.Info("server exited",
		zap.Uint64("notify_dropped", dispatcher.Dropped()),
		zap.Uint64("notify_failed", dispatcher.Failed()),
	)
}
