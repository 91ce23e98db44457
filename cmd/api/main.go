package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"machikado-auth/internal/config"
	"machikado-auth/internal/db"
	"machikado-auth/internal/email"
	apihttp "machikado-auth/internal/http"
	"machikado-auth/internal/line"
	"machikado-auth/internal/metrics"
	"machikado-auth/internal/repository"
	"machikado-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	historyRepo := repository.NewPgLoginHistoryRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		otpLimiter  service.OTPRateLimiter
		tokenStore  service.RefreshTokenStore
		stateStore  line.StateStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, 10*time.Minute, 3)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
			stateStore = line.NewRedisStateStore(redisClient)
		}
		cancel()
	}
	if stateStore == nil {
		stateStore = line.NewMemoryStateStore()
	}

	sessionSvc := service.NewSessionService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
		userRepo,
	)
	otpSvc := service.NewOTPService(logger, otpRepo, userRepo, emailSender, otpLimiter, cfg.OTPPepper)
	identitySvc := service.NewIdentityService(logger, userRepo)
	historySvc := service.NewLoginHistoryRecorder(logger, historyRepo)

	var lineClient *line.Client
	if cfg.LineChannelID != "" {
		lineClient = line.NewClient(line.Config{
			ChannelID:     cfg.LineChannelID,
			ChannelSecret: cfg.LineChannelSecret,
			RedirectURL:   cfg.LineRedirectURL,
		})
	} else {
		logger.Warn("line channel not configured")
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	authHandler := apihttp.NewAuthHandler(logger, otpSvc, identitySvc, sessionSvc, historySvc, lineClient, stateStore, collector)
	profileHandler := apihttp.NewProfileHandler(logger, identitySvc, sessionSvc)
	router := apihttp.NewRouter(logger, authHandler, profileHandler, sessionSvc, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
