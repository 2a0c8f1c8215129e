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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/identity-kv/configs"
	"github.com/avatarctic/identity-kv/internal/application/jobs"
	"github.com/avatarctic/identity-kv/internal/application/services"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/email"
	"github.com/avatarctic/identity-kv/internal/infrastructure/health"
	"github.com/avatarctic/identity-kv/internal/infrastructure/httpserver"
	"github.com/avatarctic/identity-kv/internal/infrastructure/ratelimit"
	"github.com/avatarctic/identity-kv/internal/infrastructure/redis"
	"github.com/avatarctic/identity-kv/internal/infrastructure/repositories"
	"github.com/avatarctic/identity-kv/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := newLogger(&cfg.Log)
	logger.WithFields(logrus.Fields{"environment": cfg.Server.Environment, "driver": cfg.Store.Driver}).Info("Starting identity service...")

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 3*time.Minute)
	store, err := openStore(startupCtx, &cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open key-value store")
	}
	defer store.Close(logger)

	users := repositories.NewUserRepository(store.client, cfg.Store.Tables.Users, logger)
	refreshTokens := repositories.NewRefreshTokenRepository(store.client, cfg.Store.Tables.RefreshTokens, logger)
	ephemeralTokens := repositories.NewEphemeralTokenRepository(store.client, cfg.Store.Tables.EphemeralTokens, logger)
	userRoles := repositories.NewUserRoleRepository(store.client, cfg.Store.Tables.UserRoles, logger)

	notifier, err := newNotifier(&cfg.Email, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize email service")
	}

	authService := services.NewAuthService(services.AuthServiceDeps{
		Users:           users,
		RefreshTokens:   refreshTokens,
		EphemeralTokens: ephemeralTokens,
		Hasher:          utils.NewBcryptHasher(cfg.Password.Iterations),
		Validator: utils.NewPasswordValidator(utils.PasswordPolicy{
			MinLength:        cfg.Password.MinLength,
			MaxLength:        cfg.Password.MaxLength,
			RequireUppercase: cfg.Password.RequireUppercase,
			RequireLowercase: cfg.Password.RequireLowercase,
			RequireDigit:     cfg.Password.RequireDigit,
			RequireSpecial:   cfg.Password.RequireSpecial,
		}),
		Notifier: notifier,
	}, &cfg.JWT, &cfg.Identity, logger)
	adminService := services.NewAdminService(users, userRoles, refreshTokens, ephemeralTokens, logger)

	checkers := store.checkers
	rateLimiter, rlCheckers, closeLimiter := newRateLimiter(startupCtx, cfg, logger)
	cancelStartup()
	defer closeLimiter()
	checkers = append(checkers, rlCheckers...)

	server := httpserver.NewServer(&cfg.Server, logger, httpserver.ServerDeps{
		AuthService:        authService,
		AdminService:       adminService,
		RateLimiterService: rateLimiter,
		HealthCheckers:     checkers,
	})

	var scheduler *jobs.Scheduler
	if cfg.Maintenance.Enabled {
		scheduler = jobs.NewScheduler(adminService, cfg.Maintenance.CleanupSchedule, cfg.Maintenance.CleanupTimeout, jobs.NewMetrics(prometheus.DefaultRegisterer), logger)
		if err := scheduler.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start maintenance scheduler")
		}
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			logger.Warn("maintenance job still running at shutdown")
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// newNotifier delivers through SendGrid when an API key is configured and
// otherwise only logs that a notification was dropped.
func newNotifier(cfg *config.EmailConfig, logger *logrus.Logger) (ports.NotificationService, error) {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set; identity emails will not be delivered")
		return email.NewNoopNotifier(logger), nil
	}
	return email.NewEmailService(&email.EmailConfig{
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.FromEmail,
		FromName:       cfg.FromName,
		CompanyName:    cfg.CompanyName,
		BaseURL:        cfg.BaseURL,
	}, logger)
}

// newRateLimiter returns nil when limiting is disabled; the middleware then
// lets every request through.
func newRateLimiter(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (ports.RateLimiterService, []ports.HealthChecker, func()) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, nil, func() {}
	}
	if rl.Backend == config.DriverRedis {
		rdb, err := redis.NewRedisClient(ctx, &cfg.Store.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis for rate limiting")
		}
		svc := services.NewRateLimiterService(repositories.NewRateLimitRedisRepository(rdb), &services.RateLimiterConfig{
			DefaultRequestsPerMinute: rl.DefaultRequestsPerMinute,
			BurstMultiplier:          rl.BurstMultiplier,
			Window:                   rl.Window,
			KeyPrefix:                rl.KeyPrefix,
		}, logger)
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.WithError(err).Warn("failed to close rate limit redis client")
			}
		}
		return svc, []ports.HealthChecker{health.NewRedisHealthChecker(rdb)}, closeFn
	}

	burst := int(float64(rl.DefaultRequestsPerMinute) * rl.BurstMultiplier)
	return ratelimit.New(ratelimit.Config{
		RequestsPerWindow: rl.DefaultRequestsPerMinute,
		Window:            rl.Window,
		Burst:             burst,
	}, logger), nil, func() {}
}
