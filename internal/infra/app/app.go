package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/config"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/database"
	emailinfra "github.com/aryanndesai/FreshFarmMarket/internal/infra/email"
	kafkainfra "github.com/aryanndesai/FreshFarmMarket/internal/infra/kafka"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/logger"
	redisinfra "github.com/aryanndesai/FreshFarmMarket/internal/infra/redis"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/telemetry"
	postgresrepo "github.com/aryanndesai/FreshFarmMarket/internal/repository/postgres"
	redisrepo "github.com/aryanndesai/FreshFarmMarket/internal/repository/redis"
	"github.com/aryanndesai/FreshFarmMarket/internal/transport/http/middleware"
	"github.com/aryanndesai/FreshFarmMarket/internal/transport/http/routes"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// Application bundles the wired service graph and its lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires configuration into a runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	var binder *security.SessionBinder
	if secret := cfg.Security.SessionBindingSecret; secret != "" {
		binder, err = security.NewSessionBinder([]byte(secret), cfg.App.Name)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init session binder: %w", err)
		}
	}

	repos := postgresrepo.NewRepositories(pool)

	lifecycleMetrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init lifecycle metrics: %w", err)
	}
	auditSink := telemetry.NewAuditSink(repos.Audit, lifecycleMetrics)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventsApp := cfg.App
			if cfg.Telemetry.ServiceName != "" {
				eventsApp.Name = cfg.Telemetry.ServiceName
			}
			eventPublisher = kafkainfra.NewEventPublisher(producer, eventsApp, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	emailSender := emailinfra.NewLoggingSender(cfg.Email, log)

	validator := security.NewPasswordValidator(
		security.MinLengthRule(cfg.Security.MinPasswordLength),
		security.RequireCharacterClassesRule(3),
		security.RequirePasswordStrengthRule(cfg.Security.MinPasswordScore),
	)

	sessionService := usecase.NewSessionService(repos.Sessions, auditSink, eventPublisher, binder, log)

	twoFactorService := usecase.NewTwoFactorService(repos.Challenges, emailSender, auditSink, log)
	twoFactorService.WithCodeTTL(cfg.Security.TwoFactorCodeTTL)
	twoFactorService.WithCodeLength(cfg.Security.TwoFactorCodeLength)
	twoFactorService.WithInvalidatePrior(cfg.Security.InvalidatePriorChallenges)

	authService := usecase.NewAuthService(cfg.Security, repos.Principals, sessionService, twoFactorService, hasher, auditSink, eventPublisher, log)

	passwordService := usecase.NewPasswordService(cfg.Security, repos.Principals, sessionService, hasher, validator, auditSink, eventPublisher, log)

	resetService := usecase.NewPasswordResetService(cfg.Security, cfg.Email, repos.Principals, repos.Resets, passwordService, sessionService, emailSender, auditSink, eventPublisher, log)

	registrationService := usecase.NewRegistrationService(repos.Principals, hasher, validator, emailSender, auditSink, eventPublisher, log)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			Passwords:     passwordService,
			PasswordReset: resetService,
			Sessions:      sessionService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if port := a.cfg.Telemetry.MetricsPort; port > 0 && port != a.cfg.App.Port {
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, port),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("starting metrics listener", zap.String("address", metricsSrv.Addr))
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		return err
	}
}
