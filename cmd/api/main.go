package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/ckd-api/internal/config"
	"github.com/jwalitptl/ckd-api/internal/email"
	alertHandler "github.com/jwalitptl/ckd-api/internal/handler/alert"
	authHandler "github.com/jwalitptl/ckd-api/internal/handler/auth"
	"github.com/jwalitptl/ckd-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/ckd-api/internal/handler/notification"
	patientHandler "github.com/jwalitptl/ckd-api/internal/handler/patient"
	promHandler "github.com/jwalitptl/ckd-api/internal/handler/prometheus"
	"github.com/jwalitptl/ckd-api/internal/repository/postgres"
	"github.com/jwalitptl/ckd-api/internal/router"
	alertService "github.com/jwalitptl/ckd-api/internal/service/alert"
	authService "github.com/jwalitptl/ckd-api/internal/service/auth"
	notificationService "github.com/jwalitptl/ckd-api/internal/service/notification"
	patientService "github.com/jwalitptl/ckd-api/internal/service/patient"
	"github.com/jwalitptl/ckd-api/internal/service/rules"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	"github.com/jwalitptl/ckd-api/pkg/cache"
	"github.com/jwalitptl/ckd-api/pkg/circuitbreaker"
	"github.com/jwalitptl/ckd-api/pkg/logger"
	"github.com/jwalitptl/ckd-api/pkg/messaging"
	"github.com/jwalitptl/ckd-api/pkg/messaging/redis"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
	"github.com/jwalitptl/ckd-api/pkg/ratelimit"
	"github.com/jwalitptl/ckd-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, "ckd")

	ctx := context.Background()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Redis backs the cache, the rate limit counter and the event broker.
	// Without it each falls back to process memory, or nothing for the broker.
	var (
		cacheStore cache.Store
		counter    ratelimit.CounterStore
		broker     messaging.Broker
		redisPing  health.Pinger
	)
	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis.ToClientConfig())
		if err != nil {
			zl.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()

		cacheStore = cache.NewRedisStore(client, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-cache",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}), m)
		counter = ratelimit.NewRedisCounter(client, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-ratelimit",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}))
		broker = redis.NewRedisBroker(client, zl)
		redisPing = health.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		zl.Warn().Msg("redis not configured, using in-process cache and rate limit counters")
		cacheStore = cache.NewMemoryStore(time.Minute)
		counter = ratelimit.NewMemoryCounter(time.Minute)
	}

	c := cache.New(cacheStore, zl, m)
	limiter := ratelimit.New(counter, zl, m)

	base := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(base)
	alertRepo := postgres.NewAlertRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	userRepo := postgres.NewUserRepository(base)
	tokenRepo := postgres.NewTokenRepository(base)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	emailSvc := email.NewService(cfg.SMTP, cfg.Server.PublicURL, m, zl)

	notificationSvc := notificationService.NewService(notificationRepo, c, broker, m, zl, cfg.Cache.DefaultTTL)
	evaluator := rules.NewEvaluator(notificationSvc, zl, m)
	sessions := rules.NewSessionRegistry(cfg.Rules.SessionTTL)
	patientSvc := patientService.NewService(patientRepo, c, evaluator, sessions, zl, cfg.Cache.DefaultTTL)
	alertSvc := alertService.NewService(alertRepo, patientRepo, zl)
	authSvc := authService.NewService(userRepo, tokenRepo, jwtSvc, security.NewBcryptHasher(0), emailSvc, zl, cfg.JWT.Expiry)

	checks := map[string]health.Pinger{"database": db}
	if redisPing != nil {
		checks["redis"] = redisPing
	}

	r := router.NewRouter(
		jwtSvc,
		limiter,
		promHandler.New(reg, "ckd"),
		health.NewHandler(checks),
		authHandler.NewHandler(authSvc),
		router.RouterConfig{Mode: cfg.Server.Mode, RateLimit: cfg.RateLimit},
		notificationHandler.NewHandler(notificationSvc),
		alertHandler.NewHandler(alertSvc),
		patientHandler.NewHandler(patientSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		zl.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("server forced to shutdown")
	}

	zl.Info().Msg("server exited properly")
}
