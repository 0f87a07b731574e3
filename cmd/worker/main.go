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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/ckd-api/internal/config"
	"github.com/jwalitptl/ckd-api/internal/handler/health"
	promHandler "github.com/jwalitptl/ckd-api/internal/handler/prometheus"
	"github.com/jwalitptl/ckd-api/internal/middleware"
	"github.com/jwalitptl/ckd-api/internal/repository/postgres"
	notificationService "github.com/jwalitptl/ckd-api/internal/service/notification"
	"github.com/jwalitptl/ckd-api/internal/service/rules"
	"github.com/jwalitptl/ckd-api/pkg/cache"
	"github.com/jwalitptl/ckd-api/pkg/circuitbreaker"
	"github.com/jwalitptl/ckd-api/pkg/logger"
	"github.com/jwalitptl/ckd-api/pkg/messaging"
	"github.com/jwalitptl/ckd-api/pkg/messaging/redis"
	"github.com/jwalitptl/ckd-api/pkg/metrics"
	"github.com/jwalitptl/ckd-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		With().Str("service", "sweep-worker").Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg, "ckd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		zl.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// the worker shares the API's inbox cache so its notifications invalidate
	// the same list pages; without redis the API's in-process pages only pick up
	// sweep alerts once their TTL runs out
	var (
		c      *cache.Cache
		broker messaging.Broker
		checks = map[string]health.Pinger{"database": db}
	)
	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis.ToClientConfig())
		if err != nil {
			zl.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer client.Close()

		c = cache.New(cache.NewRedisStore(client, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name: "redis-cache",
		}), m), zl, m)
		broker = redis.NewRedisBroker(client, zl)
		checks["redis"] = health.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	} else {
		c = cache.New(nil, zl, m)
	}

	base := postgres.NewBaseRepository(db)
	notificationSvc := notificationService.NewService(postgres.NewNotificationRepository(base), c, broker, m, zl, cfg.Cache.DefaultTTL)
	evaluator := rules.NewEvaluator(notificationSvc, zl, m)

	processor, err := worker.NewSweepProcessor(
		postgres.NewPatientRepository(base),
		evaluator,
		rules.NewSessionRegistry(cfg.Rules.SessionTTL),
		cfg.Worker.ToSweepConfig(),
		zl,
		m,
	)
	if err != nil {
		zl.Fatal().Err(err).Msg("Invalid sweep configuration")
	}

	srv := healthServer(cfg.Worker.HealthPort, health.NewHandler(checks), promHandler.New(reg, "ckd_worker"))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error().Err(err).Msg("Health check server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			zl.Info().Msg("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	processor.Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
}

func healthServer(port int, h *health.Handler, metricsH *promHandler.Handler) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery())
	h.RegisterRoutes(engine)
	engine.GET("/metrics", metricsH.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
