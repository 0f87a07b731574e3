package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ckd-api/internal/config"
	"github.com/jwalitptl/ckd-api/internal/handler/prometheus"
	"github.com/jwalitptl/ckd-api/internal/middleware"
	"github.com/jwalitptl/ckd-api/pkg/auth"
	"github.com/jwalitptl/ckd-api/pkg/ratelimit"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// HealthHandler registers the probe routes at the engine root
type HealthHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine   *gin.Engine
	jwt      auth.JWTService
	limiter  *ratelimit.Limiter
	limits   config.RateLimitConfig
	metrics  *prometheus.Handler
	health   HealthHandler
	authH    Handler
	handlers []Handler
}

type RouterConfig struct {
	Mode      string
	RateLimit config.RateLimitConfig
}

// NewRouter builds the engine with the common middleware chain. Protected
// handlers are mounted under /api/v1 behind rate limiting and authentication.
func NewRouter(
	jwtSvc auth.JWTService,
	limiter *ratelimit.Limiter,
	metrics *prometheus.Handler,
	health HealthHandler,
	authH Handler,
	cfg RouterConfig,
	handlers ...Handler,
) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	middleware.ConfigureBinding()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// recovery sits outside the error handler so a panic never depends on it
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.ErrorHandler(),
	)

	return &Router{
		engine:   engine,
		jwt:      jwtSvc,
		limiter:  limiter,
		limits:   cfg.RateLimit,
		metrics:  metrics,
		health:   health,
		authH:    authH,
		handlers: handlers,
	}
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")

	public := api.Group("")
	if r.limits.Enabled {
		public.Use(middleware.RateLimit(r.limiter, "auth", r.limits.AuthLimit, r.limits.AuthWindow))
	}
	r.authH.RegisterRoutes(public)

	protected := api.Group("")
	if r.limits.Enabled {
		protected.Use(middleware.RateLimit(r.limiter, "api", r.limits.Limit, r.limits.Window))
	}
	protected.Use(middleware.Authenticate(r.jwt))
	for _, h := range r.handlers {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
