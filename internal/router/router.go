package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// RootHandler registers outside /api/v1 (health, metrics).
type RootHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine *gin.Engine
}

type RouterConfig struct {
	JWT            auth.JWTService
	Metrics        *metrics.Metrics
	RateLimiter    *middleware.RateLimiter
	CORSConfig     middleware.CORSConfig
	RequestTimeout time.Duration
	MaxBodySize    int64
}

// NewRouter builds the engine: root handlers are public, api handlers sit
// behind authentication and the per-tenant rate limit.
func NewRouter(config RouterConfig, root []RootHandler, api []Handler) (*Router, error) {
	if err := validator.Register(); err != nil {
		return nil, err
	}

	engine := gin.New()

	core := []gin.HandlerFunc{
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	}
	if config.Metrics != nil {
		core = append(core, middleware.Metrics(config.Metrics))
	}
	core = append(core,
		middleware.ErrorHandler(),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)
	engine.Use(core...)

	for _, h := range root {
		h.RegisterRoutes(engine)
	}

	v1 := engine.Group("/api/v1")
	v1.Use(
		middleware.BodyLimit(config.MaxBodySize),
		middleware.Authenticate(config.JWT),
	)
	if config.RateLimiter != nil {
		v1.Use(config.RateLimiter.RateLimit())
	}
	for _, h := range api {
		h.RegisterRoutes(v1)
	}

	return &Router{engine: engine}, nil
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
