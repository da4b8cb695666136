package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"triage/internal/logger"
	"triage/pkg/health"
	"triage/pkg/middleware"
	"triage/pkg/ratelimit"
	"triage/pkg/tracing"
)

type RouterConfig struct {
	ServiceName  string
	Tracing      bool
	AuthEnabled  bool
	JWTSecret    string
	IPGuard      *ratelimit.IPConfig
	ProcessLimit *ratelimit.Limiter
	Health       *health.CheckerRegistry
	Logger       logger.Logger
}

// NewRouter builds the HTTP surface. ctx bounds background work owned by the
// middlewares.
func NewRouter(ctx context.Context, cfg RouterConfig, h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if cfg.Tracing {
		router.Use(tracing.GinMiddleware(cfg.ServiceName))
	}
	router.Use(middleware.RecoveryMiddleware(cfg.Logger))
	router.Use(middleware.LoggerMiddleware(cfg.Logger))
	router.Use(middleware.RequestIDMiddleware())
	if cfg.IPGuard != nil {
		router.Use(ratelimit.IPMiddleware(ctx, *cfg.IPGuard))
	}

	router.GET("/health", func(c *gin.Context) {
		if cfg.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
			return
		}
		report := cfg.Health.Check(c.Request.Context())
		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1", AuthMiddleware(cfg.AuthEnabled, cfg.JWTSecret, cfg.Logger))

	var guards []gin.HandlerFunc
	if cfg.ProcessLimit != nil {
		guards = append(guards, ratelimit.WindowMiddleware(cfg.ProcessLimit, ownerFrom))
	}
	h.RegisterRoutes(v1, guards...)

	return router
}
