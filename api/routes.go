package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/lenderinbox/api/handlers"
	"github.com/customeros/lenderinbox/api/middleware"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/tracing"
)

const appSourceAPI = "lenderinbox-api"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, listener interfaces.ListenerService, apikey string, runTimeout time.Duration) {
	if listener == nil {
		panic("Listener service cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// Health, status and metrics endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", tracing.TracingEnhancer(ctx, "/status"), handlers.Status(listener))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(appSourceAPI))
	api.Use(middleware.TracingMiddleware())
	{
		api.POST("/runs", handlers.TriggerRun(listener, runTimeout))
	}
}
