package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/volume-engine/internal/api/handlers"
	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/metrics"
	"github.com/irfndi/volume-engine/internal/middleware"
)

// Dependencies are the services the router is built from. Cache, System,
// Logger, Metrics and TracerProvider may be nil.
type Dependencies struct {
	Planner handlers.VolumePlanner
	DB      handlers.HealthChecker
	Redis   handlers.HealthChecker
	Cache   handlers.PlanCacheAdmin
	System  handlers.SystemInfoProvider

	Auth        *middleware.AuthMiddleware
	AdminAPIKey string

	Logger         logging.Logger
	Metrics        *metrics.MetricsCollector
	TracerProvider trace.TracerProvider

	ServiceName   string
	Version       string
	Notifications bool
}

// NewRouter builds the gin engine with tracing, request logging and every route.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	var otelOpts []otelgin.Option
	if deps.TracerProvider != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(deps.TracerProvider))
	}
	otelOpts = append(otelOpts, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health"
	}))
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "volume-engine"
	}
	router.Use(otelgin.Middleware(serviceName, otelOpts...))
	router.Use(middleware.RequestTelemetry(deps.Logger, deps.Metrics))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the health, volume and admin routes on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	health := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Version, deps.Notifications)
	router.GET("/health", health.HealthCheck)

	volume := handlers.NewVolumeHandler(deps.Planner)
	auth := deps.Auth

	v1 := router.Group("/api/v1", auth.RequireAuth())
	{
		read := auth.RequireScope(middleware.ScopeRead)
		write := auth.RequireScope(middleware.ScopeWrite)

		creators := v1.Group("/creators/:creator_id")
		{
			creators.GET("/volume-plan", read, volume.GetLatestPlan)
			creators.POST("/volume-plan", write, volume.ComputePlan)
		}

		plans := v1.Group("/volume-plans")
		{
			plans.POST("/batch", write, volume.ComputeBatch)
			plans.POST("/preview", read, volume.Preview)
		}

		v1.POST("/predictions/:prediction_id/outcome", write, volume.RecordOutcome)
	}

	// Admin routes exist only when a key is configured and the cache is wired.
	if deps.AdminAPIKey == "" || deps.Cache == nil {
		return
	}
	admin := middleware.NewAdminMiddleware(deps.AdminAPIKey)
	cacheHandler := handlers.NewCacheHandler(deps.Cache, deps.System)
	adminGroup := router.Group("/admin", admin.RequireAdminAuth())
	{
		adminGroup.GET("/cache/stats", cacheHandler.GetCacheStats)
		adminGroup.DELETE("/cache", cacheHandler.ClearCache)
		adminGroup.DELETE("/cache/creators/:creator_id", cacheHandler.InvalidateCreator)
		adminGroup.GET("/system", cacheHandler.GetSystemInfo)
	}
}
