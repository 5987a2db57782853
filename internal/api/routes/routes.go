package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfarer-erp/backend/internal/api/handlers"
	"github.com/wayfarer-erp/backend/internal/api/middleware"
	"github.com/wayfarer-erp/backend/internal/cerberus"
	"github.com/wayfarer-erp/backend/internal/config"
	"github.com/wayfarer-erp/backend/internal/ratelimit"
)

// Deps are the long-lived components the router is built from.
type Deps struct {
	Config   config.Config
	Cerberus *cerberus.Cerberus
	Profiles *ratelimit.Profiles
	Events   handlers.EventLister
	Gatherer prometheus.Gatherer
}

// NewProfiles builds the stock presets, applies configured window and max
// overrides, and hooks every limiter to onLimit.
func NewProfiles(sec config.SecurityConfig, onLimit ratelimit.LimitCallback, opts ...ratelimit.Option) *ratelimit.Profiles {
	base := ratelimit.DefaultConfig()
	base.LegacyHeaders = sec.LegacyHeaders
	base.OnLimitReached = onLimit

	configs := ratelimit.PresetConfigs(base)
	for name, o := range sec.Profiles {
		cfg, ok := configs[name]
		if !ok {
			cfg = base
		}
		cfg.Window = o.Window
		cfg.Max = o.Max
		configs[name] = cfg
	}
	return ratelimit.NewProfilesFrom(configs, opts...)
}

// BindRoutes converts configured bindings to ratelimit routes, keeping order.
func BindRoutes(bindings []config.RouteConfig) []ratelimit.Route {
	routes := make([]ratelimit.Route, 0, len(bindings))
	for _, b := range bindings {
		routes = append(routes, ratelimit.Route{Prefix: b.Prefix, Profile: b.Profile})
	}
	return routes
}

// Register wires the defense middleware and API routes onto router.
// Global middleware must be registered before any route.
func Register(router *gin.Engine, d Deps) error {
	router.Use(middleware.Principal(d.Config.Security.JWTSecret))
	if err := ratelimit.Bind(router, d.Profiles, BindRoutes(d.Config.Security.Routes)); err != nil {
		return fmt.Errorf("bind rate limits: %w", err)
	}
	router.Use(d.Cerberus.Middleware())

	router.GET("/api/v1/health", handlers.HealthHandler)
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")

	admin := api.Group("/security")
	admin.Use(middleware.RequirePrincipal(), middleware.RequireRole("admin"))
	{
		securityHandler := handlers.NewSecurityHandler(d.Cerberus.Tracker(), d.Profiles, d.Events)
		admin.GET("/report", securityHandler.Report)
		admin.GET("/events", securityHandler.ListEvents)
		admin.GET("/profiles", securityHandler.ListProfiles)
		admin.POST("/reset", securityHandler.Reset)
	}

	return nil
}
