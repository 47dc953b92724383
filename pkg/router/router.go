package router

import (
	"net/http"
	"time"

	"cio-chat/backend/internal/api"
	"cio-chat/backend/internal/ws"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/di"
	"cio-chat/backend/pkg/errors"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every later middleware has the request-scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(middleware.BodyLimit(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	if r.Config.Features.OpenAPISchema != "" {
		r.AddOpenAPIValidation(r.Config.Features.OpenAPISchema)
	}

	c := r.Container
	connector := c.Connector

	authHandler := api.NewAuthHandler(connector, r.Config, c.Metrics, r.Logger)
	messageHandler := api.NewMessageHandler(connector, r.Config, c.Metrics, r.Logger)
	statusHandler := api.NewStatusHandler(connector)
	wsHandler := ws.NewHandler(c.Hub, connector, r.Config, c.Metrics, r.Logger)

	requireSession := api.RequireSession(connector)

	r.Engine.GET("/health", r.healthCheckHandler())
	r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))

	v1 := r.Engine.Group("/api/v1")
	{
		v1.GET("/health", r.healthCheckHandler())
		v1.GET("/status", statusHandler.Status)

		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.GET("/me", requireSession, authHandler.Me)
		}

		messageRoutes := v1.Group("/messages", requireSession)
		{
			messageRoutes.GET("", messageHandler.List)
			messageRoutes.POST("", messageHandler.Create)
		}
	}

	r.Engine.GET("/ws", wsHandler.ServeWs)
}

// healthCheckHandler reports component health, with uptime
func (r *Router) healthCheckHandler() gin.HandlerFunc {
	checker := r.Container.Health
	return func(c *gin.Context) {
		status := http.StatusOK
		if !checker.IsSystemHealthy() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":     healthLabel(checker.IsSystemHealthy()),
			"env":        r.Config.Server.Env,
			"time":       time.Now().Format(time.RFC3339),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
			"components": checker.GetStatus(),
		})
	}
}

func healthLabel(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "unavailable"
}
