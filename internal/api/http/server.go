package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-gateway/internal/api/http/handlers"
	"github.com/spec-kit/ticket-gateway/internal/observability"
	"github.com/spec-kit/ticket-gateway/internal/service"
)

// ServerConfig bundles what NewServer needs to build the Fiber app.
type ServerConfig struct {
	AppName        string
	BasePath       string
	SessionName    string
	RequestTimeout time.Duration
	Gateway        *service.Gateway
	Health         *handlers.HealthHandler
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewServer builds the Fiber app with middlewares and routes registered.
func NewServer(cfg ServerConfig) *fiber.App {
	// Immutable: strings from Params, Query and Get outlive the request in
	// queued audit events.
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          ErrorHandler(cfg.Logger, cfg.Metrics),
	})
	app.Use(requestid.New())
	RegisterMiddlewares(app, cfg.Logger, cfg.Metrics, cfg.RequestTimeout)

	routes := RouteConfig{
		BasePath: cfg.BasePath,
		Health:   cfg.Health,
		Gateway:  handlers.NewGatewayHandler(cfg.Gateway, cfg.SessionName, cfg.Metrics),
	}
	if cfg.Metrics != nil {
		routes.Metrics = cfg.Metrics.Handler()
	}
	RegisterRoutes(app, routes)
	return app
}
