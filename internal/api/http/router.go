package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-gateway/internal/api/http/handlers"
	"github.com/spec-kit/ticket-gateway/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	BasePath string
	Health   *handlers.HealthHandler
	Gateway  *handlers.GatewayHandler
	Metrics  http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group(cfg.BasePath, auth.SessionToken())
	api.Post("/Session", cfg.Gateway.CreateSession)
	api.Post("/GenericTicketConnectorREST/Session", cfg.Gateway.CreateSession)

	api.Post("/TicketCreate", cfg.Gateway.CreateTicket)
	api.Post("/TicketUpdate", cfg.Gateway.UpdateTicket)
	api.Post("/TicketUpdate/:ticketNumber", cfg.Gateway.UpdateTicket)

	for _, path := range []string{"/TicketGet", "/TicketGet/:ticketNumber"} {
		api.Post(path, cfg.Gateway.GetTicket)
		api.Get(path, cfg.Gateway.GetTicket)
	}
	api.Post("/TicketSearch", cfg.Gateway.SearchTickets)
	api.Get("/TicketSearch", cfg.Gateway.SearchTickets)

	api.Post("/AddDetectionContext/:ticketNumber", cfg.Gateway.AddContext)
}
