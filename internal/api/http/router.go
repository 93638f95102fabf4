package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/exchange-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/exchange-chat-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Orders         *handlers.OrdersHandler
	Rooms          *handlers.RoomsHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Serve())

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/orders", cfg.Orders.CreateOrder)
	protected.Get("/rooms/:id", cfg.Rooms.GetRoom)
	protected.Get("/rooms/:id/history", cfg.Rooms.GetRoomHistory)
	protected.Get("/moderators/available", cfg.Rooms.ListModerators)
}
