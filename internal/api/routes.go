package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

func RegisterRoutes(app *fiber.App, h *DeskHandler, checks map[string]HealthCheck) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK
		for name, check := range checks {
			if err := check(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")
	v1.Get("/rates/:base", h.GetRates)
	v1.Post("/rates/:base/refresh", h.RefreshRates)
	v1.Get("/gold", h.GetGold)
	v1.Get("/prices/:base", h.GetPrices)
	v1.Post("/parties/:id/select", h.SelectParty)

	v1.Get("/watchlist/:user", h.GetWatchlist)
	v1.Post("/watchlist/:user", h.AddToWatchlist)
	v1.Delete("/watchlist/:user/:code", h.RemoveFromWatchlist)

	v1.Get("/trades", h.ListTrades)
	v1.Post("/trades", h.ExecuteTrade)
	v1.Put("/trades/:id", h.EditTrade)
	v1.Delete("/trades/:id", h.DeleteTrade)
}
