package handler

import (
	"math/rand/v2"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// TargetDeps configure the demo target service.
type TargetDeps struct {
	Gatherer prometheus.Gatherer
	// FailRate is the share of /health requests answered with 503.
	FailRate float64
	// Roll returns a number in [0,1). Defaults to math/rand.
	Roll func() float64
}

// RegisterTargetRoutes attaches the routes of the service under test.
func RegisterTargetRoutes(app *fiber.App, deps TargetDeps) {
	app.Get("/health", Health(deps.FailRate, deps.Roll))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", Metrics(deps.Gatherer))
}

// Health reports {"status":"ok"}, or 503 for a failRate share of requests.
func Health(failRate float64, roll func() float64) fiber.Handler {
	if roll == nil {
		roll = rand.Float64
	}
	return func(c *fiber.Ctx) error {
		if failRate > 0 && roll() < failRate {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}
}
