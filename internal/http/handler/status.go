package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smoke/internal/metrics"
	"smoke/internal/service"
)

// ProgressReporter exposes live counters of a running test.
type ProgressReporter interface {
	Progress() metrics.Progress
}

// StatusDeps are the collaborators of the runner status server.
// Reports is optional; without it the /runs routes are not registered.
type StatusDeps struct {
	Gatherer prometheus.Gatherer
	Progress ProgressReporter
	Reports  service.ReportService
}

// RegisterStatusRoutes attaches the runner's status routes.
func RegisterStatusRoutes(app *fiber.App, deps StatusDeps) {
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", Metrics(deps.Gatherer))
	app.Get("/status", Status(deps.Progress))

	if deps.Reports != nil {
		app.Get("/runs", ListRuns(deps.Reports))
		app.Get("/runs/:id", GetRun(deps.Reports))
		app.Get("/runs/:id/report", GetRunReport(deps.Reports))
	}
}

// LivenessProbe answers 200 while the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Metrics serves the prometheus exposition format for g.
func Metrics(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// Status returns the live progress of the current run.
func Status(p ProgressReporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(p.Progress())
	}
}

// ListRuns lists run history with limit & offset.
func ListRuns(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetRun returns a run record by ID.
func GetRun(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := ulid.ParseStrict(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		run, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(run)
	}
}

// GetRunReport streams the stored JSON report of a run.
func GetRunReport(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := ulid.ParseStrict(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, err := svc.Report(c.UserContext(), id)
		if err != nil {
			return serviceError(c, err)
		}
		// fasthttp closes the stream once the body is written
		c.Type("json")
		return c.SendStream(rc)
	}
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "run not found")
	case errors.Is(err, service.ErrReportUnavailable):
		return writeError(c, fiber.StatusNotFound, "REPORT_UNAVAILABLE", "report not available")
	case errors.Is(err, service.ErrHistoryDisabled):
		return writeError(c, fiber.StatusServiceUnavailable, "HISTORY_DISABLED", "run history is not configured")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
