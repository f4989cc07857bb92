// Package server assembles the fiber apps exposed by smoke.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	handlers "smoke/internal/http/handler"
	"smoke/internal/http/middleware"
)

// ShutdownTimeout bounds how long in-flight requests may take once the server stops.
const ShutdownTimeout = 5 * time.Second

// New returns a fiber app with the standard middleware chain:
// request id, tracing, request logs and request metrics on reg.
func New(name string, logger *zap.Logger, reg prometheus.Registerer) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware(otelfiber.WithServerName(name)))
	app.Use(middleware.Logger(logger))
	app.Use(promMiddleware.Handler())
	return app, nil
}

// ServeListener serves app on ln until ctx is cancelled, then shuts it down gracefully.
func ServeListener(ctx context.Context, app *fiber.App, ln net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listener(ln)
	}()
	logger.Info("server started", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownErr := app.ShutdownWithTimeout(ShutdownTimeout)
	// Listener may not have started serving yet; a closed ln makes it return.
	_ = ln.Close()
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info("server stopped", zap.String("addr", ln.Addr().String()))
	return nil
}
