package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-gateway-go/internal/config"
	"chat-gateway-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Routing is
// exact: only POST /v1/chat/completions reaches the chat handler, and every
// unmatched method/path combination yields the uniform 404 envelope.
func RegisterRoutes(e *echo.Echo, chat *ChatHandler, health *HealthHandler, logger *slog.Logger) {
	e.HTTPErrorHandler = errorHandler(logger)

	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	e.POST("/v1/chat/completions", chat.Handle)
}

// MountMetrics exposes the Prometheus registry on the configured path when
// metrics are enabled.
func MountMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	))
}

// errorHandler maps unhandled route errors to JSON envelopes. Echo answers
// wrong-method requests on registered paths with 405; the gateway contract
// collapses those into the same 404 it returns for unknown paths.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "Internal Server Error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}

		if code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
			code = http.StatusNotFound
			msg = "Not Found"
		}

		if writeErr := c.JSON(code, map[string]string{"error": msg}); writeErr != nil {
			logger.Error("writing error response", "err", writeErr)
		}
	}
}
