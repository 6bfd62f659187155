package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

// NewServer exposes /metrics for reg and a /up liveness probe.
func NewServer(reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/up", func(c echo.Context) error {
		return c.String(http.StatusOK, "up")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	return e
}

// Start serves metrics on addr until ctx is done. An empty addr disables the endpoint.
func Start(ctx context.Context, addr string, reg *prometheus.Registry, log logger.Logger) {
	if addr == "" {
		return
	}

	e := NewServer(reg)
	log.Info("metrics server listening", "address", addr)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server failed to start; continuing without metrics endpoint", "address", addr, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()
}
