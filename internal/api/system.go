package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Healthz handles GET /healthz: liveness only, no dependency checks.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz: the process is ready when the database
// answers and, when a bus client is wired, the broker is connected.
func (c *Controller) Readyz(ctx echo.Context) error {
	checks := map[string]string{}
	healthy := true

	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()
	if err := c.DS.Ping(pingCtx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if c.Bus != nil {
		if c.Bus.IsConnected() {
			checks["bus"] = "ok"
		} else {
			checks["bus"] = "disconnected"
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, checks)
}
