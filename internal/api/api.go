// Package api implements the query/command HTTP surface: tracking
// toggles, insight lookups, and health probes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/sentinelvision/sentinel-central/internal/bus"
	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/errors"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Settings *conf.Settings
	Bus      bus.Client

	insightCache *cache.Cache
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// New creates the API controller and registers its routes.
func New(settings *conf.Settings, ds datastore.Interface, busClient bus.Client, m *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	ttl := settings.WebServer.InsightCacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}

	c := &Controller{
		Echo:         e,
		DS:           ds,
		Settings:     settings,
		Bus:          busClient,
		insightCache: cache.New(ttl, 2*ttl),
		metrics:      m,
		logger:       logging.ForService("api"),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.GET("/healthz", c.Healthz)
	c.Echo.GET("/readyz", c.Readyz)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	g := c.Echo.Group("/tracking")
	g.GET("/insight/:resolved_id", c.GetInsight)
	g.GET("/person/:resolved_id/tracking", c.GetTrackingStatus)
	g.POST("/person/track", c.TrackPerson)
	g.POST("/person/untrack", c.UntrackPerson)
}

// Start runs the HTTP server until it fails or is shut down.
func (c *Controller) Start() error {
	addr := ":" + c.Settings.WebServer.Port
	c.logger.Info("starting HTTP API", "addr", addr)
	return c.Echo.Start(addr)
}

// Shutdown stops the HTTP server gracefully.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// HandleError translates store and domain errors into JSON error
// responses.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := http.StatusInternalServerError
	if errors.Is(err, datastore.ErrNotFound) {
		code = http.StatusNotFound
	}
	c.logger.Error(message, "error", err, "path", ctx.Path(), "status", code)
	return ctx.JSON(code, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}
