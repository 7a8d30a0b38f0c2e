// Package pipeline assembles the services into a running node: it opens
// the datastore, warms the resolver, connects the bus, subscribes the
// handlers, and supervises shutdown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/anomaly"
	"github.com/sentinelvision/sentinel-central/internal/api"
	"github.com/sentinelvision/sentinel-central/internal/bus"
	"github.com/sentinelvision/sentinel-central/internal/conf"
	"github.com/sentinelvision/sentinel-central/internal/datastore"
	"github.com/sentinelvision/sentinel-central/internal/envelope"
	"github.com/sentinelvision/sentinel-central/internal/fusion"
	"github.com/sentinelvision/sentinel-central/internal/identity"
	"github.com/sentinelvision/sentinel-central/internal/logging"
	"github.com/sentinelvision/sentinel-central/internal/media"
	"github.com/sentinelvision/sentinel-central/internal/observability"
	"github.com/sentinelvision/sentinel-central/internal/tracking"
)

const shutdownTimeout = 10 * time.Second

// Pipeline owns the long-lived components of one node.
type Pipeline struct {
	settings *conf.Settings
	ds       datastore.Interface
	bus      bus.Client
	metrics  *observability.Metrics

	resolver *identity.Resolver
	fusion   *fusion.Service
	tracking *tracking.Service
	anomaly  *anomaly.Recorder
	api      *api.Controller

	log      *slog.Logger
	closeLog func() error
}

// New builds the pipeline from settings. Nothing is connected until Run.
func New(settings *conf.Settings) (*Pipeline, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	ds := datastore.New(settings, m.Datastore)
	if ds == nil {
		return nil, fmt.Errorf("no database backend enabled")
	}

	busClient := bus.NewClient(settings, m.Bus)
	resolver := identity.New(&settings.Resolver, m.Resolver)
	createdBy := settings.Main.Name

	logLevel := slog.LevelInfo
	if settings.Debug {
		logLevel = slog.LevelDebug
	}
	log, closeLog := logging.ServiceLogger("pipeline", logLevel)

	p := &Pipeline{
		settings: settings,
		ds:       ds,
		bus:      busClient,
		metrics:  m,
		resolver: resolver,
		fusion:   fusion.New(ds, resolver, busClient, createdBy, m.Pipeline),
		tracking: tracking.New(ds, busClient, createdBy, m.Pipeline),
		anomaly:  anomaly.New(ds, media.NewStore(settings.Media.Root), m.Pipeline),
		log:      log,
		closeLog: closeLog,
	}
	if settings.WebServer.Enabled {
		p.api = api.New(settings, ds, busClient, m)
	}
	return p, nil
}

// Run starts the node and blocks until ctx is cancelled or a fatal error
// occurs.
func (p *Pipeline) Run(ctx context.Context) error {
	defer func() { _ = p.closeLog() }()

	if err := p.ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := p.ds.Close(); err != nil {
			p.log.Error("closing datastore", "error", err)
		}
	}()

	if err := p.resolver.Warm(ctx, p.ds); err != nil {
		return fmt.Errorf("warming identity index: %w", err)
	}
	p.log.Info("identity index warmed", "identities", p.resolver.IdentityCount())

	if err := p.bus.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer p.bus.Disconnect()

	if err := p.subscribe(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if p.api != nil {
		go func() {
			if err := p.api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	p.log.Info("pipeline running", "node", p.settings.Main.Name)

	select {
	case <-ctx.Done():
		p.log.Info("shutdown requested")
	case err := <-errCh:
		p.log.Error("fatal component error", "error", err)
		p.shutdownAPI()
		return err
	}

	p.shutdownAPI()
	return nil
}

func (p *Pipeline) subscribe() error {
	subs := map[envelope.EventType]bus.Handler{
		envelope.TypeParEvent:       p.fusion.HandleMessage,
		envelope.TypeTtsEvent:       p.tracking.HandleTtsEvent,
		envelope.TypeMovementUpdate: p.tracking.HandleMovementUpdate,
		envelope.TypeAdEvent:        p.anomaly.HandleAdEvent,
		envelope.TypeAnomalyAlert:   p.anomaly.HandleAdEvent,
	}
	for t, h := range subs {
		if err := p.bus.Subscribe(string(t), h); err != nil {
			return fmt.Errorf("subscribing to %s: %w", t, err)
		}
	}
	return nil
}

func (p *Pipeline) shutdownAPI() {
	if p.api == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.api.Shutdown(shutdownCtx); err != nil {
		p.log.Error("http server shutdown", "error", err)
	}
}

// RunAPI starts only the query/command API against the shared store,
// without consuming from the bus. Used by the api subcommand.
func RunAPI(ctx context.Context, settings *conf.Settings) error {
	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	ds := datastore.New(settings, m.Datastore)
	if ds == nil {
		return fmt.Errorf("no database backend enabled")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() { _ = ds.Close() }()

	ctl := api.New(settings, ds, nil, m)
	errCh := make(chan error, 1)
	go func() {
		if err := ctl.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return ctl.Shutdown(shutdownCtx)
}
