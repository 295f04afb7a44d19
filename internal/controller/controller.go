// Package controller assembles the service: configuration, logging,
// telemetry, the cache store, the provider registry, the refresh
// orchestrator and the query API. It is the programmatic entry point used
// by the CLI and the Lambda handler.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/provider"
	"github.com/ipranges/internal/query"
	"github.com/ipranges/internal/refresh"
	"github.com/ipranges/internal/telemetry"
	"github.com/ipranges/internal/web"
)

var log = logging.Logger("controller")

// Controller owns every long-lived component of the service
type Controller struct {
	cfg          *config.Config
	store        *cache.Store
	registry     *provider.Registry
	orchestrator *refresh.Orchestrator
	metrics      *telemetry.Metrics
	server       *web.Server

	shutdownTracing func(context.Context) error
}

// Option customizes New
type Option func(*options)

type options struct {
	providerOpts []provider.Option
	skipLogging  bool
}

// WithProviderOptions forwards opts to provider.Build
func WithProviderOptions(opts ...provider.Option) Option {
	return func(o *options) {
		o.providerOpts = append(o.providerOpts, opts...)
	}
}

// WithoutLoggingSetup leaves the process-wide logging configuration alone
func WithoutLoggingSetup() Option {
	return func(o *options) {
		o.skipLogging = true
	}
}

// New builds a controller from cfg. Nothing is fetched until Start or
// Refresh is called.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Controller, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !o.skipLogging {
		if err := logging.Setup(cfg.Logging); err != nil {
			return nil, err
		}
	}

	_, shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	var metrics *telemetry.Metrics
	store := cache.New()
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics()
		if err := metrics.WatchStore(store); err != nil {
			return nil, fmt.Errorf("register store metrics: %w", err)
		}
	}

	registry, err := provider.Build(ctx, cfg, fetch.NewClient(cfg.HTTP), store, o.providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	orchestrator := refresh.New(registry.Tasks(),
		refresh.WithAdapterTimeout(cfg.Refresh.AdapterTimeout),
		refresh.WithSkipUnchanged(cfg.Refresh.SkipUnchanged),
		refresh.WithMaxConcurrency(cfg.Refresh.MaxConcurrency),
		refresh.WithMetrics(metrics),
	)

	c := &Controller{
		cfg:             cfg,
		store:           store,
		registry:        registry,
		orchestrator:    orchestrator,
		metrics:         metrics,
		server:          web.NewServer(cfg, store, metrics),
		shutdownTracing: shutdownTracing,
	}
	log.Infow("controller ready", "providers", registry.Names())
	return c, nil
}

// Start runs the first refresh cycle and then refreshes periodically in
// the background until Close
func (c *Controller) Start(ctx context.Context) error {
	return c.orchestrator.Start(ctx, c.cfg.Refresh.Interval)
}

// Serve starts refreshing and serves the query API until ctx is cancelled,
// then shuts down gracefully.
func (c *Controller) Serve(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	var wg conc.WaitGroup
	wg.Go(func() {
		serveErr <- c.server.Start()
	})

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
	defer cancel()
	if cerr := c.Close(shutdownCtx); cerr != nil {
		err = multierror.Append(err, cerr).ErrorOrNil()
	}
	wg.Wait()
	return err
}

// Refresh runs one cycle over the named providers, or all of them when no
// name is given. The returned error is the report's aggregated failure.
func (c *Controller) Refresh(ctx context.Context, names ...domain.ProviderName) (refresh.Report, error) {
	if len(names) == 0 {
		report := c.orchestrator.RunCycle(ctx)
		return report, report.Err()
	}
	report, err := c.orchestrator.RunProviders(ctx, names...)
	if err != nil {
		return report, err
	}
	return report, report.Err()
}

// Query applies the same filters as the HTTP API to a provider's cached
// dataset
func (c *Controller) Query(name domain.ProviderName, params url.Values) ([]string, error) {
	return query.Project(c.store, name, params)
}

// Status returns the cache state of every enabled provider
func (c *Controller) Status() []cache.EntryStatus {
	return c.store.Status()
}

// ProviderInfo describes an enabled provider
type ProviderInfo struct {
	Name      domain.ProviderName `json:"name"`
	Upstreams []string            `json:"upstreams"`
}

// Providers lists the enabled providers in registration order
func (c *Controller) Providers() []ProviderInfo {
	names := c.registry.Names()
	out := make([]ProviderInfo, 0, len(names))
	for _, n := range names {
		out = append(out, ProviderInfo{Name: n, Upstreams: c.registry.Upstreams(n)})
	}
	return out
}

// LastReport returns the report of the most recent completed cycle
func (c *Controller) LastReport() (refresh.Report, bool) {
	return c.orchestrator.LastReport()
}

// Handler returns the query API handler
func (c *Controller) Handler() http.Handler {
	return c.server.Handler()
}

// Config returns the active configuration
func (c *Controller) Config() *config.Config {
	return c.cfg
}

// Close stops the refresh loop, the HTTP server and the tracer provider
func (c *Controller) Close(ctx context.Context) error {
	c.orchestrator.Stop()

	var result *multierror.Error
	if err := c.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		result = multierror.Append(result, fmt.Errorf("shutdown server: %w", err))
	}
	if err := c.shutdownTracing(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown tracing: %w", err))
	}
	return result.ErrorOrNil()
}
