// Package web serves the HTTP query API over the cached provider datasets.
// Handlers only ever read published snapshots; they never trigger a fetch.
package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/query"
	"github.com/ipranges/internal/telemetry"
)

var log = logging.Logger("web")

//go:embed openapi.json
var openAPISpec []byte

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Response is the envelope of every query route
type Response struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func errorResponse(format string, args ...any) Response {
	return Response{Status: statusError, Message: fmt.Sprintf(format, args...)}
}

// Server represents the query API server
type Server struct {
	cfg     *config.Config
	store   *cache.Store
	metrics *telemetry.Metrics
	limiter *RateLimiter
	handler http.Handler
	srv     *http.Server
}

// NewServer creates the server and its routes over the datasets in store
func NewServer(cfg *config.Config, store *cache.Store, metrics *telemetry.Metrics) *Server {
	s := &Server{cfg: cfg, store: store, metrics: metrics}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit, metrics)
	}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.Handle("GET /v1/aws", s.observe(domain.AWS, serveProvider(domain.AWS, s.store)))
	api.Handle("GET /v1/aws/prefix-lists", s.observe(domain.AWSPrefixListsName, serveProvider(domain.AWSPrefixListsName, s.store)))
	api.Handle("GET /v1/azure", s.observe(domain.Azure, serveProvider(domain.Azure, s.store)))
	api.Handle("GET /v1/cloudflare", s.observe(domain.Cloudflare, serveProvider(domain.Cloudflare, s.store)))
	api.Handle("GET /v1/fastly", s.observe(domain.Fastly, serveProvider(domain.Fastly, s.store)))
	api.Handle("GET /v1/gcp", s.observe(domain.GCP, serveProvider(domain.GCP, s.store)))
	api.Handle("GET /v1/linode", s.observe(domain.Linode, serveProvider(domain.Linode, s.store)))
	api.Handle("GET /v1/oracle", s.observe(domain.Oracle, serveProvider(domain.Oracle, s.store)))
	api.Handle("GET /v1/digitalocean", s.observe(domain.DigitalOcean, serveProvider(domain.DigitalOcean, s.store)))
	api.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse("unknown route %s", r.URL.Path))
	})

	var limited http.Handler = api
	if s.limiter != nil {
		limited = s.limiter.Middleware(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", limited)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/status/{provider}", s.handleProviderStatus)
	mux.HandleFunc("GET /v1/openapi.json", handleOpenAPI)
	mux.HandleFunc("GET /health", handleHealth)
	if s.cfg.Telemetry.MetricsEnabled {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return logRequest(mux)
}

// Handler returns the root handler, used directly by the Lambda entrypoint
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port and blocks until Shutdown
func (s *Server) Start() error {
	log.Infow("starting query API", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.srv.Shutdown(ctx)
}

// observe counts responses per provider and status code
func (s *Server) observe(name domain.ProviderName, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveQuery(string(name), rec.status)
	})
}

// serveProvider answers a query route. A disabled provider, like one that
// has not published yet, yields 404.
func serveProvider(name domain.ProviderName, store *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefixes, err := query.Project(store, name, r.URL.Query())
		switch {
		case errors.Is(err, domain.ErrNotYetAvailable):
			writeJSON(w, http.StatusNotFound, errorResponse("%s data not found", name.DisplayName()))
		case err != nil:
			writeJSON(w, http.StatusBadRequest, errorResponse("%s", err.Error()))
		default:
			writeJSON(w, http.StatusOK, Response{Status: statusSuccess, Data: prefixes})
		}
	}
}

// StatusResponse lists every registered provider's cache state
type StatusResponse struct {
	Status    string              `json:"status"`
	Providers []cache.EntryStatus `json:"providers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: statusSuccess, Providers: s.store.Status()})
}

// ProviderStatusResponse is the cache state of a single provider
type ProviderStatusResponse struct {
	Status   string            `json:"status"`
	Provider cache.EntryStatus `json:"provider"`
}

func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	name, err := domain.ParseProviderName(r.PathValue("provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse("%s", err.Error()))
		return
	}
	st, ok := s.store.EntryStatus(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("%s is not enabled", name.DisplayName()))
		return
	}
	writeJSON(w, http.StatusOK, ProviderStatusResponse{Status: statusSuccess, Provider: st})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(openAPISpec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnw("failed to encode response", "error", err)
	}
}
