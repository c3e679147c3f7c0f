package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shardroute/pkg/routing"
	"shardroute/pkg/shadow"
	"shardroute/pkg/sharderr"
	"shardroute/pkg/shardkey"
)

const (
	contentTypeJSON          = "application/json"
	defaultHTTPPort          = "8080"
	defaultShutdownTimeout   = time.Second * 5
	defaultReadHeaderTimeout = time.Second

	// componentParam carries one key component; repeat it for compound keys.
	componentParam = "c"
)

type iKV interface {
	Put(ctx context.Context, key shardkey.CompoundKey, value string) error
	Get(ctx context.Context, key shardkey.CompoundKey) (string, bool, error)
	Delete(ctx context.Context, key shardkey.CompoundKey) error
}

type iComparer interface {
	Compare(key shardkey.CompoundKey) shadow.ComparisonResult
}

// Server exposes routing, shadow comparison and the sharded store over HTTP.
type Server struct {
	router   routing.Router
	kv       iKV
	comparer iComparer
	gatherer prometheus.Gatherer

	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration

	httpServer *http.Server
	URL        string
	addr       string
}

type Option func(*Server)

// WithKV enables /api/kv.
func WithKV(kv iKV) Option {
	return func(s *Server) { s.kv = kv }
}

// WithComparer enables /api/shadow/compare.
func WithComparer(c iComparer) Option {
	return func(s *Server) { s.comparer = c }
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithTimeouts(readHeader, shutdown time.Duration) Option {
	return func(s *Server) {
		if readHeader > 0 {
			s.readHeaderTimeout = readHeader
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// NewServer creates a new server instance
func NewServer(router routing.Router, port string, opts ...Option) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	s := &Server{
		router:            router,
		gatherer:          prometheus.DefaultGatherer,
		readHeaderTimeout: defaultReadHeaderTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
		URL:               "http://localhost:" + port,
		addr:              ":" + port,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start starts the server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/route", s.handleRoute)
		r.Get("/route/all", s.handleRouteAll)

		if s.comparer != nil {
			r.Get("/shadow/compare", s.handleCompare)
		}
		if s.kv != nil {
			r.Put("/kv", s.handlePut)
			r.Get("/kv", s.handleGet)
			r.Delete("/kv", s.handleDelete)
		}
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// writeError maps key errors to 400, routing errors to 422 and everything else, which
// comes from a shard backend, to 502.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case sharderr.IsKey(err):
		status = http.StatusBadRequest
	case sharderr.IsRouting(err):
		status = http.StatusUnprocessableEntity
	case sharderr.IsConfig(err):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func compoundKey(r *http.Request) (shardkey.CompoundKey, error) {
	return shardkey.NewCompoundKey(r.Form[componentParam]...)
}

func (s *Server) parseKey(w http.ResponseWriter, r *http.Request) (shardkey.CompoundKey, bool) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return shardkey.CompoundKey{}, false
	}
	key, err := compoundKey(r)
	if err != nil {
		s.writeError(w, err)
		return shardkey.CompoundKey{}, false
	}
	return key, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	key, ok := s.parseKey(w, r)
	if !ok {
		return
	}
	shard, err := s.router.Locate(key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewRouteResponse(shard))
}

// handleRouteAll treats an empty component as unknown.
func (s *Server) handleRouteAll(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()[componentParam]
	if len(values) == 0 {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key components"))
		return
	}
	ids, err := s.router.RouteAll(shardkey.PartialFromValues(values...))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewScatterResponse(ids))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	key, ok := s.parseKey(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, NewComparisonResponse(s.comparer.Compare(key)))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key, ok := s.parseKey(w, r)
	if !ok {
		return
	}
	value := r.FormValue("value")
	if value == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing value"))
		return
	}

	if err := s.kv.Put(r.Context(), key, value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := s.parseKey(w, r)
	if !ok {
		return
	}

	value, found, err := s.kv.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(value))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := s.parseKey(w, r)
	if !ok {
		return
	}
	if err := s.kv.Delete(r.Context(), key); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
