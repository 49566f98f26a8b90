// Package server exposes the catalog export over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-catalog-export/internal/config"
	"github.com/Sternrassler/shopify-catalog-export/pkg/cache"
	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
	"github.com/Sternrassler/shopify-catalog-export/pkg/metrics"
	"github.com/Sternrassler/shopify-catalog-export/pkg/pagination"
	"github.com/Sternrassler/shopify-catalog-export/pkg/ratelimit"
	"github.com/Sternrassler/shopify-catalog-export/pkg/shopify"
)

// Source is the catalog adapter the handlers need.
type Source interface {
	pagination.Source
	ShopInfo(ctx context.Context) (catalog.Shop, error)
}

// SourceFactory builds a Source from validated credentials.
type SourceFactory func(cfg config.ShopifyConfig) (Source, error)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cfg       config.Config
	newSource SourceFactory
	tracker   *ratelimit.Tracker
	cache     *cache.Manager
	ready     func(context.Context) error
	logger    zerolog.Logger
	started   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithSourceFactory replaces the Shopify adapter.
func WithSourceFactory(f SourceFactory) Option {
	return func(s *Server) { s.newSource = f }
}

// WithTracker shares a call bucket tracker with the adapter and diagnostics.
func WithTracker(tracker *ratelimit.Tracker) Option {
	return func(s *Server) { s.tracker = tracker }
}

// WithCache enables the export cache.
func WithCache(m *cache.Manager) Option {
	return func(s *Server) { s.cache = m }
}

// WithReadyCheck makes /ready report the result of check, typically a
// Redis ping.
func WithReadyCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server. Without WithSourceFactory exports go to the Shopify
// Admin API through pkg/shopify.
func New(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  log.Logger,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = ratelimit.NewTracker(nil, s.logger)
	}
	if s.newSource == nil {
		s.newSource = s.shopifySource
	}
	return s
}

func (s *Server) shopifySource(cfg config.ShopifyConfig) (Source, error) {
	return shopify.New(cfg,
		shopify.WithTracker(s.tracker),
		shopify.WithLogger(s.logger),
	)
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// RequestID must come before the request logger so the ID is in context.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.cfg.CORSOrigins))
	r.Use(Instrument)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/diagnostico", s.handleDiagnostics)
	r.Get("/export-products", s.handleExportProducts)
	r.Get("/export-chunk", s.handleExportChunk)

	return r
}
