package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/metrics"
)

// BlobPath is where local storage upload and download endpoints are mounted.
// The underscore keeps it apart from entry ids.
const BlobPath = "/_blob"

// RouterConfig collects what NewRouter wires together
type RouterConfig struct {
	Service         once.Service
	SignatureHeader string
	Logger          *slog.Logger

	// IssueLimiter throttles ticket issuance when set
	IssueLimiter *rate.Limiter

	// Metrics adds request metrics and GET /metrics when set
	Metrics *metrics.Collector

	// BlobHandlers serves local storage credentials under BlobPath when set
	BlobHandlers http.Handler

	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler for the service
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.BlobHandlers != nil {
		r.Mount(BlobPath, cfg.BlobHandlers)
	}

	var opts []HandlerOption
	if cfg.IssueLimiter != nil {
		opts = append(opts, WithIssueLimiter(cfg.IssueLimiter))
	}
	h := NewHandler(cfg.Service, cfg.SignatureHeader, logger, opts...)
	r.With(middleware.Timeout(cfg.RequestTimeout)).Mount("/", h.Routes())

	return r
}
