package api

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/signature"
)

// Handler serves ticket issuance and one-time downloads
type Handler struct {
	service         once.Service
	logger          *slog.Logger
	signatureHeader string
	issueLimiter    *rate.Limiter
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithIssueLimiter throttles ticket issuance
func WithIssueLimiter(l *rate.Limiter) HandlerOption {
	return func(h *Handler) {
		h.issueLimiter = l
	}
}

// NewHandler creates a Handler. header names the request header that
// carries the MAC; empty means signature.DefaultHeader.
func NewHandler(service once.Service, header string, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if header == "" {
		header = signature.DefaultHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		service:         service,
		logger:          logger,
		signatureHeader: header,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the public endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if h.issueLimiter != nil {
			r.Use(RateLimit(h.issueLimiter))
		}
		r.Get("/", h.IssueUploadTicket)
	})
	r.Get("/{entry_id}/{filename}", h.Consume)
	return r
}

// IssueUploadTicket handles GET /?f=<filename>&t=<timestamp> signed with
// the shared secret.
func (h *Handler) IssueUploadTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.IssueUploadTicket(r.Context(), once.TicketRequest{
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Signature: r.Header.Get(h.signatureHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ticket)
}

// Consume handles GET /{entry_id}/{filename}. The first real client gets a
// redirect to a short-lived download URL; link-preview bots get an empty
// 200 and leave the link intact.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entry_id")
	filename := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		// chi matched against the escaped path
		unescaped, err := url.PathUnescape(filename)
		if err != nil {
			http.Error(w, "Entry not found", http.StatusNotFound)
			return
		}
		filename = unescaped
	}

	result, err := h.service.Consume(r.Context(), once.ConsumeRequest{
		EntryID:   entryID,
		Filename:  filename,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if once.KindOf(err) == once.KindNotFound {
			http.Error(w, once.MessageOf(err), http.StatusNotFound)
			return
		}
		h.writeError(w, r, err)
		return
	}

	if result.Masked {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Location", result.Location)
	w.WriteHeader(http.StatusMovedPermanently)
}
