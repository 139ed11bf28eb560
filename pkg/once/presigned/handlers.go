package presigned

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// FileField is the multipart field that carries the uploaded bytes
const FileField = "file"

// ObjectStore is the part of a storage backend the handlers need
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Handlers serves signed upload and download URLs for an ObjectStore
type Handlers struct {
	store  ObjectStore
	signer *Signer
	logger *slog.Logger
}

// NewHandlers creates a new set of presigned URL handlers
func NewHandlers(store ObjectStore, signer *Signer, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, signer: signer, logger: logger}
}

// Routes mounts POST /upload and GET /download
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload", h.HandleUpload)
	r.Get("/download", h.HandleDownload)
	return r
}

// HandleUpload accepts a multipart form shaped like an S3 POST upload:
// the form fields first, then the file under the "file" field.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	key, err := h.signer.ValidateRequest(r)
	if err != nil {
		h.rejectRequest(w, r, "upload", err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_form", "multipart form expected")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "missing_file", "file field is required")
			return
		}
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_form", "malformed multipart form")
			return
		}

		switch part.FormName() {
		case KeyParam:
			value, err := io.ReadAll(io.LimitReader(part, 4096))
			if err != nil || string(value) != key {
				writeError(w, r, http.StatusForbidden, "key_mismatch", "form key does not match the signed key")
				return
			}
		case FileField:
			if err := h.store.Put(r.Context(), key, part); err != nil {
				h.logger.Error("presigned upload failed", "key", key, "error", err)
				writeError(w, r, http.StatusInternalServerError, "upload_failed", "failed to store file")
				return
			}
			h.logger.Debug("presigned upload stored", "key", key)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
}

// HandleDownload streams the object as an attachment
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	key, err := h.signer.ValidateRequest(r)
	if err != nil {
		h.rejectRequest(w, r, "download", err)
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "object not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("presigned download copy failed", "key", key, "error", err)
	}
}

// rejectRequest answers a request whose signed parameters did not validate
func (h *Handlers) rejectRequest(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case IsAuthError(err):
		h.logger.Warn("presigned "+op+" rejected", "error", err)
		writeError(w, r, http.StatusForbidden, "invalid_signature", err.Error())
	case IsMalformed(err):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("presigned "+op+" cannot be validated", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "signed URLs are not available")
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Code: code, Message: message})
}
