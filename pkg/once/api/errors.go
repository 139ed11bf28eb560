package api

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/once/pkg/once"
)

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Message string `json:"message"`
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind once.Kind) int {
	switch kind {
	case once.KindBadRequest:
		return http.StatusBadRequest
	case once.KindUnauthorized:
		return http.StatusUnauthorized
	case once.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := once.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Info("request rejected", "path", r.URL.Path, "kind", kind.String(), "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Message: once.MessageOf(err)})
}
