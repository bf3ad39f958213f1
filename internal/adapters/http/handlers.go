package http

import (
	"net/http"

	"github.com/carebridge/portal-access/internal/application"
)

// Handler is the HTTP adapter entrypoint for the portal access service.
type Handler struct {
	service *application.Service
	guard   *Guard
}

// NewHandler constructs an HTTP handler bound to the application
// service and its route guard.
func NewHandler(service *application.Service) *Handler {
	return &Handler{
		service: service,
		guard:   NewGuard(service, "/login", "/access-denied"),
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.PublicJWKs()
	if err != nil {
		writeMappedError(r.Context(), w, "jwks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}
