package exposition

import (
	"net/http"

	"github.com/promgate/promgate/internal/errors"
	"github.com/promgate/promgate/internal/logging"
	"github.com/promgate/promgate/internal/metrics"
)

// Handler serves a registry snapshot in the text exposition format. Each
// request is an independent read-render-write cycle with no state carried
// between requests. The document is rendered in full before any byte of
// the response is written, so a failed render never produces a partial
// body.
type Handler struct {
	registry metrics.Registry
	renderer *Renderer
	logger   *logging.Logger
}

// NewHandler creates an exposition handler for the given registry.
func NewHandler(registry metrics.Registry, opts Options) *Handler {
	return &Handler{
		registry: registry,
		renderer: NewRenderer(opts),
		logger:   logging.Default(),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	families, err := h.registry.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := h.renderer.Render(families)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.ErrorExposition("Failed to write exposition body", err,
			"remote_addr", r.RemoteAddr)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.IsCode(err, errors.CodeRegistryUnavailable) {
		status = http.StatusServiceUnavailable
	}

	h.logger.ErrorExposition("Exposition request failed", err,
		"code", errors.GetCode(err),
		"status", status,
		"remote_addr", r.RemoteAddr)

	http.Error(w, "metrics unavailable", status)
}
