// Package events is the ingress for pipeline events delivered over HTTP,
// either a single envelope or a batch in the style of a push subscription.
package events

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	codec "github.com/tjfontaine/canvass-pipeline/internal/adapters/events"
	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/frontdoor"
	"github.com/tjfontaine/canvass-pipeline/internal/server"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	handler ports.EventHandler
	logger  *slog.Logger
}

func NewHandler(handler ports.EventHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{handler: handler, logger: logger}
}

func (h *Handler) Handlers() []frontdoor.HandlerRegistration {
	return []frontdoor.HandlerRegistration{
		{Path: "/events", Method: http.MethodPost, Handler: h.HandleEvents},
	}
}

// HandleEvents routes each delivered event and answers with the last result.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	evs, err := codec.DecodeBatch(body)
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Invalid event payload", http.StatusBadRequest)
		return
	}

	var last ports.Result
	for _, ev := range evs {
		server.AddLogField(r.Context(), "event_type", string(ev.Type))
		res, err := h.handler.Handle(r.Context(), ev)
		if errors.Is(err, domain.ErrInvalidPayload) {
			server.AddError(r.Context(), err)
			http.Error(w, "Invalid event payload", http.StatusBadRequest)
			return
		}
		if err != nil {
			server.AddError(r.Context(), err)
			http.Error(w, "Failed to handle event", http.StatusInternalServerError)
			return
		}
		last = res
	}

	frontdoor.WriteJSON(w, http.StatusOK, last)
}
