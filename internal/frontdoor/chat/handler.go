// Package chat is the user-facing chat front door.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
	"github.com/tjfontaine/canvass-pipeline/internal/frontdoor"
	"github.com/tjfontaine/canvass-pipeline/internal/server"
)

const maxBodyBytes = 64 << 10

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse acknowledges a published message.
type ChatResponse struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type Handler struct {
	publisher ports.EventPublisher
	store     ports.ConversationStore
	eventLog  ports.EventLog
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates the chat front door. eventLog may be nil.
func NewHandler(publisher ports.EventPublisher, store ports.ConversationStore, eventLog ports.EventLog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{publisher: publisher, store: store, eventLog: eventLog, logger: logger, now: time.Now}
}

func (h *Handler) Handlers() []frontdoor.HandlerRegistration {
	regs := []frontdoor.HandlerRegistration{
		{Path: "/chat", Method: http.MethodPost, Handler: h.HandleChat},
		{Path: "/conversations/{id}", Method: http.MethodGet, Handler: h.HandleGetConversation},
	}
	if h.eventLog != nil {
		regs = append(regs, frontdoor.HandlerRegistration{Path: "/conversations/{id}/events", Method: http.MethodGet, Handler: h.HandleListEvents})
	}
	return regs
}

// HandleChat accepts one user message and publishes ChatMessageReceived.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	now := h.now()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = fmt.Sprintf("conv_%d", now.UnixMilli())
	}
	server.AddLogField(r.Context(), "conversation_id", conversationID)

	event, err := domain.NewEvent(conversationID, &domain.ChatMessageReceived{
		ConversationID: conversationID,
		Message:        req.Message,
	}, now)
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Failed to build event", http.StatusInternalServerError)
		return
	}

	if err := h.publisher.Publish(r.Context(), event); err != nil {
		server.AddError(r.Context(), err)
		h.logger.ErrorContext(r.Context(), "failed to publish chat message",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Failed to publish message", http.StatusBadGateway)
		return
	}

	frontdoor.WriteJSON(w, http.StatusOK, ChatResponse{ConversationID: conversationID, Message: "Message received"})
}

// HandleGetConversation returns the stored client data for a conversation.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "conversation_id", id)

	data, err := h.store.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}

	frontdoor.WriteJSON(w, http.StatusOK, data)
}

// HandleListEvents returns the recorded events for a conversation.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.eventLog.ListEvents(r.Context(), id, limit)
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}

	frontdoor.WriteJSON(w, http.StatusOK, map[string]any{"conversationId": id, "events": events})
}
