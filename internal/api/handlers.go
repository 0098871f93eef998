package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/roastlabs/roastbot/internal/core"
	"github.com/roastlabs/roastbot/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{chatService: cs, logger: logger}
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	clientID := clientIDFromRequest(r)
	reply := h.chatService.HandleMessage(r.Context(), clientID, req.Message)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ChatResponse{Reply: reply}); err != nil {
		h.logger.Warn("failed to write chat response", zap.Error(err))
	}
}

func (h *APIHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.Clear(clientIDFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	exchanges, err := h.chatService.History(clientIDFromRequest(r), limit)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if exchanges == nil {
		exchanges = []store.Exchange{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(exchanges); err != nil {
		h.logger.Warn("failed to write history response", zap.Error(err))
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := map[string]any{
		"status": "ok",
		"ready":  h.chatService.Ready(),
		"chunks": h.chatService.IndexSize(),
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Warn("failed to write health response", zap.Error(err))
	}
}

// clientIDFromRequest identifies the caller: an explicit X-Client-ID header,
// falling back to the remote address.
func clientIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
