package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/service"
)

// HTTPHandler handles HTTP API requests for presence.
type HTTPHandler struct {
	service service.RealtimeService
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc service.RealtimeService) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
	}
}

// PresenceResponse is the API response for presence queries.
type PresenceResponse struct {
	RoomID string                 `json:"room_id"`
	Users  []protocol.Participant `json:"users"`
	Total  int                    `json:"total"`
}

// GetPresence handles GET /api/v1/rooms/{room_id}/presence
func (h *HTTPHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	users, err := h.service.GetPresence(r.Context(), roomID)
	if err != nil {
		http.Error(w, "failed to get presence", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PresenceResponse{
		RoomID: roomID,
		Users:  users,
		Total:  len(users),
	})
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterRoutes registers the HTTP API routes.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/rooms/{room_id}/presence", h.GetPresence).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
