package notifications

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
)

type Handler struct {
	dispatcher *Dispatcher
	hub        *Hub
	upgrader   websocket.Upgrader
}

func NewHandler(dispatcher *Dispatcher, hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Handler{
		dispatcher: dispatcher,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
	}
}

// ServeWS upgrades the connection and subscribes it to the user's events
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.hub == nil {
		utils.ErrorResponse(w, "In-app notifications are disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}

	NewClient(h.hub, conn, userID).Start()
}

// GetNotifications retrieves notifications for the authenticated user
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	if offset < 0 {
		offset = 0
	}

	response, err := h.dispatcher.Inbox(r.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		log.Printf("❌ Failed to list notifications for %d: %v", userID, err)
		utils.ErrorResponse(w, "Failed to get notifications", http.StatusInternalServerError)
		return
	}

	utils.SuccessResponse(w, response, http.StatusOK)
}

// MarkAsRead marks a notification as read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.MarkAsRead(r.Context(), notificationID, userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.ErrorResponse(w, "Notification not found", http.StatusNotFound)
			return
		}
		utils.ErrorResponse(w, "Failed to mark notification as read", http.StatusInternalServerError)
		return
	}

	utils.MessageResponse(w, "Notification marked as read", http.StatusOK)
}

// RegisterPushToken stores a device token for push delivery
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.RegisterPushToken(r.Context(), userID, &req); err != nil {
		log.Printf("❌ Failed to register push token for %d: %v", userID, err)
		utils.ErrorResponse(w, "Failed to register push token", http.StatusInternalServerError)
		return
	}

	utils.MessageResponse(w, "Push token registered", http.StatusCreated)
}

// UnregisterPushToken deactivates a device token
func (h *Handler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req UnregisterPushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.UnregisterPushToken(r.Context(), userID, req.Token); err != nil {
		utils.ErrorResponse(w, "Failed to unregister push token", http.StatusInternalServerError)
		return
	}

	utils.MessageResponse(w, "Push token removed", http.StatusOK)
}
