package notifications

import (
	"github.com/gorilla/mux"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	api := router.PathPrefix("/api/v1/notifications").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Live events
	api.HandleFunc("/ws", handler.ServeWS).Methods("GET")

	// Inbox
	api.HandleFunc("", handler.GetNotifications).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/read", handler.MarkAsRead).Methods("PUT")

	// Push tokens
	api.HandleFunc("/push-token", handler.RegisterPushToken).Methods("POST")
	api.HandleFunc("/push-token", handler.UnregisterPushToken).Methods("DELETE")
}
