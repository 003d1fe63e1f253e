package suggestion

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	api := router.PathPrefix("/api/v1/suggestions").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Listings
	api.HandleFunc("", handler.ListSuggestions).Methods("GET")
	api.HandleFunc("/urgent", handler.GetUrgent).Methods("GET")
	api.HandleFunc("/stats", handler.GetStats).Methods("GET")

	// Waitlist
	api.HandleFunc("/waitlist", handler.GetWaitlist).Methods("GET")
	api.HandleFunc("/waitlist", handler.ReorderWaitlist).Methods("PUT")

	// Single suggestion
	api.HandleFunc("/{id}", handler.GetSuggestion).Methods("GET")
	api.HandleFunc("/{id}/history", handler.GetHistory).Methods("GET")
	api.HandleFunc("/{id}/respond", handler.Respond).Methods("POST")
	api.HandleFunc("/{id}/feedback", handler.SubmitFeedback).Methods("POST")

	router.PathPrefix("/api/v1/matchmaker").Handler(MatchmakerRouter(handler, authMiddleware))
}

// MatchmakerRouter builds the matchmaker sub-API
func MatchmakerRouter(handler *Handler, authMiddleware *auth.Middleware) chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1/matchmaker", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(authMiddleware.RequireRole(auth.RoleMatchmaker))

		r.Post("/suggestions", handler.CreateSuggestion)
		r.Get("/suggestions", handler.ListMatchmakerSuggestions)
		r.Post("/suggestions/{id}/status", handler.OverrideStatus)
		r.Put("/suggestions/{id}/priority", handler.UpdatePriority)
	})

	return r
}
