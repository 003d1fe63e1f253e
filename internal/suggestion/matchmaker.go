// internal/suggestion/matchmaker.go
// Matchmaker endpoints, served by a chi router mounted under /api/v1/matchmaker

package suggestion

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
)

func (h *Handler) CreateSuggestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	var req CreateSuggestionRequest
	if !decode(w, r, &req) {
		return
	}

	sg, err := h.service.CreateSuggestion(r.Context(), userID, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, NewSuggestionView(sg, userID), http.StatusCreated)
}

func (h *Handler) ListMatchmakerSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	filter, err := filterFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.service.ListForMatchmaker(r.Context(), userID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	buckets := Bucketed(list)
	utils.SuccessResponse(w, MatchmakerDashboard{
		Pending: views(buckets["PENDING"], userID),
		Active:  views(buckets["ACTIVE"], userID),
		History: views(buckets["HISTORY"], userID),
	}, http.StatusOK)
}

func (h *Handler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	var req OverrideRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.service.Override(r.Context(), id, userID, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

func (h *Handler) UpdatePriority(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	var req PriorityRequest
	if !decode(w, r, &req) {
		return
	}

	sg, err := h.service.UpdatePriority(r.Context(), id, userID, Priority(req.Priority))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, NewSuggestionView(sg, userID), http.StatusOK)
}
