// internal/suggestion/handlers.go

package suggestion

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// StatusFor maps a service error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrActiveProcess):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
		utils.ErrorResponse(w, "Internal server error", code)
		return
	}
	utils.ErrorResponse(w, err.Error(), code)
}

func viewerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.ErrorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func filterFrom(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var f ListFilter

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := Status(strings.TrimSpace(s))
			if st == "" {
				continue
			}
			if !st.IsValid() {
				return f, reject(ErrInvalidInput, "unknown status %q", st)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 200 {
		f.Limit = l
	}
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o > 0 {
		f.Offset = o
	}
	return f, nil
}

func views(list []*Suggestion, viewer int64) []SuggestionView {
	out := make([]SuggestionView, len(list))
	for i, s := range list {
		out[i] = NewSuggestionView(s, viewer)
	}
	return out
}

func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	filter, err := filterFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.service.ListForUser(r.Context(), userID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, views(list, userID), http.StatusOK)
}

func (h *Handler) GetUrgent(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	list, err := h.service.Urgent(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, views(list, userID), http.StatusOK)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.UserStats(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	urgent, err := h.service.Urgent(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, StatsResponse{UserStats: *stats, Urgent: views(urgent, userID)}, http.StatusOK)
}

func (h *Handler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Waitlist(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []WaitlistEntry{}
	}

	utils.SuccessResponse(w, entries, http.StatusOK)
}

func (h *Handler) ReorderWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	var req ReorderRequest
	if !decode(w, r, &req) {
		return
	}

	entries, err := h.service.ReorderWaitlist(r.Context(), userID, req.Order)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, entries, http.StatusOK)
}

func (h *Handler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	sg, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, NewSuggestionView(sg, userID), http.StatusOK)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	history, err := h.service.History(r.Context(), id, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if history == nil {
		history = []*StatusHistoryEntry{}
	}

	utils.SuccessResponse(w, history, http.StatusOK)
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	var req RespondRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.service.Respond(r.Context(), id, userID, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := viewerID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.ErrorResponse(w, "Invalid suggestion ID", http.StatusBadRequest)
		return
	}

	var req FeedbackRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.service.SubmitFeedback(r.Context(), id, userID, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}
