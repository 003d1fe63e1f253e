// internal/suggestion/dto.go
package suggestion

import (
	"time"

	"github.com/google/uuid"
)

// DTOs for API requests/responses

type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=approve decline interested"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
	Notes  string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type FeedbackRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=SUCCESS_CONTINUE NEED_TIME_TO_THINK NOT_INTERESTED"`
	Notes   string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type CreateSuggestionRequest struct {
	FirstPartyID             int64      `json:"first_party_id" validate:"required,gt=0"`
	SecondPartyID            int64      `json:"second_party_id" validate:"required,gt=0,nefield=FirstPartyID"`
	Priority                 string     `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status                   string     `json:"status,omitempty" validate:"omitempty,oneof=DRAFT PENDING_FIRST_PARTY"`
	InternalNotes            string     `json:"internal_notes,omitempty" validate:"omitempty,max=2000"`
	FirstPartyNotes          string     `json:"first_party_notes,omitempty" validate:"omitempty,max=2000"`
	SecondPartyNotes         string     `json:"second_party_notes,omitempty" validate:"omitempty,max=2000"`
	MatchingReason           string     `json:"matching_reason,omitempty" validate:"omitempty,max=2000"`
	RequiresRabbinicApproval bool       `json:"requires_rabbinic_approval"`
	DeadlineHours            int        `json:"deadline_hours,omitempty" validate:"omitempty,min=1,max=720"`
	DecisionDeadline         *time.Time `json:"decision_deadline,omitempty"`
}

type OverrideRequest struct {
	Status      string     `json:"status" validate:"required"`
	Reason      string     `json:"reason,omitempty" validate:"omitempty,max=500"`
	Notes       string     `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Force       bool       `json:"force"`
	MeetingDate *time.Time `json:"meeting_date,omitempty"`
}

type PriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
}

type ReorderRequest struct {
	Order []uuid.UUID `json:"order" validate:"required,dive,required"`
}

// RespondResult is returned by every status-changing operation
type RespondResult struct {
	ID               uuid.UUID `json:"id"`
	Status           Status    `json:"status"`
	LastStatusChange time.Time `json:"last_status_change"`
	Steps            []Status  `json:"steps,omitempty"`
}

// SuggestionView is a suggestion as one viewer is allowed to see it
type SuggestionView struct {
	*Suggestion
	Display          Label             `json:"display"`
	Info             StatusInfo        `json:"status_info"`
	AvailableActions []AvailableAction `json:"available_actions"`
	Message          string            `json:"message,omitempty"`
}

// NewSuggestionView redacts notes for viewerID and attaches the rendered status
func NewSuggestionView(s *Suggestion, viewerID int64) SuggestionView {
	c := s.Clone()
	c.Notes = NotesFor(s, viewerID)

	isFirst := viewerID == s.FirstPartyID
	view := SuggestionView{
		Suggestion:       c,
		Display:          Render(s.Status, isFirst),
		Info:             InfoFor(s, viewerID),
		AvailableActions: AvailableActions(s, viewerID),
	}
	if s.Involves(viewerID) {
		view.Message = PersonalizedMessage(s.Status, isFirst, "")
	}
	if view.AvailableActions == nil {
		view.AvailableActions = []AvailableAction{}
	}
	return view
}

// NotesFor returns the notes viewerID may read
func NotesFor(s *Suggestion, viewerID int64) Notes {
	switch viewerID {
	case s.MatchmakerID:
		return s.Notes
	case s.FirstPartyID:
		return Notes{ForFirstParty: s.Notes.ForFirstParty, MatchingReason: s.Notes.MatchingReason}
	case s.SecondPartyID:
		return Notes{ForSecondParty: s.Notes.ForSecondParty, MatchingReason: s.Notes.MatchingReason}
	}
	return Notes{}
}

// StatsResponse is the dashboard payload for a party
type StatsResponse struct {
	UserStats
	Urgent []SuggestionView `json:"urgent_suggestions"`
}

// MatchmakerDashboard groups the matchmaker's suggestions
type MatchmakerDashboard struct {
	Pending []SuggestionView `json:"pending"`
	Active  []SuggestionView `json:"active"`
	History []SuggestionView `json:"history"`
}
