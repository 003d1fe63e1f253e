// internal/suggestion/models.go

package suggestion

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Priority is the matchmaker-set ordinal, independent of the state machine
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notes are free-text fields with per-audience visibility
type Notes struct {
	Internal       string `json:"internal,omitempty" db:"internal_notes"`
	ForFirstParty  string `json:"for_first_party,omitempty" db:"first_party_notes"`
	ForSecondParty string `json:"for_second_party,omitempty" db:"second_party_notes"`
	MatchingReason string `json:"matching_reason,omitempty" db:"matching_reason"`
}

// WaitlistInfo exists only while a suggestion is FIRST_PARTY_INTERESTED
type WaitlistInfo struct {
	Rank         int       `json:"rank"`
	InterestedAt time.Time `json:"interested_at"`
}

// Suggestion is one proposed introduction between two parties
type Suggestion struct {
	ID            uuid.UUID `json:"id"`
	MatchmakerID  int64     `json:"matchmaker_id"`
	FirstPartyID  int64     `json:"first_party_id"`
	SecondPartyID int64     `json:"second_party_id"`

	Status         Status   `json:"status"`
	PreviousStatus *Status  `json:"previous_status,omitempty"`
	Priority       Priority `json:"priority"`

	Notes                    Notes `json:"notes"`
	RequiresRabbinicApproval bool  `json:"requires_rabbinic_approval"`

	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	LastStatusChange time.Time  `json:"last_status_change"`
	ResponseDeadline time.Time  `json:"response_deadline"`
	DecisionDeadline *time.Time `json:"decision_deadline,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	FirstPartySent       *time.Time `json:"first_party_sent,omitempty"`
	FirstPartyResponded  *time.Time `json:"first_party_responded,omitempty"`
	SecondPartySent      *time.Time `json:"second_party_sent,omitempty"`
	SecondPartyResponded *time.Time `json:"second_party_responded,omitempty"`
	FirstPartyApprovedAt *time.Time `json:"first_party_approved_at,omitempty"`

	Waitlist *WaitlistInfo `json:"waitlist,omitempty"`

	// Version increments on every committed mutation
	Version int `json:"version"`
}

// Clone returns a deep copy
func (s *Suggestion) Clone() *Suggestion {
	c := *s
	c.PreviousStatus = cloneStatus(s.PreviousStatus)
	c.DecisionDeadline = cloneTime(s.DecisionDeadline)
	c.ClosedAt = cloneTime(s.ClosedAt)
	c.FirstPartySent = cloneTime(s.FirstPartySent)
	c.FirstPartyResponded = cloneTime(s.FirstPartyResponded)
	c.SecondPartySent = cloneTime(s.SecondPartySent)
	c.SecondPartyResponded = cloneTime(s.SecondPartyResponded)
	c.FirstPartyApprovedAt = cloneTime(s.FirstPartyApprovedAt)
	if s.Waitlist != nil {
		w := *s.Waitlist
		c.Waitlist = &w
	}
	return &c
}

// RoleOf returns how userID relates to the suggestion
func (s *Suggestion) RoleOf(userID int64) Role {
	switch userID {
	case s.FirstPartyID:
		return RoleFirstParty
	case s.SecondPartyID:
		return RoleSecondParty
	case s.MatchmakerID:
		return RoleMatchmaker
	}
	return RoleOutsider
}

// Involves reports whether userID is one of the two parties
func (s *Suggestion) Involves(userID int64) bool {
	return s.FirstPartyID == userID || s.SecondPartyID == userID
}

// VisibleTo reports whether userID may read the suggestion.
// The second party sees it only once it has been sent to them.
func (s *Suggestion) VisibleTo(userID int64) bool {
	switch userID {
	case s.MatchmakerID:
		return true
	case s.FirstPartyID:
		return s.Status != StatusDraft
	case s.SecondPartyID:
		return s.SecondPartySent != nil
	}
	return false
}

// StatusHistoryEntry is one row of the append-only transition log
type StatusHistoryEntry struct {
	Seq          int64     `json:"seq" db:"seq"`
	ID           uuid.UUID `json:"id" db:"id"`
	SuggestionID uuid.UUID `json:"suggestion_id" db:"suggestion_id"`
	Status       Status    `json:"status" db:"status"`
	Reason       *string   `json:"reason,omitempty" db:"reason"`
	Notes        *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// FeedbackOutcome is a party's verdict after the first meeting
type FeedbackOutcome string

const (
	FeedbackSuccessContinue FeedbackOutcome = "SUCCESS_CONTINUE"
	FeedbackNeedTimeToThink FeedbackOutcome = "NEED_TIME_TO_THINK"
	FeedbackNotInterested   FeedbackOutcome = "NOT_INTERESTED"
)

// Valid reports whether o is a known outcome
func (o FeedbackOutcome) Valid() bool {
	switch o {
	case FeedbackSuccessContinue, FeedbackNeedTimeToThink, FeedbackNotInterested:
		return true
	}
	return false
}

// PartyFeedback is one party's submitted feedback
type PartyFeedback struct {
	Status      FeedbackOutcome `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// FeedbackPayload is the free-form feedback stored with a meeting
type FeedbackPayload map[string]PartyFeedback

// Scan implements sql.Scanner
func (p *FeedbackPayload) Scan(value interface{}) error {
	if value == nil {
		*p = make(FeedbackPayload)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported feedback payload type")
	}

	return json.Unmarshal(raw, p)
}

// Value implements driver.Valuer
func (p FeedbackPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return json.Marshal(p)
}

// Meeting is the first-date record read by feedback transitions
type Meeting struct {
	ID                        uuid.UUID        `json:"id" db:"id"`
	SuggestionID              uuid.UUID        `json:"suggestion_id" db:"suggestion_id"`
	ScheduledDate             time.Time        `json:"scheduled_date" db:"scheduled_date"`
	FirstPartyFeedbackStatus  *FeedbackOutcome `json:"first_party_feedback_status,omitempty" db:"first_party_feedback_status"`
	SecondPartyFeedbackStatus *FeedbackOutcome `json:"second_party_feedback_status,omitempty" db:"second_party_feedback_status"`
	Feedback                  FeedbackPayload  `json:"feedback" db:"feedback"`
	Notes                     *string          `json:"notes,omitempty" db:"notes"`
	CreatedAt                 time.Time        `json:"created_at" db:"created_at"`
}

// WaitlistEntry is one ranked suggestion in a first party's queue
type WaitlistEntry struct {
	SuggestionID uuid.UUID `json:"suggestion_id" db:"id"`
	Rank         int       `json:"rank" db:"first_party_rank"`
}

// ListFilter narrows suggestion listings
type ListFilter struct {
	Statuses []Status
	Limit    int
	Offset   int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStatus(s *Status) *Status {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
