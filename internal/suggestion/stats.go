// internal/suggestion/stats.go
// Read-only projections over a viewer's suggestions

package suggestion

import "time"

// DefaultUrgentWindow is how close a decision deadline must be to count as urgent
const DefaultUrgentWindow = 72 * time.Hour

// StatusInfo is the viewer-relative reading of a status
type StatusInfo struct {
	RequiresUserAction bool           `json:"requires_user_action"`
	ActingParty        Party          `json:"acting_party"`
	IsUrgent           bool           `json:"is_urgent"`
	PriorityBucket     PriorityBucket `json:"priority_bucket"`
	Category           Category       `json:"category"`
	Progress           int            `json:"progress"`
}

// GetStatusInfo resolves status metadata for viewerID
func GetStatusInfo(status Status, firstPartyID, secondPartyID, viewerID int64) StatusInfo {
	meta, _ := Meta(status)

	mustAct := false
	if meta.NeedsAction {
		switch meta.ActingParty {
		case PartyFirst:
			mustAct = viewerID == firstPartyID
		case PartySecond:
			mustAct = viewerID == secondPartyID
		case PartyBoth:
			mustAct = viewerID == firstPartyID || viewerID == secondPartyID
		}
	}

	bucket := meta.Priority
	if mustAct {
		bucket = meta.ActingPriority
	}

	return StatusInfo{
		RequiresUserAction: mustAct,
		ActingParty:        meta.ActingParty,
		IsUrgent:           meta.IsUrgent,
		PriorityBucket:     bucket,
		Category:           meta.Category,
		Progress:           meta.Progress,
	}
}

// InfoFor is GetStatusInfo for a loaded suggestion
func InfoFor(s *Suggestion, viewerID int64) StatusInfo {
	return GetStatusInfo(s.Status, s.FirstPartyID, s.SecondPartyID, viewerID)
}

// UrgentFor returns the suggestions viewerID must act on soon
func UrgentFor(list []*Suggestion, viewerID int64, now time.Time, window time.Duration) []*Suggestion {
	if window <= 0 {
		window = DefaultUrgentWindow
	}

	var out []*Suggestion
	for _, s := range list {
		info := InfoFor(s, viewerID)
		if !info.RequiresUserAction {
			continue
		}
		if info.IsUrgent || deadlineWithin(s, now, window) {
			out = append(out, s)
		}
	}
	return out
}

func deadlineWithin(s *Suggestion, now time.Time, window time.Duration) bool {
	deadline := s.ResponseDeadline
	if s.DecisionDeadline != nil {
		deadline = *s.DecisionDeadline
	}
	return deadline.Sub(now) <= window
}

// CategoryCounts tallies suggestions by category
func CategoryCounts(list []*Suggestion) map[Category]int {
	counts := map[Category]int{
		CategoryDraft:      0,
		CategoryPending:    0,
		CategoryInterested: 0,
		CategoryApproved:   0,
		CategoryDeclined:   0,
		CategoryProgress:   0,
		CategoryCompleted:  0,
	}
	for _, s := range list {
		counts[s.Status.Category()]++
	}
	return counts
}

// IsInActiveProcess reports whether userID is a party to an active-process suggestion
func IsInActiveProcess(list []*Suggestion, userID int64) bool {
	for _, s := range list {
		if s.Involves(userID) && s.Status.IsActiveProcess() {
			return true
		}
	}
	return false
}

// UserStats summarizes a viewer's suggestions for the dashboard
type UserStats struct {
	Total            int              `json:"total"`
	Urgent           int              `json:"urgent"`
	Pending          int              `json:"pending"`
	Approved         int              `json:"approved"`
	Progress         int              `json:"progress"`
	Completed        int              `json:"completed"`
	RequiresMyAction int              `json:"requires_my_action"`
	InActiveProcess  bool             `json:"in_active_process"`
	Categories       map[Category]int `json:"categories"`
}

// CalculateUserStats builds UserStats for viewerID
func CalculateUserStats(list []*Suggestion, viewerID int64, now time.Time, window time.Duration) UserStats {
	stats := UserStats{
		Total:           len(list),
		Urgent:          len(UrgentFor(list, viewerID, now, window)),
		InActiveProcess: IsInActiveProcess(list, viewerID),
		Categories:      CategoryCounts(list),
	}

	for _, s := range list {
		switch s.Status.Category() {
		case CategoryPending, CategoryInterested:
			stats.Pending++
		case CategoryApproved:
			stats.Approved++
		case CategoryProgress:
			stats.Progress++
		case CategoryCompleted, CategoryDeclined:
			stats.Completed++
		}
		if InfoFor(s, viewerID).RequiresUserAction {
			stats.RequiresMyAction++
		}
	}

	return stats
}

// Bucketed groups a matchmaker's suggestions by DashboardBucket
func Bucketed(list []*Suggestion) map[string][]*Suggestion {
	out := map[string][]*Suggestion{
		"PENDING": {},
		"ACTIVE":  {},
		"HISTORY": {},
	}
	for _, s := range list {
		b := s.Status.DashboardBucket()
		out[b] = append(out[b], s)
	}
	return out
}
