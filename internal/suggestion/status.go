// internal/suggestion/status.go
// Status registry: every lifecycle state and its static metadata

package suggestion

// Status is a lifecycle state of a suggestion
type Status string

const (
	StatusDraft                      Status = "DRAFT"
	StatusPendingFirstParty          Status = "PENDING_FIRST_PARTY"
	StatusFirstPartyInterested       Status = "FIRST_PARTY_INTERESTED"
	StatusFirstPartyApproved         Status = "FIRST_PARTY_APPROVED"
	StatusFirstPartyDeclined         Status = "FIRST_PARTY_DECLINED"
	StatusPendingSecondParty         Status = "PENDING_SECOND_PARTY"
	StatusSecondPartyApproved        Status = "SECOND_PARTY_APPROVED"
	StatusSecondPartyDeclined        Status = "SECOND_PARTY_DECLINED"
	StatusAwaitingMatchmakerApproval Status = "AWAITING_MATCHMAKER_APPROVAL"
	StatusContactDetailsShared       Status = "CONTACT_DETAILS_SHARED"
	StatusAwaitingFirstDateFeedback  Status = "AWAITING_FIRST_DATE_FEEDBACK"
	StatusThinkingAfterDate          Status = "THINKING_AFTER_DATE"
	StatusProceedingToSecondDate     Status = "PROCEEDING_TO_SECOND_DATE"
	StatusEndedAfterFirstDate        Status = "ENDED_AFTER_FIRST_DATE"
	StatusMeetingPending             Status = "MEETING_PENDING"
	StatusMeetingScheduled           Status = "MEETING_SCHEDULED"
	StatusMatchApproved              Status = "MATCH_APPROVED"
	StatusMatchDeclined              Status = "MATCH_DECLINED"
	StatusDating                     Status = "DATING"
	StatusEngaged                    Status = "ENGAGED"
	StatusMarried                    Status = "MARRIED"
	StatusExpired                    Status = "EXPIRED"
	StatusClosed                     Status = "CLOSED"
	StatusCancelled                  Status = "CANCELLED"
)

// Category groups statuses for dashboards
type Category string

const (
	CategoryDraft      Category = "draft"
	CategoryPending    Category = "pending"
	CategoryInterested Category = "interested"
	CategoryApproved   Category = "approved"
	CategoryDeclined   Category = "declined"
	CategoryProgress   Category = "progress"
	CategoryCompleted  Category = "completed"
)

// Party names whose response unblocks progress
type Party string

const (
	PartyFirst      Party = "first"
	PartySecond     Party = "second"
	PartyMatchmaker Party = "matchmaker"
	PartyBoth       Party = "both"
	PartyNone       Party = "none"
)

// PriorityBucket is the derived attention level shown to a viewer
type PriorityBucket string

const (
	BucketLow      PriorityBucket = "low"
	BucketMedium   PriorityBucket = "medium"
	BucketHigh     PriorityBucket = "high"
	BucketCritical PriorityBucket = "critical"
)

// StatusMeta is the static metadata of one status.
// ActingPriority replaces Priority when the viewer is the one who must act.
type StatusMeta struct {
	Category       Category
	ActingParty    Party
	IsUrgent       bool
	NeedsAction    bool
	Priority       PriorityBucket
	ActingPriority PriorityBucket
	Terminal       bool
	ActiveProcess  bool
	Progress       int
}

var registry = map[Status]StatusMeta{
	StatusDraft: {
		Category: CategoryDraft, ActingParty: PartyMatchmaker,
		Priority: BucketMedium, Progress: 10,
	},
	StatusPendingFirstParty: {
		Category: CategoryPending, ActingParty: PartyFirst, IsUrgent: true, NeedsAction: true,
		Priority: BucketMedium, ActingPriority: BucketCritical, Progress: 25,
	},
	StatusFirstPartyInterested: {
		Category: CategoryInterested, ActingParty: PartyFirst, NeedsAction: true,
		Priority: BucketMedium, ActingPriority: BucketHigh, Progress: 30,
	},
	StatusFirstPartyApproved: {
		Category: CategoryApproved, ActingParty: PartyMatchmaker,
		Priority: BucketMedium, ActiveProcess: true, Progress: 40,
	},
	StatusFirstPartyDeclined: {
		Category: CategoryDeclined, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 100,
	},
	StatusPendingSecondParty: {
		Category: CategoryPending, ActingParty: PartySecond, IsUrgent: true, NeedsAction: true,
		Priority: BucketMedium, ActingPriority: BucketCritical, Progress: 50,
	},
	StatusSecondPartyApproved: {
		Category: CategoryApproved, ActingParty: PartyMatchmaker, IsUrgent: true,
		Priority: BucketHigh, ActiveProcess: true, Progress: 60,
	},
	StatusSecondPartyDeclined: {
		Category: CategoryDeclined, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 100,
	},
	StatusAwaitingMatchmakerApproval: {
		Category: CategoryPending, ActingParty: PartyMatchmaker, IsUrgent: true,
		Priority: BucketHigh, ActiveProcess: true, Progress: 65,
	},
	StatusContactDetailsShared: {
		Category: CategoryProgress, ActingParty: PartyBoth, IsUrgent: true, NeedsAction: true,
		Priority: BucketHigh, ActiveProcess: true, Progress: 70,
	},
	StatusAwaitingFirstDateFeedback: {
		Category: CategoryPending, ActingParty: PartyBoth, NeedsAction: true,
		Priority: BucketMedium, ActiveProcess: true, Progress: 75,
	},
	StatusThinkingAfterDate: {
		Category: CategoryPending, ActingParty: PartyBoth,
		Priority: BucketMedium, ActiveProcess: true, Progress: 77,
	},
	StatusProceedingToSecondDate: {
		Category: CategoryProgress, ActingParty: PartyBoth, NeedsAction: true,
		Priority: BucketMedium, ActiveProcess: true, Progress: 78,
	},
	StatusEndedAfterFirstDate: {
		Category: CategoryCompleted, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 0,
	},
	StatusMeetingPending: {
		Category: CategoryPending, ActingParty: PartyMatchmaker, IsUrgent: true,
		Priority: BucketHigh, ActiveProcess: true, Progress: 72,
	},
	StatusMeetingScheduled: {
		Category: CategoryProgress, ActingParty: PartyBoth, IsUrgent: true, NeedsAction: true,
		Priority: BucketHigh, ActiveProcess: true, Progress: 74,
	},
	StatusMatchApproved: {
		Category: CategoryApproved, ActingParty: PartyBoth,
		Priority: BucketHigh, ActiveProcess: true, Progress: 60,
	},
	StatusMatchDeclined: {
		Category: CategoryDeclined, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 0,
	},
	StatusDating: {
		Category: CategoryProgress, ActingParty: PartyBoth,
		Priority: BucketMedium, ActiveProcess: true, Progress: 80,
	},
	StatusEngaged: {
		Category: CategoryCompleted, ActingParty: PartyBoth,
		Priority: BucketLow, Terminal: true, ActiveProcess: true, Progress: 95,
	},
	StatusMarried: {
		Category: CategoryCompleted, ActingParty: PartyBoth,
		Priority: BucketLow, Terminal: true, Progress: 100,
	},
	StatusExpired: {
		Category: CategoryCompleted, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 100,
	},
	StatusClosed: {
		Category: CategoryCompleted, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 0,
	},
	StatusCancelled: {
		Category: CategoryCompleted, ActingParty: PartyNone,
		Priority: BucketLow, Terminal: true, Progress: 0,
	},
}

// allStatuses keeps the declaration order for listings and migrations
var allStatuses = []Status{
	StatusDraft, StatusPendingFirstParty, StatusFirstPartyInterested,
	StatusFirstPartyApproved, StatusFirstPartyDeclined, StatusPendingSecondParty,
	StatusSecondPartyApproved, StatusSecondPartyDeclined, StatusAwaitingMatchmakerApproval,
	StatusContactDetailsShared, StatusAwaitingFirstDateFeedback, StatusThinkingAfterDate,
	StatusProceedingToSecondDate, StatusEndedAfterFirstDate, StatusMeetingPending,
	StatusMeetingScheduled, StatusMatchApproved, StatusMatchDeclined, StatusDating,
	StatusEngaged, StatusMarried, StatusExpired, StatusClosed, StatusCancelled,
}

func init() {
	for s, m := range registry {
		if m.ActingPriority == "" {
			m.ActingPriority = m.Priority
			registry[s] = m
		}
	}
}

// Meta returns the registry entry for a status
func Meta(s Status) (StatusMeta, bool) {
	m, ok := registry[s]
	return m, ok
}

// AllStatuses returns every known status in declaration order
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ActiveStatuses returns the statuses that block a party from a new suggestion
func ActiveStatuses() []Status {
	var out []Status
	for _, s := range allStatuses {
		if registry[s].ActiveProcess {
			out = append(out, s)
		}
	}
	return out
}

// TerminalStatuses returns the statuses no party action can leave
func TerminalStatuses() []Status {
	var out []Status
	for _, s := range allStatuses {
		if registry[s].Terminal {
			out = append(out, s)
		}
	}
	return out
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	_, ok := registry[s]
	return ok
}

// IsTerminal reports whether no party action can move s further
func (s Status) IsTerminal() bool {
	return registry[s].Terminal
}

// IsActiveProcess reports whether s counts as an ongoing process for its parties
func (s Status) IsActiveProcess() bool {
	return registry[s].ActiveProcess
}

// Category returns the dashboard category of s
func (s Status) Category() Category {
	return registry[s].Category
}

// DashboardBucket groups statuses for the matchmaker's list view
func (s Status) DashboardBucket() string {
	switch s {
	case StatusDraft, StatusAwaitingMatchmakerApproval, StatusPendingFirstParty,
		StatusPendingSecondParty, StatusFirstPartyInterested:
		return "PENDING"
	}
	if s.IsTerminal() {
		return "HISTORY"
	}
	return "ACTIVE"
}
