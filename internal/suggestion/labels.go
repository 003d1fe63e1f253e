// internal/suggestion/labels.go
// Viewer-relative status text. The stored status is shared; only the wording differs.

package suggestion

import "fmt"

// Label is the rendered text of a status for one viewer
type Label struct {
	Label       string   `json:"label"`
	ShortLabel  string   `json:"short_label"`
	Description string   `json:"description"`
	ActingParty Party    `json:"acting_party"`
	Category    Category `json:"category"`
	Pulse       bool     `json:"pulse"`
}

type labelText struct {
	label, short, description string
}

// labelPair holds the first-party wording and the wording for everyone else
type labelPair struct {
	first labelText
	other labelText
}

func sharedLabel(label, short, description string) labelPair {
	t := labelText{label, short, description}
	return labelPair{first: t, other: t}
}

var labels = map[Status]labelPair{
	StatusDraft: sharedLabel("Draft in preparation", "Draft", "The matchmaker is preparing this suggestion"),
	StatusPendingFirstParty: {
		first: labelText{"Awaiting your response", "Waiting for you", "This suggestion is waiting for your decision: approve or decline"},
		other: labelText{"Sent to the first party", "First party", "The matchmaker sent the suggestion to the first party and is waiting for an answer"},
	},
	StatusFirstPartyInterested: {
		first: labelText{"Saved for later", "Saved", "You saved this suggestion to your waitlist"},
		other: labelText{"First party is interested", "Interested", "The first party saved this suggestion for later"},
	},
	StatusFirstPartyApproved: {
		first: labelText{"You approved the suggestion", "You approved", "You approved the suggestion; it will now be sent to the second party"},
		other: labelText{"First party approved", "First party approved", "The first party approved the suggestion"},
	},
	StatusFirstPartyDeclined: {
		first: labelText{"You declined the suggestion", "You declined", "You declined the suggestion. Thank you for the honest feedback"},
		other: labelText{"First party declined", "First party declined", "The first party decided the suggestion is not a fit"},
	},
	StatusPendingSecondParty: {
		first: labelText{"Sent to the second party", "Second party", "The second party is reviewing the suggestion; we will update you"},
		other: labelText{"Awaiting your response", "Waiting for you", "This suggestion is waiting for your decision: approve or decline"},
	},
	StatusSecondPartyApproved: {
		first: labelText{"The second party approved!", "Second party approved", "The second party is interested too; contact details are coming soon"},
		other: labelText{"You approved the suggestion!", "You approved", "You approved the suggestion; contact details are coming soon"},
	},
	StatusSecondPartyDeclined: {
		first: labelText{"Second party declined", "Second party declined", "The second party decided the suggestion is not a fit"},
		other: labelText{"You declined the suggestion", "You declined", "You declined the suggestion. Thank you for the honest feedback"},
	},
	StatusAwaitingMatchmakerApproval: sharedLabel("Awaiting matchmaker approval", "Matchmaker approval", "Both parties approved; the matchmaker will approve sharing details"),
	StatusContactDetailsShared:       sharedLabel("Contact details shared", "Details shared", "Your contact details were sent to each other; time to get in touch"),
	StatusAwaitingFirstDateFeedback:  sharedLabel("Awaiting meeting feedback", "Meeting feedback", "Glad you met! Let us know how it went"),
	StatusThinkingAfterDate:          sharedLabel("Thinking after the meeting", "Thinking", "Time to digest the meeting and decide how to continue"),
	StatusProceedingToSecondDate:     sharedLabel("Proceeding to a second meeting", "Second meeting", "Great! You both want to keep getting to know each other"),
	StatusEndedAfterFirstDate:        sharedLabel("Ended after the first meeting", "Ended", "You decided not to continue, and that is perfectly fine"),
	StatusMeetingPending:             sharedLabel("Meeting pending", "Meeting pending", "The matchmaker is arranging a first meeting"),
	StatusMeetingScheduled:           sharedLabel("Meeting scheduled", "Meeting scheduled", "The first meeting is scheduled. Good luck!"),
	StatusMatchApproved:              sharedLabel("Match approved", "Approved", "The match was approved by both sides"),
	StatusMatchDeclined:              sharedLabel("Match declined", "Declined", "The match was declined"),
	StatusDating:                     sharedLabel("Dating", "Dating", "You are getting to know each other. Good luck!"),
	StatusEngaged:                    sharedLabel("Engaged", "Engaged", "Congratulations on the engagement!"),
	StatusMarried:                    sharedLabel("Married", "Married", "Congratulations on the wedding!"),
	StatusExpired:                    sharedLabel("Expired", "Expired", "The suggestion expired without a response"),
	StatusClosed:                     sharedLabel("Closed", "Closed", "The suggestion was closed"),
	StatusCancelled:                  sharedLabel("Cancelled", "Cancelled", "The suggestion was cancelled"),
}

// Render resolves the text of a status for a viewer
func Render(status Status, isFirstPartyViewer bool) Label {
	meta, _ := Meta(status)
	pair, ok := labels[status]
	if !ok {
		return Label{Label: string(status), ShortLabel: string(status), ActingParty: PartyNone}
	}

	t := pair.other
	if isFirstPartyViewer {
		t = pair.first
	}

	return Label{
		Label:       t.label,
		ShortLabel:  t.short,
		Description: t.description,
		ActingParty: meta.ActingParty,
		Category:    meta.Category,
		Pulse:       meta.IsUrgent,
	}
}

// PersonalizedMessage is the one-line status summary shown to a party.
// counterpartName may be empty.
func PersonalizedMessage(status Status, isFirstPartyViewer bool, counterpartName string) string {
	named := func(base string) string {
		if counterpartName == "" {
			return base
		}
		return fmt.Sprintf("%s (%s)", base, counterpartName)
	}

	switch status {
	case StatusPendingFirstParty:
		if isFirstPartyViewer {
			return "The suggestion is waiting for your decision"
		}
		return named("The suggestion was sent to the first party") + "; we will update you when they answer"
	case StatusPendingSecondParty:
		if isFirstPartyViewer {
			return named("The suggestion was sent to the second party") + "; we will update you when they answer"
		}
		return "The suggestion is waiting for your decision"
	case StatusSecondPartyApproved:
		if isFirstPartyViewer {
			return named("The second party") + " approved too! Contact details are coming soon"
		}
		return "You approved the suggestion; contact details are coming soon"
	case StatusContactDetailsShared:
		return "Contact details were shared. Time to get in touch and arrange a meeting!"
	}

	return Render(status, isFirstPartyViewer).Description
}
