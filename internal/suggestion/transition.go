// internal/suggestion/transition.go
// Transition engine: pure decision logic, no I/O.
// Transition returns the ordered list of steps one action causes; the caller
// applies all of them in a single transaction or none at all. Legality and
// chained moves come from the lifecycle statechart in machine.go.

package suggestion

import (
	"errors"
	"fmt"
)

// Role is how the acting user relates to a suggestion
type Role string

const (
	RoleFirstParty  Role = "first_party"
	RoleSecondParty Role = "second_party"
	RoleMatchmaker  Role = "matchmaker"
	RoleSystem      Role = "system"
	RoleOutsider    Role = "outsider"
)

// IsParty reports whether r is one of the two candidates
func (r Role) IsParty() bool {
	return r == RoleFirstParty || r == RoleSecondParty
}

// Action is what the actor asks for
type Action string

const (
	ActionApprove    Action = "approve"
	ActionDecline    Action = "decline"
	ActionInterested Action = "interested"
	ActionFeedback   Action = "feedback"
	ActionOverride   Action = "override"
	ActionExpire     Action = "expire"
)

// IsResponse reports whether a is accepted by respond
func (a Action) IsResponse() bool {
	return a == ActionApprove || a == ActionDecline || a == ActionInterested
}

// Notification template kinds emitted as side effects
const (
	TemplateSuggestionReceived = "suggestion_received"
	TemplateStatusChanged      = "suggestion_status_changed"
	TemplateDeclined           = "suggestion_declined"
	TemplateWaitlisted         = "suggestion_waitlisted"
	TemplateContactShared      = "contact_details_shared"
	TemplateFeedbackReceived   = "first_date_feedback"
	TemplateExpired            = "suggestion_expired"
)

// EffectKind names a side effect of a step
type EffectKind string

const (
	EffectNotify        EffectKind = "notify"
	EffectWaitlistJoin  EffectKind = "waitlist_join"
	EffectWaitlistLeave EffectKind = "waitlist_leave"
)

// SideEffect is work the orchestrator performs for a step.
// Recipient and Template are set only for EffectNotify.
type SideEffect struct {
	Kind      EffectKind
	Recipient Party
	Template  string
}

// Step is one status change
type Step struct {
	From    Status
	To      Status
	Reason  string
	Effects []SideEffect
}

// Decision is the accepted outcome of one action
type Decision struct {
	Steps []Step
}

// Final returns the status the suggestion ends on, or from when nothing changes
func (d *Decision) Final(from Status) Status {
	if len(d.Steps) == 0 {
		return from
	}
	return d.Steps[len(d.Steps)-1].To
}

// Changed reports whether the decision moves the status at all
func (d *Decision) Changed() bool {
	return len(d.Steps) > 0
}

// TransitionContext carries facts the engine cannot derive from the status
type TransitionContext struct {
	// FirstPartyApproved is true when the history log or the
	// first_party_approved_at timestamp shows a prior first-party approval
	FirstPartyApproved bool
	Feedback           FeedbackOutcome
	Target             Status
	Force              bool
}

// RejectionError is a typed refusal. Kind is one of the package sentinels.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func reject(kind error, format string, args ...interface{}) error {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a RejectionError and returns it
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

type ruleKey struct {
	from   Status
	role   Role
	action Action
}

// partyMoves lists every legal party response and the status it enters.
// Hand-offs that follow are automatic moves of the statechart.
var partyMoves = map[ruleKey]Status{
	{StatusPendingFirstParty, RoleFirstParty, ActionApprove}:    StatusFirstPartyApproved,
	{StatusPendingFirstParty, RoleFirstParty, ActionDecline}:    StatusFirstPartyDeclined,
	{StatusPendingFirstParty, RoleFirstParty, ActionInterested}: StatusFirstPartyInterested,
	{StatusFirstPartyInterested, RoleFirstParty, ActionApprove}: StatusFirstPartyApproved,
	{StatusFirstPartyInterested, RoleFirstParty, ActionDecline}: StatusFirstPartyDeclined,
	{StatusPendingSecondParty, RoleSecondParty, ActionApprove}:  StatusSecondPartyApproved,
	{StatusPendingSecondParty, RoleSecondParty, ActionDecline}:  StatusSecondPartyDeclined,
}

var feedbackTargets = map[FeedbackOutcome]Status{
	FeedbackSuccessContinue: StatusProceedingToSecondDate,
	FeedbackNeedTimeToThink: StatusThinkingAfterDate,
	FeedbackNotInterested:   StatusEndedAfterFirstDate,
}

var feedbackSources = map[Status]bool{
	StatusAwaitingFirstDateFeedback: true,
	StatusThinkingAfterDate:         true,
}

var expirable = map[Status]bool{
	StatusPendingFirstParty:  true,
	StatusPendingSecondParty: true,
}

// matchmakerGraph lists the moves offered to the matchmaker as next steps.
// Overrides outside this graph are still accepted.
var matchmakerGraph = map[Status][]Status{
	StatusDraft:                      {StatusPendingFirstParty, StatusCancelled},
	StatusPendingFirstParty:          {StatusCancelled},
	StatusFirstPartyInterested:       {StatusPendingFirstParty, StatusCancelled},
	StatusFirstPartyApproved:         {StatusPendingSecondParty, StatusCancelled},
	StatusFirstPartyDeclined:         {StatusClosed},
	StatusPendingSecondParty:         {StatusCancelled},
	StatusSecondPartyApproved:        {StatusContactDetailsShared, StatusCancelled},
	StatusSecondPartyDeclined:        {StatusClosed},
	StatusAwaitingMatchmakerApproval: {StatusContactDetailsShared, StatusCancelled},
	StatusContactDetailsShared:       {StatusAwaitingFirstDateFeedback, StatusMeetingPending, StatusCancelled},
	StatusAwaitingFirstDateFeedback:  {StatusThinkingAfterDate, StatusEndedAfterFirstDate, StatusCancelled},
	StatusThinkingAfterDate:          {StatusProceedingToSecondDate, StatusEndedAfterFirstDate, StatusCancelled},
	StatusProceedingToSecondDate:     {StatusDating, StatusCancelled},
	StatusMeetingPending:             {StatusMeetingScheduled, StatusCancelled},
	StatusMeetingScheduled:           {StatusAwaitingFirstDateFeedback, StatusDating, StatusCancelled},
	StatusMatchApproved:              {StatusDating, StatusCancelled},
	StatusDating:                     {StatusEngaged, StatusClosed, StatusCancelled},
	StatusEngaged:                    {StatusMarried, StatusCancelled},
}

// Transition decides what an action does to a suggestion in status current
func Transition(current Status, role Role, action Action, tc TransitionContext) (*Decision, error) {
	if !current.IsValid() {
		return nil, reject(ErrIllegalTransition, "unknown status %q", current)
	}

	mc := machineContext{Role: role, Force: tc.Force, FirstPartyApproved: tc.FirstPartyApproved}

	var steps []Step
	var err error

	switch action {
	case ActionApprove, ActionDecline, ActionInterested:
		steps, err = respondSteps(current, role, action, mc)
	case ActionFeedback:
		steps, err = feedbackSteps(current, role, tc.Feedback, mc)
	case ActionOverride:
		steps, err = overrideSteps(current, role, tc, mc)
	case ActionExpire:
		steps, err = expireSteps(current, role, mc)
	default:
		return nil, reject(ErrIllegalTransition, "unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	return &Decision{Steps: steps}, nil
}

func respondSteps(current Status, role Role, action Action, mc machineContext) ([]Step, error) {
	if !role.IsParty() {
		return nil, reject(ErrUnauthorized, "only the first or second party may respond")
	}
	if current.IsTerminal() {
		return nil, reject(ErrIllegalTransition, "suggestion is already final (%s)", current)
	}

	path, ok := walk(current, responseEvent(role, action), mc)
	if !ok {
		switch {
		case action == ActionInterested && role != RoleFirstParty:
			return nil, reject(ErrIllegalTransition, "only the first party can save a suggestion for later")
		case action == ActionInterested:
			return nil, reject(ErrIllegalTransition, "a suggestion can be saved for later only from %s", StatusPendingFirstParty)
		case hasRulesFor(current, role):
			return nil, reject(ErrIllegalTransition, "action %s is not allowed from %s", action, current)
		default:
			return nil, reject(ErrIllegalTransition, "not your turn: %s is waiting for %s", current, registry[current].ActingParty)
		}
	}

	first := Step{From: current, To: path[0], Reason: responseReason(role, action)}
	first.Effects = append(waitlistEffects(current, path[0]), notifyFor(path[0])...)

	return chain(first, path[1:]), nil
}

func feedbackSteps(current Status, role Role, outcome FeedbackOutcome, mc machineContext) ([]Step, error) {
	if !role.IsParty() {
		return nil, reject(ErrUnauthorized, "only the first or second party may give meeting feedback")
	}
	if !outcome.Valid() {
		return nil, reject(ErrIllegalTransition, "unknown feedback outcome %q", outcome)
	}
	if !feedbackSources[current] {
		return nil, reject(ErrIllegalTransition, "feedback is not expected while %s", current)
	}

	if feedbackTargets[outcome] == current {
		return nil, nil
	}

	path, ok := walk(current, feedbackEvent(outcome), mc)
	if !ok {
		return nil, reject(ErrIllegalTransition, "feedback %s is not accepted while %s", outcome, current)
	}

	side := "first"
	if role == RoleSecondParty {
		side = "second"
	}

	first := Step{
		From:    current,
		To:      path[0],
		Reason:  fmt.Sprintf("First date feedback received from %s party", side),
		Effects: append(notifyFor(path[0]), SideEffect{Kind: EffectNotify, Recipient: PartyMatchmaker, Template: TemplateFeedbackReceived}),
	}
	return chain(first, path[1:]), nil
}

func overrideSteps(current Status, role Role, tc TransitionContext, mc machineContext) ([]Step, error) {
	if role != RoleMatchmaker {
		return nil, reject(ErrUnauthorized, "only the suggestion's matchmaker may set its status")
	}
	if !tc.Target.IsValid() {
		return nil, reject(ErrIllegalTransition, "unknown target status %q", tc.Target)
	}
	if tc.Target == current {
		return nil, reject(ErrIllegalTransition, "suggestion is already %s", current)
	}
	if tc.Target == StatusFirstPartyInterested {
		return nil, reject(ErrIllegalTransition, "only the first party can add a suggestion to the waitlist")
	}
	if current.IsTerminal() && !tc.Force {
		return nil, reject(ErrIllegalTransition, "suggestion is final (%s); reopening requires force", current)
	}

	path, ok := walk(current, overrideEvent(tc.Target), mc)
	if !ok {
		return nil, reject(ErrIllegalTransition, "override from %s to %s is not allowed", current, tc.Target)
	}

	first := Step{
		From:    current,
		To:      path[0],
		Reason:  fmt.Sprintf("Status changed from %s to %s", current, path[0]),
		Effects: append(waitlistEffects(current, path[0]), notifyFor(path[0])...),
	}
	return chain(first, path[1:]), nil
}

func expireSteps(current Status, role Role, mc machineContext) ([]Step, error) {
	if role != RoleSystem {
		return nil, reject(ErrUnauthorized, "expiry is a system action")
	}
	if !expirable[current] || !accepts(current, eventExpire, mc) {
		return nil, reject(ErrIllegalTransition, "%s does not expire", current)
	}

	waiting := PartyFirst
	if current == StatusPendingSecondParty {
		waiting = PartySecond
	}

	return []Step{{
		From:   current,
		To:     StatusExpired,
		Reason: "Response deadline passed",
		Effects: []SideEffect{
			{Kind: EffectNotify, Recipient: PartyMatchmaker, Template: TemplateExpired},
			{Kind: EffectNotify, Recipient: waiting, Template: TemplateExpired},
		},
	}}, nil
}

// chain appends the automatic moves that followed first
func chain(first Step, rest []Status) []Step {
	steps := []Step{first}
	from := first.To
	for _, to := range rest {
		steps = append(steps, Step{
			From:    from,
			To:      to,
			Reason:  automaticReason(from, to),
			Effects: append(waitlistEffects(from, to), notifyFor(to)...),
		})
		from = to
	}
	return steps
}

func automaticReason(from, to Status) string {
	switch {
	case from == StatusFirstPartyApproved && to == StatusPendingSecondParty:
		return "Automatic hand-off to the second party"
	case from == StatusSecondPartyApproved && to == StatusContactDetailsShared:
		return "Both parties approved"
	}
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}

func waitlistEffects(from, to Status) []SideEffect {
	switch {
	case to == StatusFirstPartyInterested && from != StatusFirstPartyInterested:
		return []SideEffect{{Kind: EffectWaitlistJoin}}
	case from == StatusFirstPartyInterested && to != StatusFirstPartyInterested:
		return []SideEffect{{Kind: EffectWaitlistLeave}}
	}
	return nil
}

func notifyFor(to Status) []SideEffect {
	n := func(p Party, tmpl string) SideEffect {
		return SideEffect{Kind: EffectNotify, Recipient: p, Template: tmpl}
	}

	switch to {
	case StatusPendingFirstParty:
		return []SideEffect{n(PartyFirst, TemplateSuggestionReceived)}
	case StatusPendingSecondParty:
		return []SideEffect{n(PartySecond, TemplateSuggestionReceived)}
	case StatusFirstPartyInterested:
		return []SideEffect{n(PartyMatchmaker, TemplateWaitlisted)}
	case StatusFirstPartyDeclined, StatusSecondPartyDeclined:
		return []SideEffect{n(PartyMatchmaker, TemplateDeclined)}
	case StatusFirstPartyApproved, StatusSecondPartyApproved:
		return []SideEffect{n(PartyMatchmaker, TemplateStatusChanged)}
	case StatusContactDetailsShared:
		return []SideEffect{
			n(PartyFirst, TemplateContactShared),
			n(PartySecond, TemplateContactShared),
			n(PartyMatchmaker, TemplateStatusChanged),
		}
	case StatusDraft:
		return nil
	}
	return []SideEffect{n(PartyBoth, TemplateStatusChanged)}
}

func responseReason(role Role, action Action) string {
	who := "First party"
	if role == RoleSecondParty {
		who = "Second party"
	}

	switch action {
	case ActionApprove:
		return who + " approved"
	case ActionDecline:
		return who + " declined"
	case ActionInterested:
		return who + " saved the suggestion for later"
	}
	return who + " responded"
}

func hasRulesFor(current Status, role Role) bool {
	for k := range partyMoves {
		if k.from == current && k.role == role {
			return true
		}
	}
	return false
}

// AvailableAction is an action a viewer may take right now
type AvailableAction struct {
	Action Action `json:"action"`
	Target Status `json:"target"`
}

// AvailableActions lists what viewerID may do with s
func AvailableActions(s *Suggestion, viewerID int64) []AvailableAction {
	role := s.RoleOf(viewerID)
	mc := machineContext{Role: role, FirstPartyApproved: s.FirstPartyApprovedAt != nil}
	var out []AvailableAction

	switch {
	case role.IsParty():
		for _, a := range []Action{ActionApprove, ActionDecline, ActionInterested} {
			if path, ok := walk(s.Status, responseEvent(role, a), mc); ok {
				out = append(out, AvailableAction{Action: a, Target: path[len(path)-1]})
			}
		}
		if feedbackSources[s.Status] {
			out = append(out, AvailableAction{Action: ActionFeedback})
		}
	case role == RoleMatchmaker:
		for _, t := range matchmakerGraph[s.Status] {
			out = append(out, AvailableAction{Action: ActionOverride, Target: t})
		}
	}

	return out
}
