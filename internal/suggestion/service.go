// internal/suggestion/service.go

package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("suggestion not found")
	ErrUnauthorized      = errors.New("not authorized for this suggestion")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("suggestion was modified concurrently")
	ErrActiveProcess     = errors.New("user is already in an active process")
	ErrInvalidInput      = errors.New("invalid input")
)

// DefaultDeadline is the response window when none is requested
const DefaultDeadline = 48 * time.Hour

const (
	statsScanLimit = 1000
	expiryBatch    = 500
)

// Notifier delivers one message to one user. Errors are logged by the
// service and never undo a committed transition.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, kind string, payload map[string]string) error
}

type Service interface {
	// Party actions
	Respond(ctx context.Context, id uuid.UUID, actorID int64, req *RespondRequest) (*RespondResult, error)
	SubmitFeedback(ctx context.Context, id uuid.UUID, actorID int64, req *FeedbackRequest) (*RespondResult, error)
	ReorderWaitlist(ctx context.Context, firstPartyID int64, order []uuid.UUID) ([]WaitlistEntry, error)

	// Matchmaker actions
	CreateSuggestion(ctx context.Context, matchmakerID int64, req *CreateSuggestionRequest) (*Suggestion, error)
	Override(ctx context.Context, id uuid.UUID, matchmakerID int64, req *OverrideRequest) (*RespondResult, error)
	UpdatePriority(ctx context.Context, id uuid.UUID, matchmakerID int64, priority Priority) (*Suggestion, error)

	// Reads
	Get(ctx context.Context, id uuid.UUID, viewerID int64) (*Suggestion, error)
	History(ctx context.Context, id uuid.UUID, viewerID int64) ([]*StatusHistoryEntry, error)
	ListForUser(ctx context.Context, viewerID int64, filter ListFilter) ([]*Suggestion, error)
	ListForMatchmaker(ctx context.Context, matchmakerID int64, filter ListFilter) ([]*Suggestion, error)
	Waitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error)
	UserStats(ctx context.Context, viewerID int64) (*UserStats, error)
	Urgent(ctx context.Context, viewerID int64) ([]*Suggestion, error)

	// Batch jobs
	ExpireOverdue(ctx context.Context, now time.Time) (*ExpiryReport, error)
	VerifyRanks(ctx context.Context) ([]RankViolation, error)
}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	DefaultDeadline time.Duration
	UrgentWindow    time.Duration
	NotifyTimeout   time.Duration
	Now             func() time.Time
}

// ExpiryReport summarizes one expiry sweep
type ExpiryReport struct {
	Checked int         `json:"checked"`
	Expired []uuid.UUID `json:"expired"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
}

// RankViolation is a first party whose waitlist ranks are not 1..N
type RankViolation struct {
	FirstPartyID int64  `json:"first_party_id"`
	Ranks        []int  `json:"ranks"`
	Problem      string `json:"problem"`
}

type service struct {
	repo     Repository
	notifier Notifier
	opts     Options
}

func NewService(repo Repository, notifier Notifier, opts Options) Service {
	if opts.DefaultDeadline <= 0 {
		opts.DefaultDeadline = DefaultDeadline
	}
	if opts.UrgentWindow <= 0 {
		opts.UrgentWindow = DefaultUrgentWindow
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &service{
		repo:     repo,
		notifier: notifier,
		opts:     opts,
	}
}

// outbound is a notification held until the transaction commits
type outbound struct {
	recipientID int64
	template    string
	payload     map[string]string
}

// note is the actor's free text attached to the first history entry
type note struct {
	reason string
	notes  string
}

func (s *service) Respond(ctx context.Context, id uuid.UUID, actorID int64, req *RespondRequest) (*RespondResult, error) {
	defer ObserveOperation("respond", time.Now())

	action := Action(req.Action)
	if !action.IsResponse() {
		err := reject(ErrInvalidInput, "unknown action %q", req.Action)
		RecordRejection("respond", err)
		return nil, err
	}

	pre, err := s.repo.Get(ctx, id)
	if err != nil {
		RecordRejection("respond", err)
		return nil, err
	}

	role := pre.RoleOf(actorID)
	if !role.IsParty() {
		err := reject(ErrUnauthorized, "user %d is not a party to suggestion %s", actorID, id)
		RecordRejection("respond", err)
		return nil, err
	}

	var (
		cur      *Suggestion
		decision *Decision
		queue    []outbound
	)
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cur, err = s.lockAndLoad(ctx, tx, pre); err != nil {
			return err
		}

		approved, err := s.firstPartyApproved(ctx, tx, cur)
		if err != nil {
			return err
		}

		decision, err = Transition(cur.Status, role, action, TransitionContext{FirstPartyApproved: approved})
		if err != nil {
			return err
		}

		if action == ActionApprove {
			// landing in an active process binds both parties
			busy := []int64{actorID}
			if decision.Final(cur.Status).IsActiveProcess() {
				busy = []int64{cur.FirstPartyID, cur.SecondPartyID}
			}
			if err := s.checkNotBusy(ctx, tx, cur.ID, busy...); err != nil {
				return err
			}
		}

		queue, err = s.apply(ctx, tx, cur, decision, note{reason: req.Reason, notes: req.Notes})
		return err
	})
	if err != nil {
		RecordRejection("respond", err)
		return nil, err
	}

	recordSteps(action, decision)
	s.dispatch(ctx, cur, queue)

	return resultOf(cur, decision), nil
}

func (s *service) SubmitFeedback(ctx context.Context, id uuid.UUID, actorID int64, req *FeedbackRequest) (*RespondResult, error) {
	defer ObserveOperation("feedback", time.Now())

	pre, err := s.repo.Get(ctx, id)
	if err != nil {
		RecordRejection("feedback", err)
		return nil, err
	}

	role := pre.RoleOf(actorID)
	if !role.IsParty() {
		err := reject(ErrUnauthorized, "user %d is not a party to suggestion %s", actorID, id)
		RecordRejection("feedback", err)
		return nil, err
	}

	outcome := FeedbackOutcome(req.Outcome)

	var (
		cur      *Suggestion
		decision *Decision
		queue    []outbound
	)
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cur, err = s.lockAndLoad(ctx, tx, pre); err != nil {
			return err
		}

		decision, err = Transition(cur.Status, role, ActionFeedback, TransitionContext{Feedback: outcome})
		if err != nil {
			return err
		}

		meeting, err := tx.LatestMeeting(ctx, cur.ID)
		if errors.Is(err, ErrNotFound) {
			return reject(ErrIllegalTransition, "no meeting on record for suggestion %s", cur.ID)
		}
		if err != nil {
			return err
		}

		recordFeedback(meeting, role, outcome, req.Notes, s.opts.Now())
		if err := tx.UpdateMeeting(ctx, meeting); err != nil {
			return err
		}

		if decision.Changed() {
			queue, err = s.apply(ctx, tx, cur, decision, note{notes: req.Notes})
			return err
		}

		cur.LastActivity = s.opts.Now()
		queue = append(queue, outbound{
			recipientID: cur.MatchmakerID,
			template:    TemplateFeedbackReceived,
			payload:     payloadFor(cur, cur.Status, cur.Status, cur.MatchmakerID),
		})
		return tx.Update(ctx, cur, cur.Version)
	})
	if err != nil {
		RecordRejection("feedback", err)
		return nil, err
	}

	recordSteps(ActionFeedback, decision)
	s.dispatch(ctx, cur, queue)

	return resultOf(cur, decision), nil
}

func (s *service) ReorderWaitlist(ctx context.Context, firstPartyID int64, order []uuid.UUID) ([]WaitlistEntry, error) {
	var next []WaitlistEntry
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		if err := tx.LockFirstParty(ctx, firstPartyID); err != nil {
			return err
		}

		entries, err := tx.ListWaitlist(ctx, firstPartyID)
		if err != nil {
			return err
		}

		next, err = Reorder(entries, order)
		if err != nil {
			return err
		}

		return tx.UpdateRanks(ctx, Changed(entries, next))
	})
	if err != nil {
		RecordRejection("reorder", err)
		return nil, err
	}

	return next, nil
}

func (s *service) CreateSuggestion(ctx context.Context, matchmakerID int64, req *CreateSuggestionRequest) (*Suggestion, error) {
	defer ObserveOperation("create", time.Now())

	sg, err := s.newSuggestion(matchmakerID, req)
	if err != nil {
		RecordRejection("create", err)
		return nil, err
	}

	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		low, high := sg.FirstPartyID, sg.SecondPartyID
		if low > high {
			low, high = high, low
		}
		for _, uid := range []int64{low, high} {
			if err := tx.LockParty(ctx, uid); err != nil {
				return err
			}
		}

		for _, uid := range []int64{sg.FirstPartyID, sg.SecondPartyID} {
			busy, err := tx.HasActiveProcess(ctx, uid, uuid.Nil)
			if err != nil {
				return err
			}
			if busy {
				return reject(ErrActiveProcess, "user %d is already in an active process", uid)
			}
		}

		open, err := tx.HasOpenPair(ctx, sg.FirstPartyID, sg.SecondPartyID)
		if err != nil {
			return err
		}
		if open {
			return reject(ErrConflict, "an open suggestion already exists between users %d and %d", sg.FirstPartyID, sg.SecondPartyID)
		}

		if err := tx.Insert(ctx, sg); err != nil {
			return err
		}

		return tx.AppendHistory(ctx, &StatusHistoryEntry{
			ID:           uuid.New(),
			SuggestionID: sg.ID,
			Status:       sg.Status,
			Reason:       strPtr("Initial creation"),
			Notes:        strPtr(fmt.Sprintf("Suggestion created by matchmaker %d", matchmakerID)),
			CreatedAt:    sg.CreatedAt,
		})
	})
	if err != nil {
		RecordRejection("create", err)
		return nil, err
	}

	suggestionsCreated.WithLabelValues(string(sg.Status)).Inc()

	if sg.Status == StatusPendingFirstParty {
		s.dispatch(ctx, sg, []outbound{{
			recipientID: sg.FirstPartyID,
			template:    TemplateSuggestionReceived,
			payload:     payloadFor(sg, StatusDraft, sg.Status, sg.FirstPartyID),
		}})
	}

	return sg, nil
}

func (s *service) newSuggestion(matchmakerID int64, req *CreateSuggestionRequest) (*Suggestion, error) {
	if req.FirstPartyID == req.SecondPartyID {
		return nil, reject(ErrInvalidInput, "first and second party must be different users")
	}
	if matchmakerID == req.FirstPartyID || matchmakerID == req.SecondPartyID {
		return nil, reject(ErrInvalidInput, "the matchmaker cannot be a party to the suggestion")
	}

	status := StatusDraft
	if req.Status != "" {
		status = Status(req.Status)
	}
	if status != StatusDraft && status != StatusPendingFirstParty {
		return nil, reject(ErrInvalidInput, "a suggestion starts as %s or %s", StatusDraft, StatusPendingFirstParty)
	}

	priority := PriorityMedium
	if req.Priority != "" {
		priority = Priority(req.Priority)
	}
	if !priority.Valid() {
		return nil, reject(ErrInvalidInput, "unknown priority %q", req.Priority)
	}

	window := s.opts.DefaultDeadline
	if req.DeadlineHours > 0 {
		window = time.Duration(req.DeadlineHours) * time.Hour
	}

	now := s.opts.Now()
	sg := &Suggestion{
		ID:            uuid.New(),
		MatchmakerID:  matchmakerID,
		FirstPartyID:  req.FirstPartyID,
		SecondPartyID: req.SecondPartyID,
		Status:        status,
		Priority:      priority,
		Notes: Notes{
			Internal:       req.InternalNotes,
			ForFirstParty:  req.FirstPartyNotes,
			ForSecondParty: req.SecondPartyNotes,
			MatchingReason: req.MatchingReason,
		},
		RequiresRabbinicApproval: req.RequiresRabbinicApproval,
		CreatedAt:                now,
		LastActivity:             now,
		LastStatusChange:         now,
		ResponseDeadline:         now.Add(window),
		Version:                  1,
	}

	decision := sg.ResponseDeadline
	if req.DecisionDeadline != nil {
		decision = *req.DecisionDeadline
	}
	sg.DecisionDeadline = &decision

	if status == StatusPendingFirstParty {
		sent := now
		sg.FirstPartySent = &sent
	}

	return sg, nil
}

// meetingTargets are the override targets that may carry a meeting date.
// Later feedback is recorded against that meeting.
var meetingTargets = map[Status]bool{
	StatusContactDetailsShared:      true,
	StatusMeetingScheduled:          true,
	StatusAwaitingFirstDateFeedback: true,
}

func (s *service) Override(ctx context.Context, id uuid.UUID, matchmakerID int64, req *OverrideRequest) (*RespondResult, error) {
	defer ObserveOperation("override", time.Now())

	pre, err := s.repo.Get(ctx, id)
	if err != nil {
		RecordRejection("override", err)
		return nil, err
	}

	if pre.RoleOf(matchmakerID) != RoleMatchmaker {
		err := reject(ErrUnauthorized, "user %d is not the matchmaker of suggestion %s", matchmakerID, id)
		RecordRejection("override", err)
		return nil, err
	}

	target := Status(req.Status)
	if req.MeetingDate != nil && !meetingTargets[target] {
		err := reject(ErrInvalidInput, "meeting_date can only be set when moving to %s, %s or %s",
			StatusContactDetailsShared, StatusMeetingScheduled, StatusAwaitingFirstDateFeedback)
		RecordRejection("override", err)
		return nil, err
	}

	var (
		cur      *Suggestion
		decision *Decision
		queue    []outbound
	)
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cur, err = s.lockAndLoad(ctx, tx, pre); err != nil {
			return err
		}

		approved, err := s.firstPartyApproved(ctx, tx, cur)
		if err != nil {
			return err
		}

		decision, err = Transition(cur.Status, RoleMatchmaker, ActionOverride, TransitionContext{
			FirstPartyApproved: approved,
			Target:             target,
			Force:              req.Force,
		})
		if err != nil {
			return err
		}

		if req.MeetingDate != nil {
			err := tx.InsertMeeting(ctx, &Meeting{
				ID:            uuid.New(),
				SuggestionID:  cur.ID,
				ScheduledDate: *req.MeetingDate,
				Feedback:      FeedbackPayload{},
				CreatedAt:     s.opts.Now(),
			})
			if err != nil {
				return err
			}
		}

		queue, err = s.apply(ctx, tx, cur, decision, note{reason: req.Reason, notes: req.Notes})
		return err
	})
	if err != nil {
		RecordRejection("override", err)
		return nil, err
	}

	recordSteps(ActionOverride, decision)
	s.dispatch(ctx, cur, queue)

	return resultOf(cur, decision), nil
}

func (s *service) UpdatePriority(ctx context.Context, id uuid.UUID, matchmakerID int64, priority Priority) (*Suggestion, error) {
	if !priority.Valid() {
		return nil, reject(ErrInvalidInput, "unknown priority %q", priority)
	}

	pre, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pre.RoleOf(matchmakerID) != RoleMatchmaker {
		return nil, reject(ErrUnauthorized, "user %d is not the matchmaker of suggestion %s", matchmakerID, id)
	}

	var cur *Suggestion
	err = s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cur, err = s.lockAndLoad(ctx, tx, pre); err != nil {
			return err
		}

		cur.Priority = priority
		cur.LastActivity = s.opts.Now()
		return tx.Update(ctx, cur, cur.Version)
	})
	if err != nil {
		RecordRejection("priority", err)
		return nil, err
	}

	return cur, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, viewerID int64) (*Suggestion, error) {
	sg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(sg, viewerID); err != nil {
		return nil, err
	}
	return sg, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID, viewerID int64) ([]*StatusHistoryEntry, error) {
	if _, err := s.Get(ctx, id, viewerID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *service) ListForUser(ctx context.Context, viewerID int64, filter ListFilter) ([]*Suggestion, error) {
	return s.repo.ListForUser(ctx, viewerID, filter)
}

func (s *service) ListForMatchmaker(ctx context.Context, matchmakerID int64, filter ListFilter) ([]*Suggestion, error) {
	return s.repo.ListForMatchmaker(ctx, matchmakerID, filter)
}

func (s *service) Waitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error) {
	return s.repo.ListWaitlist(ctx, firstPartyID)
}

func (s *service) UserStats(ctx context.Context, viewerID int64) (*UserStats, error) {
	list, err := s.repo.ListForUser(ctx, viewerID, ListFilter{Limit: statsScanLimit})
	if err != nil {
		return nil, err
	}

	stats := CalculateUserStats(list, viewerID, s.opts.Now(), s.opts.UrgentWindow)
	return &stats, nil
}

func (s *service) Urgent(ctx context.Context, viewerID int64) ([]*Suggestion, error) {
	list, err := s.repo.ListForUser(ctx, viewerID, ListFilter{Limit: statsScanLimit})
	if err != nil {
		return nil, err
	}
	return UrgentFor(list, viewerID, s.opts.Now(), s.opts.UrgentWindow), nil
}

func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (*ExpiryReport, error) {
	overdue, err := s.repo.ListOverdue(ctx, now, expiryBatch)
	if err != nil {
		return nil, err
	}

	report := &ExpiryReport{Checked: len(overdue), Expired: []uuid.UUID{}}
	for _, pre := range overdue {
		expired, err := s.expireOne(ctx, pre, now)
		switch {
		case err != nil:
			log.Printf("⚠️  Failed to expire suggestion %s: %v", pre.ID, err)
			report.Failed++
		case expired:
			report.Expired = append(report.Expired, pre.ID)
		default:
			report.Skipped++
		}
	}

	return report, nil
}

func (s *service) expireOne(ctx context.Context, pre *Suggestion, now time.Time) (bool, error) {
	var (
		cur      *Suggestion
		decision *Decision
		queue    []outbound
	)
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if cur, err = s.lockAndLoad(ctx, tx, pre); err != nil {
			return err
		}
		if !expirable[cur.Status] || !cur.ResponseDeadline.Before(now) {
			return nil
		}

		decision, err = Transition(cur.Status, RoleSystem, ActionExpire, TransitionContext{})
		if err != nil {
			return err
		}

		queue, err = s.apply(ctx, tx, cur, decision, note{})
		return err
	})
	if err != nil || decision == nil {
		return false, err
	}

	expiredTotal.Inc()
	recordSteps(ActionExpire, decision)
	s.dispatch(ctx, cur, queue)
	return true, nil
}

func (s *service) VerifyRanks(ctx context.Context) ([]RankViolation, error) {
	parties, err := s.repo.WaitlistedFirstParties(ctx)
	if err != nil {
		return nil, err
	}

	var out []RankViolation
	for _, id := range parties {
		entries, err := s.repo.ListWaitlist(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := VerifyDense(entries); err != nil {
			ranks := make([]int, len(entries))
			for i, e := range entries {
				ranks[i] = e.Rank
			}
			out = append(out, RankViolation{FirstPartyID: id, Ranks: ranks, Problem: err.Error()})
		}
	}
	return out, nil
}

// lockAndLoad takes the first-party lock, then the row lock, and checks
// that the row has not moved since pre was read
func (s *service) lockAndLoad(ctx context.Context, tx Tx, pre *Suggestion) (*Suggestion, error) {
	if err := tx.LockFirstParty(ctx, pre.FirstPartyID); err != nil {
		return nil, err
	}

	cur, err := tx.GetForUpdate(ctx, pre.ID)
	if err != nil {
		return nil, err
	}
	if cur.Version != pre.Version {
		return nil, reject(ErrConflict, "suggestion %s changed since it was read; reload and retry", pre.ID)
	}
	return cur, nil
}

func (s *service) firstPartyApproved(ctx context.Context, tx Tx, cur *Suggestion) (bool, error) {
	if cur.FirstPartyApprovedAt != nil {
		return true, nil
	}
	return tx.HasHistoryStatus(ctx, cur.ID, StatusFirstPartyApproved)
}

// checkNotBusy locks userIDs in ascending order, then rejects when any of
// them is active in a suggestion other than exclude
func (s *service) checkNotBusy(ctx context.Context, tx Tx, exclude uuid.UUID, userIDs ...int64) error {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := tx.LockParty(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		busy, err := tx.HasActiveProcess(ctx, id, exclude)
		if err != nil {
			return err
		}
		if busy {
			return reject(ErrActiveProcess, "user %d already has another suggestion in progress", id)
		}
	}
	return nil
}

// apply writes every step of d to cur inside tx and returns the
// notifications to send after commit
func (s *service) apply(ctx context.Context, tx Tx, cur *Suggestion, d *Decision, n note) ([]outbound, error) {
	now := s.opts.Now()
	expected := cur.Version

	var (
		siblings []WaitlistEntry
		queue    []outbound
	)

	for i, step := range d.Steps {
		// chained steps get distinct, ordered timestamps
		at := now.Add(time.Duration(i) * time.Microsecond)

		for _, eff := range step.Effects {
			switch eff.Kind {
			case EffectWaitlistJoin:
				entries, err := tx.ListWaitlist(ctx, cur.FirstPartyID)
				if err != nil {
					return nil, err
				}
				cur.Waitlist = &WaitlistInfo{Rank: NextRank(entries), InterestedAt: at}
			case EffectWaitlistLeave:
				entries, err := tx.ListWaitlist(ctx, cur.FirstPartyID)
				if err != nil {
					return nil, err
				}
				siblings = Changed(entries, Without(entries, cur.ID))
				cur.Waitlist = nil
			}
		}

		s.enter(cur, step.To, at)

		entry := &StatusHistoryEntry{
			ID:           uuid.New(),
			SuggestionID: cur.ID,
			Status:       step.To,
			Reason:       strPtr(step.Reason),
			Notes:        strPtr(fmt.Sprintf("Status changed from %s to %s", step.From, step.To)),
			CreatedAt:    at,
		}
		if i == 0 && n.reason != "" {
			entry.Reason = strPtr(n.reason)
		}
		if i == 0 && n.notes != "" {
			entry.Notes = strPtr(n.notes)
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return nil, err
		}

		queue = append(queue, notificationsFor(cur, step)...)
	}

	if err := tx.Update(ctx, cur, expected); err != nil {
		return nil, err
	}
	if len(siblings) > 0 {
		if err := tx.UpdateRanks(ctx, siblings); err != nil {
			return nil, err
		}
	}

	return queue, nil
}

// enter moves cur to status to and stamps the timestamps that status implies
func (s *service) enter(cur *Suggestion, to Status, at time.Time) {
	prev := cur.Status
	cur.PreviousStatus = &prev
	cur.Status = to
	cur.LastActivity = at
	cur.LastStatusChange = at

	t := at
	switch to {
	case StatusPendingFirstParty:
		cur.FirstPartySent = &t
		cur.ResponseDeadline = at.Add(s.opts.DefaultDeadline)
	case StatusFirstPartyApproved:
		cur.FirstPartyResponded = &t
		cur.FirstPartyApprovedAt = &t
	case StatusFirstPartyDeclined, StatusFirstPartyInterested:
		cur.FirstPartyResponded = &t
	case StatusPendingSecondParty:
		cur.SecondPartySent = &t
		cur.ResponseDeadline = at.Add(s.opts.DefaultDeadline)
	case StatusSecondPartyApproved, StatusSecondPartyDeclined:
		cur.SecondPartyResponded = &t
	}

	if to.IsTerminal() {
		cur.ClosedAt = &t
	} else {
		cur.ClosedAt = nil
	}
	if to != StatusFirstPartyInterested {
		cur.Waitlist = nil
	}
}

func (s *service) dispatch(ctx context.Context, sg *Suggestion, queue []outbound) {
	if s.notifier == nil || len(queue) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()

	for _, n := range queue {
		if err := s.notifier.Notify(ctx, n.recipientID, n.template, n.payload); err != nil {
			RecordNotificationFailure(n.template)
			log.Printf("⚠️  Notification %s to user %d for suggestion %s failed: %v", n.template, n.recipientID, sg.ID, err)
		}
	}
}

func notificationsFor(sg *Suggestion, step Step) []outbound {
	var out []outbound
	for _, eff := range step.Effects {
		if eff.Kind != EffectNotify {
			continue
		}
		for _, rid := range recipients(sg, eff.Recipient) {
			out = append(out, outbound{
				recipientID: rid,
				template:    eff.Template,
				payload:     payloadFor(sg, step.From, step.To, rid),
			})
		}
	}
	return out
}

// recipients resolves a party to user ids. The second party is only
// addressed once the suggestion has been sent to them.
func recipients(sg *Suggestion, p Party) []int64 {
	second := func() []int64 {
		if sg.SecondPartySent == nil {
			return nil
		}
		return []int64{sg.SecondPartyID}
	}

	switch p {
	case PartyFirst:
		return []int64{sg.FirstPartyID}
	case PartySecond:
		return second()
	case PartyMatchmaker:
		return []int64{sg.MatchmakerID}
	case PartyBoth:
		return append([]int64{sg.FirstPartyID}, second()...)
	}
	return nil
}

func payloadFor(sg *Suggestion, from, to Status, recipientID int64) map[string]string {
	notes := NotesFor(sg, recipientID)
	payload := map[string]string{
		"suggestion_id":     sg.ID.String(),
		"status":            string(to),
		"previous_status":   string(from),
		"status_label":      Render(to, recipientID == sg.FirstPartyID).Label,
		"recipient_role":    string(sg.RoleOf(recipientID)),
		"response_deadline": sg.ResponseDeadline.Format(time.RFC3339),
		"matchmaker_id":     strconv.FormatInt(sg.MatchmakerID, 10),
	}
	if notes.MatchingReason != "" {
		payload["matching_reason"] = notes.MatchingReason
	}
	if n := notes.ForFirstParty + notes.ForSecondParty; n != "" && recipientID != sg.MatchmakerID {
		payload["personal_note"] = n
	}
	return payload
}

func recordFeedback(m *Meeting, role Role, outcome FeedbackOutcome, notes string, at time.Time) {
	o := outcome
	key := "first_party"
	if role == RoleSecondParty {
		key = "second_party"
		m.SecondPartyFeedbackStatus = &o
	} else {
		m.FirstPartyFeedbackStatus = &o
	}

	if m.Feedback == nil {
		m.Feedback = FeedbackPayload{}
	}
	m.Feedback[key] = PartyFeedback{Status: outcome, Notes: notes, SubmittedAt: at}
}

func checkVisible(sg *Suggestion, viewerID int64) error {
	if sg.RoleOf(viewerID) == RoleOutsider {
		return reject(ErrUnauthorized, "user %d is not part of suggestion %s", viewerID, sg.ID)
	}
	if !sg.VisibleTo(viewerID) {
		return ErrNotFound
	}
	return nil
}

func recordSteps(action Action, d *Decision) {
	if d == nil {
		return
	}
	for _, step := range d.Steps {
		RecordTransition(action, step.To)
	}
}

func resultOf(sg *Suggestion, d *Decision) *RespondResult {
	res := &RespondResult{
		ID:               sg.ID,
		Status:           sg.Status,
		LastStatusChange: sg.LastStatusChange,
	}
	if d != nil {
		for _, step := range d.Steps {
			res.Steps = append(res.Steps, step.To)
		}
	}
	return res
}

func strPtr(s string) *string {
	return &s
}
