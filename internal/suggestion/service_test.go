package suggestion

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

const matchmaker int64 = 1

var epoch = time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)

type sent struct {
	to      int64
	kind    string
	payload map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, recipientID int64, kind string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{recipientID, kind, payload})
	return n.err
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

func (n *recordingNotifier) got(to int64, kind string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sent {
		if s.to == to && s.kind == kind {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) anyTo(to int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sent {
		if s.to == to {
			return true
		}
	}
	return false
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one millisecond per call
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	repo     *MemoryRepository
	notifier *recordingNotifier
	clock    *clock
	svc      Service
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepository(),
		notifier: &recordingNotifier{},
		clock:    &clock{t: epoch},
		ctx:      context.Background(),
	}
	f.svc = NewService(f.repo, f.notifier, Options{Now: f.clock.Now})
	return f
}

func (f *fixture) create(t *testing.T, first, second int64) *Suggestion {
	t.Helper()
	sg, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{
		FirstPartyID:  first,
		SecondPartyID: second,
		Status:        string(StatusPendingFirstParty),
	})
	if err != nil {
		t.Fatalf("CreateSuggestion(%d, %d): %v", first, second, err)
	}
	return sg
}

func (f *fixture) respond(t *testing.T, id uuid.UUID, actor int64, action Action) *RespondResult {
	t.Helper()
	res, err := f.svc.Respond(f.ctx, id, actor, &RespondRequest{Action: string(action)})
	if err != nil {
		t.Fatalf("Respond(%s by %d): %v", action, actor, err)
	}
	return res
}

func (f *fixture) override(t *testing.T, id uuid.UUID, req *OverrideRequest) *RespondResult {
	t.Helper()
	res, err := f.svc.Override(f.ctx, id, matchmaker, req)
	if err != nil {
		t.Fatalf("Override(%s): %v", req.Status, err)
	}
	return res
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *Suggestion {
	t.Helper()
	sg, err := f.repo.Get(f.ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return sg
}

func (f *fixture) rank(t *testing.T, id uuid.UUID) int {
	t.Helper()
	sg := f.load(t, id)
	if sg.Waitlist == nil {
		return 0
	}
	return sg.Waitlist.Rank
}

func historyStatuses(h []*StatusHistoryEntry) []Status {
	out := make([]Status, len(h))
	for i, e := range h {
		out[i] = e.Status
	}
	return out
}

func TestInterestedAssignsNextRank(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)

	res := f.respond(t, s1.ID, 10, ActionInterested)
	if res.Status != StatusFirstPartyInterested {
		t.Fatalf("status = %s", res.Status)
	}
	f.respond(t, s2.ID, 10, ActionInterested)

	if r := f.rank(t, s1.ID); r != 1 {
		t.Errorf("first waitlisted rank = %d, want 1", r)
	}
	if r := f.rank(t, s2.ID); r != 2 {
		t.Errorf("second waitlisted rank = %d, want 2", r)
	}

	if !f.notifier.got(matchmaker, TemplateWaitlisted) {
		t.Error("matchmaker was not told about the waitlist")
	}

	list, err := f.svc.Waitlist(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].SuggestionID != s1.ID {
		t.Errorf("Waitlist = %+v", list)
	}
}

func TestLeavingWaitlistCompactsRanks(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)
	s3 := f.create(t, 10, 40)
	for _, s := range []*Suggestion{s1, s2, s3} {
		f.respond(t, s.ID, 10, ActionInterested)
	}

	f.respond(t, s2.ID, 10, ActionDecline)

	if r := f.rank(t, s1.ID); r != 1 {
		t.Errorf("s1 rank = %d, want 1", r)
	}
	if r := f.rank(t, s3.ID); r != 2 {
		t.Errorf("s3 rank = %d, want 2", r)
	}
	declined := f.load(t, s2.ID)
	if declined.Waitlist != nil || declined.Status != StatusFirstPartyDeclined {
		t.Errorf("declined suggestion = %s with waitlist %+v", declined.Status, declined.Waitlist)
	}

	violations, err := f.svc.VerifyRanks(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 0 {
		t.Errorf("VerifyRanks = %+v", violations)
	}
}

func TestFullApprovalSharesContactDetails(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	if !f.notifier.got(10, TemplateSuggestionReceived) {
		t.Error("first party was not told about the new suggestion")
	}

	res := f.respond(t, sg.ID, 10, ActionApprove)
	if want := []Status{StatusFirstPartyApproved, StatusPendingSecondParty}; !reflect.DeepEqual(res.Steps, want) {
		t.Errorf("first approve steps = %v, want %v", res.Steps, want)
	}
	if !f.notifier.got(20, TemplateSuggestionReceived) {
		t.Error("second party was not told about the suggestion")
	}

	res = f.respond(t, sg.ID, 20, ActionApprove)
	if res.Status != StatusContactDetailsShared {
		t.Fatalf("final status = %s, want CONTACT_DETAILS_SHARED", res.Status)
	}

	for _, uid := range []int64{10, 20} {
		if !f.notifier.got(uid, TemplateContactShared) {
			t.Errorf("user %d was not sent contact details", uid)
		}
	}

	cur := f.load(t, sg.ID)
	if cur.FirstPartyApprovedAt == nil || cur.SecondPartyResponded == nil || cur.SecondPartySent == nil {
		t.Errorf("response timestamps not stamped: %+v", cur)
	}
	if cur.PreviousStatus == nil || *cur.PreviousStatus != StatusSecondPartyApproved {
		t.Errorf("PreviousStatus = %v", cur.PreviousStatus)
	}
	if cur.Version != 3 {
		t.Errorf("Version = %d, want 3", cur.Version)
	}

	history, err := f.svc.History(f.ctx, sg.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []Status{
		StatusPendingFirstParty,
		StatusFirstPartyApproved,
		StatusPendingSecondParty,
		StatusSecondPartyApproved,
		StatusContactDetailsShared,
	}
	if got := historyStatuses(history); !reflect.DeepEqual(got, want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := 1; i < len(history); i++ {
		if !history[i].CreatedAt.After(history[i-1].CreatedAt) {
			t.Errorf("history[%d] at %s is not after %s", i, history[i].CreatedAt, history[i-1].CreatedAt)
		}
	}
	if *history[0].Reason != "Initial creation" {
		t.Errorf("creation reason = %q", *history[0].Reason)
	}
	if *history[4].Reason != "Both parties approved" {
		t.Errorf("escalation reason = %q", *history[4].Reason)
	}
	if *history[2].Notes != "Status changed from FIRST_PARTY_APPROVED to PENDING_SECOND_PARTY" {
		t.Errorf("default note = %q", *history[2].Notes)
	}
}

func TestResponseNotesOnFirstStepOnly(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	_, err := f.svc.Respond(f.ctx, sg.ID, 10, &RespondRequest{Action: "approve", Reason: "Great fit", Notes: "Looking forward"})
	if err != nil {
		t.Fatal(err)
	}

	history, _ := f.repo.History(f.ctx, sg.ID)
	if len(history) != 3 {
		t.Fatalf("history len = %d", len(history))
	}
	if *history[1].Reason != "Great fit" || *history[1].Notes != "Looking forward" {
		t.Errorf("first step = %q / %q", *history[1].Reason, *history[1].Notes)
	}
	if *history[2].Reason == "Great fit" || *history[2].Notes == "Looking forward" {
		t.Error("actor text copied onto the chained step")
	}
}

func TestSecondPartyDeclineIsFinal(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	f.respond(t, sg.ID, 10, ActionApprove)
	res := f.respond(t, sg.ID, 20, ActionDecline)
	if res.Status != StatusSecondPartyDeclined {
		t.Fatalf("status = %s", res.Status)
	}
	if !f.notifier.got(matchmaker, TemplateDeclined) {
		t.Error("matchmaker was not told about the decline")
	}
	if cur := f.load(t, sg.ID); cur.ClosedAt == nil {
		t.Error("ClosedAt not set on a final status")
	}

	for _, actor := range []int64{10, 20} {
		for _, action := range []Action{ActionApprove, ActionDecline} {
			_, err := f.svc.Respond(f.ctx, sg.ID, actor, &RespondRequest{Action: string(action)})
			if !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("%s by %d after decline: err = %v, want ErrIllegalTransition", action, actor, err)
			}
		}
	}
}

func TestRespondRejections(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	tests := []struct {
		name    string
		actor   int64
		action  string
		wantErr error
	}{
		{"second party out of turn", 20, "approve", ErrIllegalTransition},
		{"outsider", 99, "approve", ErrUnauthorized},
		{"matchmaker", matchmaker, "approve", ErrUnauthorized},
		{"unknown action", 10, "maybe", ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Respond(f.ctx, sg.ID, tt.actor, &RespondRequest{Action: tt.action})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := f.svc.Respond(f.ctx, uuid.New(), 10, &RespondRequest{Action: "approve"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing suggestion err = %v", err)
	}
	if cur := f.load(t, sg.ID); cur.Status != StatusPendingFirstParty || cur.Version != 1 {
		t.Errorf("rejected calls changed the suggestion: %s v%d", cur.Status, cur.Version)
	}
}

func TestReplayedResponseIsRejected(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	f.respond(t, sg.ID, 10, ActionApprove)
	before, _ := f.repo.History(f.ctx, sg.ID)

	_, err := f.svc.Respond(f.ctx, sg.ID, 10, &RespondRequest{Action: "approve"})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("replay err = %v, want ErrIllegalTransition", err)
	}

	after, _ := f.repo.History(f.ctx, sg.ID)
	if len(after) != len(before) {
		t.Errorf("replay appended history: %d -> %d", len(before), len(after))
	}
}

func TestConcurrentResponsesOneWinner(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	for i := 0; i < n; i++ {
		action := ActionApprove
		if i%2 == 1 {
			action = ActionDecline
		}
		wg.Add(1)
		go func(a Action) {
			defer wg.Done()
			_, err := f.svc.Respond(f.ctx, sg.ID, 10, &RespondRequest{Action: string(a)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			errs = append(errs, err)
		}(action)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d responses succeeded, want exactly 1", winners)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("loser err = %v, want conflict or illegal transition", err)
		}
	}

	cur := f.load(t, sg.ID)
	if cur.Version != 2 {
		t.Errorf("Version = %d, want 2", cur.Version)
	}
}

func TestStaleReadIsConflict(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)
	stale := f.load(t, sg.ID)

	f.respond(t, sg.ID, 10, ActionInterested)

	err := f.repo.RunInTx(f.ctx, func(tx Tx) error {
		_, err := f.svc.(*service).lockAndLoad(f.ctx, tx, stale)
		return err
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("lockAndLoad on stale read = %v, want ErrConflict", err)
	}
}

func TestNotificationFailureDoesNotUndoTransition(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)
	f.notifier.err = errors.New("smtp down")

	res, err := f.svc.Respond(f.ctx, sg.ID, 10, &RespondRequest{Action: "decline"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Status != StatusFirstPartyDeclined {
		t.Errorf("status = %s", res.Status)
	}
	if cur := f.load(t, sg.ID); cur.Status != StatusFirstPartyDeclined {
		t.Errorf("stored status = %s", cur.Status)
	}
}

func TestSecondPartyNotAddressedBeforeSent(t *testing.T) {
	f := newFixture(t)
	sg, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{FirstPartyID: 10, SecondPartyID: 20})
	if err != nil {
		t.Fatal(err)
	}
	if sg.Status != StatusDraft {
		t.Fatalf("default status = %s, want DRAFT", sg.Status)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("draft creation sent %d notifications", len(f.notifier.sent))
	}

	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusCancelled)})
	if f.notifier.anyTo(20) {
		t.Error("second party notified about a suggestion never sent to them")
	}
	if !f.notifier.got(10, TemplateStatusChanged) {
		t.Error("first party not notified about the cancellation")
	}
}

func TestFeedbackFlow(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)
	f.respond(t, sg.ID, 10, ActionApprove)
	f.respond(t, sg.ID, 20, ActionApprove)

	meetingAt := epoch.Add(7 * 24 * time.Hour)
	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusMeetingScheduled), MeetingDate: &meetingAt})
	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusAwaitingFirstDateFeedback)})

	res, err := f.svc.SubmitFeedback(f.ctx, sg.ID, 10, &FeedbackRequest{Outcome: string(FeedbackNeedTimeToThink), Notes: "Nice evening"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusThinkingAfterDate {
		t.Fatalf("status = %s, want THINKING_AFTER_DATE", res.Status)
	}

	f.notifier.reset()
	version := f.load(t, sg.ID).Version
	res, err = f.svc.SubmitFeedback(f.ctx, sg.ID, 20, &FeedbackRequest{Outcome: string(FeedbackNeedTimeToThink)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusThinkingAfterDate || len(res.Steps) != 0 {
		t.Errorf("same-status feedback moved the suggestion: %+v", res)
	}
	if !f.notifier.got(matchmaker, TemplateFeedbackReceived) {
		t.Error("matchmaker not told about same-status feedback")
	}
	if v := f.load(t, sg.ID).Version; v != version+1 {
		t.Errorf("Version = %d, want %d", v, version+1)
	}

	res, err = f.svc.SubmitFeedback(f.ctx, sg.ID, 20, &FeedbackRequest{Outcome: string(FeedbackSuccessContinue)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusProceedingToSecondDate {
		t.Errorf("status = %s, want PROCEEDING_TO_SECOND_DATE", res.Status)
	}

	var m *Meeting
	err = f.repo.RunInTx(f.ctx, func(tx Tx) error {
		var err error
		m, err = tx.LatestMeeting(f.ctx, sg.ID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.FirstPartyFeedbackStatus == nil || *m.FirstPartyFeedbackStatus != FeedbackNeedTimeToThink {
		t.Errorf("first party feedback = %v", m.FirstPartyFeedbackStatus)
	}
	if m.SecondPartyFeedbackStatus == nil || *m.SecondPartyFeedbackStatus != FeedbackSuccessContinue {
		t.Errorf("second party feedback = %v", m.SecondPartyFeedbackStatus)
	}
	if m.Feedback["first_party"].Notes != "Nice evening" {
		t.Errorf("feedback payload = %+v", m.Feedback)
	}
}

func TestFeedbackRequiresMeeting(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)
	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusAwaitingFirstDateFeedback)})

	_, err := f.svc.SubmitFeedback(f.ctx, sg.ID, 10, &FeedbackRequest{Outcome: string(FeedbackSuccessContinue)})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("err = %v, want ErrIllegalTransition", err)
	}
	if cur := f.load(t, sg.ID); cur.Status != StatusAwaitingFirstDateFeedback {
		t.Errorf("status moved to %s", cur.Status)
	}
}

func TestOverrideRecordsMeetingDate(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)
	f.respond(t, sg.ID, 10, ActionApprove)
	f.respond(t, sg.ID, 20, ActionApprove)

	meetingAt := epoch.Add(3 * 24 * time.Hour)
	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusAwaitingFirstDateFeedback), MeetingDate: &meetingAt})

	res, err := f.svc.SubmitFeedback(f.ctx, sg.ID, 10, &FeedbackRequest{Outcome: string(FeedbackSuccessContinue)})
	if err != nil {
		t.Fatalf("feedback after dated override: %v", err)
	}
	if res.Status != StatusProceedingToSecondDate {
		t.Errorf("status = %s, want PROCEEDING_TO_SECOND_DATE", res.Status)
	}

	var m *Meeting
	err = f.repo.RunInTx(f.ctx, func(tx Tx) error {
		var err error
		m, err = tx.LatestMeeting(f.ctx, sg.ID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !m.ScheduledDate.Equal(meetingAt) {
		t.Errorf("meeting date = %v, want %v", m.ScheduledDate, meetingAt)
	}
}

func TestOverrideRejectsStrayMeetingDate(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 30, 40)

	meetingAt := epoch.Add(24 * time.Hour)
	for _, target := range []Status{StatusCancelled, StatusDating, StatusPendingSecondParty} {
		t.Run(string(target), func(t *testing.T) {
			_, err := f.svc.Override(f.ctx, sg.ID, matchmaker, &OverrideRequest{Status: string(target), MeetingDate: &meetingAt})
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if cur := f.load(t, sg.ID); cur.Status != StatusPendingFirstParty {
		t.Errorf("status moved to %s", cur.Status)
	}
}

func TestOverride(t *testing.T) {
	f := newFixture(t)
	sg, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{FirstPartyID: 10, SecondPartyID: 20, DeadlineHours: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Override(f.ctx, sg.ID, 10, &OverrideRequest{Status: "CANCELLED"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("party override err = %v", err)
	}

	f.clock.Advance(3 * time.Hour)
	res := f.override(t, sg.ID, &OverrideRequest{Status: string(StatusPendingFirstParty), Reason: "Ready to send"})
	if res.Status != StatusPendingFirstParty {
		t.Fatalf("status = %s", res.Status)
	}
	cur := f.load(t, sg.ID)
	if cur.FirstPartySent == nil || !cur.ResponseDeadline.After(cur.FirstPartySent.Add(47*time.Hour)) {
		t.Errorf("sending did not reset the deadline: sent %v deadline %v", cur.FirstPartySent, cur.ResponseDeadline)
	}
	if !f.notifier.got(10, TemplateSuggestionReceived) {
		t.Error("first party not told when the draft was sent")
	}

	f.override(t, sg.ID, &OverrideRequest{Status: string(StatusClosed)})
	if _, err := f.svc.Override(f.ctx, sg.ID, matchmaker, &OverrideRequest{Status: string(StatusDating)}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("reopen without force err = %v", err)
	}

	res = f.override(t, sg.ID, &OverrideRequest{Status: string(StatusDating), Force: true})
	if res.Status != StatusDating {
		t.Errorf("forced reopen status = %s", res.Status)
	}
	if cur := f.load(t, sg.ID); cur.ClosedAt != nil {
		t.Error("ClosedAt kept after reopening")
	}
}

func TestOverrideCancelsWaitlistedSuggestion(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)
	f.respond(t, s1.ID, 10, ActionInterested)
	f.respond(t, s2.ID, 10, ActionInterested)

	f.override(t, s1.ID, &OverrideRequest{Status: string(StatusCancelled)})

	if r := f.rank(t, s2.ID); r != 1 {
		t.Errorf("remaining rank = %d, want 1", r)
	}
	if f.load(t, s1.ID).Waitlist != nil {
		t.Error("cancelled suggestion kept its rank")
	}
}

func TestReorderWaitlist(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)
	f.respond(t, s1.ID, 10, ActionInterested)
	f.respond(t, s2.ID, 10, ActionInterested)

	if _, err := f.svc.ReorderWaitlist(f.ctx, 10, []uuid.UUID{s2.ID, s1.ID}); err != nil {
		t.Fatal(err)
	}
	if f.rank(t, s2.ID) != 1 || f.rank(t, s1.ID) != 2 {
		t.Errorf("ranks = %d, %d", f.rank(t, s2.ID), f.rank(t, s1.ID))
	}

	if _, err := f.svc.ReorderWaitlist(f.ctx, 10, []uuid.UUID{s2.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("partial reorder err = %v", err)
	}
}

func TestCreateGates(t *testing.T) {
	f := newFixture(t)
	busy := f.create(t, 10, 20)
	f.respond(t, busy.ID, 10, ActionApprove)
	f.respond(t, busy.ID, 20, ActionApprove)
	f.create(t, 40, 50)

	tests := []struct {
		name    string
		req     CreateSuggestionRequest
		wantErr error
	}{
		{"same party twice", CreateSuggestionRequest{FirstPartyID: 60, SecondPartyID: 60}, ErrInvalidInput},
		{"matchmaker as party", CreateSuggestionRequest{FirstPartyID: matchmaker, SecondPartyID: 60}, ErrInvalidInput},
		{"unknown priority", CreateSuggestionRequest{FirstPartyID: 60, SecondPartyID: 70, Priority: "ASAP"}, ErrInvalidInput},
		{"bad initial status", CreateSuggestionRequest{FirstPartyID: 60, SecondPartyID: 70, Status: "DATING"}, ErrInvalidInput},
		{"first party busy", CreateSuggestionRequest{FirstPartyID: 10, SecondPartyID: 70}, ErrActiveProcess},
		{"second party busy", CreateSuggestionRequest{FirstPartyID: 70, SecondPartyID: 20}, ErrActiveProcess},
		{"open pair reversed", CreateSuggestionRequest{FirstPartyID: 50, SecondPartyID: 40}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &req); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApproveBlockedByActiveProcess(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)

	f.respond(t, s1.ID, 10, ActionApprove)
	f.respond(t, s1.ID, 20, ActionApprove)

	_, err := f.svc.Respond(f.ctx, s2.ID, 10, &RespondRequest{Action: "approve"})
	if !errors.Is(err, ErrActiveProcess) {
		t.Fatalf("err = %v, want ErrActiveProcess", err)
	}

	// declining stays possible
	f.respond(t, s2.ID, 10, ActionDecline)
}

func TestApproveChecksCounterparty(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)

	// neither hand-off is an active process yet
	f.respond(t, s1.ID, 10, ActionApprove)
	f.respond(t, s2.ID, 10, ActionApprove)

	f.respond(t, s1.ID, 20, ActionApprove)

	_, err := f.svc.Respond(f.ctx, s2.ID, 30, &RespondRequest{Action: "approve"})
	if !errors.Is(err, ErrActiveProcess) {
		t.Fatalf("err = %v, want ErrActiveProcess", err)
	}
	if cur := f.load(t, s2.ID); cur.Status != StatusPendingSecondParty {
		t.Errorf("status = %s, want PENDING_SECOND_PARTY", cur.Status)
	}
	if cur := f.load(t, s1.ID); cur.Status != StatusContactDetailsShared {
		t.Errorf("first suggestion status = %s", cur.Status)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	overdue, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{
		FirstPartyID: 10, SecondPartyID: 20, Status: string(StatusPendingFirstParty), DeadlineHours: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	fresh := f.create(t, 30, 40)
	draft, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{FirstPartyID: 50, SecondPartyID: 60, DeadlineHours: 1})
	if err != nil {
		t.Fatal(err)
	}

	f.notifier.reset()
	report, err := f.svc.ExpireOverdue(f.ctx, epoch.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 1 || len(report.Expired) != 1 || report.Expired[0] != overdue.ID {
		t.Fatalf("report = %+v", report)
	}

	cur := f.load(t, overdue.ID)
	if cur.Status != StatusExpired || cur.ClosedAt == nil {
		t.Errorf("overdue suggestion = %s closed %v", cur.Status, cur.ClosedAt)
	}
	if f.load(t, fresh.ID).Status != StatusPendingFirstParty {
		t.Error("suggestion inside its window was expired")
	}
	if f.load(t, draft.ID).Status != StatusDraft {
		t.Error("draft was expired")
	}
	if !f.notifier.got(matchmaker, TemplateExpired) || !f.notifier.got(10, TemplateExpired) {
		t.Error("expiry notifications missing")
	}

	history, _ := f.repo.History(f.ctx, overdue.ID)
	if last := history[len(history)-1]; last.Status != StatusExpired || *last.Reason != "Response deadline passed" {
		t.Errorf("last history = %s %q", last.Status, *last.Reason)
	}

	again, err := f.svc.ExpireOverdue(f.ctx, epoch.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if again.Checked != 0 || len(again.Expired) != 0 {
		t.Errorf("second sweep = %+v", again)
	}
}

func TestVerifyRanksReportsGaps(t *testing.T) {
	f := newFixture(t)
	s1 := f.create(t, 10, 20)
	s2 := f.create(t, 10, 30)
	f.respond(t, s1.ID, 10, ActionInterested)
	f.respond(t, s2.ID, 10, ActionInterested)

	f.repo.mu.Lock()
	f.repo.state.suggestions[s2.ID].Waitlist.Rank = 5
	f.repo.mu.Unlock()

	violations, err := f.svc.VerifyRanks(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 || violations[0].FirstPartyID != 10 {
		t.Fatalf("violations = %+v", violations)
	}
	if !reflect.DeepEqual(violations[0].Ranks, []int{1, 5}) {
		t.Errorf("ranks = %v", violations[0].Ranks)
	}
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	draft, err := f.svc.CreateSuggestion(f.ctx, matchmaker, &CreateSuggestionRequest{FirstPartyID: 10, SecondPartyID: 20})
	if err != nil {
		t.Fatal(err)
	}
	pending := f.create(t, 30, 40)

	tests := []struct {
		name    string
		id      uuid.UUID
		viewer  int64
		wantErr error
	}{
		{"matchmaker sees draft", draft.ID, matchmaker, nil},
		{"first party cannot see draft", draft.ID, 10, ErrNotFound},
		{"first party sees pending", pending.ID, 30, nil},
		{"second party not yet sent", pending.ID, 40, ErrNotFound},
		{"outsider", pending.ID, 99, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Get(f.ctx, tt.id, tt.viewer)
			if tt.wantErr == nil && err != nil {
				t.Errorf("err = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	list, err := f.svc.ListForUser(f.ctx, 40, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("second party listing shows %d unsent suggestions", len(list))
	}
}

func TestUpdatePriority(t *testing.T) {
	f := newFixture(t)
	sg := f.create(t, 10, 20)

	updated, err := f.svc.UpdatePriority(f.ctx, sg.ID, matchmaker, PriorityUrgent)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Priority != PriorityUrgent || updated.Status != StatusPendingFirstParty {
		t.Errorf("updated = %s %s", updated.Priority, updated.Status)
	}

	if _, err := f.svc.UpdatePriority(f.ctx, sg.ID, matchmaker, "SOON"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad priority err = %v", err)
	}
	if _, err := f.svc.UpdatePriority(f.ctx, sg.ID, 10, PriorityLow); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("party priority err = %v", err)
	}
}

func TestUserStats(t *testing.T) {
	f := newFixture(t)
	f.create(t, 10, 20)
	other := f.create(t, 30, 10)
	f.respond(t, other.ID, 30, ActionApprove)

	stats, err := f.svc.UserStats(f.ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Pending != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.RequiresMyAction != 2 || stats.Urgent != 2 {
		t.Errorf("action counts = %d urgent %d, want 2 and 2", stats.RequiresMyAction, stats.Urgent)
	}
	if stats.InActiveProcess {
		t.Error("pending suggestions counted as an active process")
	}

	urgent, err := f.svc.Urgent(f.ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(urgent) != 0 {
		t.Errorf("user 20 has %d urgent suggestions, want 0 before being sent", len(urgent))
	}
}
