// internal/suggestion/memory.go
// In-memory Repository for tests and local runs. A single mutex serializes
// transactions; each transaction works on a copy that replaces the live
// state only on commit.

package suggestion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryState struct {
	suggestions map[uuid.UUID]*Suggestion
	history     map[uuid.UUID][]*StatusHistoryEntry
	meetings    map[uuid.UUID][]*Meeting
	seq         int64
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		suggestions: make(map[uuid.UUID]*Suggestion, len(st.suggestions)),
		history:     make(map[uuid.UUID][]*StatusHistoryEntry, len(st.history)),
		meetings:    make(map[uuid.UUID][]*Meeting, len(st.meetings)),
		seq:         st.seq,
	}
	for id, s := range st.suggestions {
		c.suggestions[id] = s.Clone()
	}
	for id, h := range st.history {
		c.history[id] = append([]*StatusHistoryEntry(nil), h...)
	}
	for id, ms := range st.meetings {
		cp := make([]*Meeting, len(ms))
		for i, m := range ms {
			mc := *m
			mc.Feedback = make(FeedbackPayload, len(m.Feedback))
			for k, v := range m.Feedback {
				mc.Feedback[k] = v
			}
			cp[i] = &mc
		}
		c.meetings[id] = cp
	}
	return c
}

// MemoryRepository implements Repository in process memory
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryRepository returns an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memoryState{
		suggestions: make(map[uuid.UUID]*Suggestion),
		history:     make(map[uuid.UUID][]*StatusHistoryEntry),
		meetings:    make(map[uuid.UUID][]*Meeting),
	}}
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.state.suggestions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) ListForUser(ctx context.Context, userID int64, filter ListFilter) ([]*Suggestion, error) {
	return r.list(filter, func(s *Suggestion) bool {
		return s.Involves(userID) && s.VisibleTo(userID)
	}), nil
}

func (r *MemoryRepository) ListForMatchmaker(ctx context.Context, matchmakerID int64, filter ListFilter) ([]*Suggestion, error) {
	return r.list(filter, func(s *Suggestion) bool {
		return s.MatchmakerID == matchmakerID
	}), nil
}

func (r *MemoryRepository) list(filter ListFilter, match func(*Suggestion) bool) []*Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		wanted[s] = true
	}

	var out []*Suggestion
	for _, s := range r.state.suggestions {
		if !match(s) {
			continue
		}
		if len(wanted) > 0 && !wanted[s.Status] {
			continue
		}
		out = append(out, s.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})

	if filter.Offset >= len(out) {
		return nil
	}
	out = out[filter.Offset:]
	if limit := limitOf(filter); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) History(ctx context.Context, id uuid.UUID) ([]*StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.state.history[id]
	out := make([]*StatusHistoryEntry, len(h))
	for i, e := range h {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (r *MemoryRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	var out []*Suggestion
	for _, s := range r.state.suggestions {
		if expirable[s.Status] && s.ResponseDeadline.Before(now) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResponseDeadline.Before(out[j].ResponseDeadline)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.waitlist(firstPartyID), nil
}

func (r *MemoryRepository) WaitlistedFirstParties(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]bool)
	var ids []int64
	for _, s := range r.state.suggestions {
		if s.Status == StatusFirstPartyInterested && !seen[s.FirstPartyID] {
			seen[s.FirstPartyID] = true
			ids = append(ids, s.FirstPartyID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := r.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}

	if err := checkRanks(work); err != nil {
		return err
	}

	r.state = work
	return nil
}

// checkRanks mirrors the deferred unique constraint on (first_party_id, first_party_rank)
func checkRanks(st *memoryState) error {
	type key struct {
		party int64
		rank  int
	}
	seen := make(map[key]uuid.UUID)
	for id, s := range st.suggestions {
		if s.Waitlist == nil {
			continue
		}
		k := key{s.FirstPartyID, s.Waitlist.Rank}
		if _, dup := seen[k]; dup {
			return reject(ErrConflict, "duplicate waitlist rank %d for user %d", k.rank, k.party)
		}
		seen[k] = id
	}
	return nil
}

func (st *memoryState) waitlist(firstPartyID int64) []WaitlistEntry {
	var out []WaitlistEntry
	for _, s := range st.suggestions {
		if s.FirstPartyID == firstPartyID && s.Status == StatusFirstPartyInterested && s.Waitlist != nil {
			out = append(out, WaitlistEntry{SuggestionID: s.ID, Rank: s.Waitlist.Rank})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockFirstParty(ctx context.Context, firstPartyID int64) error { return nil }

func (t *memoryTx) LockParty(ctx context.Context, userID int64) error { return nil }

func (t *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	s, ok := t.state.suggestions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (t *memoryTx) Insert(ctx context.Context, s *Suggestion) error {
	if _, exists := t.state.suggestions[s.ID]; exists {
		return reject(ErrConflict, "suggestion %s already exists", s.ID)
	}
	t.state.suggestions[s.ID] = s.Clone()
	return nil
}

func (t *memoryTx) Update(ctx context.Context, s *Suggestion, expectedVersion int) error {
	current, ok := t.state.suggestions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return reject(ErrConflict, "suggestion %s changed concurrently", s.ID)
	}

	s.Version = expectedVersion + 1
	t.state.suggestions[s.ID] = s.Clone()
	return nil
}

func (t *memoryTx) AppendHistory(ctx context.Context, e *StatusHistoryEntry) error {
	for _, prev := range t.state.history[e.SuggestionID] {
		if prev.CreatedAt.Equal(e.CreatedAt) {
			return reject(ErrConflict, "history entry at %s already exists", e.CreatedAt)
		}
	}

	t.state.seq++
	e.Seq = t.state.seq
	c := *e
	t.state.history[e.SuggestionID] = append(t.state.history[e.SuggestionID], &c)
	return nil
}

func (t *memoryTx) HasHistoryStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error) {
	for _, e := range t.state.history[id] {
		if e.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) ListWaitlist(ctx context.Context, firstPartyID int64) ([]WaitlistEntry, error) {
	return t.state.waitlist(firstPartyID), nil
}

func (t *memoryTx) UpdateRanks(ctx context.Context, entries []WaitlistEntry) error {
	for _, e := range entries {
		s, ok := t.state.suggestions[e.SuggestionID]
		if !ok || s.Status != StatusFirstPartyInterested || s.Waitlist == nil {
			continue
		}
		s.Waitlist.Rank = e.Rank
	}
	return nil
}

func (t *memoryTx) HasActiveProcess(ctx context.Context, userID int64, excludeID uuid.UUID) (bool, error) {
	for id, s := range t.state.suggestions {
		if id != excludeID && s.Involves(userID) && s.Status.IsActiveProcess() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) HasOpenPair(ctx context.Context, a, b int64) (bool, error) {
	for _, s := range t.state.suggestions {
		if s.Involves(a) && s.Involves(b) && !s.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) LatestMeeting(ctx context.Context, suggestionID uuid.UUID) (*Meeting, error) {
	ms := t.state.meetings[suggestionID]
	if len(ms) == 0 {
		return nil, ErrNotFound
	}

	latest := ms[0]
	for _, m := range ms[1:] {
		if m.ScheduledDate.After(latest.ScheduledDate) ||
			(m.ScheduledDate.Equal(latest.ScheduledDate) && m.CreatedAt.After(latest.CreatedAt)) {
			latest = m
		}
	}
	c := *latest
	return &c, nil
}

func (t *memoryTx) InsertMeeting(ctx context.Context, m *Meeting) error {
	c := *m
	t.state.meetings[m.SuggestionID] = append(t.state.meetings[m.SuggestionID], &c)
	return nil
}

func (t *memoryTx) UpdateMeeting(ctx context.Context, m *Meeting) error {
	for i, existing := range t.state.meetings[m.SuggestionID] {
		if existing.ID == m.ID {
			c := *m
			t.state.meetings[m.SuggestionID][i] = &c
			return nil
		}
	}
	return ErrNotFound
}
