// internal/suggestion/waitlist.go
// Rank arithmetic for a first party's waitlist. Ranks are always 1..N.

package suggestion

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// NextRank returns the rank a newly waitlisted suggestion receives
func NextRank(entries []WaitlistEntry) int {
	max := 0
	for _, e := range entries {
		if e.Rank > max {
			max = e.Rank
		}
	}
	return max + 1
}

// Renumber sorts entries by rank and rewrites ranks as 1..N.
// The input slice is not modified.
func Renumber(entries []WaitlistEntry) []WaitlistEntry {
	out := make([]WaitlistEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank < out[j].Rank
	})
	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

// Without returns entries minus the one with id, renumbered
func Without(entries []WaitlistEntry, id uuid.UUID) []WaitlistEntry {
	rest := make([]WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		if e.SuggestionID != id {
			rest = append(rest, e)
		}
	}
	return Renumber(rest)
}

// Reorder assigns ranks following order, which must name every entry exactly once
func Reorder(entries []WaitlistEntry, order []uuid.UUID) ([]WaitlistEntry, error) {
	if len(order) != len(entries) {
		return nil, reject(ErrInvalidInput, "reorder must list all %d waitlisted suggestions, got %d", len(entries), len(order))
	}

	known := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		known[e.SuggestionID] = true
	}

	seen := make(map[uuid.UUID]bool, len(order))
	out := make([]WaitlistEntry, 0, len(order))
	for i, id := range order {
		if !known[id] {
			return nil, reject(ErrInvalidInput, "suggestion %s is not on the waitlist", id)
		}
		if seen[id] {
			return nil, reject(ErrInvalidInput, "suggestion %s is listed twice", id)
		}
		seen[id] = true
		out = append(out, WaitlistEntry{SuggestionID: id, Rank: i + 1})
	}

	return out, nil
}

// VerifyDense reports an error unless ranks are exactly {1..N}
func VerifyDense(entries []WaitlistEntry) error {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Rank < 1 || e.Rank > len(entries) {
			return fmt.Errorf("rank %d out of range 1..%d", e.Rank, len(entries))
		}
		if seen[e.Rank] {
			return fmt.Errorf("duplicate rank %d", e.Rank)
		}
		seen[e.Rank] = true
	}
	return nil
}

// Changed returns the entries of next whose rank differs from prev
func Changed(prev, next []WaitlistEntry) []WaitlistEntry {
	old := make(map[uuid.UUID]int, len(prev))
	for _, e := range prev {
		old[e.SuggestionID] = e.Rank
	}

	var out []WaitlistEntry
	for _, e := range next {
		if r, ok := old[e.SuggestionID]; !ok || r != e.Rank {
			out = append(out, e)
		}
	}
	return out
}
