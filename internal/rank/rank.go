// Package rank orders a playlist's queue. It is pure: callers pass a
// snapshot and get back 1-based positions, nothing is cached.
package rank

import (
	"sort"
	"time"
)

// Entry is the minimal view of a song the ordering needs.
type Entry struct {
	ID          string
	Score       int
	SubmittedAt time.Time
}

// Ranked pairs an entry with its final 1-based position.
type Ranked struct {
	Entry
	Rank int
}

// Order sorts by score descending, then submission time ascending
// (earlier submission wins a score tie), then id ascending. The result
// is a total order: N entries always get the N distinct ranks 1..N.
func Order(entries []Entry) []Ranked {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]Ranked, len(sorted))
	for i, e := range sorted {
		out[i] = Ranked{Entry: e, Rank: i + 1}
	}
	return out
}
