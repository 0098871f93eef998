// Package memory implements the bounded in-process conversation store: a
// fixed-capacity ordered sequence of user/assistant exchange pairs with
// optional importance-weighted trimming.
package memory

import (
	"sort"
	"sync"
)

// Roles used by conversation entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultImportance is assigned to exchanges appended without an explicit
// importance score.
const DefaultImportance = 1

// Entry is one stored message. Entries are always appended as a
// user/assistant pair sharing an importance score.
type Entry struct {
	Role       string
	Content    string
	Importance int
}

// Store is a bounded conversation memory. Capacity is counted in exchange
// pairs; inserting beyond capacity evicts the oldest pair first. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int // exchange pairs
	entries  []Entry
}

// NewStore creates a store holding at most capacity exchange pairs.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 10
	}
	return &Store{capacity: capacity}
}

// Append records one completed exchange. Importance is clamped to 0..10;
// pass DefaultImportance when no score applies.
func (s *Store) Append(userMsg, botMsg string, importance int) {
	if importance < 0 {
		importance = 0
	}
	if importance > 10 {
		importance = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries,
		Entry{Role: RoleUser, Content: userMsg, Importance: importance},
		Entry{Role: RoleAssistant, Content: botMsg, Importance: importance},
	)
	// Evict oldest pairs beyond capacity.
	if max := s.capacity * 2; len(s.entries) > max {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-max:]...)
	}
}

// Snapshot returns the stored entries in chronological order, oldest first.
// The returned slice is a copy and safe to retain.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of stored entries (messages, not pairs).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear wipes all stored exchanges.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// TrimToBudget reduces a snapshot to fit an approximate token budget,
// dropping the lowest-importance exchange pairs first (oldest first within
// equal importance) while preserving chronological order among the retained
// entries. It is a pure function: the input slice is not modified. A budget
// of zero or less disables trimming.
func TrimToBudget(entries []Entry, budgetTokens int) []Entry {
	if budgetTokens <= 0 || len(entries) == 0 {
		return entries
	}

	type pair struct {
		start      int // index of the user entry
		importance int
		tokens     int
	}
	var pairs []pair
	total := 0
	for i := 0; i+1 < len(entries); i += 2 {
		t := estimateTokens(entries[i].Content) + estimateTokens(entries[i+1].Content)
		pairs = append(pairs, pair{start: i, importance: entries[i].Importance, tokens: t})
		total += t
	}
	if total <= budgetTokens {
		return entries
	}

	// Drop order: lowest importance first, then oldest.
	dropOrder := make([]int, len(pairs))
	for i := range dropOrder {
		dropOrder[i] = i
	}
	sort.SliceStable(dropOrder, func(a, b int) bool {
		return pairs[dropOrder[a]].importance < pairs[dropOrder[b]].importance
	})

	dropped := make(map[int]bool)
	for _, pi := range dropOrder {
		if total <= budgetTokens {
			break
		}
		dropped[pi] = true
		total -= pairs[pi].tokens
	}

	out := make([]Entry, 0, len(entries))
	for pi, p := range pairs {
		if dropped[pi] {
			continue
		}
		out = append(out, entries[p.start], entries[p.start+1])
	}
	return out
}

// estimateTokens approximates the token cost of a string at roughly four
// characters per token.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}
