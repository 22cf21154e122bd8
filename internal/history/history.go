// Package history records when two members were last matched.
package history

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

// Record is one unordered pair. UserA < UserB always holds for stored records.
type Record struct {
	UserA         string    `json:"userA"`
	UserB         string    `json:"userB"`
	LastMatchedAt time.Time `json:"lastMatchedAt"`
	MatchCount    int       `json:"matchCount"`
}

// Store persists match history. Lookups and writes are symmetric in (a, b).
type Store interface {
	GetLastMatchedAt(ctx context.Context, a, b string) (*time.Time, error)
	RecordMatch(ctx context.Context, a, b string, at time.Time) error
	ListMatchedSince(ctx context.Context, since time.Time) ([]Record, error)
}

// Lookup answers history questions without I/O; the assembler only sees this.
type Lookup interface {
	LastMatchedAt(a, b string) (time.Time, bool)
}

// Canonical orders a pair so that the first id sorts first.
func Canonical(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Pair identifies an unordered pair of members. NewPair orders it canonically, so it is safe
// as a map key whatever the ids contain.
type Pair struct {
	A, B string
}

func NewPair(a, b string) Pair {
	a, b = Canonical(a, b)
	return Pair{A: a, B: b}
}

// String is the "a:b" label used in logs and summaries. Ids containing ':' can produce the same
// label for different pairs, so never key on it.
func (p Pair) String() string {
	return p.A + ":" + p.B
}

// PairKey is the canonical "a:b" label for a pair.
func PairKey(a, b string) string {
	return NewPair(a, b).String()
}

func checkPair(a, b string) error {
	if a == "" || b == "" {
		return apperrors.NewValidationError("user_id", "both user ids are required")
	}
	if a == b {
		return apperrors.NewValidationError("user_id", "cannot record a match of a user with themselves")
	}
	return nil
}

// Snapshot is an in-memory view of recent history.
type Snapshot map[Pair]time.Time

func NewSnapshot(records []Record) Snapshot {
	s := make(Snapshot, len(records))
	for _, r := range records {
		key := NewPair(r.UserA, r.UserB)
		if prev, ok := s[key]; !ok || r.LastMatchedAt.After(prev) {
			s[key] = r.LastMatchedAt
		}
	}
	return s
}

func (s Snapshot) LastMatchedAt(a, b string) (time.Time, bool) {
	t, ok := s[NewPair(a, b)]
	return t, ok
}

// LoadSnapshot reads every pair matched since the given time.
func LoadSnapshot(ctx context.Context, store Store, since time.Time) (Snapshot, error) {
	records, err := store.ListMatchedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(records), nil
}

// MemoryStore keeps history in a map. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Pair]*Record

	// RecordErr and ListErr inject failures in tests.
	RecordErr error
	ListErr   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Pair]*Record)}
}

func (m *MemoryStore) GetLastMatchedAt(_ context.Context, a, b string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[NewPair(a, b)]
	if !ok {
		return nil, nil
	}
	t := r.LastMatchedAt
	return &t, nil
}

func (m *MemoryStore) RecordMatch(_ context.Context, a, b string, at time.Time) error {
	if err := checkPair(a, b); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	key := NewPair(a, b)
	if r, ok := m.records[key]; ok {
		r.LastMatchedAt = at
		r.MatchCount++
		return nil
	}
	m.records[key] = &Record{UserA: key.A, UserB: key.B, LastMatchedAt: at, MatchCount: 1}
	return nil
}

func (m *MemoryStore) ListMatchedSince(_ context.Context, since time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []Record
	for _, r := range m.records {
		if !r.LastMatchedAt.Before(since) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Records returns a copy of every stored record.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out
}
