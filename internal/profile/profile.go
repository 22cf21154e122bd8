// Package profile holds the member profile the matcher works on and the stores that load it.
package profile

import (
	"sort"
	"strings"
	"time"
)

// Profile is a member eligible for matching. Values reaching the scorer have already been
// through Normalize: sets are trimmed and deduplicated, text fields trimmed.
type Profile struct {
	ID       string `json:"id" validate:"required"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`

	Skills StringSet `json:"skills"`
	Causes StringSet `json:"causes"`
	Values StringSet `json:"values"`
	Tags   StringSet `json:"tags"`

	Bio        string   `json:"bio,omitempty"`
	Fame       string   `json:"fame,omitempty"`
	Aim        []Aim    `json:"aim,omitempty" validate:"dive"`
	Game       string   `json:"game,omitempty"`
	WorkStyle  string   `json:"workStyle,omitempty"`
	HelpNeeded string   `json:"helpNeeded,omitempty"`
	Location   Location `json:"location"`

	CreatedAt      time.Time  `json:"createdAt" validate:"required"`
	LastActiveAt   *time.Time `json:"lastActiveAt,omitempty"`
	MatchingOptOut bool       `json:"matchingOptOut,omitempty"`
}

// Aim is one focus statement.
type Aim struct {
	Title   string `json:"title" validate:"required"`
	Summary string `json:"summary,omitempty"`
}

// DisplayName is the trimmed full name, falling back to the username.
func (p *Profile) DisplayName() string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(p.Username)
}

// HasCoreFields reports whether any field the scorer reads is populated.
func (p *Profile) HasCoreFields() bool {
	return p.Skills.Len() > 0 || p.Causes.Len() > 0 || p.Values.Len() > 0 ||
		p.Tags.Len() > 0 || strings.TrimSpace(p.Bio) != ""
}

// StringSet is a case-insensitively deduplicated set of trimmed strings, kept sorted by key.
// The first spelling seen for a key is the one retained.
type StringSet []string

// NewStringSet builds a set, dropping blanks and case-insensitive duplicates.
func NewStringSet(items ...string) StringSet {
	seen := make(map[string]struct{}, len(items))
	set := make(StringSet, 0, len(items))
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if item == "" {
			continue
		}
		key := Key(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, item)
	}
	sort.SliceStable(set, func(i, j int) bool { return Key(set[i]) < Key(set[j]) })
	return set
}

// Key is the normalized form used for set comparisons.
func Key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (s StringSet) Len() int { return len(s) }

func (s StringSet) Contains(item string) bool {
	key := Key(item)
	for _, v := range s {
		if Key(v) == key {
			return true
		}
	}
	return false
}

// Intersect returns the shared keys, sorted. The result is the same whichever side is the receiver.
func (s StringSet) Intersect(other StringSet) []string {
	if len(s) == 0 || len(other) == 0 {
		return nil
	}
	keys := make(map[string]struct{}, len(other))
	for _, v := range other {
		keys[Key(v)] = struct{}{}
	}
	var shared []string
	for _, v := range s {
		if _, ok := keys[Key(v)]; ok {
			shared = append(shared, Key(v))
		}
	}
	sort.Strings(shared)
	return shared
}

// Location is either legacy free text or a structured city/country pair.
type Location struct {
	Text    string `json:"text,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// Locality is the city when known, otherwise the legacy text.
func (l Location) Locality() string {
	if l.City != "" {
		return l.City
	}
	return l.Text
}

func (l Location) IsZero() bool {
	return l.Text == "" && l.City == "" && l.Country == ""
}
