package matching

import (
	"sort"
	"time"

	"github.com/civicnet/weeklymatch/internal/profile"
)

// EligibilityOptions controls which profiles enter a cycle. Recency of previous matches is
// pairwise and handled by Assemble, so it is not a filter here.
type EligibilityOptions struct {
	// InactiveAfterDays drops profiles not active within that many days. Zero disables it.
	InactiveAfterDays int
}

// SelectEligible returns the profiles that may be matched this cycle, oldest accounts first.
// It drops profiles without a display name, with every core field empty, opted out of matching,
// or inactive. Duplicate ids keep their first occurrence. The input is not modified.
func SelectEligible(profiles []*profile.Profile, opts EligibilityOptions, now time.Time) []*profile.Profile {
	var activeSince time.Time
	if opts.InactiveAfterDays > 0 {
		activeSince = now.Add(-time.Duration(opts.InactiveAfterDays) * 24 * time.Hour)
	}

	seen := make(map[string]struct{}, len(profiles))
	eligible := make([]*profile.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		if p.DisplayName() == "" || !p.HasCoreFields() || p.MatchingOptOut {
			continue
		}
		if !activeSince.IsZero() && (p.LastActiveAt == nil || p.LastActiveAt.Before(activeSince)) {
			continue
		}
		eligible = append(eligible, p)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible
}
