package matching

import (
	"sort"
	"time"

	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/profile"
)

// AssembleOptions bounds one cycle's matching.
type AssembleOptions struct {
	// MaxMatchesPerWeek caps accepted pairs; zero or less means no cap.
	MaxMatchesPerWeek     int
	MinDaysSinceLastMatch int
	ExcludeRecentMatches  bool
}

// ScoredPair is an accepted match. A is the member who sorts first in the eligible order.
// The profiles are borrowed from the caller's slice.
type ScoredPair struct {
	A       *profile.Profile `json:"-"`
	B       *profile.Profile `json:"-"`
	Score   float64          `json:"matchScore"`
	Reasons []string         `json:"matchReasons"`
}

// ID is the canonical pair identity shared with match history.
func (p ScoredPair) ID() history.Pair {
	return history.NewPair(p.A.ID, p.B.ID)
}

// Key is the "a:b" label for logs and summaries.
func (p ScoredPair) Key() string {
	return p.ID().String()
}

type candidate struct {
	ScoredPair
	created int64
	id      history.Pair
}

// Assemble greedily picks disjoint pairs by descending score. It considers every pair of
// eligible members, drops those matched within the cooldown window, and accepts the best
// remaining pair whose members are both still free until the cap is reached.
// The result is a function of its inputs only; now stands in for the clock.
//
// Greedy selection is not a maximum-weight matching. Pools are small enough that the
// difference does not justify a blossom implementation.
func Assemble(eligible []*profile.Profile, scorer *Scorer, lookup history.Lookup, opts AssembleOptions, now time.Time) []ScoredPair {
	if len(eligible) < 2 {
		return nil
	}

	cooldown := time.Duration(opts.MinDaysSinceLastMatch) * 24 * time.Hour
	candidates := make([]candidate, 0, len(eligible)*(len(eligible)-1)/2)
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			a, b := eligible[i], eligible[j]
			if a.ID == b.ID {
				continue
			}
			if opts.ExcludeRecentMatches && lookup != nil {
				if last, ok := lookup.LastMatchedAt(a.ID, b.ID); ok && now.Sub(last) < cooldown {
					continue
				}
			}
			score, reasons := scorer.Score(a, b)
			candidates = append(candidates, candidate{
				ScoredPair: ScoredPair{A: a, B: b, Score: score, Reasons: reasons},
				created:    a.CreatedAt.Unix() + b.CreatedAt.Unix(),
				id:         history.NewPair(a.ID, b.ID),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Score != cj.Score {
			return ci.Score > cj.Score
		}
		if ci.created != cj.created {
			return ci.created < cj.created
		}
		if ci.id.A != cj.id.A {
			return ci.id.A < cj.id.A
		}
		return ci.id.B < cj.id.B
	})

	matched := make(map[string]struct{}, len(eligible))
	var pairs []ScoredPair
	for _, c := range candidates {
		if opts.MaxMatchesPerWeek > 0 && len(pairs) >= opts.MaxMatchesPerWeek {
			break
		}
		if _, taken := matched[c.A.ID]; taken {
			continue
		}
		if _, taken := matched[c.B.ID]; taken {
			continue
		}
		matched[c.A.ID] = struct{}{}
		matched[c.B.ID] = struct{}{}
		pairs = append(pairs, c.ScoredPair)
	}
	return pairs
}
