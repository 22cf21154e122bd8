// Package matching scores member pairs and assembles a cycle's disjoint matches.
package matching

import (
	"math"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/profile"
)

// Weights tunes the scorer. Each signal contributes PerMatch points per shared item, up to its cap.
type Weights struct {
	Baseline float64 `json:"baseline" mapstructure:"baseline"`

	CausePerMatch float64 `json:"causePerMatch" mapstructure:"cause_per_match"`
	CauseCap      float64 `json:"causeCap" mapstructure:"cause_cap"`

	ValuePerMatch float64 `json:"valuePerMatch" mapstructure:"value_per_match"`
	ValueCap      float64 `json:"valueCap" mapstructure:"value_cap"`

	// SkillCap bounds shared and complementary skills together.
	SkillPerMatch         float64 `json:"skillPerMatch" mapstructure:"skill_per_match"`
	ComplementaryPerMatch float64 `json:"complementaryPerMatch" mapstructure:"complementary_per_match"`
	SkillCap              float64 `json:"skillCap" mapstructure:"skill_cap"`

	SameCity    float64 `json:"sameCity" mapstructure:"same_city"`
	SameCountry float64 `json:"sameCountry" mapstructure:"same_country"`

	TagPerMatch float64 `json:"tagPerMatch" mapstructure:"tag_per_match"`
	TagCap      float64 `json:"tagCap" mapstructure:"tag_cap"`

	// ReasonThreshold is the smallest contribution that earns a reason.
	ReasonThreshold float64 `json:"reasonThreshold" mapstructure:"reason_threshold"`
	MaxReasons      int     `json:"maxReasons" mapstructure:"max_reasons"`
}

// DefaultWeights ranks causes above values above skills above location above tags.
func DefaultWeights() Weights {
	return Weights{
		Baseline:              5,
		CausePerMatch:         12,
		CauseCap:              36,
		ValuePerMatch:         8,
		ValueCap:              24,
		SkillPerMatch:         5,
		ComplementaryPerMatch: 6,
		SkillCap:              20,
		SameCity:              8,
		SameCountry:           4,
		TagPerMatch:           2,
		TagCap:                6,
		ReasonThreshold:       3,
		MaxReasons:            4,
	}
}

// Validate rejects negative weights, caps or per-match weights that break the signal priority
// order, and a baseline large enough to drown the signals.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"baseline": w.Baseline, "cause_per_match": w.CausePerMatch, "cause_cap": w.CauseCap,
		"value_per_match": w.ValuePerMatch, "value_cap": w.ValueCap, "skill_per_match": w.SkillPerMatch,
		"complementary_per_match": w.ComplementaryPerMatch, "skill_cap": w.SkillCap,
		"same_city": w.SameCity, "same_country": w.SameCountry, "tag_per_match": w.TagPerMatch,
		"tag_cap": w.TagCap, "reason_threshold": w.ReasonThreshold,
	} {
		if v < 0 || math.IsNaN(v) {
			return apperrors.NewConfigurationError("weights."+name, "weight must be a non-negative number")
		}
	}
	skillPerMatch := math.Max(w.SkillPerMatch, w.ComplementaryPerMatch)
	switch {
	case !(w.CauseCap > w.ValueCap && w.ValueCap > w.SkillCap && w.SkillCap > w.SameCity && w.SameCity > w.TagCap):
		return apperrors.NewConfigurationError("weights",
			"caps must order causes > values > skills > location > tags")
	case !(w.CausePerMatch > w.ValuePerMatch && w.ValuePerMatch > skillPerMatch && skillPerMatch > w.TagPerMatch):
		return apperrors.NewConfigurationError("weights",
			"per-match weights must order causes > values > skills > tags")
	case w.SameCountry <= w.TagPerMatch:
		return apperrors.NewConfigurationError("weights.same_country", "same country must outweigh one shared tag")
	case w.Baseline+w.CauseCap > 100:
		return apperrors.NewConfigurationError("weights.baseline", "baseline plus the cause cap must not exceed 100")
	case w.SameCountry > w.SameCity:
		return apperrors.NewConfigurationError("weights.same_country", "same country cannot outweigh same city")
	case w.MaxReasons <= 0:
		return apperrors.NewConfigurationError("weights.max_reasons", "max reasons must be positive")
	}
	return nil
}

// Scorer computes pair compatibility. It is pure and safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer validates w and returns a scorer using it.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

func (s *Scorer) Weights() Weights { return s.weights }

type contribution struct {
	points float64
	reason string
}

// Score returns a value in [0, 100] and up to MaxReasons reasons, strongest first.
// Score(a, b) and Score(b, a) are identical, reasons included.
func (s *Scorer) Score(a, b *profile.Profile) (float64, []string) {
	w := s.weights
	signals := make([]contribution, 0, 6)

	if shared := a.Causes.Intersect(b.Causes); len(shared) > 0 {
		signals = append(signals, contribution{
			points: capped(len(shared), w.CausePerMatch, w.CauseCap),
			reason: "Both care about " + joinList(shared, 3),
		})
	}

	if shared := a.Values.Intersect(b.Values); len(shared) > 0 {
		signals = append(signals, contribution{
			points: capped(len(shared), w.ValuePerMatch, w.ValueCap),
			reason: "Shared values: " + strings.Join(first(shared, 3), ", "),
		})
	}

	sharedSkills := a.Skills.Intersect(b.Skills)
	skillPoints := 0.0
	if len(sharedSkills) > 0 {
		skillPoints = capped(len(sharedSkills), w.SkillPerMatch, w.SkillCap)
		signals = append(signals, contribution{
			points: skillPoints,
			reason: "Both bring " + joinList(sharedSkills, 3),
		})
	}
	if comp := complementarySkills(a, b, sharedSkills); len(comp) > 0 {
		signals = append(signals, contribution{
			points: capped(len(comp), w.ComplementaryPerMatch, w.SkillCap-skillPoints),
			reason: "Complementary skills: " + strings.Join(first(comp, 3), ", "),
		})
	}

	if points, label := s.locationSignal(a.Location, b.Location); points > 0 {
		signals = append(signals, contribution{points: points, reason: "Both based in " + label})
	}

	if shared := a.Tags.Intersect(b.Tags); len(shared) > 0 {
		signals = append(signals, contribution{
			points: capped(len(shared), w.TagPerMatch, w.TagCap),
			reason: "Shared interests: " + strings.Join(first(shared, 3), ", "),
		})
	}

	total := w.Baseline
	for _, c := range signals {
		total += c.points
	}
	total = math.Max(0, math.Min(100, total))

	sort.SliceStable(signals, func(i, j int) bool { return signals[i].points > signals[j].points })
	reasons := make([]string, 0, w.MaxReasons)
	for _, c := range signals {
		if len(reasons) == w.MaxReasons {
			break
		}
		if c.points >= w.ReasonThreshold && c.points > 0 {
			reasons = append(reasons, c.reason)
		}
	}
	return total, reasons
}

func (s *Scorer) locationSignal(a, b profile.Location) (float64, string) {
	countryA, countryB := profile.Key(a.Country), profile.Key(b.Country)
	sameCountry := countryA != "" && countryA == countryB

	if la, lb := profile.Key(a.Locality()), profile.Key(b.Locality()); la != "" && la == lb {
		if countryA == "" || countryB == "" || sameCountry {
			return s.weights.SameCity, lesser(a.Locality(), b.Locality())
		}
	}
	if sameCountry {
		return s.weights.SameCountry, lesser(a.Country, b.Country)
	}
	return 0, ""
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func words(s string) string {
	return " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " ")) + " "
}

// complementarySkills lists skills one member has that the other says they need help with,
// checked in both directions, excluding skills both already share.
func complementarySkills(a, b *profile.Profile, shared []string) []string {
	skip := make(map[string]struct{}, len(shared))
	for _, k := range shared {
		skip[k] = struct{}{}
	}
	found := make(map[string]struct{})
	collect := func(help string, skills profile.StringSet) {
		if strings.TrimSpace(help) == "" {
			return
		}
		need := words(help)
		for _, skill := range skills {
			key := profile.Key(skill)
			if _, ok := skip[key]; ok {
				continue
			}
			if w := words(skill); w != "  " && strings.Contains(need, w) {
				found[key] = struct{}{}
			}
		}
	}
	collect(a.HelpNeeded, b.Skills)
	collect(b.HelpNeeded, a.Skills)

	out := make([]string, 0, len(found))
	for k := range found {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func capped(n int, per, limit float64) float64 {
	return math.Max(0, math.Min(float64(n)*per, limit))
}

func first(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// joinList renders "a", "a and b" or "a, b and c".
func joinList(items []string, n int) string {
	items = first(items, n)
	if len(items) == 1 {
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// lesser picks a stable label independent of argument order.
func lesser(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		return b
	}
	return a
}
