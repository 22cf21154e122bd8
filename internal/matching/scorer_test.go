package matching

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/profile"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultWeights())
	require.NoError(t, err)
	return s
}

func TestScore_SharedCausesRankHigher(t *testing.T) {
	s := newScorer(t)

	a := &profile.Profile{ID: "a", FullName: "Ada",
		Causes: profile.NewStringSet("climate"), Values: profile.NewStringSet("transparency"),
		Skills: profile.NewStringSet("engineering")}
	b := &profile.Profile{ID: "b", FullName: "Bo",
		Causes: profile.NewStringSet("Climate"), Values: profile.NewStringSet("transparency"),
		Skills: profile.NewStringSet("engineering")}
	c := &profile.Profile{ID: "c", FullName: "Cy",
		Causes: profile.NewStringSet("climate"), Skills: profile.NewStringSet("design")}

	scoreAB, reasonsAB := s.Score(a, b)
	scoreAC, reasonsAC := s.Score(a, c)

	assert.Contains(t, reasonsAB, "Both care about climate")
	assert.Contains(t, reasonsAC, "Both care about climate")
	assert.Greater(t, scoreAB, scoreAC)

	assert.Equal(t, 30.0, scoreAB)
	assert.Equal(t, []string{"Both care about climate", "Shared values: transparency", "Both bring engineering"}, reasonsAB)
	assert.Equal(t, 17.0, scoreAC)
}

func TestScore_NoOverlapIsBaseline(t *testing.T) {
	s := newScorer(t)
	a := &profile.Profile{ID: "a", Causes: profile.NewStringSet("housing")}
	b := &profile.Profile{ID: "b", Causes: profile.NewStringSet("transit")}

	score, reasons := s.Score(a, b)
	assert.Equal(t, DefaultWeights().Baseline, score)
	assert.Empty(t, reasons)
}

func TestScore_Location(t *testing.T) {
	s := newScorer(t)
	tests := []struct {
		name   string
		a, b   profile.Location
		points float64
		reason string
	}{
		{"same city", profile.Location{City: "Oakland", Country: "US"}, profile.Location{City: "oakland", Country: "us"}, 8, "Both based in Oakland"},
		{"legacy text matches city", profile.Location{Text: "Oakland"}, profile.Location{City: "Oakland", Country: "US"}, 8, "Both based in Oakland"},
		{"same country only", profile.Location{City: "Oakland", Country: "US"}, profile.Location{City: "Austin", Country: "US"}, 4, "Both based in US"},
		{"same city name, different country", profile.Location{City: "Paris", Country: "France"}, profile.Location{City: "Paris", Country: "US"}, 0, ""},
		{"unknown", profile.Location{}, profile.Location{City: "Oakland"}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &profile.Profile{ID: "a", Location: tt.a}
			b := &profile.Profile{ID: "b", Location: tt.b}
			score, reasons := s.Score(a, b)
			assert.Equal(t, DefaultWeights().Baseline+tt.points, score)
			if tt.reason == "" {
				assert.Empty(t, reasons)
			} else {
				assert.Equal(t, []string{tt.reason}, reasons)
			}
		})
	}
}

func TestScore_ComplementarySkills(t *testing.T) {
	s := newScorer(t)
	a := &profile.Profile{ID: "a", HelpNeeded: "Looking for help with UX design and grant writing.",
		Skills: profile.NewStringSet("engineering")}
	b := &profile.Profile{ID: "b", Skills: profile.NewStringSet("Design", "Grant Writing", "engineering", "gardening")}

	score, reasons := s.Score(a, b)
	// shared engineering 5 + complementary design, grant writing 12
	assert.Equal(t, 5.0+5+12, score)
	assert.Equal(t, []string{"Complementary skills: design, grant writing", "Both bring engineering"}, reasons)
}

func TestScore_SkillSignalsShareOneCap(t *testing.T) {
	s := newScorer(t)
	a := &profile.Profile{ID: "a", HelpNeeded: "policy, outreach, fundraising",
		Skills: profile.NewStringSet("go", "sql", "ops")}
	b := &profile.Profile{ID: "b",
		Skills: profile.NewStringSet("go", "sql", "ops", "policy", "outreach", "fundraising")}

	score, _ := s.Score(a, b)
	assert.Equal(t, DefaultWeights().Baseline+DefaultWeights().SkillCap, score)
}

func TestScore_ReasonsCappedAndOrdered(t *testing.T) {
	s := newScorer(t)
	a := &profile.Profile{ID: "a",
		Causes: profile.NewStringSet("housing", "climate", "transit", "food"),
		Values: profile.NewStringSet("equity"),
		Skills: profile.NewStringSet("design"),
		Tags:   profile.NewStringSet("cycling", "chess"),
		Location: profile.Location{City: "Oakland", Country: "US"}}
	b := &profile.Profile{ID: "b",
		Causes: profile.NewStringSet("housing", "climate", "transit", "food"),
		Values: profile.NewStringSet("equity"),
		Skills: profile.NewStringSet("design"),
		Tags:   profile.NewStringSet("cycling", "chess"),
		Location: profile.Location{City: "Oakland", Country: "US"}}

	score, reasons := s.Score(a, b)
	assert.Equal(t, 5.0+36+8+5+8+4, score)
	assert.Equal(t, []string{
		"Both care about climate, food and housing",
		"Shared values: equity",
		"Both based in Oakland",
		"Both bring design",
	}, reasons)
}

func TestScore_SymmetricAndBounded(t *testing.T) {
	s := newScorer(t)
	rng := rand.New(rand.NewSource(42))
	pool := []string{"climate", "housing", "Transit", "design", "engineering", "equity", "Policy", "art"}
	cities := []string{"", "Oakland", "Lagos", "Berlin"}
	countries := []string{"", "US", "Nigeria", "Germany"}

	pick := func() profile.StringSet {
		var items []string
		for _, v := range pool {
			if rng.Intn(3) == 0 {
				items = append(items, v)
			}
		}
		return profile.NewStringSet(items...)
	}
	gen := func(id string) *profile.Profile {
		return &profile.Profile{
			ID: id, Causes: pick(), Values: pick(), Skills: pick(), Tags: pick(),
			HelpNeeded: fmt.Sprintf("need %s", pool[rng.Intn(len(pool))]),
			Location:   profile.Location{City: cities[rng.Intn(len(cities))], Country: countries[rng.Intn(len(countries))]},
		}
	}

	for i := 0; i < 500; i++ {
		a, b := gen("a"), gen("b")
		sab, rab := s.Score(a, b)
		sba, rba := s.Score(b, a)
		require.Equal(t, sab, sba)
		require.Equal(t, rab, rba)
		require.GreaterOrEqual(t, sab, 0.0)
		require.LessOrEqual(t, sab, 100.0)
		require.LessOrEqual(t, len(rab), 4)
	}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Weights)
		ok     bool
	}{
		{"defaults", func(*Weights) {}, true},
		{"values above causes", func(w *Weights) { w.ValueCap = 40 }, false},
		{"tags above location", func(w *Weights) { w.TagCap = 10 }, false},
		{"country above city", func(w *Weights) { w.SameCountry = 9 }, false},
		{"negative", func(w *Weights) { w.Baseline = -1 }, false},
		{"no reasons", func(w *Weights) { w.MaxReasons = 0 }, false},
		{"value per match above cause per match", func(w *Weights) { w.CausePerMatch = 1; w.ValuePerMatch = 24 }, false},
		{"skill per match above value per match", func(w *Weights) { w.SkillPerMatch = 9 }, false},
		{"complementary above value per match", func(w *Weights) { w.ComplementaryPerMatch = 10 }, false},
		{"tag per match equal to skill per match", func(w *Weights) { w.TagPerMatch = 6 }, false},
		{"country no better than a tag", func(w *Weights) { w.SameCountry = 2 }, false},
		{"baseline swamps signals", func(w *Weights) { w.Baseline = 100 }, false},
		{"baseline at the limit", func(w *Weights) { w.Baseline = 64 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(&w)
			_, err := NewScorer(w)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfiguration))
		})
	}
}

func TestScore_ClampedAt100(t *testing.T) {
	w := DefaultWeights()
	w.Baseline = 60
	w.CauseCap = 40
	s, err := NewScorer(w)
	require.NoError(t, err)

	a := &profile.Profile{ID: "a", Causes: profile.NewStringSet("w", "x", "y", "z"), Values: profile.NewStringSet("p", "q", "r"), CreatedAt: time.Now()}
	b := &profile.Profile{ID: "b", Causes: profile.NewStringSet("w", "x", "y", "z"), Values: profile.NewStringSet("p", "q", "r"), CreatedAt: time.Now()}
	score, _ := s.Score(a, b)
	assert.Equal(t, 100.0, score)
}
