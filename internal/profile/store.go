package profile

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicnet/weeklymatch/internal/database"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// Filter narrows the profiles loaded for a cycle. Zero values disable each filter.
type Filter struct {
	ExcludeOptedOut bool
	ActiveSince     *time.Time
	Limit           int
}

// Reader is the read-only profile access the pipeline needs.
type Reader interface {
	GetEligibleProfiles(ctx context.Context, filter Filter) ([]*Profile, error)
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
}

// Store loads profiles from Postgres.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const profileColumns = `id, full_name, username, email, skills, causes, "values", tags, bio, fame, aim,
	game, work_style, help_needed, location, created_at, last_active_at, matching_opt_out`

// GetEligibleProfiles returns normalized profiles matching filter, ordered by created_at then id.
// Rows that fail normalization are logged and skipped rather than failing the whole read.
func (s *Store) GetEligibleProfiles(ctx context.Context, filter Filter) ([]*Profile, error) {
	logger := telemetry.LogFromContext(ctx).WithField("operation", "get_eligible_profiles")

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE 1=1`
	var args []interface{}
	if filter.ExcludeOptedOut {
		query += ` AND NOT matching_opt_out`
	}
	if filter.ActiveSince != nil {
		args = append(args, *filter.ActiveSince)
		query += ` AND last_active_at >= $1`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	var rows []database.ProfileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		logger.WithError(err).Error("Failed to load profiles")
		return nil, apperrors.NewDatabaseError("get_eligible_profiles", err)
	}

	profiles := make([]*Profile, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		p, err := Normalize(row)
		if err != nil {
			skipped++
			logger.WithError(err).WithField("profile_id", row.ID).Warn("Skipping malformed profile")
			continue
		}
		profiles = append(profiles, p)
	}

	logger.WithFields(map[string]interface{}{
		"loaded":  len(profiles),
		"skipped": skipped,
	}).Debug("Profiles loaded")
	return profiles, nil
}

// GetProfileByID returns one normalized profile or a not-found error.
func (s *Store) GetProfileByID(ctx context.Context, id string) (*Profile, error) {
	var row database.ProfileRow
	err := s.db.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("profile " + id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_profile_by_id", err)
	}
	return Normalize(row)
}

// MemoryStore is an in-memory Reader for tests and previews.
type MemoryStore struct {
	profiles map[string]*Profile
	// Calls counts GetEligibleProfiles invocations.
	Calls int
	// Err, when set, is returned by every read.
	Err error
}

func NewMemoryStore(profiles ...*Profile) *MemoryStore {
	m := &MemoryStore{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *MemoryStore) GetEligibleProfiles(_ context.Context, filter Filter) ([]*Profile, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if filter.ExcludeOptedOut && p.MatchingOptOut {
			continue
		}
		if filter.ActiveSince != nil && (p.LastActiveAt == nil || p.LastActiveAt.Before(*filter.ActiveSince)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetProfileByID(_ context.Context, id string) (*Profile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("profile " + id)
	}
	return p, nil
}
