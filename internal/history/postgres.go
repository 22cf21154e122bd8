package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicnet/weeklymatch/internal/database"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// PostgresStore keeps history in the match_history table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetLastMatchedAt(ctx context.Context, a, b string) (*time.Time, error) {
	ua, ub := Canonical(a, b)
	var t time.Time
	err := s.db.GetContext(ctx, &t,
		`SELECT last_matched_at FROM match_history WHERE user_a_id = $1 AND user_b_id = $2`, ua, ub)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get_last_matched_at", err)
	}
	return &t, nil
}

const upsertMatch = `
INSERT INTO match_history (user_a_id, user_b_id, last_matched_at, match_count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_a_id, user_b_id) DO UPDATE
SET last_matched_at = EXCLUDED.last_matched_at,
    match_count = match_history.match_count + 1`

// RecordMatch upserts the pair; a repeat match moves last_matched_at and bumps match_count.
func (s *PostgresStore) RecordMatch(ctx context.Context, a, b string, at time.Time) error {
	if err := checkPair(a, b); err != nil {
		return err
	}
	ua, ub := Canonical(a, b)
	if _, err := s.db.ExecContext(ctx, upsertMatch, ua, ub, at.UTC()); err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "record_match",
			"pair":      PairKey(a, b),
		}).WithError(err).Error("Failed to record match")
		return apperrors.NewDatabaseError("record_match", err)
	}
	return nil
}

func (s *PostgresStore) ListMatchedSince(ctx context.Context, since time.Time) ([]Record, error) {
	var rows []database.MatchHistoryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_a_id, user_b_id, last_matched_at, match_count FROM match_history
		 WHERE last_matched_at >= $1 ORDER BY user_a_id, user_b_id`, since.UTC())
	if err != nil {
		return nil, apperrors.NewDatabaseError("list_matched_since", err)
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = Record{UserA: r.UserAID, UserB: r.UserBID, LastMatchedAt: r.LastMatchedAt, MatchCount: r.MatchCount}
	}
	return records, nil
}
