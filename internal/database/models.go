package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ProfileRow is a profiles row as stored. Columns are loosely typed; profile.Normalize turns a
// row into a well-formed profile.Profile before anything scores it.
type ProfileRow struct {
	ID             string         `db:"id"`
	FullName       sql.NullString `db:"full_name"`
	Username       sql.NullString `db:"username"`
	Email          sql.NullString `db:"email"`
	Skills         pq.StringArray `db:"skills"`
	Causes         pq.StringArray `db:"causes"`
	Values         pq.StringArray `db:"values"`
	Tags           pq.StringArray `db:"tags"`
	Bio            sql.NullString `db:"bio"`
	Fame           sql.NullString `db:"fame"`
	Aim            JSONColumn     `db:"aim"`
	Game           sql.NullString `db:"game"`
	WorkStyle      sql.NullString `db:"work_style"`
	HelpNeeded     sql.NullString `db:"help_needed"`
	Location       JSONColumn     `db:"location"`
	CreatedAt      time.Time      `db:"created_at"`
	LastActiveAt   sql.NullTime   `db:"last_active_at"`
	MatchingOptOut bool           `db:"matching_opt_out"`
}

// MatchHistoryRow is one canonical pair, UserAID < UserBID.
type MatchHistoryRow struct {
	UserAID       string    `db:"user_a_id"`
	UserBID       string    `db:"user_b_id"`
	LastMatchedAt time.Time `db:"last_matched_at"`
	MatchCount    int       `db:"match_count"`
}

// JSONColumn holds a raw jsonb value. A SQL NULL scans to nil.
type JSONColumn []byte

func (j JSONColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *JSONColumn) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONColumn(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONColumn", value)
	}
	return nil
}

// IsNull reports whether the column held no JSON at all.
func (j JSONColumn) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}
