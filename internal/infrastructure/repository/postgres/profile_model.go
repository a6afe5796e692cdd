package postgres

import (
	"database/sql"
	"strings"
	"time"

	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
)

// profileTableModel mirrors the profiles table. Every non-key column is
// nullable there, including email and the timestamps.
type profileTableModel struct {
	ID         string         `db:"id"`
	Email      sql.NullString `db:"email"`
	FullName   sql.NullString `db:"full_name"`
	Role       sql.NullString `db:"role"`
	Department sql.NullString `db:"department"`
	Position   sql.NullString `db:"position"`
	CreatedAt  sql.NullTime   `db:"created_at"`
	UpdatedAt  sql.NullTime   `db:"updated_at"`
}

func newProfileTableModel(rec profile.Record) profileTableModel {
	return profileTableModel{
		ID:         strings.TrimSpace(rec.ID),
		Email:      sql.NullString{String: rec.Email, Valid: true},
		FullName:   nullableString(rec.FullName),
		Role:       nullableString(rec.Role),
		Department: nullableString(rec.Department),
		Position:   nullableString(rec.Position),
		CreatedAt:  nullableTime(rec.CreatedAt),
		UpdatedAt:  nullableTime(rec.UpdatedAt),
	}
}

func profileFromRow(row profileTableModel) profile.Record {
	return profile.Record{
		ID:         row.ID,
		Email:      row.Email.String,
		FullName:   row.FullName.String,
		Role:       row.Role.String,
		Department: row.Department.String,
		Position:   row.Position.String,
		CreatedAt:  timeFromNull(row.CreatedAt),
		UpdatedAt:  timeFromNull(row.UpdatedAt),
	}
}

// nullableString stores blank optional fields as NULL.
func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func timeFromNull(value sql.NullTime) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return value.Time.UTC()
}
