package supabase

import (
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
)

const pgUniqueViolation = "23505"

type profileRow struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Position   string `json:"position"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func newProfileRow(rec profile.Record) profileRow {
	return profileRow{
		ID:         rec.ID,
		Email:      rec.Email,
		FullName:   rec.FullName,
		Role:       rec.Role,
		Department: rec.Department,
		Position:   rec.Position,
		CreatedAt:  formatTimestamp(rec.CreatedAt),
		UpdatedAt:  formatTimestamp(rec.UpdatedAt),
	}
}

func (r profileRow) toRecord() (profile.Record, error) {
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return profile.Record{}, crerr.Wrap(err, "created_at")
	}
	updatedAt, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return profile.Record{}, crerr.Wrap(err, "updated_at")
	}

	return profile.Record{
		ID:         r.ID,
		Email:      r.Email,
		FullName:   r.FullName,
		Role:       r.Role,
		Department: r.Department,
		Position:   r.Position,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// timestampLayouts covers RFC 3339 and the textual forms Postgres emits for
// timestamp and timestamptz columns. Fractional seconds are accepted by all.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05",
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, crerr.Newf("unsupported timestamp %q", value)
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// apiError is the error body PostgREST returns for failed requests.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func decodeAPIError(raw []byte) apiError {
	var out apiError
	if len(raw) == 0 {
		return out
	}
	_ = sonic.Unmarshal(raw, &out)
	return out
}

func (e apiError) describe(raw []byte) string {
	if strings.TrimSpace(e.Message) == "" {
		return abbreviateBody(raw)
	}

	parts := []string{e.Message}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Details != "" {
		parts = append(parts, "details="+e.Details)
	}
	if e.Hint != "" {
		parts = append(parts, "hint="+e.Hint)
	}
	return strings.Join(parts, " ")
}
