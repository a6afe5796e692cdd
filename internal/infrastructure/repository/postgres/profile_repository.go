package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	qb "github.com/riskibarqy/orbito-profiles/internal/platform/querybuilder"
)

const defaultProfileTable = "profiles"

// ProfileRepository talks to the profiles table directly over the Postgres
// wire protocol. It expects a role that is allowed to bypass row level
// security or a policy that admits it.
type ProfileRepository struct {
	db      *sqlx.DB
	table   string
	columns []string
}

func NewProfileRepository(db *sqlx.DB, table string) *ProfileRepository {
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultProfileTable
	}
	columns, _ := qb.ColumnsOf(profileTableModel{})

	return &ProfileRepository{
		db:      db,
		table:   qb.QuoteIdent(table),
		columns: columns,
	}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (profile.Record, bool, error) {
	query, args, err := r.getByIDQuery(id)
	if err != nil {
		return profile.Record{}, false, fmt.Errorf("build get profile query: %w", err)
	}

	var row profileTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return profile.Record{}, false, nil
		}
		return profile.Record{}, false, fmt.Errorf("get profile: %w", classifyError(err))
	}

	return profileFromRow(row), true, nil
}

// Insert writes rec and scans the RETURNING row. With
// InsertModeIgnoreDuplicates a conflicting id produces no row.
func (r *ProfileRepository) Insert(ctx context.Context, rec profile.Record, mode profile.InsertMode) (profile.Record, bool, error) {
	query, args, err := r.insertQuery(rec, mode)
	if err != nil {
		return profile.Record{}, false, fmt.Errorf("build insert profile query: %w", err)
	}

	var row profileTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return profile.Record{}, false, nil
		}
		return profile.Record{}, false, fmt.Errorf("insert profile: %w", classifyError(err))
	}

	return profileFromRow(row), true, nil
}

func (r *ProfileRepository) getByIDQuery(id string) (string, []any, error) {
	return qb.Select(r.columns...).
		From(r.table).
		Where(qb.Eq("id", strings.TrimSpace(id))).
		Limit(1).
		ToSQL()
}

func (r *ProfileRepository) insertQuery(rec profile.Record, mode profile.InsertMode) (string, []any, error) {
	builder, err := qb.InsertModel(r.table, newProfileTableModel(rec))
	if err != nil {
		return "", nil, err
	}
	if mode == profile.InsertModeIgnoreDuplicates {
		builder = builder.OnConflictDoNothing("id")
	}
	return builder.Returning(r.columns...).ToSQL()
}
