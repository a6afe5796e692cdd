package postgres

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
)

const profileColumns = "id, email, full_name, role, department, position, created_at, updated_at"

func TestProfileRepository_GetByIDQuery(t *testing.T) {
	repo := NewProfileRepository(nil, "")

	query, args, err := repo.getByIDQuery(" u1 ")
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	want := `SELECT ` + profileColumns + ` FROM "profiles" WHERE id = $1 LIMIT 1`
	if query != want {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", want, query)
	}
	if len(args) != 1 || args[0] != "u1" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestProfileRepository_InsertQuery(t *testing.T) {
	repo := NewProfileRepository(nil, "app.profiles")
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	rec := profile.NewRecord("u1", profile.Fields{Email: "a@b.com", FullName: "A B"}, now)

	t.Run("strict", func(t *testing.T) {
		query, args, err := repo.insertQuery(rec, profile.InsertModeStrict)
		if err != nil {
			t.Fatalf("build query: %v", err)
		}

		want := `INSERT INTO "app"."profiles" (` + profileColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + profileColumns
		if query != want {
			t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", want, query)
		}
		if len(args) != 8 {
			t.Fatalf("unexpected args: %+v", args)
		}
		if role, ok := args[3].(driver.Valuer); !ok {
			t.Fatalf("expected nullable role, got %T", args[3])
		} else if v, _ := role.Value(); v != nil {
			t.Fatalf("expected blank role to be NULL, got %v", v)
		}
		createdAt, ok := args[6].(sql.NullTime)
		if !ok || !createdAt.Valid || createdAt.Time.Location() != time.UTC || !createdAt.Time.Equal(now) {
			t.Fatalf("expected created_at in UTC, got %v", args[6])
		}
		if email, ok := args[1].(sql.NullString); !ok || email != (sql.NullString{String: "a@b.com", Valid: true}) {
			t.Fatalf("expected email to be sent as given, got %v", args[1])
		}
		if args[6] != args[7] {
			t.Fatalf("expected created_at == updated_at, got %v and %v", args[6], args[7])
		}
	})

	t.Run("ignore duplicates", func(t *testing.T) {
		query, _, err := repo.insertQuery(rec, profile.InsertModeIgnoreDuplicates)
		if err != nil {
			t.Fatalf("build query: %v", err)
		}

		want := `INSERT INTO "app"."profiles" (` + profileColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING RETURNING ` + profileColumns
		if query != want {
			t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", want, query)
		}
	})
}
