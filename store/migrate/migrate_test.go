package migrate_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/xraph/invoicer/store/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exec(stmt string) func(context.Context, migrate.Executor) error {
	return func(ctx context.Context, e migrate.Executor) error {
		_, err := e.ExecContext(ctx, stmt)
		return err
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestMigrateAppliesInVersionOrder(t *testing.T) {
	g := migrate.NewGroup("test")
	g.MustRegister(
		&migrate.Migration{Name: "b", Version: "002", Up: exec(`CREATE TABLE b (a_id INTEGER REFERENCES a (id))`), Down: exec(`DROP TABLE b`)},
		&migrate.Migration{Name: "a", Version: "001", Up: exec(`CREATE TABLE a (id INTEGER PRIMARY KEY)`), Down: exec(`DROP TABLE a`)},
	)
	db := openDB(t)
	orch := migrate.NewOrchestrator(db, g)

	res, err := orch.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(res.Applied) != 2 || res.Applied[0] != "001" || res.Applied[1] != "002" {
		t.Errorf("applied = %v", res.Applied)
	}

	again, err := orch.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(again.Applied) != 0 {
		t.Errorf("re-applied %v", again.Applied)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	g := migrate.NewGroup("test")
	g.MustRegister(
		&migrate.Migration{Name: "ok", Version: "001", Up: exec(`CREATE TABLE ok (id INTEGER)`)},
		&migrate.Migration{Name: "bad", Version: "002", Up: func(ctx context.Context, e migrate.Executor) error {
			if _, err := e.ExecContext(ctx, `CREATE TABLE half (id INTEGER)`); err != nil {
				return err
			}
			return errors.New("boom")
		}},
	)
	db := openDB(t)

	res, err := migrate.NewOrchestrator(db, g).Migrate(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.Applied) != 1 {
		t.Errorf("applied = %v", res.Applied)
	}
	if !tableExists(t, db, "ok") || tableExists(t, db, "half") {
		t.Error("failed migration was not rolled back")
	}
}

func TestRollback(t *testing.T) {
	g := migrate.NewGroup("test")
	g.MustRegister(
		&migrate.Migration{Name: "a", Version: "001", Up: exec(`CREATE TABLE a (id INTEGER)`), Down: exec(`DROP TABLE a`)},
		&migrate.Migration{Name: "b", Version: "002", Up: exec(`CREATE TABLE b (id INTEGER)`), Down: exec(`DROP TABLE b`)},
	)
	db := openDB(t)
	orch := migrate.NewOrchestrator(db, g)
	ctx := context.Background()

	if _, err := orch.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	v, err := orch.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v != "002" || tableExists(t, db, "b") || !tableExists(t, db, "a") {
		t.Errorf("rolled back %q; b exists=%v", v, tableExists(t, db, "b"))
	}

	res, err := orch.Migrate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "002" {
		t.Errorf("re-applied %v", res.Applied)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	g := migrate.NewGroup("test")
	m := &migrate.Migration{Name: "a", Version: "001", Up: exec(`SELECT 1`)}
	if err := g.Register(m); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(&migrate.Migration{Name: "a2", Version: "001", Up: exec(`SELECT 1`)}); err == nil {
		t.Error("expected duplicate version error")
	}
	if err := g.Register(&migrate.Migration{Name: "no-up", Version: "003"}); err == nil {
		t.Error("expected error for missing Up")
	}
	if len(g.Migrations()) != 1 {
		t.Errorf("migrations = %d", len(g.Migrations()))
	}
}
