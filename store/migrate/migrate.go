// Package migrate applies versioned schema migrations to a database/sql
// connection.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Executor runs statements; *sql.Tx satisfies it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migration is one versioned schema change.
type Migration struct {
	Name    string
	Version string
	Up      func(ctx context.Context, exec Executor) error
	Down    func(ctx context.Context, exec Executor) error
}

// Group is an ordered set of migrations sharing a name.
type Group struct {
	name       string
	migrations []*Migration
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Register adds migrations. Versions must be unique within the group.
func (g *Group) Register(ms ...*Migration) error {
	for _, m := range ms {
		if m.Version == "" || m.Up == nil {
			return fmt.Errorf("migrate: %s: migration %q needs a version and an Up func", g.name, m.Name)
		}
		for _, existing := range g.migrations {
			if existing.Version == m.Version {
				return fmt.Errorf("migrate: %s: duplicate version %s", g.name, m.Version)
			}
		}
		g.migrations = append(g.migrations, m)
	}
	sort.Slice(g.migrations, func(i, j int) bool {
		return g.migrations[i].Version < g.migrations[j].Version
	})
	return nil
}

// MustRegister is Register that panics on error.
func (g *Group) MustRegister(ms ...*Migration) {
	if err := g.Register(ms...); err != nil {
		panic(err)
	}
}

// Migrations returns the registered migrations in version order.
func (g *Group) Migrations() []*Migration {
	out := make([]*Migration, len(g.migrations))
	copy(out, g.migrations)
	return out
}

// Orchestrator applies a group to a database, recording applied versions
// in a bookkeeping table.
type Orchestrator struct {
	db    *sql.DB
	group *Group
	bind  func(n int) string
	table string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlaceholder sets the bind-parameter style, e.g. "$1" for postgres.
// The default is "?".
func WithPlaceholder(bind func(n int) string) Option {
	return func(o *Orchestrator) { o.bind = bind }
}

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(o *Orchestrator) { o.table = name }
}

// Dollar is the postgres placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// NewOrchestrator creates an orchestrator for group on db.
func NewOrchestrator(db *sql.DB, group *Group, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:    db,
		group: group,
		bind:  func(int) string { return "?" },
		table: "invoicer_migrations",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result lists the versions applied by one Migrate call.
type Result struct {
	Applied []string
}

// Migrate applies every pending migration, each in its own transaction.
func (o *Orchestrator) Migrate(ctx context.Context) (*Result, error) {
	if err := o.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := o.applied(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, m := range o.group.migrations {
		if applied[m.Version] {
			continue
		}
		if err := o.apply(ctx, m); err != nil {
			return res, err
		}
		res.Applied = append(res.Applied, m.Version)
	}
	return res, nil
}

// Rollback reverts the most recently applied migration of the group.
func (o *Orchestrator) Rollback(ctx context.Context) (string, error) {
	if err := o.ensureTable(ctx); err != nil {
		return "", err
	}
	applied, err := o.applied(ctx)
	if err != nil {
		return "", err
	}

	for i := len(o.group.migrations) - 1; i >= 0; i-- {
		m := o.group.migrations[i]
		if !applied[m.Version] {
			continue
		}
		if m.Down == nil {
			return "", fmt.Errorf("migrate: %s: %s has no Down func", o.group.name, m.Version)
		}
		err := o.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.Down(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE grp = %s AND version = %s`, o.table, o.bind(1), o.bind(2)),
				o.group.name, m.Version)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("migrate: rollback %s: %w", m.Version, err)
		}
		return m.Version, nil
	}
	return "", nil
}

func (o *Orchestrator) ensureTable(ctx context.Context) error {
	_, err := o.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    grp        TEXT NOT NULL,
    version    TEXT NOT NULL,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    PRIMARY KEY (grp, version)
)`, o.table))
	if err != nil {
		return fmt.Errorf("migrate: create %s: %w", o.table, err)
	}
	return nil
}

func (o *Orchestrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := o.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT version FROM %s WHERE grp = %s`, o.table, o.bind(1)), o.group.name)
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (o *Orchestrator) apply(ctx context.Context, m *Migration) error {
	err := o.inTx(ctx, func(tx *sql.Tx) error {
		if err := m.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (grp, version, name, applied_at) VALUES (%s, %s, %s, %s)`,
				o.table, o.bind(1), o.bind(2), o.bind(3), o.bind(4)),
			o.group.name, m.Version, m.Name, time.Now().UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("migrate: apply %s (%s): %w", m.Version, m.Name, err)
	}
	return nil
}

func (o *Orchestrator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // original error wins
		return err
	}
	return tx.Commit()
}
