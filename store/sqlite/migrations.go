package sqlite

import (
	"context"

	"github.com/xraph/invoicer/store/migrate"
)

// Migrations is the migration group for the invoicer store (SQLite).
var Migrations = migrate.NewGroup("invoicer")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_invoicer_invoices",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS invoicer_invoices (
    id                   TEXT PRIMARY KEY,
    number               TEXT UNIQUE,
    status               TEXT NOT NULL DEFAULT 'DRAFT'
                         CHECK (status IN ('DRAFT', 'FINAL', 'PAID', 'CANCELED')),
    issue_date           TEXT NOT NULL,
    customer_name        TEXT NOT NULL DEFAULT '',
    customer_address     TEXT NOT NULL DEFAULT '',
    customer_postal_code TEXT NOT NULL DEFAULT '',
    customer_email       TEXT NOT NULL DEFAULT '',
    customer_phone       TEXT NOT NULL DEFAULT '',
    subtotal_cents       INTEGER NOT NULL DEFAULT 0,
    vat_rate             INTEGER NOT NULL DEFAULT 20,
    vat_cents            INTEGER NOT NULL DEFAULT 0,
    total_cents          INTEGER NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoicer_invoices_created ON invoicer_invoices (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_invoicer_invoices_status ON invoicer_invoices (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `DROP TABLE IF EXISTS invoicer_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicer_invoice_lines",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS invoicer_invoice_lines (
    id               TEXT PRIMARY KEY,
    invoice_id       TEXT NOT NULL REFERENCES invoicer_invoices (id) ON DELETE CASCADE,
    position         INTEGER NOT NULL,
    quantity         INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    reference        TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    unit_price_cents INTEGER NOT NULL DEFAULT 0,
    line_total_cents INTEGER NOT NULL DEFAULT 0,
    UNIQUE (invoice_id, position)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `DROP TABLE IF EXISTS invoicer_invoice_lines`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicer_counters",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS invoicer_counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

INSERT OR IGNORE INTO invoicer_counters (name, value) VALUES ('invoice_number', 1);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.ExecContext(ctx, `DROP TABLE IF EXISTS invoicer_counters`)
				return err
			},
		},
	)
}
