// Package sqlite implements store.Store on an embedded SQLite database
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/migrate"
	"github.com/xraph/invoicer/store/sqldb"
)

// compile-time interface checks
var (
	_ store.Store       = (*Store)(nil)
	_ store.Snapshotter = (*Store)(nil)
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store implements store.Store using SQLite.
type Store struct {
	db *sqldb.DB
}

// New creates a store on an open database. The pool is limited to one
// connection, which serializes transactions.
func New(db *sql.DB) *Store {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Store{db: sqldb.New(db, nil)}
}

// Open opens the database at dsn (a file path or ":memory:") and enables
// foreign keys.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("invoicer/sqlite: open: %w", err)
	}
	s := New(db)
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("invoicer/sqlite: %s: %w", pragma, err)
		}
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db.Raw() }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(s.db.Raw(), Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", invoicer.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Raw().PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Raw().Close()
}

// RunInTx runs fn in a transaction carried by its ctx.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, fn)
}

// Snapshot writes a consistent copy of the database to path. path must
// not exist yet.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("invoicer/sqlite: snapshot dir: %w", err)
	}
	if _, err := s.db.Raw().ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("invoicer/sqlite: snapshot %s: %w", path, err)
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateDraft(ctx context.Context, h *invoice.Header) error {
	m := toInvoiceModel(h)
	_, err := s.db.Conn(ctx).ExecContext(ctx,
		`INSERT INTO invoicer_invoices (`+invoiceColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.args()...)
	return mapError(err)
}

func (s *Store) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	m := new(invoiceModel)
	err := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoicer_invoices WHERE id = ?`, invID.String()).
		Scan(m.dest()...)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicer.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetLines(ctx context.Context, invID id.InvoiceID) ([]invoice.Line, error) {
	conn := s.db.Conn(ctx)
	if err := s.exists(ctx, conn, invID); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM invoicer_invoice_lines WHERE invoice_id = ? ORDER BY position ASC`,
		invID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]invoice.Line, 0)
	for rows.Next() {
		m := new(lineModel)
		if err := rows.Scan(m.dest()...); err != nil {
			return nil, err
		}
		l, err := fromLineModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) exists(ctx context.Context, conn sqldb.Querier, invID id.InvoiceID) error {
	var one int
	err := conn.QueryRowContext(ctx, `SELECT 1 FROM invoicer_invoices WHERE id = ?`, invID.String()).Scan(&one)
	if isNoRows(err) {
		return invoicer.ErrInvoiceNotFound
	}
	return err
}

func (s *Store) SaveHeaderAndLines(ctx context.Context, h *invoice.Header, lines []invoice.Line) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}

		conn := s.db.Conn(ctx)
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM invoicer_invoice_lines WHERE invoice_id = ?`, h.ID.String()); err != nil {
			return err
		}
		for i := range lines {
			l := lines[i]
			l.InvoiceID = h.ID
			l.Position = i + 1
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO invoicer_invoice_lines (`+lineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				toLineModel(&l).args()...); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateHeader(ctx context.Context, h *invoice.Header) error {
	if h.UpdatedAt.IsZero() {
		h.Touch(now())
	}
	m := toInvoiceModel(h)
	res, err := s.db.Conn(ctx).ExecContext(ctx, `
UPDATE invoicer_invoices SET
    number = ?, status = ?, issue_date = ?, customer_name = ?, customer_address = ?,
    customer_postal_code = ?, customer_email = ?, customer_phone = ?, subtotal_cents = ?,
    vat_rate = ?, vat_cents = ?, total_cents = ?, updated_at = ?
WHERE id = ?`,
		m.Number, m.Status, m.IssueDate, m.CustomerName, m.CustomerAddress,
		m.CustomerPostalCode, m.CustomerEmail, m.CustomerPhone, m.SubtotalCents,
		m.VATRate, m.VATCents, m.TotalCents, m.UpdatedAt,
		m.ID)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (s *Store) Delete(ctx context.Context, invID id.InvoiceID) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		conn := s.db.Conn(ctx)
		var status string
		err := conn.QueryRowContext(ctx,
			`SELECT status FROM invoicer_invoices WHERE id = ?`, invID.String()).Scan(&status)
		if err != nil {
			if isNoRows(err) {
				return invoicer.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status(status) != invoice.StatusDraft {
			return invoicer.ErrInvalidState
		}

		if _, err := conn.ExecContext(ctx,
			`DELETE FROM invoicer_invoice_lines WHERE invoice_id = ?`, invID.String()); err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx,
			`DELETE FROM invoicer_invoices WHERE id = ? AND status = ?`,
			invID.String(), string(invoice.StatusDraft))
		if err != nil {
			return err
		}
		return expectOne(res)
	})
}

func (s *Store) List(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Summary, error) {
	var (
		where []string
		args  []any
	)
	if search := strings.TrimSpace(opts.Search); search != "" {
		p := invoice.LikePattern(strings.ToLower(search))
		where = append(where, `(`+foldFunc+`(number) LIKE ? ESCAPE '\' OR `+foldFunc+`(customer_name) LIKE ? ESCAPE '\' OR issue_date LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if opts.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(opts.Status))
	}

	q := `SELECT id, number, issue_date, status, customer_name, total_cents, created_at FROM invoicer_invoices`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		q += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*invoice.Summary, 0)
	for rows.Next() {
		var (
			rawID, status, createdAt string
			number                   sql.NullString
			sum                      invoice.Summary
		)
		if err := rows.Scan(&rawID, &number, &sum.IssueDate, &status, &sum.CustomerName, &sum.TotalCents, &createdAt); err != nil {
			return nil, err
		}
		if sum.ID, err = id.ParseInvoiceID(rawID); err != nil {
			return nil, err
		}
		if sum.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		sum.Number = number.String
		sum.Status = invoice.Status(status)
		result = append(result, &sum)
	}
	return result, rows.Err()
}

// ==================== Counter Store ====================

func (s *Store) GetCounter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT value FROM invoicer_counters WHERE name = ?`, name).Scan(&v)
	if err != nil {
		if isNoRows(err) {
			return 0, invoicer.ErrCounterNotFound
		}
		return 0, err
	}
	return v, nil
}

func (s *Store) SetCounter(ctx context.Context, name string, value int64) error {
	_, err := s.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO invoicer_counters (name, value) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value`, name, value)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func expectOne(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return invoicer.ErrInvoiceNotFound
	}
	return nil
}

// mapError turns a unique violation into ErrDuplicateNumber.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %w", invoicer.ErrDuplicateNumber, err)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", invoicer.ErrDuplicateNumber, err)
	}
	return err
}
