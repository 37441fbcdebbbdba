// Package postgres implements store.Store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/migrate"
	"github.com/xraph/invoicer/store/sqldb"
	"github.com/xraph/invoicer/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

const invoiceColumns = `id, number, status, issue_date, customer_name, customer_address,
    customer_postal_code, customer_email, customer_phone, subtotal_cents, vat_rate,
    vat_cents, total_cents, created_at, updated_at`

const lineColumns = `id, invoice_id, position, quantity, reference, description,
    unit_price_cents, line_total_cents`

// Store implements store.Store using PostgreSQL.
//
// Inside a transaction, header and counter reads take row locks
// (SELECT ... FOR UPDATE), so concurrent finalizations queue on the
// counter row instead of handing out the same number twice.
type Store struct {
	db *sqldb.DB
}

// New creates a store on an open database.
func New(db *sql.DB) *Store {
	return &Store{db: sqldb.New(db, &sql.TxOptions{Isolation: sql.LevelReadCommitted})}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("invoicer/postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("invoicer/postgres: ping: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db.Raw() }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(s.db.Raw(), Migrations, migrate.WithPlaceholder(migrate.Dollar))
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", invoicer.ErrMigrationFailed, err)
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

// lockClause returns FOR UPDATE when ctx carries a transaction.
func (s *Store) lockClause(ctx context.Context) string {
	if _, ok := s.db.Tx(ctx); ok {
		return ` FOR UPDATE`
	}
	return ``
}

// ==================== Invoice Store ====================

func (s *Store) CreateDraft(ctx context.Context, h *invoice.Header) error {
	_, err := s.db.Conn(ctx).ExecContext(ctx,
		`INSERT INTO invoicer_invoices (`+invoiceColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		h.ID.String(), sqldb.NullString(h.Number), string(h.Status), h.IssueDate,
		h.CustomerName, h.CustomerAddress, h.CustomerPostalCode, h.CustomerEmail, h.CustomerPhone,
		h.SubtotalCents, h.VATRate, h.VATCents, h.TotalCents, h.CreatedAt.UTC(), h.UpdatedAt.UTC())
	return mapError(err)
}

func (s *Store) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoicer_invoices WHERE id = $1`+s.lockClause(ctx),
		invID.String())
	h, err := scanHeader(row)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicer.ErrInvoiceNotFound
		}
		return nil, err
	}
	return h, nil
}

func scanHeader(row *sql.Row) (*invoice.Header, error) {
	var (
		rawID, status        string
		number               sql.NullString
		createdAt, updatedAt time.Time
		h                    invoice.Header
	)
	err := row.Scan(&rawID, &number, &status, &h.IssueDate, &h.CustomerName, &h.CustomerAddress,
		&h.CustomerPostalCode, &h.CustomerEmail, &h.CustomerPhone, &h.SubtotalCents, &h.VATRate,
		&h.VATCents, &h.TotalCents, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if h.ID, err = id.ParseInvoiceID(rawID); err != nil {
		return nil, err
	}
	if h.Status, err = invoice.ParseStatus(status); err != nil {
		return nil, err
	}
	h.Number = number.String
	h.Entity = types.Entity{CreatedAt: createdAt.UTC(), UpdatedAt: updatedAt.UTC()}
	return &h, nil
}

func (s *Store) GetLines(ctx context.Context, invID id.InvoiceID) ([]invoice.Line, error) {
	conn := s.db.Conn(ctx)
	var one int
	err := conn.QueryRowContext(ctx, `SELECT 1 FROM invoicer_invoices WHERE id = $1`, invID.String()).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicer.ErrInvoiceNotFound
		}
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM invoicer_invoice_lines WHERE invoice_id = $1 ORDER BY position ASC`,
		invID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]invoice.Line, 0)
	for rows.Next() {
		var (
			rawID, rawInvID string
			l               invoice.Line
		)
		if err := rows.Scan(&rawID, &rawInvID, &l.Position, &l.Quantity, &l.Reference, &l.Description,
			&l.UnitPriceCents, &l.LineTotalCents); err != nil {
			return nil, err
		}
		if l.ID, err = id.ParseLineItemID(rawID); err != nil {
			return nil, err
		}
		if l.InvoiceID, err = id.ParseInvoiceID(rawInvID); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) SaveHeaderAndLines(ctx context.Context, h *invoice.Header, lines []invoice.Line) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}

		conn := s.db.Conn(ctx)
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM invoicer_invoice_lines WHERE invoice_id = $1`, h.ID.String()); err != nil {
			return err
		}
		for i, l := range lines {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO invoicer_invoice_lines (`+lineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				l.ID.String(), h.ID.String(), i+1, l.Quantity, l.Reference, l.Description,
				l.UnitPriceCents, l.LineTotalCents); err != nil {
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
	res, err := s.db.Conn(ctx).ExecContext(ctx, `
UPDATE invoicer_invoices SET
    number = $1, status = $2, issue_date = $3, customer_name = $4, customer_address = $5,
    customer_postal_code = $6, customer_email = $7, customer_phone = $8, subtotal_cents = $9,
    vat_rate = $10, vat_cents = $11, total_cents = $12, updated_at = $13
WHERE id = $14`,
		sqldb.NullString(h.Number), string(h.Status), h.IssueDate, h.CustomerName, h.CustomerAddress,
		h.CustomerPostalCode, h.CustomerEmail, h.CustomerPhone, h.SubtotalCents,
		h.VATRate, h.VATCents, h.TotalCents, h.UpdatedAt,
		h.ID.String())
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
			`SELECT status FROM invoicer_invoices WHERE id = $1 FOR UPDATE`, invID.String()).Scan(&status)
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
			`DELETE FROM invoicer_invoice_lines WHERE invoice_id = $1`, invID.String()); err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx,
			`DELETE FROM invoicer_invoices WHERE id = $1 AND status = $2`,
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
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if search := strings.TrimSpace(opts.Search); search != "" {
		p := bind(invoice.LikePattern(search))
		where = append(where, `(COALESCE(number, '') ILIKE `+p+` OR customer_name ILIKE `+p+` OR issue_date ILIKE `+p+`)`)
	}
	if opts.Status != "" {
		where = append(where, `status = `+bind(string(opts.Status)))
	}

	q := `SELECT id, number, issue_date, status, customer_name, total_cents, created_at FROM invoicer_invoices`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ` + bind(opts.Limit)
	}
	if opts.Offset > 0 {
		q += ` OFFSET ` + bind(opts.Offset)
	}

	rows, err := s.db.Conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*invoice.Summary, 0)
	for rows.Next() {
		var (
			rawID, status string
			number        sql.NullString
			sum           invoice.Summary
		)
		if err := rows.Scan(&rawID, &number, &sum.IssueDate, &status, &sum.CustomerName, &sum.TotalCents, &sum.CreatedAt); err != nil {
			return nil, err
		}
		if sum.ID, err = id.ParseInvoiceID(rawID); err != nil {
			return nil, err
		}
		sum.Number = number.String
		sum.Status = invoice.Status(status)
		sum.CreatedAt = sum.CreatedAt.UTC()
		result = append(result, &sum)
	}
	return result, rows.Err()
}

// ==================== Counter Store ====================

func (s *Store) GetCounter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT value FROM invoicer_counters WHERE name = $1`+s.lockClause(ctx), name).Scan(&v)
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
INSERT INTO invoicer_counters (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, value)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
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

func mapError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", invoicer.ErrDuplicateNumber, err)
	}
	return err
}
