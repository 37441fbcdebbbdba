package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store/sqldb"
	"github.com/xraph/invoicer/types"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02 15:04:05.000000000"

const invoiceColumns = `id, number, status, issue_date, customer_name, customer_address,
    customer_postal_code, customer_email, customer_phone, subtotal_cents, vat_rate,
    vat_cents, total_cents, created_at, updated_at`

const lineColumns = `id, invoice_id, position, quantity, reference, description,
    unit_price_cents, line_total_cents`

// ==================== Invoice models ====================

type invoiceModel struct {
	ID                 string
	Number             sql.NullString
	Status             string
	IssueDate          string
	CustomerName       string
	CustomerAddress    string
	CustomerPostalCode string
	CustomerEmail      string
	CustomerPhone      string
	SubtotalCents      int64
	VATRate            int64
	VATCents           int64
	TotalCents         int64
	CreatedAt          string
	UpdatedAt          string
}

func toInvoiceModel(h *invoice.Header) *invoiceModel {
	return &invoiceModel{
		ID:                 h.ID.String(),
		Number:             sqldb.NullString(h.Number),
		Status:             string(h.Status),
		IssueDate:          h.IssueDate,
		CustomerName:       h.CustomerName,
		CustomerAddress:    h.CustomerAddress,
		CustomerPostalCode: h.CustomerPostalCode,
		CustomerEmail:      h.CustomerEmail,
		CustomerPhone:      h.CustomerPhone,
		SubtotalCents:      h.SubtotalCents,
		VATRate:            h.VATRate,
		VATCents:           h.VATCents,
		TotalCents:         h.TotalCents,
		CreatedAt:          formatTime(h.CreatedAt),
		UpdatedAt:          formatTime(h.UpdatedAt),
	}
}

func (m *invoiceModel) args() []any {
	return []any{
		m.ID, m.Number, m.Status, m.IssueDate, m.CustomerName, m.CustomerAddress,
		m.CustomerPostalCode, m.CustomerEmail, m.CustomerPhone, m.SubtotalCents, m.VATRate,
		m.VATCents, m.TotalCents, m.CreatedAt, m.UpdatedAt,
	}
}

func (m *invoiceModel) dest() []any {
	return []any{
		&m.ID, &m.Number, &m.Status, &m.IssueDate, &m.CustomerName, &m.CustomerAddress,
		&m.CustomerPostalCode, &m.CustomerEmail, &m.CustomerPhone, &m.SubtotalCents, &m.VATRate,
		&m.VATCents, &m.TotalCents, &m.CreatedAt, &m.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Header, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	status, err := invoice.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &invoice.Header{
		Entity:             types.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:                 invID,
		Number:             m.Number.String,
		Status:             status,
		IssueDate:          m.IssueDate,
		CustomerName:       m.CustomerName,
		CustomerAddress:    m.CustomerAddress,
		CustomerPostalCode: m.CustomerPostalCode,
		CustomerEmail:      m.CustomerEmail,
		CustomerPhone:      m.CustomerPhone,
		SubtotalCents:      m.SubtotalCents,
		VATRate:            m.VATRate,
		VATCents:           m.VATCents,
		TotalCents:         m.TotalCents,
	}, nil
}

// ==================== Line models ====================

type lineModel struct {
	ID             string
	InvoiceID      string
	Position       int
	Quantity       int64
	Reference      string
	Description    string
	UnitPriceCents int64
	LineTotalCents int64
}

func toLineModel(l *invoice.Line) *lineModel {
	return &lineModel{
		ID:             l.ID.String(),
		InvoiceID:      l.InvoiceID.String(),
		Position:       l.Position,
		Quantity:       l.Quantity,
		Reference:      l.Reference,
		Description:    l.Description,
		UnitPriceCents: l.UnitPriceCents,
		LineTotalCents: l.LineTotalCents,
	}
}

func (m *lineModel) args() []any {
	return []any{m.ID, m.InvoiceID, m.Position, m.Quantity, m.Reference, m.Description, m.UnitPriceCents, m.LineTotalCents}
}

func (m *lineModel) dest() []any {
	return []any{&m.ID, &m.InvoiceID, &m.Position, &m.Quantity, &m.Reference, &m.Description, &m.UnitPriceCents, &m.LineTotalCents}
}

func fromLineModel(m *lineModel) (invoice.Line, error) {
	lineID, err := id.ParseLineItemID(m.ID)
	if err != nil {
		return invoice.Line{}, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return invoice.Line{}, err
	}
	return invoice.Line{
		ID:             lineID,
		InvoiceID:      invID,
		Position:       m.Position,
		Quantity:       m.Quantity,
		Reference:      m.Reference,
		Description:    m.Description,
		UnitPriceCents: m.UnitPriceCents,
		LineTotalCents: m.LineTotalCents,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invoicer/sqlite: bad timestamp %q: %w", s, err)
	}
	return t, nil
}
