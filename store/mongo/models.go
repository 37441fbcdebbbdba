package mongo

import (
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/types"
)

// ==================== Invoice models ====================

type invoiceModel struct {
	ID                 string    `bson:"_id"`
	Number             string    `bson:"number,omitempty"`
	Status             string    `bson:"status"`
	IssueDate          string    `bson:"issue_date"`
	CustomerName       string    `bson:"customer_name"`
	CustomerAddress    string    `bson:"customer_address"`
	CustomerPostalCode string    `bson:"customer_postal_code"`
	CustomerEmail      string    `bson:"customer_email"`
	CustomerPhone      string    `bson:"customer_phone"`
	SubtotalCents      int64     `bson:"subtotal_cents"`
	VATRate            int64     `bson:"vat_rate"`
	VATCents           int64     `bson:"vat_cents"`
	TotalCents         int64     `bson:"total_cents"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

func toInvoiceModel(h *invoice.Header) *invoiceModel {
	return &invoiceModel{
		ID:                 h.ID.String(),
		Number:             h.Number,
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
		CreatedAt:          h.CreatedAt.UTC(),
		UpdatedAt:          h.UpdatedAt.UTC(),
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
	return &invoice.Header{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                 invID,
		Number:             m.Number,
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

func fromInvoiceModelToSummary(m *invoiceModel) (*invoice.Summary, error) {
	h, err := fromInvoiceModel(m)
	if err != nil {
		return nil, err
	}
	return invoice.SummaryOf(h), nil
}

// ==================== Line models ====================

type lineModel struct {
	ID             string `bson:"_id"`
	InvoiceID      string `bson:"invoice_id"`
	Position       int    `bson:"position"`
	Quantity       int64  `bson:"quantity"`
	Reference      string `bson:"reference"`
	Description    string `bson:"description"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	LineTotalCents int64  `bson:"line_total_cents"`
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

// ==================== Counter models ====================

type counterModel struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}
