package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/types"
)

const (
	// DefaultVATRate is the VAT percentage a new draft starts with.
	DefaultVATRate int64 = 20

	// DateLayout is the layout of Header.IssueDate.
	DateLayout = "2006-01-02"
)

// Header is the invoice document without its lines.
type Header struct {
	types.Entity
	ID                 id.InvoiceID `json:"id"`
	Number             string       `json:"number,omitempty"` // "" is stored as NULL
	Status             Status       `json:"status"`
	IssueDate          string       `json:"issue_date"`
	CustomerName       string       `json:"customer_name"`
	CustomerAddress    string       `json:"customer_address"`
	CustomerPostalCode string       `json:"customer_postal_code"`
	CustomerEmail      string       `json:"customer_email"`
	CustomerPhone      string       `json:"customer_phone"`
	SubtotalCents      int64        `json:"subtotal_cents"`
	VATRate            int64        `json:"vat_rate"`
	VATCents           int64        `json:"vat_cents"`
	TotalCents         int64        `json:"total_cents"`
}

// NewDraft returns an empty DRAFT header dated issueDate.
func NewDraft(issueDate string, vatRate int64, now time.Time) *Header {
	return &Header{
		Entity:    types.NewEntity(now),
		ID:        id.NewInvoiceID(),
		Status:    StatusDraft,
		IssueDate: issueDate,
		VATRate:   vatRate,
	}
}

// Clone returns a copy of h.
func (h *Header) Clone() *Header {
	c := *h
	return &c
}

// HasNumber reports whether a number has been entered or assigned.
func (h *Header) HasNumber() bool {
	return strings.TrimSpace(h.Number) != ""
}

// Apply copies the editable fields onto h. f must be normalized.
func (h *Header) Apply(f Fields) {
	h.Number = f.Number
	h.IssueDate = f.IssueDate
	h.CustomerName = f.CustomerName
	h.CustomerAddress = f.CustomerAddress
	h.CustomerPostalCode = f.CustomerPostalCode
	h.CustomerEmail = f.CustomerEmail
	h.CustomerPhone = f.CustomerPhone
	h.VATRate = f.VATRate
}

// ApplyTotals stores t on h.
func (h *Header) ApplyTotals(t Totals) {
	h.SubtotalCents = t.SubtotalCents
	h.VATCents = t.VATCents
	h.TotalCents = t.TotalCents
}

// Totals returns the monetary fields of h.
func (h *Header) Totals() Totals {
	return Totals{SubtotalCents: h.SubtotalCents, VATCents: h.VATCents, TotalCents: h.TotalCents}
}

// Line is one row of an invoice. Lines have no lifecycle of their own;
// they are replaced as a set whenever the header is saved.
type Line struct {
	ID             id.LineItemID `json:"id"`
	InvoiceID      id.InvoiceID  `json:"invoice_id"`
	Position       int           `json:"position"`
	Quantity       int64         `json:"quantity"`
	Reference      string        `json:"reference,omitempty"`
	Description    string        `json:"description"`
	UnitPriceCents int64         `json:"unit_price_cents"`
	LineTotalCents int64         `json:"line_total_cents"`
}

// Fields are the user-editable header fields submitted on save.
type Fields struct {
	Number             string `json:"number" yaml:"number"`
	IssueDate          string `json:"issue_date" yaml:"issue_date"`
	CustomerName       string `json:"customer_name" yaml:"customer_name"`
	CustomerAddress    string `json:"customer_address" yaml:"customer_address"`
	CustomerPostalCode string `json:"customer_postal_code" yaml:"customer_postal_code"`
	CustomerEmail      string `json:"customer_email" yaml:"customer_email"`
	CustomerPhone      string `json:"customer_phone" yaml:"customer_phone"`
	VATRate            int64  `json:"vat_rate" yaml:"vat_rate"`
}

// FieldsOf returns the editable fields currently on h.
func FieldsOf(h *Header) Fields {
	return Fields{
		Number:             h.Number,
		IssueDate:          h.IssueDate,
		CustomerName:       h.CustomerName,
		CustomerAddress:    h.CustomerAddress,
		CustomerPostalCode: h.CustomerPostalCode,
		CustomerEmail:      h.CustomerEmail,
		CustomerPhone:      h.CustomerPhone,
		VATRate:            h.VATRate,
	}
}

// Normalize trims every text field.
func (f Fields) Normalize() Fields {
	f.Number = strings.TrimSpace(f.Number)
	f.IssueDate = strings.TrimSpace(f.IssueDate)
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.CustomerAddress = strings.TrimSpace(f.CustomerAddress)
	f.CustomerPostalCode = strings.TrimSpace(f.CustomerPostalCode)
	f.CustomerEmail = strings.TrimSpace(f.CustomerEmail)
	f.CustomerPhone = strings.TrimSpace(f.CustomerPhone)
	return f
}

// Validate checks a normalized Fields value.
func (f Fields) Validate() error {
	if err := ValidateIssueDate(f.IssueDate); err != nil {
		return err
	}
	if f.VATRate < 0 || f.VATRate > 100 {
		return ValidationError{Field: "vat_rate", Message: fmt.Sprintf("must be between 0 and 100, got %d", f.VATRate)}
	}
	return nil
}

// ValidateIssueDate checks that s is a calendar date in DateLayout.
func ValidateIssueDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return ValidationError{Field: "issue_date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return nil
}

// LineInput is one submitted line. Position is implied by slice order.
type LineInput struct {
	Quantity       int64  `json:"quantity" yaml:"quantity"`
	Reference      string `json:"reference" yaml:"reference"`
	Description    string `json:"description" yaml:"description"`
	UnitPriceCents int64  `json:"unit_price_cents" yaml:"unit_price_cents"`
}

// BuildLines turns inputs into persisted lines owned by invID, numbering
// positions 1..N in submission order, and computes the header totals.
func BuildLines(invID id.InvoiceID, inputs []LineInput, vatRate int64) ([]Line, Totals, error) {
	totals, err := CalculateTotals(inputs, vatRate)
	if err != nil {
		return nil, Totals{}, err
	}

	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lineTotal, _ := LineTotal(in.Quantity, in.UnitPriceCents) //nolint:errcheck // checked by CalculateTotals
		lines[i] = Line{
			ID:             id.NewLineItemID(),
			InvoiceID:      invID,
			Position:       i + 1,
			Quantity:       in.Quantity,
			Reference:      strings.TrimSpace(in.Reference),
			Description:    strings.TrimSpace(in.Description),
			UnitPriceCents: in.UnitPriceCents,
			LineTotalCents: lineTotal,
		}
	}
	return lines, totals, nil
}

// Summary is the list-view projection of a header.
type Summary struct {
	ID           id.InvoiceID `json:"id"`
	Number       string       `json:"number,omitempty"`
	IssueDate    string       `json:"issue_date"`
	Status       Status       `json:"status"`
	CustomerName string       `json:"customer_name"`
	TotalCents   int64        `json:"total_cents"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SummaryOf projects h.
func SummaryOf(h *Header) *Summary {
	return &Summary{
		ID:           h.ID,
		Number:       h.Number,
		IssueDate:    h.IssueDate,
		Status:       h.Status,
		CustomerName: h.CustomerName,
		TotalCents:   h.TotalCents,
		CreatedAt:    h.CreatedAt,
	}
}

// Matches reports whether search is a case-insensitive substring of the
// number, customer name or issue date. A blank search matches everything.
func (s *Summary) Matches(search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Number), search) ||
		strings.Contains(strings.ToLower(s.CustomerName), search) ||
		strings.Contains(strings.ToLower(s.IssueDate), search)
}

// ListOpts filters List.
type ListOpts struct {
	Search string // Unicode case-insensitive substring, see Summary.Matches
	Status Status
	Limit  int // 0 or negative: no limit
	Offset int // negative: 0
}

// LikePattern returns a "%search%" pattern for SQL LIKE with backslash
// as the escape character.
func LikePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}
