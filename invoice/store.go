package invoice

import (
	"context"

	"github.com/xraph/invoicer/id"
)

// Store defines the persistence contract for invoices, their lines and
// the number counter.
type Store interface {
	CreateDraft(ctx context.Context, h *Header) error
	GetHeader(ctx context.Context, invID id.InvoiceID) (*Header, error)
	GetLines(ctx context.Context, invID id.InvoiceID) ([]Line, error)
	// SaveHeaderAndLines replaces the header and its whole line set.
	SaveHeaderAndLines(ctx context.Context, h *Header, lines []Line) error
	// UpdateHeader persists h. UpdatedAt is stored as given; the caller
	// stamps it. A zero UpdatedAt is set to the current time.
	UpdateHeader(ctx context.Context, h *Header) error
	// Delete removes a DRAFT invoice and its lines.
	Delete(ctx context.Context, invID id.InvoiceID) error
	List(ctx context.Context, opts ListOpts) ([]*Summary, error)

	CounterStore
}
