// Package plugin provides an extensible plugin system for invoicer.
// Plugins hook into invoice lifecycle events. Every hook runs after the
// change it reports has been committed.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called when a draft is created.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Header) error
}

// OnInvoiceSaved is called when a header and its lines are saved.
type OnInvoiceSaved interface {
	Plugin
	OnInvoiceSaved(ctx context.Context, inv *invoice.Header, lines []invoice.Line) error
}

// OnInvoiceFinalized is called when a draft becomes FINAL.
type OnInvoiceFinalized interface {
	Plugin
	OnInvoiceFinalized(ctx context.Context, inv *invoice.Header) error
}

// OnInvoicePaid is called when an invoice is marked paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Header) error
}

// OnInvoiceCanceled is called when an invoice is canceled.
type OnInvoiceCanceled interface {
	Plugin
	OnInvoiceCanceled(ctx context.Context, inv *invoice.Header, from invoice.Status) error
}

// OnInvoiceDeleted is called when a draft is deleted.
type OnInvoiceDeleted interface {
	Plugin
	OnInvoiceDeleted(ctx context.Context, invID id.InvoiceID) error
}

// OnCounterAdvanced is called when the number counter moved.
type OnCounterAdvanced interface {
	Plugin
	OnCounterAdvanced(ctx context.Context, from, to int64) error
}

// ──────────────────────────────────────────────────
// Mutation notification
// ──────────────────────────────────────────────────

// MutationKind names the operation behind a Mutation.
type MutationKind string

const (
	MutationCreated   MutationKind = "created"
	MutationSaved     MutationKind = "saved"
	MutationFinalized MutationKind = "finalized"
	MutationPaid      MutationKind = "paid"
	MutationCanceled  MutationKind = "canceled"
	MutationDeleted   MutationKind = "deleted"
)

// Mutation describes one committed change to the invoice data.
type Mutation struct {
	Kind      MutationKind
	InvoiceID id.InvoiceID
	Number    string
	Status    invoice.Status // invoice.StatusRemoved after a delete
	At        time.Time
}

// OnMutation is called after every committed change, whatever its kind.
type OnMutation interface {
	Plugin
	OnMutation(ctx context.Context, m Mutation) error
}
