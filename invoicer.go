package invoicer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/plugin"
	"github.com/xraph/invoicer/store"
)

// Invoicer is the invoice lifecycle engine.
type Invoicer struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	numbers *invoice.NumberAllocator

	// Configuration
	defaultVATRate int64
	postFinalEdits bool
	autoMigrate    bool
	clock          func() time.Time
}

// New creates a new Invoicer instance.
func New(s store.Store, opts ...Option) *Invoicer {
	e := &Invoicer{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		numbers:        invoice.NewNumberAllocator(s),
		defaultVATRate: invoice.DefaultVATRate,
		autoMigrate:    true,
		clock:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Invoicer instance.
type Option func(*Invoicer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Invoicer) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Invoicer) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Invoicer) {
		e.plugins.WithTimeout(d)
	}
}

// WithDefaultVATRate sets the VAT percentage of new drafts.
func WithDefaultVATRate(rate int64) Option {
	return func(e *Invoicer) {
		e.defaultVATRate = rate
	}
}

// WithPostFinalEdits allows saving invoices that already left DRAFT.
// A changed numeric number is then reconciled against the counter.
func WithPostFinalEdits(allow bool) Option {
	return func(e *Invoicer) {
		e.postFinalEdits = allow
	}
}

// WithAutoMigrate controls whether Start migrates the store (default: true).
func WithAutoMigrate(enabled bool) Option {
	return func(e *Invoicer) {
		e.autoMigrate = enabled
	}
}

// WithClock sets the time source used for issue dates and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Invoicer) {
		e.clock = clock
	}
}

// Plugins returns the plugin registry.
func (e *Invoicer) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store and initializes plugins.
func (e *Invoicer) Start(ctx context.Context) error {
	if e.autoMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("invoicer started",
		"plugins", e.plugins.Count(),
		"default_vat_rate", e.defaultVATRate,
		"post_final_edits", e.postFinalEdits,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Invoicer) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetHeader returns a copy of the invoice header.
func (e *Invoicer) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	return e.store.GetHeader(ctx, invID)
}

// GetLines returns the invoice lines ordered by position.
func (e *Invoicer) GetLines(ctx context.Context, invID id.InvoiceID) ([]invoice.Line, error) {
	return e.store.GetLines(ctx, invID)
}

// ListInvoices returns summaries, most recent first, optionally filtered by
// a case-insensitive search over number, customer name and issue date.
func (e *Invoicer) ListInvoices(ctx context.Context, search string) ([]*invoice.Summary, error) {
	return e.store.List(ctx, invoice.ListOpts{Search: search})
}

// List is ListInvoices with status filtering and paging. A zero Limit
// means no limit; negative paging values are rejected.
func (e *Invoicer) List(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Summary, error) {
	if opts.Limit < 0 {
		return nil, ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if opts.Offset < 0 {
		return nil, ValidationError{Field: "offset", Message: "must not be negative"}
	}
	return e.store.List(ctx, opts)
}

// PeekNextNumber returns the number the next automatic finalization would
// assign. The counter is not consumed.
func (e *Invoicer) PeekNextNumber(ctx context.Context) (string, error) {
	return e.numbers.Peek(ctx)
}

// Counter returns the current value of the number counter.
func (e *Invoicer) Counter(ctx context.Context) (int64, error) {
	return e.store.GetCounter(ctx, invoice.CounterInvoiceNumber)
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

// CreateDraft creates an empty DRAFT invoice. A blank issueDate means today.
func (e *Invoicer) CreateDraft(ctx context.Context, issueDate string) (*invoice.Header, error) {
	if issueDate == "" {
		issueDate = e.clock().Format(invoice.DateLayout)
	}
	if err := invoice.ValidateIssueDate(issueDate); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	h := invoice.NewDraft(issueDate, e.defaultVATRate, e.clock())
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		return e.store.CreateDraft(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	e.logger.Info("invoice draft created", "invoice_id", h.ID.String(), "issue_date", h.IssueDate)
	e.plugins.EmitInvoiceCreated(ctx, h)
	e.notify(ctx, plugin.MutationCreated, h)
	return h.Clone(), nil
}

// Save replaces the editable header fields and the whole line set, and
// recomputes totals. Only drafts can be saved unless post-final edits are
// enabled.
func (e *Invoicer) Save(ctx context.Context, invID id.InvoiceID, fields invoice.Fields, inputs []invoice.LineInput) (*invoice.Header, error) {
	f := fields.Normalize()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("save %s: %w", invID, err)
	}
	lines, totals, err := invoice.BuildLines(invID, inputs, f.VATRate)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", invID, err)
	}

	var (
		h          *invoice.Header
		assignment invoice.Assignment
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if h, err = e.store.GetHeader(ctx, invID); err != nil {
			return err
		}
		if _, ok := invoice.EditTransition(h.Status, e.postFinalEdits); !ok {
			return &StateError{Op: invoice.OpSave, Status: h.Status}
		}

		previous := h.Number
		h.Apply(f)
		h.ApplyTotals(totals)

		if h.Status.Numbered() && h.Number != previous {
			if h.Number == "" {
				return ValidationError{Field: "number", Message: "cannot be cleared once finalized"}
			}
			if assignment, err = e.numbers.Reconcile(ctx, h.Number); err != nil {
				return err
			}
		}

		h.Touch(e.clock())
		return e.store.SaveHeaderAndLines(ctx, h, lines)
	})
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", invID, err)
	}

	e.logger.Info("invoice saved",
		"invoice_id", h.ID.String(),
		"status", string(h.Status),
		"lines", len(lines),
		"total_cents", h.TotalCents,
	)
	e.plugins.EmitInvoiceSaved(ctx, h, lines)
	e.notifyCounter(ctx, assignment)
	e.notify(ctx, plugin.MutationSaved, h)
	return h.Clone(), nil
}

// Finalize moves a DRAFT to FINAL. A blank number is replaced by the next
// automatic number; a manual number is kept and pushes the counter past
// its numeric value.
func (e *Invoicer) Finalize(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	var (
		h          *invoice.Header
		assignment invoice.Assignment
	)
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if h, err = e.store.GetHeader(ctx, invID); err != nil {
			return err
		}
		to, ok := invoice.Transition(h.Status, invoice.OpFinalize)
		if !ok {
			return &StateError{Op: invoice.OpFinalize, Status: h.Status}
		}

		if assignment, err = e.numbers.Assign(ctx, h.Number); err != nil {
			return err
		}
		h.Number = assignment.Number
		h.Status = to
		h.Touch(e.clock())
		return e.store.UpdateHeader(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", invID, err)
	}

	e.logger.Info("invoice finalized",
		"invoice_id", h.ID.String(),
		"number", h.Number,
		"auto_number", assignment.Auto,
		"counter", assignment.Counter,
	)
	e.plugins.EmitInvoiceFinalized(ctx, h)
	e.notifyCounter(ctx, assignment)
	e.notify(ctx, plugin.MutationFinalized, h)
	return h.Clone(), nil
}

// MarkPaid moves a FINAL invoice to PAID. Marking a PAID invoice again is
// a no-op.
func (e *Invoicer) MarkPaid(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	var (
		h       *invoice.Header
		changed bool
	)
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if h, err = e.store.GetHeader(ctx, invID); err != nil {
			return err
		}
		to, ok := invoice.Transition(h.Status, invoice.OpMarkPaid)
		if !ok {
			return &StateError{Op: invoice.OpMarkPaid, Status: h.Status}
		}
		if to == h.Status {
			return nil
		}
		h.Status = to
		h.Touch(e.clock())
		changed = true
		return e.store.UpdateHeader(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("mark paid %s: %w", invID, err)
	}
	if !changed {
		return h.Clone(), nil
	}

	e.logger.Info("invoice paid", "invoice_id", h.ID.String(), "number", h.Number)
	e.plugins.EmitInvoicePaid(ctx, h)
	e.notify(ctx, plugin.MutationPaid, h)
	return h.Clone(), nil
}

// Cancel moves a FINAL or PAID invoice to CANCELED. The number stays
// consumed.
func (e *Invoicer) Cancel(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	var (
		h    *invoice.Header
		from invoice.Status
	)
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if h, err = e.store.GetHeader(ctx, invID); err != nil {
			return err
		}
		to, ok := invoice.Transition(h.Status, invoice.OpCancel)
		if !ok {
			return &StateError{Op: invoice.OpCancel, Status: h.Status}
		}
		from = h.Status
		h.Status = to
		h.Touch(e.clock())
		return e.store.UpdateHeader(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", invID, err)
	}

	e.logger.Info("invoice canceled", "invoice_id", h.ID.String(), "number", h.Number, "from", string(from))
	e.plugins.EmitInvoiceCanceled(ctx, h, from)
	e.notify(ctx, plugin.MutationCanceled, h)
	return h.Clone(), nil
}

// Delete removes a DRAFT invoice and its lines.
func (e *Invoicer) Delete(ctx context.Context, invID id.InvoiceID) error {
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		h, err := e.store.GetHeader(ctx, invID)
		if err != nil {
			return err
		}
		if _, ok := invoice.Transition(h.Status, invoice.OpDelete); !ok {
			return &StateError{Op: invoice.OpDelete, Status: h.Status}
		}
		return e.store.Delete(ctx, invID)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", invID, err)
	}

	e.logger.Info("invoice deleted", "invoice_id", invID.String())
	e.plugins.EmitInvoiceDeleted(ctx, invID)
	e.plugins.EmitMutation(ctx, plugin.Mutation{
		Kind:      plugin.MutationDeleted,
		InvoiceID: invID,
		Status:    invoice.StatusRemoved,
		At:        e.clock(),
	})
	return nil
}

func (e *Invoicer) notify(ctx context.Context, kind plugin.MutationKind, h *invoice.Header) {
	e.plugins.EmitMutation(ctx, plugin.Mutation{
		Kind:      kind,
		InvoiceID: h.ID,
		Number:    h.Number,
		Status:    h.Status,
		At:        e.clock(),
	})
}

func (e *Invoicer) notifyCounter(ctx context.Context, a invoice.Assignment) {
	if a.Advanced {
		e.plugins.EmitCounterAdvanced(ctx, a.Previous, a.Counter)
	}
}
