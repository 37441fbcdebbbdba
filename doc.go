// Package invoicer manages the lifecycle of customer invoices.
//
// Invoicer is designed as a library, not a service. Import it directly into
// your Go application and back it with one of the bundled stores. It provides:
//
//   - Integer-only totals: subtotal, VAT and total in minor currency units
//   - Gap-free automatic numbering with manual overrides
//   - A strict DRAFT → FINAL → PAID / CANCELED lifecycle
//   - Atomic mutations: every operation commits fully or not at all
//   - SQLite, PostgreSQL, MongoDB and in-memory stores
//   - Plugin hooks for metrics and backups
//   - A Forge extension adapter
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/invoicer"
//	    "github.com/xraph/invoicer/store/sqlite"
//	)
//
//	s, err := sqlite.Open(ctx, "invoices.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inv := invoicer.New(s)
//	if err := inv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer inv.Stop()
//
// # Lifecycle
//
// A new invoice starts as a DRAFT. Drafts are freely edited with Save, which
// replaces the header fields and the whole line set and recomputes totals:
//
//	h, _ := inv.CreateDraft(ctx, "")
//	h, err = inv.Save(ctx, h.ID, invoice.Fields{
//	    IssueDate:    "2024-01-15",
//	    CustomerName: "Acme",
//	    VATRate:      20,
//	}, []invoice.LineInput{
//	    {Quantity: 2, Description: "Widget", UnitPriceCents: 1500},
//	})
//
// Finalize fixes the number. A blank number takes the next value of the
// counter ("007"); a manually entered one is kept and pushes the counter past
// its numeric value. Afterwards the invoice can be marked paid or canceled.
// Only drafts can be deleted, so a consumed number never disappears.
//
// # Totals
//
// All monetary calculations use integer arithmetic:
//
//	subtotal = Σ quantity × unit price
//	vat      = ⌊subtotal × rate / 100⌋
//	total    = subtotal + vat
//
// The Money type renders and parses amounts for display ("€12.50").
//
// # TypeID
//
// Invoices and lines use TypeID for globally unique, type-safe identifiers:
//
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//	li_01h455vb4pex5vsknk084sn02q    // Line ID
package invoicer
