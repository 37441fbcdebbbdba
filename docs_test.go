package invoicer_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/store/memory"
	"github.com/xraph/invoicer/types"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("LifecycleExample", func(t *testing.T) {
		// Create store (memory for demo, use SQLite or PostgreSQL in production)
		store := memory.New()

		inv := invoicer.New(store,
			invoicer.WithLogger(slog.New(slog.DiscardHandler)),
			invoicer.WithPluginTimeout(time.Second),
		)

		ctx := context.Background()
		if err := inv.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer inv.Stop()

		h, err := inv.CreateDraft(ctx, "")
		if err != nil {
			t.Fatal(err)
		}

		h, err = inv.Save(ctx, h.ID, invoicer.Fields{
			IssueDate:    "2024-01-15",
			CustomerName: "Acme",
			VATRate:      20,
		}, []invoicer.LineInput{
			{Quantity: 2, Description: "Widget", UnitPriceCents: 1500},
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := types.EUR(h.TotalCents).String(); got != "€36.00" {
			t.Errorf("total = %s, want €36.00", got)
		}

		h, err = inv.Finalize(ctx, h.ID)
		if err != nil {
			t.Fatal(err)
		}
		if h.Number != "001" {
			t.Errorf("number = %q, want 001", h.Number)
		}

		if _, err := inv.MarkPaid(ctx, h.ID); err != nil {
			t.Fatal(err)
		}
		if err := inv.Delete(ctx, h.ID); !invoicer.IsInvalidState(err) {
			t.Errorf("delete of a paid invoice: %v", err)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("eur") // €0.00

		m1 := types.EUR(100)
		m2 := types.EUR(200)
		_ = m1.Add(m2)     // €3.00
		_ = m1.Multiply(3) // €3.00

		if got := m1.String(); got != "€1.00" {
			t.Errorf("String() = %q", got)
		}
		if got := m1.FormatMajor(); got != "1.00" {
			t.Errorf("FormatMajor() = %q", got)
		}

		m, err := types.ParseMoney("12,50 €", "eur")
		if err != nil || m.Amount != 1250 {
			t.Errorf("ParseMoney = %v, %v", m, err)
		}
	})
}
