// Package storetest is a conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
)

// Factory returns a migrated, empty store. The suite closes nothing;
// factories register their own cleanup.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SaveReplacesLines", func(t *testing.T) { testSaveReplacesLines(t, newStore(t)) })
	t.Run("UniqueNumber", func(t *testing.T) { testUniqueNumber(t, newStore(t)) })
	t.Run("DeleteOnlyDraft", func(t *testing.T) { testDeleteOnlyDraft(t, newStore(t)) })
	t.Run("ListOrderAndSearch", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ListPaging", func(t *testing.T) { testListPaging(t, newStore(t)) })
	t.Run("SearchFoldsCase", func(t *testing.T) { testSearchFoldsCase(t, newStore(t)) })
	t.Run("UpdateKeepsUpdatedAt", func(t *testing.T) { testUpdateKeepsUpdatedAt(t, newStore(t)) })
	t.Run("Counter", func(t *testing.T) { testCounter(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxNested", func(t *testing.T) { testTxNested(t, newStore(t)) })
}

func draft(t *testing.T, s store.Store, offset time.Duration) *invoice.Header {
	t.Helper()
	h := invoice.NewDraft("2024-01-15", invoice.DefaultVATRate, base.Add(offset))
	if err := s.CreateDraft(context.Background(), h); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return h
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	h := draft(t, s, 0)

	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if got.ID.String() != h.ID.String() || got.Status != invoice.StatusDraft || got.Number != "" {
		t.Errorf("got %+v", got)
	}
	if got.VATRate != 20 || got.IssueDate != "2024-01-15" {
		t.Errorf("defaults not persisted: %+v", got)
	}

	lines, err := s.GetLines(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetLines: %v", err)
	}
	if lines == nil || len(lines) != 0 {
		t.Errorf("lines = %#v, want empty slice", lines)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	missing := id.NewInvoiceID()

	if _, err := s.GetHeader(ctx, missing); !invoicer.IsNotFound(err) {
		t.Errorf("GetHeader: expected not found, got %v", err)
	}
	if _, err := s.GetLines(ctx, missing); !invoicer.IsNotFound(err) {
		t.Errorf("GetLines: expected not found, got %v", err)
	}
	h := invoice.NewDraft("2024-01-15", 20, base)
	if err := s.UpdateHeader(ctx, h); !invoicer.IsNotFound(err) {
		t.Errorf("UpdateHeader: expected not found, got %v", err)
	}
	if err := s.Delete(ctx, missing); !invoicer.IsNotFound(err) {
		t.Errorf("Delete: expected not found, got %v", err)
	}
}

func testSaveReplacesLines(t *testing.T, s store.Store) {
	ctx := context.Background()
	h := draft(t, s, 0)

	save := func(inputs []invoice.LineInput) {
		t.Helper()
		lines, totals, err := invoice.BuildLines(h.ID, inputs, h.VATRate)
		if err != nil {
			t.Fatalf("BuildLines: %v", err)
		}
		h.ApplyTotals(totals)
		h.CustomerName = "Acme"
		if err := s.RunInTx(ctx, func(ctx context.Context) error {
			return s.SaveHeaderAndLines(ctx, h, lines)
		}); err != nil {
			t.Fatalf("SaveHeaderAndLines: %v", err)
		}
	}

	save([]invoice.LineInput{
		{Quantity: 1, Description: "a", UnitPriceCents: 100},
		{Quantity: 2, Description: "b", UnitPriceCents: 200},
		{Quantity: 3, Description: "c", UnitPriceCents: 300},
	})
	save([]invoice.LineInput{
		{Quantity: 2, Reference: "R1", Description: "Widget", UnitPriceCents: 1500},
		{Quantity: 1, Description: "Service", UnitPriceCents: 5000},
	})

	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if got.SubtotalCents != 8000 || got.VATCents != 1600 || got.TotalCents != 9600 {
		t.Errorf("totals = %d/%d/%d, want 8000/1600/9600", got.SubtotalCents, got.VATCents, got.TotalCents)
	}
	if got.CustomerName != "Acme" {
		t.Errorf("customer = %q", got.CustomerName)
	}

	lines, err := s.GetLines(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, l := range lines {
		if l.Position != i+1 {
			t.Errorf("line %d position = %d", i, l.Position)
		}
	}
	if lines[0].Reference != "R1" || lines[0].LineTotalCents != 3000 || lines[1].Description != "Service" {
		t.Errorf("lines = %+v", lines)
	}
}

func testUniqueNumber(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := draft(t, s, 0)
	b := draft(t, s, time.Second)
	c := draft(t, s, 2*time.Second)

	a.Number = "042"
	if err := s.UpdateHeader(ctx, a); err != nil {
		t.Fatalf("UpdateHeader(a): %v", err)
	}
	b.Number = "042"
	if err := s.UpdateHeader(ctx, b); !errors.Is(err, invoicer.ErrDuplicateNumber) {
		t.Errorf("expected ErrDuplicateNumber, got %v", err)
	}

	// several blank numbers coexist
	b.Number = ""
	c.Number = ""
	if err := s.UpdateHeader(ctx, b); err != nil {
		t.Errorf("blank b: %v", err)
	}
	if err := s.UpdateHeader(ctx, c); err != nil {
		t.Errorf("blank c: %v", err)
	}

	// rewriting the same number on the same invoice is fine
	if err := s.UpdateHeader(ctx, a); err != nil {
		t.Errorf("rewrite a: %v", err)
	}
}

func testDeleteOnlyDraft(t *testing.T, s store.Store) {
	ctx := context.Background()
	d := draft(t, s, 0)
	f := draft(t, s, time.Second)

	lines, _, err := invoice.BuildLines(d.ID, []invoice.LineInput{{Quantity: 1, Description: "x", UnitPriceCents: 1}}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveHeaderAndLines(ctx, d, lines); err != nil {
		t.Fatalf("SaveHeaderAndLines: %v", err)
	}

	f.Status = invoice.StatusFinal
	f.Number = "001"
	if err := s.UpdateHeader(ctx, f); err != nil {
		t.Fatalf("UpdateHeader: %v", err)
	}

	if err := s.Delete(ctx, f.ID); !errors.Is(err, invoicer.ErrInvalidState) {
		t.Errorf("Delete(final): expected ErrInvalidState, got %v", err)
	}
	if _, err := s.GetHeader(ctx, f.ID); err != nil {
		t.Errorf("final invoice gone after rejected delete: %v", err)
	}

	if err := s.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete(draft): %v", err)
	}
	if _, err := s.GetHeader(ctx, d.ID); !invoicer.IsNotFound(err) {
		t.Errorf("draft still present: %v", err)
	}
	if _, err := s.GetLines(ctx, d.ID); !invoicer.IsNotFound(err) {
		t.Errorf("lines still reachable: %v", err)
	}
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := draft(t, s, 0)
	second := draft(t, s, time.Minute)
	third := draft(t, s, 2*time.Minute)

	first.CustomerName = "Acme Corp"
	first.Number = "007"
	second.CustomerName = "Globex"
	second.IssueDate = "2023-12-31"
	third.CustomerName = "50% Off Ltd"
	third.Status = invoice.StatusFinal
	third.Number = "INV_9"
	for _, h := range []*invoice.Header{first, second, third} {
		if err := s.UpdateHeader(ctx, h); err != nil {
			t.Fatalf("UpdateHeader: %v", err)
		}
	}

	all, err := s.List(ctx, invoice.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{third.ID.String(), second.ID.String(), first.ID.String()}
	if len(all) != len(want) {
		t.Fatalf("got %d summaries, want %d", len(all), len(want))
	}
	for i, sum := range all {
		if sum.ID.String() != want[i] {
			t.Errorf("position %d: got %s, want %s", i, sum.ID, want[i])
		}
	}
	if all[2].Number != "007" || all[2].CustomerName != "Acme Corp" {
		t.Errorf("summary = %+v", all[2])
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"acme", []string{first.ID.String()}},
		{"007", []string{first.ID.String()}},
		{"2023-12", []string{second.ID.String()}},
		{"50%", []string{third.ID.String()}},
		{"inv_", []string{third.ID.String()}},
		{"_", []string{third.ID.String()}},
		{"nobody", nil},
		{"   ", want},
	}
	for _, tt := range tests {
		got, err := s.List(ctx, invoice.ListOpts{Search: tt.search})
		if err != nil {
			t.Fatalf("List(%q): %v", tt.search, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("List(%q) = %d results, want %d", tt.search, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].ID.String() != tt.want[i] {
				t.Errorf("List(%q)[%d] = %s", tt.search, i, got[i].ID)
			}
		}
	}

	finals, err := s.List(ctx, invoice.ListOpts{Status: invoice.StatusFinal})
	if err != nil {
		t.Fatalf("List(status): %v", err)
	}
	if len(finals) != 1 || finals[0].ID.String() != third.ID.String() {
		t.Errorf("status filter = %+v", finals)
	}

	page, err := s.List(ctx, invoice.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List(page): %v", err)
	}
	if len(page) != 1 || page[0].ID.String() != second.ID.String() {
		t.Errorf("page = %+v", page)
	}
}

func testListPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := draft(t, s, 0)
	second := draft(t, s, time.Minute)
	third := draft(t, s, 2*time.Minute)
	newest := []string{third.ID.String(), second.ID.String(), first.ID.String()}

	tests := []struct {
		name  string
		opts  invoice.ListOpts
		wants []string
	}{
		{"NegativeLimit", invoice.ListOpts{Limit: -1}, newest},
		{"NegativeOffset", invoice.ListOpts{Offset: -1}, newest},
		{"BothNegative", invoice.ListOpts{Limit: -5, Offset: -5}, newest},
		{"NegativeLimitWithOffset", invoice.ListOpts{Limit: -1, Offset: 1}, newest[1:]},
		{"NegativeOffsetWithLimit", invoice.ListOpts{Limit: 2, Offset: -1}, newest[:2]},
		{"OffsetPastEnd", invoice.ListOpts{Offset: 10}, nil},
		{"LimitPastEnd", invoice.ListOpts{Limit: 10, Offset: 2}, newest[2:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List(%+v): %v", tt.opts, err)
			}
			if len(got) != len(tt.wants) {
				t.Fatalf("List(%+v) = %d results, want %d", tt.opts, len(got), len(tt.wants))
			}
			for i := range got {
				if got[i].ID.String() != tt.wants[i] {
					t.Errorf("List(%+v)[%d] = %s, want %s", tt.opts, i, got[i].ID, tt.wants[i])
				}
			}
		})
	}
}

func testSearchFoldsCase(t *testing.T, s store.Store) {
	ctx := context.Background()
	zola := draft(t, s, 0)
	acme := draft(t, s, time.Minute)

	zola.CustomerName = "Émile Zola SARL"
	zola.Number = "ÉTÉ-1"
	acme.CustomerName = "ACME Corp"
	for _, h := range []*invoice.Header{zola, acme} {
		if err := s.UpdateHeader(ctx, h); err != nil {
			t.Fatalf("UpdateHeader: %v", err)
		}
	}

	tests := []struct {
		search string
		want   string
	}{
		{"acme", acme.ID.String()},
		{"aCmE cOrP", acme.ID.String()},
		{"émile", zola.ID.String()},
		{"ÉMILE", zola.ID.String()},
		{"été", zola.ID.String()},
	}
	for _, tt := range tests {
		got, err := s.List(ctx, invoice.ListOpts{Search: tt.search})
		if err != nil {
			t.Fatalf("List(%q): %v", tt.search, err)
		}
		if len(got) != 1 || got[0].ID.String() != tt.want {
			t.Errorf("List(%q) = %+v, want only %s", tt.search, got, tt.want)
		}
	}
}

func testUpdateKeepsUpdatedAt(t *testing.T, s store.Store) {
	ctx := context.Background()
	h := draft(t, s, 0)

	stamp := base.Add(36 * time.Hour)
	h.CustomerName = "Acme"
	h.Touch(stamp)
	if err := s.UpdateHeader(ctx, h); err != nil {
		t.Fatalf("UpdateHeader: %v", err)
	}

	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, stamp)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
}

func testCounter(t *testing.T, s store.Store) {
	ctx := context.Background()

	n, err := s.GetCounter(ctx, invoice.CounterInvoiceNumber)
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if n != 1 {
		t.Errorf("seeded counter = %d, want 1", n)
	}

	if err := s.SetCounter(ctx, invoice.CounterInvoiceNumber, 42); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}
	if n, _ := s.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 42 {
		t.Errorf("counter = %d, want 42", n)
	}

	// migrating again must not reseed
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if n, _ := s.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 42 {
		t.Errorf("counter after re-migrate = %d, want 42", n)
	}

	if _, err := s.GetCounter(ctx, "missing"); !errors.Is(err, invoicer.ErrCounterNotFound) {
		t.Errorf("expected ErrCounterNotFound, got %v", err)
	}
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	h := draft(t, s, 0)

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		h.Status = invoice.StatusFinal
		h.Number = "001"
		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}
		return s.SetCounter(ctx, invoice.CounterInvoiceNumber, 2)
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	got, _ := s.GetHeader(ctx, h.ID)
	if got == nil || got.Status != invoice.StatusFinal || got.Number != "001" {
		t.Errorf("header = %+v", got)
	}
	if n, _ := s.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 2 {
		t.Errorf("counter = %d, want 2", n)
	}
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	h := draft(t, s, 0)
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		upd := h.Clone()
		upd.Status = invoice.StatusFinal
		upd.Number = "001"
		if err := s.UpdateHeader(ctx, upd); err != nil {
			return err
		}
		if err := s.SetCounter(ctx, invoice.CounterInvoiceNumber, 2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx: expected boom, got %v", err)
	}

	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if got.Status != invoice.StatusDraft || got.Number != "" {
		t.Errorf("header changed despite rollback: %+v", got)
	}
	if n, _ := s.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 1 {
		t.Errorf("counter = %d after rollback, want 1", n)
	}
}

func testTxNested(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.RunInTx(ctx, func(ctx context.Context) error {
			return s.SetCounter(ctx, invoice.CounterInvoiceNumber, 9)
		}); err != nil {
			return err
		}
		if n, err := s.GetCounter(ctx, invoice.CounterInvoiceNumber); err != nil || n != 9 {
			t.Errorf("inner write not visible in outer tx: %d, %v", n, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 1 {
		t.Errorf("nested write survived outer rollback: counter = %d", n)
	}
}
