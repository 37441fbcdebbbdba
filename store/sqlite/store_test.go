package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/sqlite"
	"github.com/xraph/invoicer/store/storetest"
)

func openTestStore(t *testing.T, dsn string) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t, ":memory:")
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := openTestStore(t, ":memory:")
	for i := 0; i < 2; i++ {
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate #%d: %v", i+2, err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, filepath.Join(dir, "invoices.db"))

	h := invoice.NewDraft("2024-01-15", 20, fixedNow())
	h.CustomerName = "Acme"
	if err := s.CreateDraft(ctx, h); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if err := s.SetCounter(ctx, invoice.CounterInvoiceNumber, 17); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "backups", "snap.db")
	if err := s.Snapshot(ctx, path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Snapshot(ctx, path); err == nil {
		t.Error("expected error when snapshot target exists")
	}

	copyStore := openTestStore(t, path)
	got, err := copyStore.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader from snapshot: %v", err)
	}
	if got.CustomerName != "Acme" {
		t.Errorf("customer = %q", got.CustomerName)
	}
	if n, _ := copyStore.GetCounter(ctx, invoice.CounterInvoiceNumber); n != 17 {
		t.Errorf("counter in snapshot = %d, want 17", n)
	}
}
