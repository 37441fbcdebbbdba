package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/memory"
	"github.com/xraph/invoicer/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := memory.New()
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestRollbackOnPanic(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = s.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.SetCounter(ctx, invoice.CounterInvoiceNumber, 99); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	n, err := s.GetCounter(ctx, invoice.CounterInvoiceNumber)
	if err != nil {
		t.Fatalf("GetCounter after panic: %v", err)
	}
	if n != 1 {
		t.Errorf("counter = %d, want 1", n)
	}
}

func TestClosed(t *testing.T) {
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Ping(ctx); !errors.Is(err, invoicer.ErrStoreClosed) {
		t.Errorf("Ping: expected ErrStoreClosed, got %v", err)
	}
	err := s.RunInTx(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, invoicer.ErrStoreClosed) {
		t.Errorf("RunInTx: expected ErrStoreClosed, got %v", err)
	}
}

func TestReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	h := invoice.NewDraft("2024-01-15", 20, fixedNow())
	if err := s.CreateDraft(ctx, h); err != nil {
		t.Fatal(err)
	}
	h.CustomerName = "changed after create"

	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CustomerName != "" {
		t.Errorf("store aliased caller header: %q", got.CustomerName)
	}
	got.Status = invoice.StatusPaid
	again, _ := s.GetHeader(ctx, h.ID)
	if again.Status != invoice.StatusDraft {
		t.Errorf("store aliased returned header: %s", again.Status)
	}
}
