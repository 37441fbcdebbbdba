package invoice

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CounterInvoiceNumber is the key of the persisted next-number counter.
const CounterInvoiceNumber = "invoice_number"

// CounterStore reads and writes named counters. Implementations must
// honor the transaction carried by ctx.
type CounterStore interface {
	GetCounter(ctx context.Context, name string) (int64, error)
	SetCounter(ctx context.Context, name string, value int64) error
}

// FormatNumber renders an automatic invoice number: zero padded to at
// least three digits.
func FormatNumber(n int64) string {
	return fmt.Sprintf("%03d", n)
}

// Reconcile returns the counter value required after manual number has
// been used, and whether it differs from counter. Non-numeric numbers
// never move the counter; numeric ones push it past their value.
func Reconcile(counter int64, manual string) (int64, bool, error) {
	used, err := strconv.ParseInt(strings.TrimSpace(manual), 10, 64)
	if err != nil {
		return counter, false, nil
	}
	if used == math.MaxInt64 {
		return counter, false, ValidationError{Field: "number", Message: "numeric value too large"}
	}
	if target := used + 1; target > counter {
		return target, true, nil
	}
	return counter, false, nil
}

// Assignment is the outcome of a number allocation.
type Assignment struct {
	Number   string
	Auto     bool  // Number was generated from the counter
	Previous int64 // counter value before the allocation
	Counter  int64 // counter value after the allocation
	Advanced bool  // the counter was written
}

// NumberAllocator hands out invoice numbers from a CounterStore.
type NumberAllocator struct {
	counters CounterStore
	name     string
}

// NewNumberAllocator returns an allocator over the invoice number counter.
func NewNumberAllocator(counters CounterStore) *NumberAllocator {
	return &NumberAllocator{counters: counters, name: CounterInvoiceNumber}
}

// Assign settles the definitive number for an invoice being finalized.
// A blank current number consumes the counter; anything else is kept as
// a manual override and reconciled against the counter.
func (a *NumberAllocator) Assign(ctx context.Context, current string) (Assignment, error) {
	next, err := a.counters.GetCounter(ctx, a.name)
	if err != nil {
		return Assignment{}, fmt.Errorf("read counter: %w", err)
	}

	current = strings.TrimSpace(current)
	if current != "" {
		return a.reconcile(ctx, current, next)
	}

	if next == math.MaxInt64 {
		return Assignment{}, ValidationError{Field: "number", Message: "counter exhausted"}
	}
	if err := a.counters.SetCounter(ctx, a.name, next+1); err != nil {
		return Assignment{}, fmt.Errorf("advance counter: %w", err)
	}
	return Assignment{Number: FormatNumber(next), Auto: true, Previous: next, Counter: next + 1, Advanced: true}, nil
}

// Reconcile pushes the counter past a manually entered number.
func (a *NumberAllocator) Reconcile(ctx context.Context, manual string) (Assignment, error) {
	next, err := a.counters.GetCounter(ctx, a.name)
	if err != nil {
		return Assignment{}, fmt.Errorf("read counter: %w", err)
	}
	return a.reconcile(ctx, strings.TrimSpace(manual), next)
}

func (a *NumberAllocator) reconcile(ctx context.Context, manual string, counter int64) (Assignment, error) {
	target, changed, err := Reconcile(counter, manual)
	if err != nil {
		return Assignment{}, err
	}
	if changed {
		if err := a.counters.SetCounter(ctx, a.name, target); err != nil {
			return Assignment{}, fmt.Errorf("advance counter: %w", err)
		}
	}
	return Assignment{Number: manual, Previous: counter, Counter: target, Advanced: changed}, nil
}

// Peek returns the number the next automatic allocation would produce
// without consuming it.
func (a *NumberAllocator) Peek(ctx context.Context) (string, error) {
	next, err := a.counters.GetCounter(ctx, a.name)
	if err != nil {
		return "", fmt.Errorf("read counter: %w", err)
	}
	return FormatNumber(next), nil
}
