// Package memory provides an in-memory store.Store for tests and
// ephemeral use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one mutex. A transaction
// holds the mutex from begin to commit, so transactions are serialized.
type Store struct {
	mu sync.Mutex

	headers  map[string]*invoice.Header
	lines    map[string][]invoice.Line
	counters map[string]int64
	closed   bool
}

type txKey struct{ s *Store }

// New creates an empty store with the number counter seeded at 1.
func New() *Store {
	s := &Store{
		headers:  make(map[string]*invoice.Header),
		lines:    make(map[string][]invoice.Line),
		counters: make(map[string]int64),
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	if _, ok := s.counters[invoice.CounterInvoiceNumber]; !ok {
		s.counters[invoice.CounterInvoiceNumber] = 1
	}
}

// RunInTx runs fn with the store locked. State is restored if fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return invoicer.ErrStoreClosed
	}

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{s}, true))
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool) //nolint:errcheck // absent means no tx
	return v
}

// with runs fn under the lock unless ctx already holds it.
func (s *Store) with(ctx context.Context, fn func() error) error {
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return invoicer.ErrStoreClosed
	}
	return fn()
}

type state struct {
	headers  map[string]*invoice.Header
	lines    map[string][]invoice.Line
	counters map[string]int64
}

func (s *Store) snapshot() state {
	st := state{
		headers:  make(map[string]*invoice.Header, len(s.headers)),
		lines:    make(map[string][]invoice.Line, len(s.lines)),
		counters: make(map[string]int64, len(s.counters)),
	}
	for k, h := range s.headers {
		st.headers[k] = h.Clone()
	}
	for k, ls := range s.lines {
		st.lines[k] = append([]invoice.Line(nil), ls...)
	}
	for k, v := range s.counters {
		st.counters[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.headers = st.headers
	s.lines = st.lines
	s.counters = st.counters
}

// Migrate seeds the counter. There is no schema to create.
func (s *Store) Migrate(ctx context.Context) error {
	return s.with(ctx, func() error {
		s.seed()
		return nil
	})
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	return s.with(ctx, func() error { return nil })
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateDraft(ctx context.Context, h *invoice.Header) error {
	return s.with(ctx, func() error {
		if _, exists := s.headers[h.ID.String()]; exists {
			return fmt.Errorf("memory: invoice %s already exists", h.ID)
		}
		if err := s.checkNumber(h); err != nil {
			return err
		}
		s.headers[h.ID.String()] = h.Clone()
		return nil
	})
}

func (s *Store) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	var out *invoice.Header
	err := s.with(ctx, func() error {
		h, ok := s.headers[invID.String()]
		if !ok {
			return invoicer.ErrInvoiceNotFound
		}
		out = h.Clone()
		return nil
	})
	return out, err
}

func (s *Store) GetLines(ctx context.Context, invID id.InvoiceID) ([]invoice.Line, error) {
	var out []invoice.Line
	err := s.with(ctx, func() error {
		if _, ok := s.headers[invID.String()]; !ok {
			return invoicer.ErrInvoiceNotFound
		}
		out = append(make([]invoice.Line, 0, len(s.lines[invID.String()])), s.lines[invID.String()]...)
		return nil
	})
	return out, err
}

func (s *Store) SaveHeaderAndLines(ctx context.Context, h *invoice.Header, lines []invoice.Line) error {
	return s.with(ctx, func() error {
		if err := s.update(h); err != nil {
			return err
		}
		replaced := make([]invoice.Line, len(lines))
		for i, l := range lines {
			l.InvoiceID = h.ID
			l.Position = i + 1
			replaced[i] = l
		}
		s.lines[h.ID.String()] = replaced
		return nil
	})
}

func (s *Store) UpdateHeader(ctx context.Context, h *invoice.Header) error {
	return s.with(ctx, func() error { return s.update(h) })
}

func (s *Store) update(h *invoice.Header) error {
	if _, ok := s.headers[h.ID.String()]; !ok {
		return invoicer.ErrInvoiceNotFound
	}
	if err := s.checkNumber(h); err != nil {
		return err
	}
	if h.UpdatedAt.IsZero() {
		h.Touch(now())
	}
	s.headers[h.ID.String()] = h.Clone()
	return nil
}

func (s *Store) checkNumber(h *invoice.Header) error {
	if h.Number == "" {
		return nil
	}
	for k, other := range s.headers {
		if k != h.ID.String() && other.Number == h.Number {
			return invoicer.ErrDuplicateNumber
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, invID id.InvoiceID) error {
	return s.with(ctx, func() error {
		h, ok := s.headers[invID.String()]
		if !ok {
			return invoicer.ErrInvoiceNotFound
		}
		if h.Status != invoice.StatusDraft {
			return invoicer.ErrInvalidState
		}
		delete(s.lines, invID.String())
		delete(s.headers, invID.String())
		return nil
	})
}

func (s *Store) List(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Summary, error) {
	var result []*invoice.Summary
	err := s.with(ctx, func() error {
		result = make([]*invoice.Summary, 0, len(s.headers))
		for _, h := range s.headers {
			if opts.Status != "" && h.Status != opts.Status {
				continue
			}
			sum := invoice.SummaryOf(h)
			if sum.Matches(opts.Search) {
				result = append(result, sum)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})

	// Apply limit/offset; negatives behave like zero, as in the SQL stores.
	start := min(max(opts.Offset, 0), len(result))
	end := len(result)
	if opts.Limit > 0 && opts.Limit < end-start {
		end = start + opts.Limit
	}

	return result[start:end], nil
}

// ==================== Counter Store ====================

func (s *Store) GetCounter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.with(ctx, func() error {
		n, ok := s.counters[name]
		if !ok {
			return invoicer.ErrCounterNotFound
		}
		v = n
		return nil
	})
	return v, err
}

func (s *Store) SetCounter(ctx context.Context, name string, value int64) error {
	return s.with(ctx, func() error {
		s.counters[name] = value
		return nil
	})
}

func now() time.Time {
	return time.Now().UTC()
}
