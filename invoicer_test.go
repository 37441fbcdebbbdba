package invoicer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/plugin"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/memory"
	"github.com/xraph/invoicer/store/sqlite"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

var backends = []backend{
	{"memory", func(*testing.T) store.Store { return memory.New() }},
	{"sqlite", func(t *testing.T) store.Store {
		s, err := sqlite.Open(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("sqlite.Open: %v", err)
		}
		return s
	}},
}

type mutationLog struct {
	mu        sync.Mutex
	mutations []plugin.Mutation
	counters  [][2]int64
}

func (m *mutationLog) Name() string { return "mutation-log" }

func (m *mutationLog) OnMutation(_ context.Context, mut plugin.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, mut)
	return nil
}

func (m *mutationLog) OnCounterAdvanced(_ context.Context, from, to int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, [2]int64{from, to})
	return nil
}

func (m *mutationLog) kinds() []plugin.MutationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]plugin.MutationKind, len(m.mutations))
	for i, mut := range m.mutations {
		out[i] = mut.Kind
	}
	return out
}

func newEngine(t *testing.T, s store.Store, opts ...invoicer.Option) *invoicer.Invoicer {
	t.Helper()
	opts = append([]invoicer.Option{
		invoicer.WithLogger(quiet),
		invoicer.WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }),
	}, opts...)
	e := invoicer.New(s, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func setCounter(t *testing.T, s store.Store, n int64) {
	t.Helper()
	if err := s.SetCounter(context.Background(), invoice.CounterInvoiceNumber, n); err != nil {
		t.Fatalf("SetCounter: %v", err)
	}
}

func mustDraft(t *testing.T, e *invoicer.Invoicer) *invoice.Header {
	t.Helper()
	h, err := e.CreateDraft(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	return h
}

func mustFinalize(t *testing.T, e *invoicer.Invoicer, invID id.InvoiceID) *invoice.Header {
	t.Helper()
	h, err := e.Finalize(context.Background(), invID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return h
}

func TestCreateDraftDefaults(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			e := newEngine(t, b.open(t))
			h := mustDraft(t, e)
			if h.Status != invoice.StatusDraft || h.Number != "" || h.TotalCents != 0 {
				t.Errorf("unexpected draft %+v", h)
			}
			if h.VATRate != 20 {
				t.Errorf("vat rate = %d, want 20", h.VATRate)
			}
			if h.IssueDate != "2024-03-01" {
				t.Errorf("issue date = %q, want clock date", h.IssueDate)
			}

			if _, err := e.CreateDraft(context.Background(), "01/03/2024"); !invoicer.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, b.open(t))
			h := mustDraft(t, e)

			saved, err := e.Save(ctx, h.ID, invoice.Fields{
				IssueDate:    " 2024-01-15 ",
				CustomerName: " Acme ",
				VATRate:      20,
			}, []invoice.LineInput{
				{Quantity: 2, Description: "Widget", UnitPriceCents: 1500},
				{Quantity: 1, Description: "Service", UnitPriceCents: 5000},
			})
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if saved.SubtotalCents != 8000 || saved.VATCents != 1600 || saved.TotalCents != 9600 {
				t.Errorf("totals = %d/%d/%d", saved.SubtotalCents, saved.VATCents, saved.TotalCents)
			}

			got, err := e.GetHeader(ctx, h.ID)
			if err != nil {
				t.Fatalf("GetHeader: %v", err)
			}
			if got.CustomerName != "Acme" || got.IssueDate != "2024-01-15" || got.TotalCents != 9600 {
				t.Errorf("header = %+v", got)
			}

			lines, err := e.GetLines(ctx, h.ID)
			if err != nil {
				t.Fatalf("GetLines: %v", err)
			}
			if len(lines) != 2 || lines[0].Position != 1 || lines[1].Position != 2 {
				t.Fatalf("lines = %+v", lines)
			}
			if lines[0].LineTotalCents != 3000 || lines[1].LineTotalCents != 5000 {
				t.Errorf("line totals = %d, %d", lines[0].LineTotalCents, lines[1].LineTotalCents)
			}
		})
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := newEngine(t, s)
	h := mustDraft(t, e)

	tests := []struct {
		name   string
		fields invoice.Fields
		lines  []invoice.LineInput
	}{
		{"negative quantity", invoice.Fields{IssueDate: "2024-01-15", VATRate: 20}, []invoice.LineInput{{Quantity: -1, UnitPriceCents: 100}}},
		{"bad date", invoice.Fields{IssueDate: "2024-13-01", VATRate: 20}, nil},
		{"negative vat", invoice.Fields{IssueDate: "2024-01-15", VATRate: -5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Save(ctx, h.ID, tt.fields, tt.lines); !invoicer.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := e.Save(ctx, id.NewInvoiceID(), invoice.Fields{IssueDate: "2024-01-15", VATRate: 20}, nil); !invoicer.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFinalizeAutoNumber(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			log := &mutationLog{}
			e := newEngine(t, s, invoicer.WithPlugin(log))
			setCounter(t, s, 7)

			h := mustDraft(t, e)
			fin := mustFinalize(t, e, h.ID)
			if fin.Number != "007" || fin.Status != invoice.StatusFinal {
				t.Errorf("finalized = %+v", fin)
			}
			if n, _ := e.Counter(ctx); n != 8 {
				t.Errorf("counter = %d, want 8", n)
			}

			_, err := e.Finalize(ctx, h.ID)
			if !invoicer.IsInvalidState(err) {
				t.Errorf("second finalize: expected invalid state, got %v", err)
			}
			var serr *invoicer.StateError
			if !errors.As(err, &serr) || serr.Status != invoice.StatusFinal {
				t.Errorf("expected StateError from FINAL, got %v", err)
			}
			if n, _ := e.Counter(ctx); n != 8 {
				t.Errorf("counter moved on rejected finalize: %d", n)
			}

			if len(log.counters) != 1 || log.counters[0] != [2]int64{7, 8} {
				t.Errorf("counter events = %v", log.counters)
			}
		})
	}
}

func TestFinalizeSequentialDrafts(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			e := newEngine(t, s)
			setCounter(t, s, 7)

			a := mustDraft(t, e)
			c := mustDraft(t, e)
			if got := mustFinalize(t, e, a.ID).Number; got != "007" {
				t.Errorf("first = %q, want 007", got)
			}
			if got := mustFinalize(t, e, c.ID).Number; got != "008" {
				t.Errorf("second = %q, want 008", got)
			}
		})
	}
}

func TestFinalizeManualNumber(t *testing.T) {
	tests := []struct {
		name        string
		manual      string
		wantNumber  string
		wantCounter int64
	}{
		{"above counter", "50", "50", 51},
		{"below counter", "3", "3", 7},
		{"padded input", " 0012 ", "0012", 13},
		{"non numeric", "2024-A", "2024-A", 7},
	}

	for _, b := range backends {
		for _, tt := range tests {
			t.Run(b.name+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				s := b.open(t)
				e := newEngine(t, s)
				setCounter(t, s, 7)

				h := mustDraft(t, e)
				if _, err := e.Save(ctx, h.ID, invoice.Fields{Number: tt.manual, IssueDate: "2024-01-15", VATRate: 20}, nil); err != nil {
					t.Fatalf("Save: %v", err)
				}
				fin := mustFinalize(t, e, h.ID)
				if fin.Number != tt.wantNumber {
					t.Errorf("number = %q, want %q", fin.Number, tt.wantNumber)
				}
				if n, _ := e.Counter(ctx); n != tt.wantCounter {
					t.Errorf("counter = %d, want %d", n, tt.wantCounter)
				}
			})
		}
	}
}

func TestFinalizeDuplicateManualNumber(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			e := newEngine(t, s)
			setCounter(t, s, 7)

			first := mustDraft(t, e)
			mustFinalize(t, e, first.ID) // "007", counter 8

			second := mustDraft(t, e)
			if _, err := e.Save(ctx, second.ID, invoice.Fields{Number: "007", IssueDate: "2024-01-15", VATRate: 20}, nil); !invoicer.IsConflict(err) {
				t.Fatalf("Save with taken number: expected conflict, got %v", err)
			}

			// a draft already holding "008" makes the next automatic number collide
			third := mustDraft(t, e)
			if _, err := e.Save(ctx, third.ID, invoice.Fields{Number: "008", IssueDate: "2024-01-15", VATRate: 20}, nil); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := e.Finalize(ctx, second.ID); !invoicer.IsConflict(err) {
				t.Fatalf("expected conflict, got %v", err)
			}
			if n, _ := e.Counter(ctx); n != 8 {
				t.Errorf("counter = %d after failed finalize, want 8", n)
			}
			got, _ := e.GetHeader(ctx, second.ID)
			if got.Status != invoice.StatusDraft || got.Number != "" {
				t.Errorf("draft changed by failed finalize: %+v", got)
			}
		})
	}
}

type failingStore struct {
	store.Store
	failUpdate error
}

func (f *failingStore) UpdateHeader(ctx context.Context, h *invoice.Header) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	return f.Store.UpdateHeader(ctx, h)
}

func TestFinalizeFailureLeavesNoTrace(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			inner := b.open(t)
			fs := &failingStore{Store: inner}
			log := &mutationLog{}
			e := newEngine(t, fs, invoicer.WithPlugin(log))
			setCounter(t, inner, 7)

			h := mustDraft(t, e)
			boom := errors.New("disk full")
			fs.failUpdate = boom

			if _, err := e.Finalize(ctx, h.ID); !errors.Is(err, boom) {
				t.Fatalf("expected boom, got %v", err)
			}
			if n, _ := e.Counter(ctx); n != 7 {
				t.Errorf("counter = %d, want 7", n)
			}
			got, _ := e.GetHeader(ctx, h.ID)
			if got.Status != invoice.StatusDraft || got.Number != "" {
				t.Errorf("header changed: %+v", got)
			}
			if kinds := log.kinds(); len(kinds) != 1 || kinds[0] != plugin.MutationCreated {
				t.Errorf("mutations = %v, want only created", kinds)
			}
		})
	}
}

func TestGuards(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := newEngine(t, s)

	d := mustDraft(t, e)
	if _, err := e.Cancel(ctx, d.ID); !invoicer.IsInvalidState(err) {
		t.Errorf("cancel DRAFT: %v", err)
	}
	if _, err := e.MarkPaid(ctx, d.ID); !invoicer.IsInvalidState(err) {
		t.Errorf("markPaid DRAFT: %v", err)
	}

	f := mustDraft(t, e)
	mustFinalize(t, e, f.ID)
	if err := e.Delete(ctx, f.ID); !invoicer.IsInvalidState(err) {
		t.Errorf("delete FINAL: %v", err)
	}
	if _, err := e.Save(ctx, f.ID, invoice.Fields{IssueDate: "2024-01-15", VATRate: 20}, nil); !invoicer.IsInvalidState(err) {
		t.Errorf("save FINAL: %v", err)
	}

	paid, err := e.MarkPaid(ctx, f.ID)
	if err != nil || paid.Status != invoice.StatusPaid {
		t.Fatalf("markPaid FINAL: %+v, %v", paid, err)
	}
	again, err := e.MarkPaid(ctx, f.ID)
	if err != nil || again.Status != invoice.StatusPaid {
		t.Errorf("markPaid PAID should be idempotent: %+v, %v", again, err)
	}
	if err := e.Delete(ctx, f.ID); !invoicer.IsInvalidState(err) {
		t.Errorf("delete PAID: %v", err)
	}

	canceled, err := e.Cancel(ctx, f.ID)
	if err != nil || canceled.Status != invoice.StatusCanceled {
		t.Fatalf("cancel PAID: %+v, %v", canceled, err)
	}
	if canceled.Number == "" {
		t.Error("canceled invoice lost its number")
	}
	for name, op := range map[string]func() error{
		"cancel":   func() error { _, err := e.Cancel(ctx, f.ID); return err },
		"markPaid": func() error { _, err := e.MarkPaid(ctx, f.ID); return err },
		"finalize": func() error { _, err := e.Finalize(ctx, f.ID); return err },
		"delete":   func() error { return e.Delete(ctx, f.ID) },
	} {
		if err := op(); !invoicer.IsInvalidState(err) {
			t.Errorf("%s on CANCELED: %v", name, err)
		}
	}

	g := mustDraft(t, e)
	mustFinalize(t, e, g.ID)
	if h, err := e.Cancel(ctx, g.ID); err != nil || h.Status != invoice.StatusCanceled {
		t.Errorf("cancel FINAL: %+v, %v", h, err)
	}
}

func TestDeleteDraft(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEngine(t, b.open(t))
			h := mustDraft(t, e)
			if _, err := e.Save(ctx, h.ID, invoice.Fields{IssueDate: "2024-01-15", VATRate: 20},
				[]invoice.LineInput{{Quantity: 1, Description: "x", UnitPriceCents: 100}}); err != nil {
				t.Fatal(err)
			}
			if err := e.Delete(ctx, h.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := e.GetHeader(ctx, h.ID); !invoicer.IsNotFound(err) {
				t.Errorf("expected not found, got %v", err)
			}
			if err := e.Delete(ctx, h.ID); !invoicer.IsNotFound(err) {
				t.Errorf("second delete: expected not found, got %v", err)
			}
		})
	}
}

func TestPostFinalEdits(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			e := newEngine(t, s, invoicer.WithPostFinalEdits(true))
			setCounter(t, s, 7)

			h := mustDraft(t, e)
			mustFinalize(t, e, h.ID)

			saved, err := e.Save(ctx, h.ID, invoice.Fields{Number: "100", IssueDate: "2024-01-15", CustomerName: "Late fix", VATRate: 20},
				[]invoice.LineInput{{Quantity: 1, Description: "x", UnitPriceCents: 1000}})
			if err != nil {
				t.Fatalf("Save FINAL: %v", err)
			}
			if saved.Status != invoice.StatusFinal || saved.Number != "100" || saved.TotalCents != 1200 {
				t.Errorf("saved = %+v", saved)
			}
			if n, _ := e.Counter(ctx); n != 101 {
				t.Errorf("counter = %d, want 101", n)
			}

			if _, err := e.Save(ctx, h.ID, invoice.Fields{Number: "", IssueDate: "2024-01-15", VATRate: 20}, nil); !invoicer.IsValidation(err) {
				t.Errorf("clearing number: expected validation error, got %v", err)
			}
		})
	}
}

func TestListAndPeek(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newEngine(t, s, invoicer.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	setCounter(t, s, 12)

	a := mustDraft(t, e)
	b := mustDraft(t, e)
	if _, err := e.Save(ctx, b.ID, invoice.Fields{IssueDate: "2024-01-15", CustomerName: "Globex", VATRate: 20}, nil); err != nil {
		t.Fatal(err)
	}

	all, err := e.ListInvoices(ctx, "")
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(all) != 2 || all[0].ID.String() != b.ID.String() || all[1].ID.String() != a.ID.String() {
		t.Errorf("order = %+v", all)
	}

	found, err := e.ListInvoices(ctx, "glob")
	if err != nil || len(found) != 1 || found[0].CustomerName != "Globex" {
		t.Errorf("search = %+v, %v", found, err)
	}

	next, err := e.PeekNextNumber(ctx)
	if err != nil || next != "012" {
		t.Errorf("PeekNextNumber = %q, %v", next, err)
	}
	if n, _ := e.Counter(ctx); n != 12 {
		t.Errorf("peek consumed the counter: %d", n)
	}
}

func TestListRejectsNegativePaging(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.New())
	mustDraft(t, e)

	for name, opts := range map[string]invoice.ListOpts{
		"limit":  {Limit: -1},
		"offset": {Offset: -1},
	} {
		if _, err := e.List(ctx, opts); !invoicer.IsValidation(err) {
			t.Errorf("negative %s: expected validation error, got %v", name, err)
		}
	}
	if got, err := e.List(ctx, invoice.ListOpts{Limit: 1}); err != nil || len(got) != 1 {
		t.Errorf("List(limit 1) = %d, %v", len(got), err)
	}
}

// sharedStore hands out the same header pointer on every read, like a
// caching layer would.
type sharedStore struct {
	store.Store
	cache map[string]*invoice.Header
}

func (s *sharedStore) GetHeader(ctx context.Context, invID id.InvoiceID) (*invoice.Header, error) {
	if h, ok := s.cache[invID.String()]; ok {
		return h, nil
	}
	h, err := s.Store.GetHeader(ctx, invID)
	if err != nil {
		return nil, err
	}
	s.cache[invID.String()] = h
	return h, nil
}

func (s *sharedStore) UpdateHeader(ctx context.Context, h *invoice.Header) error {
	delete(s.cache, h.ID.String())
	return s.Store.UpdateHeader(ctx, h)
}

func TestMarkPaidAgainReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ss := &sharedStore{Store: memory.New(), cache: map[string]*invoice.Header{}}
	e := newEngine(t, ss)

	h := mustDraft(t, e)
	number := mustFinalize(t, e, h.ID).Number
	if _, err := e.MarkPaid(ctx, h.ID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	again, err := e.MarkPaid(ctx, h.ID)
	if err != nil {
		t.Fatalf("MarkPaid again: %v", err)
	}
	again.Status = invoice.StatusDraft
	again.Number = "tampered"

	got, err := e.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if got.Status != invoice.StatusPaid || got.Number != number {
		t.Errorf("caller edits leaked into the store: %+v", got)
	}
}

func TestUpdatedAtFollowsClock(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			now := created
			e := newEngine(t, b.open(t), invoicer.WithClock(func() time.Time { return now }))

			h := mustDraft(t, e)
			steps := []struct {
				name string
				run  func() error
			}{
				{"save", func() error {
					_, err := e.Save(ctx, h.ID, invoice.Fields{IssueDate: "2024-03-01", VATRate: 20}, nil)
					return err
				}},
				{"finalize", func() error { _, err := e.Finalize(ctx, h.ID); return err }},
				{"markPaid", func() error { _, err := e.MarkPaid(ctx, h.ID); return err }},
				{"cancel", func() error { _, err := e.Cancel(ctx, h.ID); return err }},
			}
			for _, step := range steps {
				now = now.Add(time.Hour)
				if err := step.run(); err != nil {
					t.Fatalf("%s: %v", step.name, err)
				}
				got, err := e.GetHeader(ctx, h.ID)
				if err != nil {
					t.Fatalf("GetHeader: %v", err)
				}
				if !got.UpdatedAt.Equal(now) {
					t.Errorf("%s: UpdatedAt = %v, want %v", step.name, got.UpdatedAt, now)
				}
				if !got.CreatedAt.Equal(created) {
					t.Errorf("%s: CreatedAt = %v, want %v", step.name, got.CreatedAt, created)
				}
			}
		})
	}
}

func TestMutationNotifications(t *testing.T) {
	ctx := context.Background()
	log := &mutationLog{}
	e := newEngine(t, memory.New(), invoicer.WithPlugin(log))

	h := mustDraft(t, e)
	if _, err := e.Save(ctx, h.ID, invoice.Fields{IssueDate: "2024-01-15", VATRate: 20}, nil); err != nil {
		t.Fatal(err)
	}
	mustFinalize(t, e, h.ID)
	if _, err := e.MarkPaid(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkPaid(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Cancel(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	d := mustDraft(t, e)
	if err := e.Delete(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	// rejected operations notify nobody
	_ = e.Delete(ctx, h.ID)

	want := []plugin.MutationKind{
		plugin.MutationCreated,
		plugin.MutationSaved,
		plugin.MutationFinalized,
		plugin.MutationPaid,
		plugin.MutationCanceled,
		plugin.MutationCreated,
		plugin.MutationDeleted,
	}
	got := log.kinds()
	if len(got) != len(want) {
		t.Fatalf("mutations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mutation %d = %s, want %s", i, got[i], want[i])
		}
	}
}
