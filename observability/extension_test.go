package observability_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/observability"
	"github.com/xraph/invoicer/store/memory"
)

type recorder struct {
	mu     sync.Mutex
	values map[string][]float64
}

func newRecorder() *recorder { return &recorder{values: make(map[string][]float64)} }

func (r *recorder) record(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = append(r.values[name], v)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values[name])
}

func (r *recorder) last(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.values[name]
	if len(vs) == 0 {
		return 0
	}
	return vs[len(vs)-1]
}

type metric struct {
	name string
	r    *recorder
}

func (m metric) Inc()              { m.r.record(m.name, 1) }
func (m metric) Add(v float64)     { m.r.record(m.name, v) }
func (m metric) Observe(v float64) { m.r.record(m.name, v) }
func (m metric) Set(v float64)     { m.r.record(m.name, v) }

func (r *recorder) Counter(name string) observability.Counter     { return metric{name, r} }
func (r *recorder) Histogram(name string) observability.Histogram { return metric{name, r} }
func (r *recorder) Gauge(name string) observability.Gauge         { return metric{name, r} }

func TestMetricsExtensionLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	inv := invoicer.New(memory.New(),
		invoicer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		invoicer.WithPlugin(observability.NewMetricsExtension(rec)),
	)
	if err := inv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer inv.Stop()

	h, err := inv.CreateDraft(ctx, "2024-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Save(ctx, h.ID, invoice.Fields{IssueDate: "2024-01-15", VATRate: 20}, []invoice.LineInput{
		{Quantity: 2, Description: "Widget", UnitPriceCents: 1500},
		{Quantity: 1, Description: "Service", UnitPriceCents: 5000},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Finalize(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.MarkPaid(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Cancel(ctx, h.ID); err != nil {
		t.Fatal(err)
	}

	manual, _ := inv.CreateDraft(ctx, "2024-01-16")
	if _, err := inv.Save(ctx, manual.ID, invoice.Fields{Number: "40", IssueDate: "2024-01-16", VATRate: 20}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Finalize(ctx, manual.ID); err != nil {
		t.Fatal(err)
	}

	d, _ := inv.CreateDraft(ctx, "")
	if err := inv.Delete(ctx, d.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want int
	}{
		{"invoicer.invoice.created", 3},
		{"invoicer.invoice.saved", 2},
		{"invoicer.invoice.finalized", 2},
		{"invoicer.invoice.paid", 1},
		{"invoicer.invoice.canceled", 1},
		{"invoicer.invoice.canceled_after_paid", 1},
		{"invoicer.invoice.deleted", 1},
		{"invoicer.number.counter.advanced", 2},
		{"invoicer.number.manual", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rec.count(tt.name); got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}

	if got := rec.last("invoicer.invoice.paid.total_cents"); got != 9600 {
		t.Errorf("paid total = %v, want 9600", got)
	}
	if got := rec.last("invoicer.number.counter"); got != 41 {
		t.Errorf("counter gauge = %v, want 41", got)
	}
}
