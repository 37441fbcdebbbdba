// Package observability provides a metrics extension for invoicer that records
// lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSaved     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceFinalized = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCanceled  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDeleted   = (*MetricsExtension)(nil)
	_ plugin.OnCounterAdvanced  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records invoice lifecycle metrics.
// Register it as an invoicer plugin to track them automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated   Counter
	InvoiceSaved     Counter
	InvoiceFinalized Counter
	InvoicePaid      Counter
	InvoiceCanceled  Counter
	InvoiceDeleted   Counter

	// Amount metrics
	InvoiceLines      Histogram
	FinalizedTotal    Histogram // cents
	PaidTotal         Histogram // cents
	CanceledAfterPaid Counter

	// Numbering metrics
	NumberCounter   Gauge
	CounterAdvanced Counter
	ManualOverrides Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceCreated:   factory.Counter("invoicer.invoice.created"),
		InvoiceSaved:     factory.Counter("invoicer.invoice.saved"),
		InvoiceFinalized: factory.Counter("invoicer.invoice.finalized"),
		InvoicePaid:      factory.Counter("invoicer.invoice.paid"),
		InvoiceCanceled:  factory.Counter("invoicer.invoice.canceled"),
		InvoiceDeleted:   factory.Counter("invoicer.invoice.deleted"),

		InvoiceLines:      factory.Histogram("invoicer.invoice.lines"),
		FinalizedTotal:    factory.Histogram("invoicer.invoice.finalized.total_cents"),
		PaidTotal:         factory.Histogram("invoicer.invoice.paid.total_cents"),
		CanceledAfterPaid: factory.Counter("invoicer.invoice.canceled_after_paid"),

		NumberCounter:   factory.Gauge("invoicer.number.counter"),
		CounterAdvanced: factory.Counter("invoicer.number.counter.advanced"),
		ManualOverrides: factory.Counter("invoicer.number.manual"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, _ *invoice.Header) error {
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoiceSaved implements plugin.OnInvoiceSaved.
func (m *MetricsExtension) OnInvoiceSaved(_ context.Context, _ *invoice.Header, lines []invoice.Line) error {
	m.InvoiceSaved.Inc()
	m.InvoiceLines.Observe(float64(len(lines)))
	return nil
}

// OnInvoiceFinalized implements plugin.OnInvoiceFinalized.
func (m *MetricsExtension) OnInvoiceFinalized(_ context.Context, inv *invoice.Header) error {
	m.InvoiceFinalized.Inc()
	m.FinalizedTotal.Observe(float64(inv.TotalCents))
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, inv *invoice.Header) error {
	m.InvoicePaid.Inc()
	m.PaidTotal.Observe(float64(inv.TotalCents))
	return nil
}

// OnInvoiceCanceled implements plugin.OnInvoiceCanceled.
func (m *MetricsExtension) OnInvoiceCanceled(_ context.Context, _ *invoice.Header, from invoice.Status) error {
	m.InvoiceCanceled.Inc()
	if from == invoice.StatusPaid {
		m.CanceledAfterPaid.Inc()
	}
	return nil
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (m *MetricsExtension) OnInvoiceDeleted(_ context.Context, _ id.InvoiceID) error {
	m.InvoiceDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Numbering hooks
// ──────────────────────────────────────────────────

// OnCounterAdvanced implements plugin.OnCounterAdvanced. A jump of more than
// one is a manual number pushing the counter forward.
func (m *MetricsExtension) OnCounterAdvanced(_ context.Context, from, to int64) error {
	m.CounterAdvanced.Inc()
	m.NumberCounter.Set(float64(to))
	if to-from > 1 {
		m.ManualOverrides.Inc()
	}
	return nil
}
