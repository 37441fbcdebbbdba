package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/invoicer/id"
	"github.com/xraph/invoicer/invoice"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onInvoiceCreated   []OnInvoiceCreated
	onInvoiceSaved     []OnInvoiceSaved
	onInvoiceFinalized []OnInvoiceFinalized
	onInvoicePaid      []OnInvoicePaid
	onInvoiceCanceled  []OnInvoiceCanceled
	onInvoiceDeleted   []OnInvoiceDeleted
	onCounterAdvanced  []OnCounterAdvanced
	onMutation         []OnMutation
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceSaved); ok {
		r.onInvoiceSaved = append(r.onInvoiceSaved, v)
	}
	if v, ok := p.(OnInvoiceFinalized); ok {
		r.onInvoiceFinalized = append(r.onInvoiceFinalized, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceCanceled); ok {
		r.onInvoiceCanceled = append(r.onInvoiceCanceled, v)
	}
	if v, ok := p.(OnInvoiceDeleted); ok {
		r.onInvoiceDeleted = append(r.onInvoiceDeleted, v)
	}
	if v, ok := p.(OnCounterAdvanced); ok {
		r.onCounterAdvanced = append(r.onCounterAdvanced, v)
	}
	if v, ok := p.(OnMutation); ok {
		r.onMutation = append(r.onMutation, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnInvoiceCreated)(nil)).Elem(), "OnInvoiceCreated")
	checkInterface(reflect.TypeOf((*OnInvoiceSaved)(nil)).Elem(), "OnInvoiceSaved")
	checkInterface(reflect.TypeOf((*OnInvoiceFinalized)(nil)).Elem(), "OnInvoiceFinalized")
	checkInterface(reflect.TypeOf((*OnInvoicePaid)(nil)).Elem(), "OnInvoicePaid")
	checkInterface(reflect.TypeOf((*OnInvoiceCanceled)(nil)).Elem(), "OnInvoiceCanceled")
	checkInterface(reflect.TypeOf((*OnInvoiceDeleted)(nil)).Elem(), "OnInvoiceDeleted")
	checkInterface(reflect.TypeOf((*OnCounterAdvanced)(nil)).Elem(), "OnCounterAdvanced")
	checkInterface(reflect.TypeOf((*OnMutation)(nil)).Elem(), "OnMutation")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Header) {
	r.mu.RLock()
	plugins := r.onInvoiceCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceCreated(ctx, inv.Clone())
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceCreated failed",
				"plugin", p.Name(),
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceSaved emits an invoice saved event.
func (r *Registry) EmitInvoiceSaved(ctx context.Context, inv *invoice.Header, lines []invoice.Line) {
	r.mu.RLock()
	plugins := r.onInvoiceSaved
	r.mu.RUnlock()

	for _, p := range plugins {
		cp := make([]invoice.Line, len(lines))
		copy(cp, lines)
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceSaved(ctx, inv.Clone(), cp)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceSaved failed",
				"plugin", p.Name(),
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceFinalized emits an invoice finalized event.
func (r *Registry) EmitInvoiceFinalized(ctx context.Context, inv *invoice.Header) {
	r.mu.RLock()
	plugins := r.onInvoiceFinalized
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceFinalized(ctx, inv.Clone())
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceFinalized failed",
				"plugin", p.Name(),
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Header) {
	r.mu.RLock()
	plugins := r.onInvoicePaid
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoicePaid(ctx, inv.Clone())
		}); err != nil {
			r.logger.Warn("plugin OnInvoicePaid failed",
				"plugin", p.Name(),
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceCanceled emits an invoice canceled event.
func (r *Registry) EmitInvoiceCanceled(ctx context.Context, inv *invoice.Header, from invoice.Status) {
	r.mu.RLock()
	plugins := r.onInvoiceCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceCanceled(ctx, inv.Clone(), from)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceCanceled failed",
				"plugin", p.Name(),
				"invoice_id", inv.ID.String(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceDeleted emits an invoice deleted event.
func (r *Registry) EmitInvoiceDeleted(ctx context.Context, invID id.InvoiceID) {
	r.mu.RLock()
	plugins := r.onInvoiceDeleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceDeleted(ctx, invID)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceDeleted failed",
				"plugin", p.Name(),
				"invoice_id", invID.String(),
				"error", err,
			)
		}
	}
}

// EmitCounterAdvanced emits a counter advanced event.
func (r *Registry) EmitCounterAdvanced(ctx context.Context, from, to int64) {
	r.mu.RLock()
	plugins := r.onCounterAdvanced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCounterAdvanced(ctx, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnCounterAdvanced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMutation notifies every OnMutation plugin.
func (r *Registry) EmitMutation(ctx context.Context, m Mutation) {
	r.mu.RLock()
	plugins := r.onMutation
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMutation(ctx, m)
		}); err != nil {
			r.logger.Warn("plugin OnMutation failed",
				"plugin", p.Name(),
				"kind", string(m.Kind),
				"invoice_id", m.InvoiceID.String(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the invoice pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
