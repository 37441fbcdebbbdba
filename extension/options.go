package extension

import (
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/plugin"
	"github.com/xraph/invoicer/store"
)

// Option configures the invoicer Forge extension.
type Option func(*Extension)

// WithStore sets the store for the invoicer engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithInvoicerOption passes an invoicer.Option through to the underlying engine.
func WithInvoicerOption(opt invoicer.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an invoicer plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, invoicer.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDefaultVATRate sets the VAT percentage of new drafts.
func WithDefaultVATRate(rate int64) Option {
	return func(e *Extension) { e.config.DefaultVATRate = rate }
}

// WithPostFinalEdits allows saving invoices that already left DRAFT.
func WithPostFinalEdits(allow bool) Option {
	return func(e *Extension) { e.config.PostFinalEdits = allow }
}

// WithPluginTimeout bounds each plugin call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}
