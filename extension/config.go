package extension

import "time"

// Config holds the invoicer extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.invoicer" or "invoicer" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DefaultVATRate is the VAT percentage of new drafts (default: 20).
	// Zero means the default; pass invoicer.WithDefaultVATRate(0) through
	// WithInvoicerOption for a zero rate.
	DefaultVATRate int64 `json:"default_vat_rate" mapstructure:"default_vat_rate" yaml:"default_vat_rate"`

	// PostFinalEdits allows saving invoices that already left DRAFT.
	PostFinalEdits bool `json:"post_final_edits" mapstructure:"post_final_edits" yaml:"post_final_edits"`

	// PluginTimeout bounds each plugin call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultVATRate: 20,
		PluginTimeout:  5 * time.Second,
	}
}
