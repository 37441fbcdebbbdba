// Package extension provides the Forge extension adapter for invoicer.
//
// It implements the forge.Extension interface to integrate invoicer
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.invoicer" or "invoicer" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "invoicer"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoice lifecycle manager"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts invoicer as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *invoicer.Invoicer
	store      store.Store
	engineOpts []invoicer.Option
}

// New creates a new invoicer Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Invoicer instance.
// This is nil until Register is called.
func (e *Extension) Engine() *invoicer.Invoicer { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = invoicer.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*invoicer.Invoicer, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("invoicer: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("invoicer: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs invoicer.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildEngineOpts() []invoicer.Option {
	opts := make([]invoicer.Option, 0, len(e.engineOpts)+4)
	opts = append(opts,
		invoicer.WithAutoMigrate(!e.config.DisableMigrate),
		invoicer.WithDefaultVATRate(e.config.DefaultVATRate),
		invoicer.WithPostFinalEdits(e.config.PostFinalEdits),
		invoicer.WithPluginTimeout(e.config.PluginTimeout),
	)

	return append(opts, e.engineOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("invoicer: configuration is required but not found in config files; " +
				"ensure 'extensions.invoicer' or 'invoicer' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("invoicer: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("default_vat_rate", e.config.DefaultVATRate),
		forge.F("post_final_edits", e.config.PostFinalEdits),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.invoicer", "invoicer"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("invoicer: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("invoicer: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.DefaultVATRate == 0 {
		cfg.DefaultVATRate = defaults.DefaultVATRate
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and bool
// flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.PostFinalEdits {
		yamlConfig.PostFinalEdits = true
	}
	if yamlConfig.DefaultVATRate == 0 && programmaticConfig.DefaultVATRate != 0 {
		yamlConfig.DefaultVATRate = programmaticConfig.DefaultVATRate
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	return mergeWithDefaults(yamlConfig)
}
