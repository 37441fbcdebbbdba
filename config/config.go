// Package config loads invoicer settings from a YAML file, a .env file and
// INVOICER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/invoice"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the invoicer configuration.
type Config struct {
	Store   StoreConfig   `json:"store" yaml:"store"`
	Invoice InvoiceConfig `json:"invoice" yaml:"invoice"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Backup  BackupConfig  `json:"backup" yaml:"backup"`
}

// StoreConfig selects and locates the backing store.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, mongo or memory (default: sqlite).
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the sqlite file, postgres connection string or mongo URI.
	DSN string `json:"dsn" yaml:"dsn"`

	// Database is the mongo database name (default: invoicer).
	Database string `json:"database" yaml:"database"`
}

// InvoiceConfig controls the lifecycle engine.
type InvoiceConfig struct {
	// DefaultVATRate is the VAT percentage of new drafts (default: 20).
	DefaultVATRate int64 `json:"default_vat_rate" yaml:"default_vat_rate"`

	// PostFinalEdits allows saving invoices that already left DRAFT.
	PostFinalEdits bool `json:"post_final_edits" yaml:"post_final_edits"`

	// Currency is used to display and parse amounts (default: eur).
	Currency string `json:"currency" yaml:"currency"`

	// PluginTimeout bounds each plugin call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" yaml:"plugin_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// BackupConfig configures the snapshot scheduler.
type BackupConfig struct {
	// Dir enables backups when set.
	Dir string `json:"dir" yaml:"dir"`

	// Interval is how often a running scheduler snapshots, e.g. under
	// "invoicer backup --watch" (default: 5m).
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:   DriverSQLite,
			DSN:      "invoices.db",
			Database: "invoicer",
		},
		Invoice: InvoiceConfig{
			DefaultVATRate: invoice.DefaultVATRate,
			Currency:       "eur",
			PluginTimeout:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backup: BackupConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the given .env files (".env" when none are given, ignored
// if missing) and INVOICER_* environment variables.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Store.Driver, "INVOICER_STORE_DRIVER")
	setString(&c.Store.DSN, "INVOICER_STORE_DSN")
	setString(&c.Store.Database, "INVOICER_STORE_DATABASE")
	setString(&c.Invoice.Currency, "INVOICER_CURRENCY")
	setString(&c.Log.Level, "INVOICER_LOG_LEVEL")
	setString(&c.Log.Format, "INVOICER_LOG_FORMAT")
	setString(&c.Backup.Dir, "INVOICER_BACKUP_DIR")

	if v := os.Getenv("INVOICER_VAT_RATE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: INVOICER_VAT_RATE: %w", err)
		}
		c.Invoice.DefaultVATRate = n
	}
	if v := os.Getenv("INVOICER_POST_FINAL_EDITS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: INVOICER_POST_FINAL_EDITS: %w", err)
		}
		c.Invoice.PostFinalEdits = b
	}
	if v := os.Getenv("INVOICER_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: INVOICER_BACKUP_INTERVAL: %w", err)
		}
		c.Backup.Interval = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverMongo && c.Store.Database == "" {
		return errors.New("store.database is required for mongo")
	}
	if c.Invoice.DefaultVATRate < 0 || c.Invoice.DefaultVATRate > 100 {
		return fmt.Errorf("invoice.default_vat_rate must be between 0 and 100, got %d", c.Invoice.DefaultVATRate)
	}
	if c.Invoice.Currency == "" {
		return errors.New("invoice.currency is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", f)
	}
	if c.Backup.Dir != "" && c.Backup.Interval <= 0 {
		return errors.New("backup.interval must be positive")
	}
	return nil
}

// Logger returns a slog.Logger writing to w as configured.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level) //nolint:errcheck // checked by Validate
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Options returns the engine options described by c.
func (c *Config) Options(logger *slog.Logger) []invoicer.Option {
	return []invoicer.Option{
		invoicer.WithLogger(logger),
		invoicer.WithDefaultVATRate(c.Invoice.DefaultVATRate),
		invoicer.WithPostFinalEdits(c.Invoice.PostFinalEdits),
		invoicer.WithPluginTimeout(c.Invoice.PluginTimeout),
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
