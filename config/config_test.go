package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/invoicer/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Store.Driver != config.DriverSQLite || cfg.Invoice.DefaultVATRate != 20 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "invoicer.yaml", `
store:
  driver: postgres
  dsn: postgres://localhost/invoices
invoice:
  default_vat_rate: 7
  post_final_edits: true
log:
  format: json
backup:
  dir: /var/backups/invoicer
  interval: 30s
`)
	cfg, err := config.Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != config.DriverPostgres || cfg.Store.DSN != "postgres://localhost/invoices" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Invoice.DefaultVATRate != 7 || !cfg.Invoice.PostFinalEdits {
		t.Errorf("invoice = %+v", cfg.Invoice)
	}
	if cfg.Invoice.Currency != "eur" {
		t.Errorf("currency default lost: %q", cfg.Invoice.Currency)
	}
	if cfg.Backup.Interval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Backup.Interval)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "invoicer.yaml", "store:\n  dsn: from-yaml.db\n")
	t.Setenv("INVOICER_STORE_DSN", "from-env.db")
	t.Setenv("INVOICER_VAT_RATE", "10")
	t.Setenv("INVOICER_BACKUP_INTERVAL", "1m")

	unsetEnv(t, "INVOICER_CURRENCY")
	envFile := writeFile(t, ".env", "INVOICER_CURRENCY=usd\nINVOICER_STORE_DSN=from-dotenv.db\n")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.DSN != "from-env.db" {
		t.Errorf("dsn = %q, process env must win over .env", cfg.Store.DSN)
	}
	if cfg.Invoice.Currency != "usd" {
		t.Errorf("currency = %q, want value from .env", cfg.Invoice.Currency)
	}
	if cfg.Invoice.DefaultVATRate != 10 || cfg.Backup.Interval != time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{"unknown driver", "store:\n  driver: oracle\n", nil, "unknown store driver"},
		{"vat out of range", "invoice:\n  default_vat_rate: 150\n", nil, "default_vat_rate"},
		{"bad log level", "log:\n  level: loud\n", nil, "log.level"},
		{"bad log format", "log:\n  format: xml\n", nil, "log.format"},
		{"bad env rate", "", map[string]string{"INVOICER_VAT_RATE": "twenty"}, "INVOICER_VAT_RATE"},
		{"bad env bool", "", map[string]string{"INVOICER_POST_FINAL_EDITS": "maybe"}, "INVOICER_POST_FINAL_EDITS"},
		{"mongo without database", "store:\n  driver: mongo\n  dsn: mongodb://localhost\n  database: \"\"\n", nil, "store.database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "invoicer.yaml", tt.yaml)
			}
			_, err := config.Load(path, missingEnv)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv); err == nil {
		t.Error("missing config file should fail")
	}
}

func TestLoggerAndOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "invoice_id", "inv_1")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, `"invoice_id":"inv_1"`) {
		t.Errorf("log output = %q", out)
	}

	if opts := cfg.Options(logger); len(opts) != 4 {
		t.Errorf("options = %d, want 4", len(opts))
	}
}
