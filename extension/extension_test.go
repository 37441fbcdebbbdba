package extension

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml         Config
		programmatic Config
		want         Config
	}{
		{
			name: "defaults fill gaps",
			want: DefaultConfig(),
		},
		{
			name:         "yaml wins over programmatic",
			yaml:         Config{DefaultVATRate: 7},
			programmatic: Config{DefaultVATRate: 10, PluginTimeout: time.Second},
			want:         Config{DefaultVATRate: 7, PluginTimeout: time.Second},
		},
		{
			name:         "programmatic bools override",
			yaml:         Config{DefaultVATRate: 19},
			programmatic: Config{DisableMigrate: true, PostFinalEdits: true},
			want:         Config{DefaultVATRate: 19, PluginTimeout: 5 * time.Second, DisableMigrate: true, PostFinalEdits: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeConfigurations(tt.yaml, tt.programmatic); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildEngineOpts(t *testing.T) {
	ctx := context.Background()
	e := &Extension{
		config: mergeWithDefaults(Config{DefaultVATRate: 7, DisableMigrate: true}),
	}
	WithInvoicerOption(invoicer.WithPostFinalEdits(true))(e)

	s := memory.New()
	inv := invoicer.New(s, e.buildEngineOpts()...)
	if err := inv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer inv.Stop()

	h, err := inv.CreateDraft(ctx, "2024-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if h.VATRate != 7 {
		t.Errorf("vat rate = %d, want 7", h.VATRate)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	e := &Extension{}
	if err := e.Health(context.Background()); err == nil {
		t.Error("expected error without a store")
	}
	WithStore(memory.New())(e)
	if err := e.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}
