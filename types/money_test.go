package types

import "testing"

func TestMoneyDisplay(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
	}{
		{"EUR", EUR(1250), "€12.50"},
		{"USD", USD(4900), "$49.00"},
		{"Negative", EUR(-5), "-€0.05"},
		{"NegativeJPY", Cents(-100, "jpy"), "-¥100"},
		{"NegativeUnknown", Cents(-990, "sek"), "-SEK 9.90"},
		{"Zero", Zero("EUR"), "€0.00"},
		{"JPY", Cents(100, "JPY"), "¥100"},
		{"Unknown", Cents(990, "sek"), "SEK 9.90"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String() = %q, want %q", got, tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	if got := EUR(1500).Multiply(2).Add(EUR(5000)); !got.Equal(EUR(8000)) {
		t.Errorf("got %v, want %v", got, EUR(8000))
	}
	if !EUR(-1).IsNegative() || EUR(0).IsNegative() {
		t.Error("IsNegative mismatch")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for currency mismatch")
		}
	}()
	_ = EUR(100).Add(USD(100))
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12", 1200, false},
		{"12.5", 1250, false},
		{"12,50", 1250, false},
		{"  12,50 € ", 1250, false},
		{"12.", 1200, false},
		{"0,05", 5, false},
		{"", 0, false},
		{"   ", 0, false},
		{"-15,00", -1500, false},
		{"12,505", 0, true},
		{"abc", 0, true},
		{"1e3", 0, true},
		{"+12", 0, true},
		{"12.5.0", 0, true},
		{"92233720368547758.07", 9223372036854775807, false},
		{"-92233720368547758.08", -9223372036854775808, false},
		{"99999999999999999999", 0, true},
		{"92233720368547758.08", 0, true},
		{"-92233720368547758.09", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in, "eur")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMoney(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney(%q): %v", tt.in, err)
			}
			if got.Amount != tt.want || got.Currency != "eur" {
				t.Errorf("ParseMoney(%q) = %+v, want %d eur", tt.in, got, tt.want)
			}
		})
	}
}
