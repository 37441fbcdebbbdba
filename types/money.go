// Package types provides common value types used across invoicer.
package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency unit. All arithmetic is
// integer-only.
type Money struct {
	Amount   int64  `json:"amount"`   // cents, pence, ...
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// EUR creates a Money value in euro cents.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// USD creates a Money value in US cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// Cents creates a Money value in the given currency.
func Cents(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Cents(0, currency) }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// FormatMajor returns the amount in major units without symbol: "49.00"
// for EUR(4900), "100" for a zero-decimal currency.
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}
	return decimal.New(m.Amount, -int32(decimals)).StringFixed(int32(decimals))
}

// String returns a display string with currency symbol, e.g. "€12.50".
// Negative amounts carry the sign ahead of the symbol: "-€0.05".
func (m Money) String() string {
	major := m.FormatMajor()
	if rest, ok := strings.CutPrefix(major, "-"); ok {
		return "-" + currencySymbol(m.Currency) + rest
	}
	return currencySymbol(m.Currency) + major
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

var (
	moneyInput = regexp.MustCompile(`^-?\d+(\.\d{0,2})?$`)

	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseMoney converts user input such as "12", "12.5", "12,50" or
// "  12,50 € " into Money. Blank input is zero. A leading minus sign is
// accepted for credit lines; more than two decimals are rejected.
func ParseMoney(text, currency string) (Money, error) {
	s := strings.TrimSpace(text)
	if sym := strings.TrimSpace(currencySymbol(currency)); sym != "" {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return Zero(currency), nil
	}
	if !moneyInput.MatchString(s) {
		return Money{}, fmt.Errorf("money: invalid amount %q (example: 12,50)", text)
	}

	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", text, err)
	}
	shifted := d.Shift(int32(currencyDecimals(currency)))
	if !shifted.IsInteger() {
		return Money{}, fmt.Errorf("money: too many decimals in %q", text)
	}
	if shifted.GreaterThan(maxCents) || shifted.LessThan(minCents) {
		return Money{}, fmt.Errorf("money: amount %q out of range", text)
	}
	return Cents(shifted.IntPart(), currency), nil
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"eur": "€",
		"usd": "$",
		"gbp": "£",
		"jpy": "¥",
		"chf": "CHF ",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	default:
		return 2
	}
}
