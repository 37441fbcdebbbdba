package invoice

import "fmt"

// Totals are the monetary amounts of an invoice in minor units.
type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	VATCents      int64 `json:"vat_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// CalculateTotals computes subtotal, VAT and total from scratch:
//
//	subtotal = Σ quantity × unit price
//	vat      = ⌊subtotal × vatRate / 100⌋
//	total    = subtotal + vat
func CalculateTotals(lines []LineInput, vatRate int64) (Totals, error) {
	if vatRate < 0 {
		return Totals{}, ValidationError{Field: "vat_rate", Message: "must not be negative"}
	}

	var subtotal int64
	for i, l := range lines {
		lt, err := LineTotal(l.Quantity, l.UnitPriceCents)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		var ok bool
		if subtotal, ok = addInt64(subtotal, lt); !ok {
			return Totals{}, ValidationError{Field: "lines", Message: "subtotal overflows"}
		}
	}

	scaled, ok := mulInt64(subtotal, vatRate)
	if !ok {
		return Totals{}, ValidationError{Field: "vat_rate", Message: "vat overflows"}
	}
	vat := floorDiv(scaled, 100)

	total, ok := addInt64(subtotal, vat)
	if !ok {
		return Totals{}, ValidationError{Field: "lines", Message: "total overflows"}
	}
	return Totals{SubtotalCents: subtotal, VATCents: vat, TotalCents: total}, nil
}

// LineTotal returns quantity × unitPriceCents. Quantity must be >= 0.
func LineTotal(quantity, unitPriceCents int64) (int64, error) {
	if quantity < 0 {
		return 0, ValidationError{Field: "quantity", Message: fmt.Sprintf("must be >= 0, got %d", quantity)}
	}
	lt, ok := mulInt64(quantity, unitPriceCents)
	if !ok {
		return 0, ValidationError{Field: "unit_price_cents", Message: "line total overflows"}
	}
	return lt, nil
}

// floorDiv rounds toward negative infinity so credits round the same way
// as charges of equal magnitude in the opposite direction.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == c) || (b == -1 && a == c) {
		return 0, false
	}
	return c, true
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}
