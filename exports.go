package invoicer

import (
	"github.com/xraph/invoicer/invoice"
	"github.com/xraph/invoicer/types"
)

// Re-export common types for convenience so users don't have to import the
// invoice and types packages for everyday calls.

// Header is re-exported from the invoice package.
type Header = invoice.Header

// Line is re-exported from the invoice package.
type Line = invoice.Line

// Fields is re-exported from the invoice package.
type Fields = invoice.Fields

// LineInput is re-exported from the invoice package.
type LineInput = invoice.LineInput

// Summary is re-exported from the invoice package.
type Summary = invoice.Summary

// Status is re-exported from the invoice package.
type Status = invoice.Status

// Money is re-exported from types package.
type Money = types.Money

// Re-export Money helpers
var (
	EUR        = types.EUR
	Zero       = types.Zero
	ParseMoney = types.ParseMoney
)
