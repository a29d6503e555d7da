// Package pricefeed resolves the live price of a trading symbol.
package pricefeed

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway returns the current bid for a symbol. Any failure, including a
// symbol the feed does not quote, wraps apperr.ErrPriceUnavailable.
type Gateway interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NormalizeSymbol appends the feed suffix when the symbol does not already end with it.
func NormalizeSymbol(symbol, suffix string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || suffix == "" || strings.HasSuffix(symbol, suffix) {
		return symbol
	}
	return symbol + suffix
}
