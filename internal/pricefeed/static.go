package pricefeed

import (
	"context"
	"fmt"
	"sync"

	"lv-marginledger/internal/apperr"

	"github.com/shopspring/decimal"
)

// Static serves quotes set in process. Used by the memory dev mode and tests.
type Static struct {
	mu     sync.RWMutex
	suffix string
	quotes map[string]decimal.Decimal
	calls  map[string]int
}

func NewStatic(suffix string) *Static {
	return &Static{suffix: suffix, quotes: map[string]decimal.Decimal{}, calls: map[string]int{}}
}

// Set stores a quote; a non-positive price removes it.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	key := NormalizeSymbol(symbol, s.suffix)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !price.IsPositive() {
		delete(s.quotes, key)
		return
	}
	s.quotes[key] = price
}

func (s *Static) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := NormalizeSymbol(symbol, s.suffix)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", apperr.ErrPriceUnavailable, err)
	}
	p, ok := s.quotes[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", apperr.ErrPriceUnavailable, key)
	}
	return p, nil
}

// Calls reports how many lookups hit the given symbol.
func (s *Static) Calls(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[NormalizeSymbol(symbol, s.suffix)]
}
