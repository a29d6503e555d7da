package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lv-marginledger/internal/apperr"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type quote struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

type HTTPConfig struct {
	URL     string
	Suffix  string
	Timeout time.Duration
	RPS     float64
	// CacheTTL keeps a fetched document for that long; zero fetches on every lookup.
	CacheTTL time.Duration
}

// HTTPGateway reads the market-data document, a JSON object of symbol to
// quote list, and returns the first quote's bid. One document answers every
// symbol, so it is shared by lookups within CacheTTL and concurrent
// lookups wait on a single request.
type HTTPGateway struct {
	url      string
	suffix   string
	cacheTTL time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	group    singleflight.Group
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	doc       map[string][]quote
	fetchedAt time.Time
}

func NewHTTPGateway(cfg HTTPConfig, logger zerolog.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
	}
	st := gobreaker.Settings{Name: "pricefeed"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return &HTTPGateway{
		url:      cfg.URL,
		suffix:   cfg.Suffix,
		cacheTTL: cfg.CacheTTL,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  gobreaker.NewCircuitBreaker(st),
		logger:   logger.With().Str("component", "pricefeed").Logger(),
		now:      time.Now,
	}
}

func (g *HTTPGateway) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := NormalizeSymbol(symbol, g.suffix)
	if key == "" {
		return decimal.Zero, fmt.Errorf("%w: empty symbol", apperr.ErrPriceUnavailable)
	}
	doc, err := g.document(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Str("symbol", key).Msg("live price unavailable")
		return decimal.Zero, fmt.Errorf("%w: %s: %v", apperr.ErrPriceUnavailable, key, err)
	}
	quotes := doc[key]
	if len(quotes) == 0 || !quotes[0].Bid.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: symbol not quoted", apperr.ErrPriceUnavailable, key)
	}
	return quotes[0].Bid, nil
}

func (g *HTTPGateway) cached() (map[string][]quote, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.doc == nil || g.cacheTTL <= 0 || g.now().Sub(g.fetchedAt) >= g.cacheTTL {
		return nil, false
	}
	return g.doc, true
}

func (g *HTTPGateway) document(ctx context.Context) (map[string][]quote, error) {
	if doc, ok := g.cached(); ok {
		return doc, nil
	}
	out, err, _ := g.group.Do("document", func() (any, error) {
		if doc, ok := g.cached(); ok {
			return doc, nil
		}
		doc, err := g.breaker.Execute(func() (any, error) {
			return g.fetch(ctx)
		})
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.doc = doc.(map[string][]quote)
		g.fetchedAt = g.now()
		g.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string][]quote), nil
}

func (g *HTTPGateway) fetch(ctx context.Context) (map[string][]quote, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data status %d", resp.StatusCode)
	}
	var doc map[string][]quote
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode market data: %w", err)
	}
	return doc, nil
}
