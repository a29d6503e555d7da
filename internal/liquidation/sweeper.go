// Package liquidation closes active positions whose live price crosses
// their take-profit or stop-loss threshold.
package liquidation

import (
	"context"
	"time"

	"lv-marginledger/internal/events"
	"lv-marginledger/internal/metrics"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/pricefeed"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/trades"
	"lv-marginledger/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Sweeper struct {
	store   store.Store
	prices  pricefeed.Gateway
	bus     events.Publisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSweeper(st store.Store, prices pricefeed.Gateway, bus events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Sweeper{
		store:   st,
		prices:  prices,
		bus:     bus,
		metrics: m,
		logger:  logger.With().Str("component", "sweep").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type candidate struct {
	id   string
	live decimal.Decimal
}

// SweepOnce runs one cycle and returns the number of positions it closed.
// Prices are resolved before the write unit opens. The closures of a cycle
// commit together or not at all; errors are logged, never returned.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	active, err := s.activePositions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("load active positions")
		s.metrics.SweepFailed()
		return 0
	}
	if len(active) == 0 {
		return 0
	}

	selected := s.selectForClose(ctx, active)
	if len(selected) == 0 {
		s.logger.Debug().Int("active", len(active)).Msg("sweep found nothing to close")
		return 0
	}

	closed, err := s.closeAll(ctx, selected)
	if err != nil {
		s.logger.Error().Err(err).Int("selected", len(selected)).Msg("sweep cycle rolled back")
		s.metrics.SweepFailed()
		return 0
	}

	for _, p := range closed {
		s.metrics.TradeClosed(string(p.Book), metrics.SourceSweep)
		s.bus.Publish(events.Event{Type: events.TypePositionClosed, UserID: p.UserID, Data: p})
	}
	s.logger.Info().
		Int("active", len(active)).
		Int("closed", len(closed)).
		Dur("took", time.Since(start)).
		Msg("sweep cycle committed")
	return len(closed)
}

func (s *Sweeper) activePositions(ctx context.Context) ([]model.Position, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	return tx.ActivePositions(ctx)
}

// selectForClose looks each symbol up once per cycle and keeps the positions
// past a threshold. Positions without a usable price wait for the next cycle.
func (s *Sweeper) selectForClose(ctx context.Context, active []model.Position) []candidate {
	type quote struct {
		price decimal.Decimal
		ok    bool
	}
	quotes := make(map[string]quote)
	var out []candidate
	for _, p := range active {
		q, seen := quotes[p.Symbol]
		if !seen {
			price, err := s.prices.Price(ctx, p.Symbol)
			q = quote{price: price, ok: err == nil && price.IsPositive()}
			quotes[p.Symbol] = q
			if !q.ok {
				s.logger.Debug().Err(err).Str("symbol", p.Symbol).Msg("live price unavailable")
			}
		}
		if !q.ok {
			s.metrics.SweepPriceUnavailable()
			continue
		}
		if ShouldClose(p, q.price) {
			out = append(out, candidate{id: p.ID, live: q.price})
		}
	}
	return out
}

func (s *Sweeper) closeAll(ctx context.Context, selected []candidate) ([]model.Position, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	positions := make([]model.Position, 0, len(selected))
	live := make([]decimal.Decimal, 0, len(selected))
	var owners []string
	seen := make(map[string]bool)
	for _, c := range selected {
		p, err := tx.Position(ctx, c.id)
		if err != nil {
			return nil, err
		}
		// closed manually since the read
		if !p.Active() {
			continue
		}
		positions = append(positions, p)
		live = append(live, c.live)
		if p.Book == types.BookA && !seen[p.UserID] {
			seen[p.UserID] = true
			owners = append(owners, p.UserID)
		}
	}

	fetched, err := tx.AccountsByUsers(ctx, owners)
	if err != nil {
		return nil, err
	}
	accounts := make(map[string]*model.Account, len(fetched))
	for userID, a := range fetched {
		a := a
		accounts[userID] = &a
	}

	now := s.now()
	closed := make([]model.Position, 0, len(positions))
	touched := make(map[string]bool)
	for i := range positions {
		p := positions[i]
		var account *model.Account
		if p.Book == types.BookA {
			account = accounts[p.UserID]
			if account == nil {
				s.logger.Warn().Str("trade_id", p.ID).Str("user_id", p.UserID).Msg("skip close: account not found")
				continue
			}
		}
		if err := trades.Settle(&p, account, live[i], now); err != nil {
			return nil, err
		}
		if err := tx.ClosePosition(ctx, p); err != nil {
			return nil, err
		}
		if account != nil {
			touched[p.UserID] = true
		}
		closed = append(closed, p)
	}
	for _, userID := range owners {
		if !touched[userID] {
			continue
		}
		if err := tx.UpdateAccountBalances(ctx, *accounts[userID]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return closed, nil
}
