package trades

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/events"
	"lv-marginledger/internal/metrics"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	store   store.Store
	bus     events.Publisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(st store.Store, bus events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{
		store:   st,
		bus:     bus,
		metrics: m,
		logger:  logger.With().Str("component", "trades").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type OpenRequest struct {
	Symbol     string
	Volume     decimal.Decimal
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal
	OpenPrice  decimal.Decimal
	Type       string
}

func (r OpenRequest) validate() (types.TradeType, error) {
	if strings.TrimSpace(r.Symbol) == "" {
		return "", apperr.Validation("symbol is required")
	}
	if !r.Volume.IsPositive() {
		return "", apperr.Validation("volume must be positive")
	}
	if !r.OpenPrice.IsPositive() {
		return "", apperr.Validation("open price must be positive")
	}
	if r.TakeProfit == nil || r.StopLoss == nil {
		return "", apperr.Validation("take profit and stop loss are required")
	}
	if r.TakeProfit.IsNegative() || r.StopLoss.IsNegative() {
		return "", apperr.Validation("take profit and stop loss must not be negative")
	}
	tradeType, ok := types.ParseTradeType(r.Type)
	if !ok {
		return "", apperr.Validation("type must be buy or sell")
	}
	return tradeType, nil
}

// Open records a new active position. Book A positions are collateralized:
// margin comes out of the balance and the notional out of the buying power.
func (s *Service) Open(ctx context.Context, userID string, req OpenRequest) (model.Position, error) {
	tradeType, err := req.validate()
	if err != nil {
		return model.Position{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Position{}, err
	}
	defer tx.Rollback(ctx)

	user, err := tx.User(ctx, userID)
	if err != nil {
		return model.Position{}, err
	}
	if !user.Book.Valid() {
		return model.Position{}, apperr.ErrInvalidBook
	}

	pos := model.Position{
		UserID:     user.ID,
		Type:       tradeType,
		Symbol:     strings.TrimSpace(req.Symbol),
		Book:       user.Book,
		Volume:     req.Volume,
		OpenPrice:  req.OpenPrice,
		TakeProfit: *req.TakeProfit,
		StopLoss:   *req.StopLoss,
		OpenTime:   s.now(),
		Status:     types.PositionStatusActive,
	}
	if err := tx.InsertPosition(ctx, &pos); err != nil {
		return model.Position{}, fmt.Errorf("insert position: %w", err)
	}

	if user.Book == types.BookA {
		account, err := tx.AccountByUser(ctx, user.ID)
		if err != nil {
			return model.Position{}, err
		}
		notional := pos.Notional()
		margin := notional.Div(account.Leverage())
		if account.Balance.LessThan(margin) {
			return model.Position{}, apperr.ErrInsufficientBalance
		}
		if account.LeverageBalance.LessThan(notional) {
			return model.Position{}, apperr.ErrInsufficientBuyingPower
		}
		account.Balance = account.Balance.Sub(margin)
		account.LeverageBalance = account.LeverageBalance.Sub(notional)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return model.Position{}, fmt.Errorf("update balances: %w", err)
		}
		if err := tx.AttachPosition(ctx, account.ID, pos.ID); err != nil {
			return model.Position{}, fmt.Errorf("attach position: %w", err)
		}
		pos.AccountID = account.ID
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Position{}, err
	}

	s.metrics.TradeOpened(string(pos.Book))
	s.bus.Publish(events.Event{Type: events.TypePositionOpened, UserID: pos.UserID, Data: pos})
	s.logger.Info().
		Str("user_id", pos.UserID).
		Str("trade_id", pos.ID).
		Str("book", string(pos.Book)).
		Str("symbol", pos.Symbol).
		Msg("position opened")
	return pos, nil
}

// Close settles an active position of userID at closePrice. A position that
// is already closed is reported as not found.
func (s *Service) Close(ctx context.Context, userID, tradeID string, closePrice decimal.Decimal) (model.Position, error) {
	if !closePrice.IsPositive() {
		return model.Position{}, apperr.Validation("close price must be positive")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Position{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.User(ctx, userID); err != nil {
		return model.Position{}, err
	}
	pos, err := tx.Position(ctx, tradeID)
	if err != nil {
		return model.Position{}, err
	}
	if pos.UserID != userID || !pos.Active() {
		return model.Position{}, apperr.ErrTradeNotFound
	}

	var account *model.Account
	if pos.Book == types.BookA {
		a, err := tx.AccountByUser(ctx, userID)
		if err != nil {
			return model.Position{}, err
		}
		account = &a
	}
	if err := Settle(&pos, account, closePrice, s.now()); err != nil {
		return model.Position{}, err
	}
	if err := tx.ClosePosition(ctx, pos); err != nil {
		return model.Position{}, err
	}
	if account != nil {
		if err := tx.UpdateAccountBalances(ctx, *account); err != nil {
			return model.Position{}, fmt.Errorf("update balances: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Position{}, err
	}

	s.metrics.TradeClosed(string(pos.Book), metrics.SourceManual)
	s.bus.Publish(events.Event{Type: events.TypePositionClosed, UserID: pos.UserID, Data: pos})
	s.logger.Info().
		Str("user_id", pos.UserID).
		Str("trade_id", pos.ID).
		Str("pnl", pos.PnL.String()).
		Msg("position closed")
	return pos, nil
}

// History lists the user's positions in the order they were opened.
func (s *Service) History(ctx context.Context, userID string) ([]model.Position, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.User(ctx, userID); err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.ErrNoTrades
		}
		return nil, err
	}
	positions, err := tx.PositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, apperr.ErrNoTrades
	}
	return positions, nil
}
