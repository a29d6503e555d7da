package trades

import (
	"context"
	"errors"
	"sync"
	"testing"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/events"
	"lv-marginledger/internal/metrics"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store/memory"
	"lv-marginledger/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	metrics *metrics.Metrics
	bus     *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	m := metrics.New()
	bus := events.NewBus()
	return &fixture{store: st, svc: NewService(st, bus, m, zerolog.Nop()), metrics: m, bus: bus}
}

// seed creates a user and, when balance is non-empty, its account.
func (f *fixture) seed(t *testing.T, book types.Book, balance string, leverage int64, leverageBalance string) (model.User, model.Account) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	u := model.User{Book: book}
	require.NoError(t, tx.InsertUser(ctx, &u))
	var a model.Account
	if balance != "" {
		a = model.Account{UserID: u.ID, Balance: dec(balance), LeverageValue: leverage, LeverageBalance: dec(leverageBalance)}
		require.NoError(t, tx.InsertAccount(ctx, &a))
	}
	require.NoError(t, tx.Commit(ctx))
	return u, a
}

func (f *fixture) account(t *testing.T, accountID string) model.Account {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.BeginReadOnly(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	a, err := tx.Account(ctx, accountID)
	require.NoError(t, err)
	return a
}

func eurusd() OpenRequest {
	return OpenRequest{
		Symbol:     "EURUSD",
		Volume:     dec("1"),
		OpenPrice:  dec("100"),
		TakeProfit: ptr(dec("5")),
		StopLoss:   ptr(dec("5")),
	}
}

func TestOpenBookADeductsMarginAndNotional(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, a := f.seed(t, types.BookA, "1000", 100, "100000")

	pos, err := f.svc.Open(context.Background(), u.ID, eurusd())
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusActive, pos.Status)
	assert.Equal(t, types.BookA, pos.Book)
	assert.Equal(t, types.TradeTypeBuy, pos.Type)
	assert.Equal(t, a.ID, pos.AccountID)

	got := f.account(t, a.ID)
	assert.True(t, got.Balance.Equal(dec("999")), got.Balance.String())
	assert.True(t, got.LeverageBalance.Equal(dec("99900")), got.LeverageBalance.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesOpened.WithLabelValues("A")))
}

func TestCloseBookARestoresNotionalAndBooksPnL(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, a := f.seed(t, types.BookA, "1000", 100, "100000")
	ctx := context.Background()

	pos, err := f.svc.Open(ctx, u.ID, eurusd())
	require.NoError(t, err)

	closed, err := f.svc.Close(ctx, u.ID, pos.ID, dec("110"))
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.PnL)
	assert.True(t, closed.PnL.Equal(dec("10")))
	assert.True(t, closed.ClosePrice.Equal(dec("110")))
	assert.NotNil(t, closed.CloseTime)

	got := f.account(t, a.ID)
	assert.True(t, got.Balance.Equal(dec("999.1")), got.Balance.String())
	assert.True(t, got.LeverageBalance.Equal(dec("100000")), got.LeverageBalance.String())
}

func TestSecondCloseFailsWithoutMutatingBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, a := f.seed(t, types.BookA, "1000", 100, "100000")
	ctx := context.Background()

	pos, err := f.svc.Open(ctx, u.ID, eurusd())
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, u.ID, pos.ID, dec("110"))
	require.NoError(t, err)
	before := f.account(t, a.ID)

	_, err = f.svc.Close(ctx, u.ID, pos.ID, dec("120"))
	assert.ErrorIs(t, err, apperr.ErrTradeNotFound)

	after := f.account(t, a.ID)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.True(t, before.LeverageBalance.Equal(after.LeverageBalance))
}

func TestCloseLossNeverDrivesBalanceNegative(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, a := f.seed(t, types.BookA, "1", 1, "1000")
	ctx := context.Background()

	pos, err := f.svc.Open(ctx, u.ID, OpenRequest{
		Symbol: "XAUUSD", Volume: dec("1"), OpenPrice: dec("1"),
		TakeProfit: ptr(decimal.Zero), StopLoss: ptr(decimal.Zero),
	})
	require.NoError(t, err)
	require.True(t, f.account(t, a.ID).Balance.IsZero())

	closed, err := f.svc.Close(ctx, u.ID, pos.ID, dec("0.5"))
	require.NoError(t, err)
	assert.True(t, closed.PnL.Equal(dec("-0.5")))
	assert.True(t, f.account(t, a.ID).Balance.IsZero())
}

func TestBookBLeavesAccountUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, a := f.seed(t, types.BookB, "50", 10, "500")
	ctx := context.Background()

	pos, err := f.svc.Open(ctx, u.ID, eurusd())
	require.NoError(t, err)
	assert.Empty(t, pos.AccountID)
	assert.Equal(t, types.BookB, pos.Book)

	closed, err := f.svc.Close(ctx, u.ID, pos.ID, dec("90"))
	require.NoError(t, err)
	assert.True(t, closed.PnL.Equal(dec("-10")))

	got := f.account(t, a.ID)
	assert.True(t, got.Balance.Equal(dec("50")))
	assert.True(t, got.LeverageBalance.Equal(dec("500")))
}

func TestBookBNeedsNoAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, _ := f.seed(t, types.BookB, "", 0, "")

	_, err := f.svc.Open(context.Background(), u.ID, eurusd())
	assert.NoError(t, err)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rich, _ := f.seed(t, types.BookA, "1000", 100, "100000")
	poor, _ := f.seed(t, types.BookA, "0.5", 100, "100000")
	capped, _ := f.seed(t, types.BookA, "1000", 100, "50")
	noAccount, _ := f.seed(t, types.BookA, "", 0, "")

	withVolume := func(v string) OpenRequest { r := eurusd(); r.Volume = dec(v); return r }
	noStops := eurusd()
	noStops.StopLoss = nil
	badType := eurusd()
	badType.Type = "short"
	negativeTP := eurusd()
	negativeTP.TakeProfit = ptr(dec("-1"))
	noSymbol := eurusd()
	noSymbol.Symbol = "  "

	tests := []struct {
		name   string
		userID string
		req    OpenRequest
		want   error
	}{
		{"zero volume", rich.ID, withVolume("0"), apperr.ErrValidation},
		{"missing stop loss", rich.ID, noStops, apperr.ErrValidation},
		{"negative take profit", rich.ID, negativeTP, apperr.ErrValidation},
		{"unknown type", rich.ID, badType, apperr.ErrValidation},
		{"empty symbol", rich.ID, noSymbol, apperr.ErrValidation},
		{"unknown user", "missing", eurusd(), apperr.ErrUserNotFound},
		{"no account", noAccount.ID, eurusd(), apperr.ErrAccountNotFound},
		{"margin above balance", poor.ID, eurusd(), apperr.ErrInsufficientBalance},
		{"notional above buying power", capped.ID, eurusd(), apperr.ErrInsufficientBuyingPower},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Open(context.Background(), tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// failed opens leave no position behind
	_, err := f.svc.History(context.Background(), poor.ID)
	assert.ErrorIs(t, err, apperr.ErrNoTrades)
}

func TestCloseFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	owner, _ := f.seed(t, types.BookA, "1000", 100, "100000")
	other, _ := f.seed(t, types.BookA, "1000", 100, "100000")
	ctx := context.Background()

	pos, err := f.svc.Open(ctx, owner.ID, eurusd())
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, other.ID, pos.ID, dec("110"))
	assert.ErrorIs(t, err, apperr.ErrTradeNotFound)
	_, err = f.svc.Close(ctx, "missing", pos.ID, dec("110"))
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
	_, err = f.svc.Close(ctx, owner.ID, "missing", dec("110"))
	assert.ErrorIs(t, err, apperr.ErrTradeNotFound)
	_, err = f.svc.Close(ctx, owner.ID, pos.ID, decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHistoryInInsertionOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, _ := f.seed(t, types.BookA, "1000", 100, "100000")
	ctx := context.Background()

	var ids []string
	for _, sym := range []string{"EURUSD", "GBPUSD", "XAUUSD"} {
		req := eurusd()
		req.Symbol = sym
		pos, err := f.svc.Open(ctx, u.ID, req)
		require.NoError(t, err)
		ids = append(ids, pos.ID)
	}

	history, err := f.svc.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, p := range history {
		assert.Equal(t, ids[i], p.ID)
	}

	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNoTrades)
}

func TestConcurrentOpensNeverOverdraw(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// margin per open is 3/10 = 0.3, so exactly 33 fit into 10
	u, a := f.seed(t, types.BookA, "10", 10, "100000")

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Open(context.Background(), u.ID, OpenRequest{
				Symbol: "EURUSD", Volume: dec("1"), OpenPrice: dec("3"),
				TakeProfit: ptr(decimal.Zero), StopLoss: ptr(decimal.Zero),
			})
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientBalance):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 33, ok)
	assert.Equal(t, n-33, insufficient)

	got := f.account(t, a.ID)
	assert.True(t, got.Balance.Equal(dec("0.1")), got.Balance.String())
	assert.False(t, got.Balance.IsNegative())
}

func TestOpenPublishesEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u, _ := f.seed(t, types.BookA, "1000", 100, "100000")
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	pos, err := f.svc.Open(context.Background(), u.ID, eurusd())
	require.NoError(t, err)

	evt := <-sub
	assert.Equal(t, events.TypePositionOpened, evt.Type)
	assert.Equal(t, u.ID, evt.UserID)
	assert.Equal(t, pos.ID, evt.Data.(model.Position).ID)
}
