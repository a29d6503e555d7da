package trades

import (
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/types"

	"github.com/shopspring/decimal"
)

// PnL is long-only: the trade type is stored but never flips the sign.
func PnL(p model.Position, price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.OpenPrice).Mul(p.Volume)
}

// Settle closes p at price. For book A positions the notional goes back to
// the account's buying power and pnl/leverage is booked to its balance.
// A loss larger than the balance stops at zero.
func Settle(p *model.Position, account *model.Account, price decimal.Decimal, now time.Time) error {
	if !p.Active() {
		return apperr.ErrTradeNotFound
	}
	pnl := PnL(*p, price)
	switch p.Book {
	case types.BookA:
		if account == nil {
			return apperr.ErrAccountNotFound
		}
		account.LeverageBalance = account.LeverageBalance.Add(p.Notional())
		account.Balance = account.Balance.Add(pnl.Div(account.Leverage()))
		// Negative balance protection
		if account.Balance.IsNegative() {
			account.Balance = decimal.Zero
		}
	case types.BookB:
	default:
		return apperr.ErrInvalidBook
	}
	closePrice := price
	closeTime := now
	p.Status = types.PositionStatusClosed
	p.ClosePrice = &closePrice
	p.CloseTime = &closeTime
	p.PnL = &pnl
	return nil
}
