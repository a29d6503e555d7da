package model

import (
	"time"

	"lv-marginledger/internal/types"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        string     `json:"id"`
	Book      types.Book `json:"book"`
	CreatedAt time.Time  `json:"created_at"`
}

// Account is the live ledger of a book A user. LeverageBalance is tracked
// independently of Balance; see BuyingPowerDrift in the accounts package.
type Account struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	LeverageValue   int64           `json:"leverage_value"`
	LeverageBalance decimal.Decimal `json:"leverage_balance"`
	WalletPinHash   string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Leverage never returns less than 1.
func (a Account) Leverage() decimal.Decimal {
	if a.LeverageValue < 1 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(a.LeverageValue)
}

type LedgerEntry struct {
	ID          string                `json:"id"`
	Seq         int64                 `json:"seq"`
	AccountID   string                `json:"account_id"`
	UserID      string                `json:"user_id"`
	Type        types.LedgerEntryType `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	Status      string                `json:"status"`
	Description string                `json:"description"`
	PrevHash    string                `json:"prev_hash,omitempty"`
	Hash        string                `json:"hash"`
	CreatedAt   time.Time             `json:"created_at"`
}

type Position struct {
	ID         string               `json:"id"`
	Seq        int64                `json:"seq"`
	UserID     string               `json:"user_id"`
	AccountID  string               `json:"account_id,omitempty"`
	Type       types.TradeType      `json:"type"`
	Symbol     string               `json:"symbol"`
	Book       types.Book           `json:"book"`
	Volume     decimal.Decimal      `json:"volume"`
	OpenPrice  decimal.Decimal      `json:"open_price"`
	TakeProfit decimal.Decimal      `json:"take_profit"`
	StopLoss   decimal.Decimal      `json:"stop_loss"`
	OpenTime   time.Time            `json:"open_time"`
	Status     types.PositionStatus `json:"status"`
	ClosePrice *decimal.Decimal     `json:"close_price,omitempty"`
	CloseTime  *time.Time           `json:"close_time,omitempty"`
	PnL        *decimal.Decimal     `json:"pnl,omitempty"`
}

func (p Position) Notional() decimal.Decimal {
	return p.OpenPrice.Mul(p.Volume)
}

func (p Position) Active() bool {
	return p.Status == types.PositionStatusActive
}
