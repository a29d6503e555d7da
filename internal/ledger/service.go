package ledger

import (
	"context"
	"fmt"
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/events"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	depositDescription    = "Deposit to Live account"
	withdrawalDescription = "Withdrawal from Live account"
)

type Service struct {
	store  store.Store
	bus    events.Publisher
	logger zerolog.Logger
}

func NewService(st store.Store, bus events.Publisher, logger zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{store: st, bus: bus, logger: logger.With().Str("component", "ledger").Logger()}
}

type Balances struct {
	AccountID       string          `json:"account_id"`
	Balance         decimal.Decimal `json:"balance"`
	LeverageBalance decimal.Decimal `json:"leverage_balance"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func balancesOf(a model.Account) Balances {
	return Balances{AccountID: a.ID, Balance: a.Balance, LeverageBalance: a.LeverageBalance, UpdatedAt: a.UpdatedAt}
}

// Deposit credits the account and resets buying power to balance*leverage.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (Balances, error) {
	if !amount.IsPositive() {
		return Balances{}, apperr.ErrInvalidAmount
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Balances{}, err
	}
	defer tx.Rollback(ctx)

	account, err := tx.Account(ctx, accountID)
	if err != nil {
		return Balances{}, err
	}
	account.Balance = account.Balance.Add(amount)
	account.LeverageBalance = account.Balance.Mul(account.Leverage())

	entry, err := s.book(ctx, tx, account, types.LedgerEntryTypeDeposit, amount, depositDescription)
	if err != nil {
		return Balances{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Balances{}, err
	}
	s.published(entry)
	return balancesOf(account), nil
}

// Withdraw debits the account after checking the wallet PIN. Buying power
// is left as is.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, pin string) (Balances, error) {
	if !amount.IsPositive() {
		return Balances{}, apperr.ErrInvalidAmount
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Balances{}, err
	}
	defer tx.Rollback(ctx)

	account, err := tx.Account(ctx, accountID)
	if err != nil {
		return Balances{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.WalletPinHash), []byte(pin)) != nil {
		return Balances{}, apperr.ErrAuthFailed
	}
	if amount.GreaterThan(account.Balance) {
		return Balances{}, apperr.ErrInsufficientBalance
	}
	account.Balance = account.Balance.Sub(amount)

	entry, err := s.book(ctx, tx, account, types.LedgerEntryTypeWithdrawal, amount, withdrawalDescription)
	if err != nil {
		return Balances{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Balances{}, err
	}
	s.published(entry)
	return balancesOf(account), nil
}

func (s *Service) book(ctx context.Context, tx store.Tx, account model.Account, entryType types.LedgerEntryType, amount decimal.Decimal, description string) (model.LedgerEntry, error) {
	if err := tx.UpdateAccountBalances(ctx, account); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("update balances: %w", err)
	}
	entry := model.LedgerEntry{
		AccountID:   account.ID,
		UserID:      account.UserID,
		Type:        entryType,
		Amount:      amount,
		Status:      types.LedgerEntryStatusATM,
		Description: description,
	}
	if err := tx.AppendLedgerEntry(ctx, &entry); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

func (s *Service) published(entry model.LedgerEntry) {
	s.bus.Publish(events.Event{Type: events.TypeLedgerEntry, UserID: entry.UserID, Data: entry})
	s.logger.Info().
		Str("account_id", entry.AccountID).
		Str("type", string(entry.Type)).
		Str("amount", entry.Amount.String()).
		Msg("ledger entry booked")
}

// Account returns the account without locking it.
func (s *Service) Account(ctx context.Context, accountID string) (model.Account, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)
	return tx.Account(ctx, accountID)
}

// Entries lists the account's ledger entries in booking order and reports
// the index of the first entry that breaks the hash chain, or -1.
func (s *Service) Entries(ctx context.Context, accountID string) ([]model.LedgerEntry, int, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)
	entries, err := tx.LedgerEntries(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	broken := store.VerifyChain(entries)
	if broken >= 0 {
		s.logger.Error().Str("account_id", accountID).Int("index", broken).Msg("ledger hash chain broken")
	}
	return entries, broken, nil
}
