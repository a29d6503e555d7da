package store

import (
	"context"

	"lv-marginledger/internal/model"
)

// Store opens units of work. Every mutation of an account, position or
// ledger entry happens inside a Tx; Commit applies all of them or none.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// BeginReadOnly opens a unit of work that observes a consistent snapshot
	// and rejects writes. Rollback is the normal way to end it.
	BeginReadOnly(ctx context.Context) (Tx, error)
}

// Tx is a single atomic unit of work. Rollback after Commit is a no-op so
// callers can always defer it.
//
// Lookups that miss return the apperr NotFound sentinels. Account and
// Position lookups lock the row until the unit of work ends.
type Tx interface {
	InsertUser(ctx context.Context, u *model.User) error
	User(ctx context.Context, userID string) (model.User, error)

	InsertAccount(ctx context.Context, a *model.Account) error
	Account(ctx context.Context, accountID string) (model.Account, error)
	AccountByUser(ctx context.Context, userID string) (model.Account, error)
	// AccountsByUsers fetches and locks the accounts of several users in one
	// round trip. Users without an account are absent from the map.
	AccountsByUsers(ctx context.Context, userIDs []string) (map[string]model.Account, error)
	UpdateAccountBalances(ctx context.Context, a model.Account) error

	InsertPosition(ctx context.Context, p *model.Position) error
	// AttachPosition links a position to the account that collateralizes it.
	// The account must belong to the position's owner.
	AttachPosition(ctx context.Context, accountID, positionID string) error
	Position(ctx context.Context, positionID string) (model.Position, error)
	// ClosePosition persists the close fields. It fails with
	// apperr.ErrTradeNotFound when the stored row is no longer active.
	ClosePosition(ctx context.Context, p model.Position) error
	ActivePositions(ctx context.Context) ([]model.Position, error)
	PositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// AppendLedgerEntry fills ID, Seq, PrevHash and Hash. Entries are never
	// updated afterwards.
	AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) error
	LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
