package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) BeginReadOnly(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, mapError(err)
	}
	return &Tx{tx: tx, readOnly: true}, nil
}

type Tx struct {
	tx       pgx.Tx
	readOnly bool
}

// mapError turns serialization failures and deadlocks into apperr.ErrConflict
// so callers can tell retryable commits from terminal failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.Message)
		}
	}
	return err
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapViolation replaces the constraint violations a statement can raise
// with domain errors and falls back to mapError.
func mapViolation(err error, violations map[string]error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if mapped, ok := violations[pgErr.Code]; ok {
			return mapped
		}
	}
	return mapError(err)
}

func (t *Tx) lockClause() string {
	if t.readOnly {
		return ""
	}
	return " for update"
}

func (t *Tx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *Tx) InsertUser(ctx context.Context, u *model.User) error {
	if !u.Book.Valid() {
		return apperr.ErrInvalidBook
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, "insert into users (id, book) values ($1, $2) returning created_at", u.ID, string(u.Book)).Scan(&u.CreatedAt)
	return mapError(err)
}

func (t *Tx) User(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	var book string
	if _, err := uuid.Parse(userID); err != nil {
		return u, apperr.ErrUserNotFound
	}
	err := t.tx.QueryRow(ctx, "select id::text, book, created_at from users where id = $1", userID).Scan(&u.ID, &book, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, apperr.ErrUserNotFound
	}
	if err != nil {
		return u, mapError(err)
	}
	u.Book = types.Book(book)
	return u, nil
}

const accountColumns = "id::text, user_id::text, balance::text, leverage_value, leverage_balance::text, wallet_pin_hash, created_at, updated_at"

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	var balance, leverageBalance string
	if err := row.Scan(&a.ID, &a.UserID, &balance, &a.LeverageValue, &leverageBalance, &a.WalletPinHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return a, fmt.Errorf("parse balance: %w", err)
	}
	if a.LeverageBalance, err = decimal.NewFromString(leverageBalance); err != nil {
		return a, fmt.Errorf("parse leverage balance: %w", err)
	}
	return a, nil
}

func (t *Tx) InsertAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx, `
		insert into accounts (id, user_id, balance, leverage_value, leverage_balance, wallet_pin_hash)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, a.ID, a.UserID, a.Balance.String(), a.LeverageValue, a.LeverageBalance.String(), a.WalletPinHash).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapViolation(err, map[string]error{
		uniqueViolation:     apperr.Validation("live account already exists for this user"),
		foreignKeyViolation: apperr.ErrUserNotFound,
	})
}

func (t *Tx) Account(ctx context.Context, accountID string) (model.Account, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return model.Account{}, apperr.ErrAccountNotFound
	}
	a, err := scanAccount(t.tx.QueryRow(ctx, "select "+accountColumns+" from accounts where id = $1"+t.lockClause(), accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, apperr.ErrAccountNotFound
	}
	return a, mapError(err)
}

func (t *Tx) AccountByUser(ctx context.Context, userID string) (model.Account, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return model.Account{}, apperr.ErrAccountNotFound
	}
	a, err := scanAccount(t.tx.QueryRow(ctx, "select "+accountColumns+" from accounts where user_id = $1"+t.lockClause(), userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, apperr.ErrAccountNotFound
	}
	return a, mapError(err)
}

func (t *Tx) AccountsByUsers(ctx context.Context, userIDs []string) (map[string]model.Account, error) {
	out := make(map[string]model.Account, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	// Stable lock order keeps two concurrent sweeps from deadlocking.
	rows, err := t.tx.Query(ctx, "select "+accountColumns+" from accounts where user_id = any($1::uuid[]) order by id"+t.lockClause(), userIDs)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.UserID] = a
	}
	return out, mapError(rows.Err())
}

func (t *Tx) UpdateAccountBalances(ctx context.Context, a model.Account) error {
	tag, err := t.tx.Exec(ctx, `
		update accounts
		set balance = $1, leverage_balance = $2, updated_at = $3
		where id = $4
	`, a.Balance.String(), a.LeverageBalance.String(), time.Now().UTC(), a.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrAccountNotFound
	}
	return nil
}

const positionColumns = "id::text, seq, user_id::text, coalesce(account_id::text, ''), type, symbol, book, volume::text, open_price::text, take_profit::text, stop_loss::text, open_time, status, close_price::text, close_time, pnl::text"

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var typ, book, status string
	var volume, openPrice, takeProfit, stopLoss string
	var closePrice, pnl *string
	err := row.Scan(&p.ID, &p.Seq, &p.UserID, &p.AccountID, &typ, &p.Symbol, &book, &volume, &openPrice, &takeProfit, &stopLoss, &p.OpenTime, &status, &closePrice, &p.CloseTime, &pnl)
	if err != nil {
		return p, err
	}
	p.Type = types.TradeType(typ)
	p.Book = types.Book(book)
	p.Status = types.PositionStatus(status)
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{volume, &p.Volume},
		{openPrice, &p.OpenPrice},
		{takeProfit, &p.TakeProfit},
		{stopLoss, &p.StopLoss},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return p, fmt.Errorf("parse position %s: %w", p.ID, err)
		}
		*f.dst = v
	}
	if p.ClosePrice, err = optionalDecimal(closePrice); err != nil {
		return p, err
	}
	if p.PnL, err = optionalDecimal(pnl); err != nil {
		return p, err
	}
	return p, nil
}

func optionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalString(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func (t *Tx) InsertPosition(ctx context.Context, p *model.Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var accountID *string
	if p.AccountID != "" {
		accountID = &p.AccountID
	}
	err := t.tx.QueryRow(ctx, `
		insert into positions (id, user_id, account_id, type, symbol, book, volume, open_price, take_profit, stop_loss, open_time, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning seq
	`, p.ID, p.UserID, accountID, string(p.Type), p.Symbol, string(p.Book), p.Volume.String(), p.OpenPrice.String(), p.TakeProfit.String(), p.StopLoss.String(), p.OpenTime, string(p.Status)).Scan(&p.Seq)
	return mapViolation(err, map[string]error{foreignKeyViolation: apperr.ErrUserNotFound})
}

func (t *Tx) AttachPosition(ctx context.Context, accountID, positionID string) error {
	tag, err := t.tx.Exec(ctx, "update positions set account_id = $1 where id = $2 and status = 'active'", accountID, positionID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrTradeNotFound
	}
	return nil
}

func (t *Tx) Position(ctx context.Context, positionID string) (model.Position, error) {
	if _, err := uuid.Parse(positionID); err != nil {
		return model.Position{}, apperr.ErrTradeNotFound
	}
	p, err := scanPosition(t.tx.QueryRow(ctx, "select "+positionColumns+" from positions where id = $1"+t.lockClause(), positionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, apperr.ErrTradeNotFound
	}
	return p, mapError(err)
}

func (t *Tx) ClosePosition(ctx context.Context, p model.Position) error {
	if p.ClosePrice == nil || p.CloseTime == nil || p.PnL == nil {
		return fmt.Errorf("position %s is missing close fields", p.ID)
	}
	tag, err := t.tx.Exec(ctx, `
		update positions
		set status = $1, close_price = $2, close_time = $3, pnl = $4
		where id = $5 and status = 'active'
	`, string(types.PositionStatusClosed), optionalString(p.ClosePrice), *p.CloseTime, optionalString(p.PnL), p.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrTradeNotFound
	}
	return nil
}

func (t *Tx) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapError(rows.Err())
}

func (t *Tx) ActivePositions(ctx context.Context) ([]model.Position, error) {
	return t.queryPositions(ctx, "select "+positionColumns+" from positions where status = 'active' order by seq")
}

func (t *Tx) PositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	return t.queryPositions(ctx, "select "+positionColumns+" from positions where user_id = $1 order by seq", userID)
}

func (t *Tx) AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	var prev string
	err := t.tx.QueryRow(ctx, "select hash from ledger_entries where account_id = $1 order by seq desc limit 1", e.AccountID).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return mapError(err)
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	e.PrevHash = prev
	e.Hash = store.EntryHash(*e, prev)
	err = t.tx.QueryRow(ctx, `
		insert into ledger_entries (id, account_id, user_id, type, amount, status, description, prev_hash, hash, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning seq
	`, e.ID, e.AccountID, e.UserID, string(e.Type), e.Amount.String(), e.Status, e.Description, e.PrevHash, e.Hash, e.CreatedAt).Scan(&e.Seq)
	return mapViolation(err, map[string]error{foreignKeyViolation: apperr.ErrAccountNotFound})
}

func (t *Tx) LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, apperr.ErrAccountNotFound
	}
	rows, err := t.tx.Query(ctx, `
		select id::text, seq, account_id::text, user_id::text, type, amount::text, status, description, prev_hash, hash, created_at
		from ledger_entries
		where account_id = $1
		order by seq
	`, accountID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var typ, amount string
		if err := rows.Scan(&e.ID, &e.Seq, &e.AccountID, &e.UserID, &typ, &amount, &e.Status, &e.Description, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = types.LedgerEntryType(typ)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse ledger entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err())
}
