package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row replays scanned values or fails with err.
type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// scriptedTx answers QueryRow calls in order and Exec with a fixed tag.
type scriptedTx struct {
	pgx.Tx
	rows      []row
	tag       pgconn.CommandTag
	execErr   error
	commitErr error
}

func (tx *scriptedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(tx.rows) == 0 {
		return row{err: errors.New("unexpected query")}
	}
	r := tx.rows[0]
	tx.rows = tx.rows[1:]
	return r
}

func (tx *scriptedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.tag, tx.execErr
}

func (tx *scriptedTx) Commit(ctx context.Context) error { return tx.commitErr }

func (tx *scriptedTx) Rollback(ctx context.Context) error { return pgx.ErrTxClosed }

func pgError(code string) error {
	return &pgconn.PgError{Code: code, Message: "pg " + code}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMapError(t *testing.T) {
	t.Parallel()
	plain := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization failure", pgError("40001"), true},
		{"deadlock", pgError("40P01"), true},
		{"lock not available", pgError("55P03"), true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", pgError("40001")), true},
		{"unique violation", pgError("23505"), false},
		{"plain error", plain, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.conflict, errors.Is(got, apperr.ErrConflict))
			assert.Equal(t, tt.conflict, apperr.Retryable(got))
			if tt.conflict {
				assert.Equal(t, apperr.KindConflict, apperr.KindOf(got))
			} else {
				assert.Equal(t, tt.err, got)
			}
		})
	}
	assert.NoError(t, mapError(nil))
}

func TestMapViolation(t *testing.T) {
	t.Parallel()
	violations := map[string]error{foreignKeyViolation: apperr.ErrUserNotFound}

	assert.ErrorIs(t, mapViolation(pgError("23503"), violations), apperr.ErrUserNotFound)
	assert.ErrorIs(t, mapViolation(pgError("40001"), violations), apperr.ErrConflict)
	assert.Equal(t, pgError("23505").Error(), mapViolation(pgError("23505"), violations).Error())
	assert.NoError(t, mapViolation(nil, violations))
}

func TestInsertAccountViolations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := model.Account{UserID: uuid.NewString(), LeverageValue: 100}

	tx := &Tx{tx: &scriptedTx{rows: []row{{err: pgError("23505")}}}}
	err := tx.InsertAccount(ctx, &a)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "already exists")

	tx = &Tx{tx: &scriptedTx{rows: []row{{err: pgError("23503")}}}}
	assert.ErrorIs(t, tx.InsertAccount(ctx, &a), apperr.ErrUserNotFound)
}

func TestInsertPositionMissingUser(t *testing.T) {
	t.Parallel()
	tx := &Tx{tx: &scriptedTx{rows: []row{{err: pgError("23503")}}}}
	p := model.Position{UserID: uuid.NewString(), Book: types.BookB, Volume: dec("1")}
	assert.ErrorIs(t, tx.InsertPosition(context.Background(), &p), apperr.ErrUserNotFound)
	assert.NotEmpty(t, p.ID)
}

func TestAppendLedgerEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := model.LedgerEntry{AccountID: uuid.NewString(), UserID: uuid.NewString(), Type: types.LedgerEntryTypeDeposit, Amount: dec("10")}
	tx := &Tx{tx: &scriptedTx{rows: []row{{err: pgx.ErrNoRows}, {values: []any{int64(7)}}}}}
	require.NoError(t, tx.AppendLedgerEntry(ctx, &e))
	assert.Equal(t, int64(7), e.Seq)
	assert.Empty(t, e.PrevHash)
	assert.NotEmpty(t, e.Hash)

	next := model.LedgerEntry{AccountID: e.AccountID, UserID: e.UserID, Type: types.LedgerEntryTypeDeposit, Amount: dec("5")}
	tx = &Tx{tx: &scriptedTx{rows: []row{{values: []any{e.Hash}}, {values: []any{int64(8)}}}}}
	require.NoError(t, tx.AppendLedgerEntry(ctx, &next))
	assert.Equal(t, e.Hash, next.PrevHash)

	orphan := model.LedgerEntry{AccountID: uuid.NewString(), UserID: uuid.NewString(), Amount: dec("1")}
	tx = &Tx{tx: &scriptedTx{rows: []row{{err: pgx.ErrNoRows}, {err: pgError("23503")}}}}
	assert.ErrorIs(t, tx.AppendLedgerEntry(ctx, &orphan), apperr.ErrAccountNotFound)
}

func TestUpdatesRequireOneRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	closePrice, pnl := dec("1.2"), dec("0.1")
	closed := model.Position{ID: uuid.NewString(), Status: types.PositionStatusClosed, ClosePrice: &closePrice, CloseTime: &now, PnL: &pnl}

	tx := &Tx{tx: &scriptedTx{tag: pgconn.NewCommandTag("UPDATE 0")}}
	assert.ErrorIs(t, tx.UpdateAccountBalances(ctx, model.Account{ID: uuid.NewString()}), apperr.ErrAccountNotFound)
	assert.ErrorIs(t, tx.ClosePosition(ctx, closed), apperr.ErrTradeNotFound)
	assert.ErrorIs(t, tx.AttachPosition(ctx, uuid.NewString(), closed.ID), apperr.ErrTradeNotFound)

	tx = &Tx{tx: &scriptedTx{tag: pgconn.NewCommandTag("UPDATE 1")}}
	assert.NoError(t, tx.UpdateAccountBalances(ctx, model.Account{ID: uuid.NewString()}))
	assert.NoError(t, tx.ClosePosition(ctx, closed))

	tx = &Tx{tx: &scriptedTx{execErr: pgError("40P01")}}
	assert.ErrorIs(t, tx.ClosePosition(ctx, closed), apperr.ErrConflict)

	assert.Error(t, tx.ClosePosition(ctx, model.Position{ID: closed.ID}))
}

func TestCommitAndRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tx := &Tx{tx: &scriptedTx{commitErr: pgError("40001")}}
	assert.ErrorIs(t, tx.Commit(ctx), apperr.ErrConflict)
	assert.NoError(t, tx.Rollback(ctx))
}

func TestLockClause(t *testing.T) {
	t.Parallel()
	assert.Equal(t, " for update", (&Tx{}).lockClause())
	assert.Empty(t, (&Tx{readOnly: true}).lockClause())
}

func TestLookupsRejectMalformedIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := &Tx{tx: &scriptedTx{}}

	_, err := tx.User(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
	_, err = tx.Account(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	_, err = tx.Position(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrTradeNotFound)

	tx = &Tx{tx: &scriptedTx{rows: []row{{err: pgx.ErrNoRows}}}}
	_, err = tx.Position(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrTradeNotFound)
}

func TestOptionalDecimalRoundTrip(t *testing.T) {
	t.Parallel()

	got, err := optionalDecimal(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, optionalString(nil))

	v := dec("-12.3400")
	raw := optionalString(&v)
	require.NotNil(t, raw)
	got, err = optionalDecimal(raw)
	require.NoError(t, err)
	assert.True(t, got.Equal(v))

	bad := "abc"
	_, err = optionalDecimal(&bad)
	assert.Error(t, err)
}

func positionRow(accountID string, closePrice, closeTime, pnl any) row {
	openTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return row{values: []any{
		"pos-1", int64(3), "user-1", accountID, "buy", "EURUSD", "A",
		"1.5", "100", "5", "5", openTime, "active", closePrice, closeTime, pnl,
	}}
}

func TestScanPosition(t *testing.T) {
	t.Parallel()

	// a book B position has no account; the query coalesces it to ''
	p, err := scanPosition(positionRow("", nil, nil, nil))
	require.NoError(t, err)
	assert.Empty(t, p.AccountID)
	assert.Equal(t, types.BookA, p.Book)
	assert.Equal(t, types.PositionStatusActive, p.Status)
	assert.True(t, p.Volume.Equal(dec("1.5")))
	assert.Nil(t, p.ClosePrice)
	assert.Nil(t, p.CloseTime)
	assert.Nil(t, p.PnL)

	closePrice, pnl := "110", "15"
	closeTime := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	p, err = scanPosition(positionRow("acc-1", &closePrice, &closeTime, &pnl))
	require.NoError(t, err)
	assert.Equal(t, "acc-1", p.AccountID)
	require.NotNil(t, p.ClosePrice)
	assert.True(t, p.ClosePrice.Equal(dec("110")))
	require.NotNil(t, p.PnL)
	assert.True(t, p.PnL.Equal(dec("15")))
	assert.Equal(t, closeTime, *p.CloseTime)

	broken := positionRow("", nil, nil, nil)
	broken.values[7] = "not-a-number"
	_, err = scanPosition(broken)
	assert.Error(t, err)
}

func TestScanAccount(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	a, err := scanAccount(row{values: []any{"acc-1", "user-1", "100.5", int64(50), "5025", "hash", now, now}})
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("100.5")))
	assert.True(t, a.LeverageBalance.Equal(dec("5025")))
	assert.Equal(t, int64(50), a.LeverageValue)

	_, err = scanAccount(row{values: []any{"acc-1", "user-1", "x", int64(50), "5025", "hash", now, now}})
	assert.Error(t, err)
}
