// Package memory is an in-process implementation of store.Store. A write
// unit of work owns the store exclusively from Begin until Commit or
// Rollback; read-only units observe the last committed snapshot without
// blocking writers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/types"

	"github.com/google/uuid"
)

var (
	errReadOnly = errors.New("memory: write in read-only unit of work")
	errFinished = errors.New("memory: unit of work already finished")
)

type state struct {
	seq           int64
	users         map[string]model.User
	accounts      map[string]model.Account
	accountByUser map[string]string
	positions     map[string]model.Position
	order         []string
	entries       map[string][]model.LedgerEntry
}

func newState() *state {
	return &state{
		users:         map[string]model.User{},
		accounts:      map[string]model.Account{},
		accountByUser: map[string]string{},
		positions:     map[string]model.Position{},
		entries:       map[string][]model.LedgerEntry{},
	}
}

func (s *state) clone() *state {
	out := &state{
		seq:           s.seq,
		users:         make(map[string]model.User, len(s.users)),
		accounts:      make(map[string]model.Account, len(s.accounts)),
		accountByUser: make(map[string]string, len(s.accountByUser)),
		positions:     make(map[string]model.Position, len(s.positions)),
		order:         append([]string(nil), s.order...),
		entries:       make(map[string][]model.LedgerEntry, len(s.entries)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.accountByUser {
		out.accountByUser[k] = v
	}
	for k, v := range s.positions {
		out.positions[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = append([]model.LedgerEntry(nil), v...)
	}
	return out
}

type Store struct {
	writer  chan struct{}
	current atomic.Pointer[state]
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{writer: make(chan struct{}, 1), now: func() time.Time { return time.Now().UTC() }}
	s.current.Store(newState())
	return s
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", apperr.ErrConflict, ctx.Err())
	}
	return &tx{s: s, st: s.current.Load().clone()}, nil
}

func (s *Store) BeginReadOnly(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{s: s, st: s.current.Load(), readOnly: true}, nil
}

type tx struct {
	s        *Store
	st       *state
	readOnly bool
	done     bool
}

func (t *tx) writable() error {
	if t.done {
		return errFinished
	}
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) nextSeq() int64 {
	t.st.seq++
	return t.st.seq
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errFinished
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	defer func() { <-t.s.writer }()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	t.s.current.Store(t.st)
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.readOnly {
		<-t.s.writer
	}
	return nil
}

func (t *tx) InsertUser(ctx context.Context, u *model.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !u.Book.Valid() {
		return apperr.ErrInvalidBook
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := t.st.users[u.ID]; exists {
		return fmt.Errorf("memory: user %s already exists", u.ID)
	}
	u.CreatedAt = t.s.now()
	t.st.users[u.ID] = *u
	return nil
}

func (t *tx) User(ctx context.Context, userID string) (model.User, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return model.User{}, apperr.ErrUserNotFound
	}
	return u, nil
}

func (t *tx) InsertAccount(ctx context.Context, a *model.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.users[a.UserID]; !ok {
		return apperr.ErrUserNotFound
	}
	if _, exists := t.st.accountByUser[a.UserID]; exists {
		return apperr.Validation("live account already exists for this user")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := t.s.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.st.accounts[a.ID] = *a
	t.st.accountByUser[a.UserID] = a.ID
	return nil
}

func (t *tx) Account(ctx context.Context, accountID string) (model.Account, error) {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return model.Account{}, apperr.ErrAccountNotFound
	}
	return a, nil
}

func (t *tx) AccountByUser(ctx context.Context, userID string) (model.Account, error) {
	id, ok := t.st.accountByUser[userID]
	if !ok {
		return model.Account{}, apperr.ErrAccountNotFound
	}
	return t.Account(ctx, id)
}

func (t *tx) AccountsByUsers(ctx context.Context, userIDs []string) (map[string]model.Account, error) {
	out := make(map[string]model.Account, len(userIDs))
	for _, userID := range userIDs {
		if id, ok := t.st.accountByUser[userID]; ok {
			out[userID] = t.st.accounts[id]
		}
	}
	return out, nil
}

func (t *tx) UpdateAccountBalances(ctx context.Context, a model.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored, ok := t.st.accounts[a.ID]
	if !ok {
		return apperr.ErrAccountNotFound
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("memory: account %s balance would become negative", a.ID)
	}
	stored.Balance = a.Balance
	stored.LeverageBalance = a.LeverageBalance
	stored.UpdatedAt = t.s.now()
	t.st.accounts[a.ID] = stored
	return nil
}

func (t *tx) InsertPosition(ctx context.Context, p *model.Position) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.users[p.UserID]; !ok {
		return apperr.ErrUserNotFound
	}
	if !p.Volume.IsPositive() {
		return apperr.Validation("volume must be positive")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Seq = t.nextSeq()
	t.st.positions[p.ID] = *p
	t.st.order = append(t.st.order, p.ID)
	return nil
}

func (t *tx) AttachPosition(ctx context.Context, accountID, positionID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return apperr.ErrAccountNotFound
	}
	p, ok := t.st.positions[positionID]
	if !ok {
		return apperr.ErrTradeNotFound
	}
	if a.UserID != p.UserID {
		return fmt.Errorf("memory: account %s does not belong to owner of position %s", accountID, positionID)
	}
	p.AccountID = accountID
	t.st.positions[positionID] = p
	return nil
}

func (t *tx) Position(ctx context.Context, positionID string) (model.Position, error) {
	p, ok := t.st.positions[positionID]
	if !ok {
		return model.Position{}, apperr.ErrTradeNotFound
	}
	return p, nil
}

func (t *tx) ClosePosition(ctx context.Context, p model.Position) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored, ok := t.st.positions[p.ID]
	if !ok || !stored.Active() {
		return apperr.ErrTradeNotFound
	}
	if p.Status != types.PositionStatusClosed || p.ClosePrice == nil || p.CloseTime == nil || p.PnL == nil {
		return fmt.Errorf("memory: position %s is missing close fields", p.ID)
	}
	stored.Status = types.PositionStatusClosed
	stored.ClosePrice = p.ClosePrice
	stored.CloseTime = p.CloseTime
	stored.PnL = p.PnL
	t.st.positions[p.ID] = stored
	return nil
}

func (t *tx) ActivePositions(ctx context.Context) ([]model.Position, error) {
	out := make([]model.Position, 0, len(t.st.order))
	for _, id := range t.st.order {
		if p := t.st.positions[id]; p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) PositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	var out []model.Position
	for _, id := range t.st.order {
		if p := t.st.positions[id]; p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *tx) AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.st.accounts[e.AccountID]
	if !ok {
		return apperr.ErrAccountNotFound
	}
	if a.UserID != e.UserID {
		return fmt.Errorf("memory: ledger entry owner %s does not own account %s", e.UserID, e.AccountID)
	}
	chain := t.st.entries[e.AccountID]
	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}
	e.ID = uuid.NewString()
	e.Seq = t.nextSeq()
	e.CreatedAt = t.s.now().Truncate(time.Microsecond)
	e.PrevHash = prev
	e.Hash = store.EntryHash(*e, prev)
	t.st.entries[e.AccountID] = append(chain, *e)
	return nil
}

func (t *tx) LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	if _, ok := t.st.accounts[accountID]; !ok {
		return nil, apperr.ErrAccountNotFound
	}
	return append([]model.LedgerEntry(nil), t.st.entries[accountID]...), nil
}
