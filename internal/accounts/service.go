package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store   store.Store
	logger  zerolog.Logger
	pinCost int
}

func NewService(st store.Store, logger zerolog.Logger) *Service {
	return &Service{store: st, logger: logger.With().Str("component", "accounts").Logger(), pinCost: bcrypt.DefaultCost}
}

var allowedLeverageValues = map[int64]struct{}{
	2: {}, 5: {}, 10: {}, 20: {}, 30: {}, 40: {}, 50: {},
	100: {}, 200: {}, 500: {}, 1000: {}, 2000: {}, 3000: {},
}

func isAllowedLeverage(v int64) bool {
	_, ok := allowedLeverageValues[v]
	return ok
}

var (
	leveragePattern = regexp.MustCompile(`^1:(\d+)$`)
	pinPattern      = regexp.MustCompile(`^\d{4}$`)
)

// ParseLeverage reads the N of a "1:N" ratio. Anything else, including
// N below 1, yields 1.
func ParseLeverage(raw string) int64 {
	m := leveragePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 1
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// BuyingPowerDrift is how far the tracked buying power sits from
// balance*leverage. Withdrawals and open positions make it non-zero.
func BuyingPowerDrift(a model.Account) decimal.Decimal {
	return a.Balance.Mul(a.Leverage()).Sub(a.LeverageBalance)
}

type CreateRequest struct {
	Leverage       string
	CustomLeverage string
	WalletPin      string
}

func (r CreateRequest) leverage() (int64, error) {
	custom := strings.TrimSpace(r.CustomLeverage)
	standard := strings.TrimSpace(r.Leverage)
	switch {
	case custom != "":
		if !leveragePattern.MatchString(custom) {
			return 0, apperr.Validation(`custom leverage must be in the format "1:number"`)
		}
		return ParseLeverage(custom), nil
	case standard != "":
		if !leveragePattern.MatchString(standard) {
			return 0, apperr.Validation(`leverage must be in the format "1:number"`)
		}
		v := ParseLeverage(standard)
		if !isAllowedLeverage(v) {
			return 0, apperr.Validation("unsupported leverage value; allowed: 2, 5, 10, 20, 30, 40, 50, 100, 200, 500, 1000, 2000, 3000")
		}
		return v, nil
	}
	return 0, apperr.Validation("either leverage or custom leverage must be provided")
}

// CreateUser provisions a user on the given book.
func (s *Service) CreateUser(ctx context.Context, book string) (model.User, error) {
	b, ok := types.ParseBook(book)
	if !ok {
		return model.User{}, apperr.ErrInvalidBook
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer tx.Rollback(ctx)

	u := model.User{Book: b}
	if err := tx.InsertUser(ctx, &u); err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.User{}, err
	}
	s.logger.Info().Str("user_id", u.ID).Str("book", string(u.Book)).Msg("user created")
	return u, nil
}

func (s *Service) User(ctx context.Context, userID string) (model.User, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer tx.Rollback(ctx)
	return tx.User(ctx, userID)
}

// Create opens the live account of userID with a zero balance.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (model.Account, error) {
	if !pinPattern.MatchString(req.WalletPin) {
		return model.Account{}, apperr.Validation("wallet pin must be exactly 4 digits long")
	}
	leverage, err := req.leverage()
	if err != nil {
		return model.Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.WalletPin), s.pinCost)
	if err != nil {
		return model.Account{}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.User(ctx, userID); err != nil {
		return model.Account{}, err
	}
	if _, err := tx.AccountByUser(ctx, userID); err == nil {
		return model.Account{}, apperr.Validation("live account already exists for this user")
	} else if !errors.Is(err, apperr.ErrAccountNotFound) {
		return model.Account{}, err
	}
	account := model.Account{
		UserID:          userID,
		Balance:         decimal.Zero,
		LeverageValue:   leverage,
		LeverageBalance: decimal.Zero,
		WalletPinHash:   string(hash),
	}
	if err := tx.InsertAccount(ctx, &account); err != nil {
		return model.Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Account{}, err
	}
	s.logger.Info().Str("user_id", userID).Str("account_id", account.ID).Int64("leverage", leverage).Msg("live account created")
	return account, nil
}

func (s *Service) Get(ctx context.Context, userID string) (model.Account, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)
	return tx.AccountByUser(ctx, userID)
}

// Login checks the wallet PIN of an account.
func (s *Service) Login(ctx context.Context, accountID, pin string) (model.Account, error) {
	tx, err := s.store.BeginReadOnly(ctx)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback(ctx)

	account, err := tx.Account(ctx, accountID)
	if err != nil {
		return model.Account{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.WalletPinHash), []byte(pin)) != nil {
		return model.Account{}, apperr.ErrAuthFailed
	}
	return account, nil
}
