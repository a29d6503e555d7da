package auth

import (
	"context"
	"errors"
	"time"

	"lv-marginledger/internal/accounts"
	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/model"
	"lv-marginledger/internal/types"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoAccountService = errors.New("auth: account service is not configured")
	errInvalidToken     = errors.New("invalid token")
)

type Service struct {
	issuer      string
	secret      []byte
	ttl         time.Duration
	accountSvc  *accounts.Service
	defaultBook types.Book
}

func NewService(issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{issuer: issuer, secret: secret, ttl: ttl, defaultBook: types.BookA}
}

func (s *Service) SetAccountService(accountSvc *accounts.Service) {
	s.accountSvc = accountSvc
}

// SetDefaultBook sets the book that self-service registrations land on.
func (s *Service) SetDefaultBook(raw string) error {
	book, ok := types.ParseBook(raw)
	if !ok {
		return apperr.ErrInvalidBook
	}
	s.defaultBook = book
	return nil
}

func (s *Service) DefaultBook() types.Book {
	return s.defaultBook
}

// Register creates a user on the default book and returns a bearer token for it.
func (s *Service) Register(ctx context.Context) (model.User, string, error) {
	return s.RegisterOnBook(ctx, string(s.defaultBook))
}

// RegisterOnBook is the operator path: seeding picks the book explicitly.
func (s *Service) RegisterOnBook(ctx context.Context, book string) (model.User, string, error) {
	if s.accountSvc == nil {
		return model.User{}, "", errNoAccountService
	}
	user, err := s.accountSvc.CreateUser(ctx, book)
	if err != nil {
		return model.User{}, "", err
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return model.User{}, "", err
	}
	return user, token, nil
}

func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	if s.accountSvc == nil {
		return model.User{}, errNoAccountService
	}
	return s.accountSvc.User(ctx, userID)
}

func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errInvalidToken
	}
	if claims.Issuer != s.issuer {
		return "", errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return "", errors.New("invalid subject")
	}
	return claims.Subject, nil
}
