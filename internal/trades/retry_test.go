package trades

import (
	"context"
	"fmt"
	"testing"

	"lv-marginledger/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestRetryOnlyConflicts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", apperr.ErrConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 3, func() error {
		calls++
		return apperr.ErrInsufficientBalance
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return apperr.ErrConflict
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, func() error {
		calls++
		return apperr.ErrConflict
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 1, calls)
}
