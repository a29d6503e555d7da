package trades

import (
	"context"
	"time"

	"lv-marginledger/internal/apperr"
)

// Retry runs fn up to attempts times while it fails with a Conflict,
// doubling the pause between attempts.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	wait := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); apperr.KindOf(err) != apperr.KindConflict {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
