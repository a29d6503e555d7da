package liquidation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCycle struct {
	runs atomic.Int32
}

func (c *countingCycle) SweepOnce(ctx context.Context) int {
	c.runs.Add(1)
	return 3
}

func TestSchedulerTickWithoutLock(t *testing.T) {
	t.Parallel()
	c := &countingCycle{}
	s := NewScheduler(c, time.Second, nil, zerolog.Nop())

	assert.Equal(t, 3, s.tick(context.Background()))
	assert.Equal(t, int32(1), c.runs.Load())
}

func TestSchedulerRedisLock(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	lock := NewRedisLock(db, "ledger:sweep")
	c := &countingCycle{}
	s := NewScheduler(c, 5*time.Second, lock, zerolog.Nop())
	ctx := context.Background()

	mock.ExpectSetNX("ledger:sweep", lock.owner, 5*time.Second).SetVal(true)
	assert.Equal(t, 3, s.tick(ctx))

	mock.ExpectSetNX("ledger:sweep", lock.owner, 5*time.Second).SetVal(false)
	assert.Equal(t, -1, s.tick(ctx))

	mock.ExpectSetNX("ledger:sweep", lock.owner, 5*time.Second).SetErr(errors.New("connection refused"))
	assert.Equal(t, -1, s.tick(ctx))

	assert.Equal(t, int32(1), c.runs.Load())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	c := &countingCycle{}
	s := NewScheduler(c, 5*time.Millisecond, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return c.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerDisabled(t *testing.T) {
	t.Parallel()
	c := &countingCycle{}
	NewScheduler(c, 0, nil, zerolog.Nop()).Run(context.Background())
	assert.Zero(t, c.runs.Load())
}
