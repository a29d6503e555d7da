package liquidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Cycle interface {
	SweepOnce(ctx context.Context) int
}

// Locker grants the right to run one cycle. The grant expires on its own
// after ttl; it is never released early so that only one replica sweeps
// per interval.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

type RedisLock struct {
	client redis.Cmdable
	key    string
	owner  string
}

func NewRedisLock(client redis.Cmdable, key string) *RedisLock {
	return &RedisLock{client: client, key: key, owner: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
}

type Scheduler struct {
	cycle    Cycle
	interval time.Duration
	lock     Locker
	logger   zerolog.Logger
}

// NewScheduler runs cycle every interval. lock may be nil for a single replica.
func NewScheduler(cycle Cycle, interval time.Duration, lock Locker, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cycle:    cycle,
		interval: interval,
		lock:     lock,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done. A non-positive interval disables the sweep.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("liquidation sweep disabled")
		return
	}
	s.logger.Info().Dur("interval", s.interval).Msg("liquidation sweep started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick returns -1 when another replica holds the lock.
func (s *Scheduler) tick(ctx context.Context) int {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, s.interval)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sweep lock unavailable, skipping cycle")
			return -1
		}
		if !ok {
			return -1
		}
	}
	return s.cycle.SweepOnce(ctx)
}
