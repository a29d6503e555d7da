package main

import (
	"context"
	"fmt"

	"lv-marginledger/internal/accounts"
	"lv-marginledger/internal/auth"
	"lv-marginledger/internal/config"
	"lv-marginledger/internal/db"
	"lv-marginledger/internal/events"
	"lv-marginledger/internal/health"
	"lv-marginledger/internal/ledger"
	"lv-marginledger/internal/liquidation"
	"lv-marginledger/internal/logging"
	"lv-marginledger/internal/metrics"
	"lv-marginledger/internal/pricefeed"
	"lv-marginledger/internal/store"
	"lv-marginledger/internal/store/memory"
	"lv-marginledger/internal/store/postgres"
	"lv-marginledger/internal/trades"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sweepLockKey = "marginledger:sweep"

// app holds the wired services shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    store.Store
	bus      *events.Bus
	metrics  *metrics.Metrics
	accounts *accounts.Service
	auth     *auth.Service
	ledger   *ledger.Service
	trades   *trades.Service
	sweeper  *liquidation.Sweeper
	lock     liquidation.Locker
	checks   map[string]health.Check
	closers  []func()
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, bus: events.NewBus(), metrics: metrics.New(), checks: map[string]health.Check{}}

	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, state is lost on exit")
		a.store = memory.New()
	default:
		if cfg.MigrateOnStart {
			if err := db.Migrate(logger, cfg.DBDSN); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.checks["database"] = pool.Ping
		a.store = postgres.New(pool)
	}

	var prices pricefeed.Gateway
	if cfg.PriceFeedURL != "" {
		prices = pricefeed.NewHTTPGateway(pricefeed.HTTPConfig{
			URL:      cfg.PriceFeedURL,
			Suffix:   cfg.PriceSymbolSuffix,
			Timeout:  cfg.PriceFeedTimeout,
			RPS:      cfg.PriceFeedRPS,
			CacheTTL: cfg.PriceFeedCacheTTL,
		}, logger)
	} else {
		logger.Warn().Msg("PRICE_FEED_URL not set, sweeps see no live prices")
		prices = pricefeed.NewStatic(cfg.PriceSymbolSuffix)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.lock = liquidation.NewRedisLock(client, sweepLockKey)
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	a.accounts = accounts.NewService(a.store, logger)
	a.auth = auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	a.auth.SetAccountService(a.accounts)
	if err := a.auth.SetDefaultBook(string(cfg.DefaultBook)); err != nil {
		a.close()
		return nil, err
	}
	a.ledger = ledger.NewService(a.store, a.bus, logger)
	a.trades = trades.NewService(a.store, a.bus, a.metrics, logger)
	a.sweeper = liquidation.NewSweeper(a.store, prices, a.bus, a.metrics, logger)
	return a, nil
}

func (a *app) scheduler() *liquidation.Scheduler {
	return liquidation.NewScheduler(a.sweeper, a.cfg.SweepInterval, a.lock, a.logger)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
