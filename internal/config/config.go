package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lv-marginledger/internal/types"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr          string
	DBDSN             string
	JWTIssuer         string
	JWTSecret         string
	JWTTTL            time.Duration
	WebSocketOrigin   string
	Store             string
	PriceFeedURL      string
	PriceSymbolSuffix string
	PriceFeedTimeout  time.Duration
	PriceFeedRPS      float64
	PriceFeedCacheTTL time.Duration
	SweepInterval     time.Duration
	RedisAddr         string
	LogLevel          string
	LogFormat         string
	RateLimitRPS      float64
	RateLimitBurst    int
	MigrateOnStart    bool
	DefaultBook       types.Book
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.Store = strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	if c.Store == "" {
		c.Store = StorePostgres
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return c, errors.New("invalid STORE: use postgres or memory")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" && c.Store == StorePostgres {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		c.JWTTTL = d
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.PriceFeedURL = os.Getenv("PRICE_FEED_URL")
	if c.PriceFeedURL == "" && c.Store == StorePostgres {
		missing = append(missing, "PRICE_FEED_URL")
	}
	c.PriceSymbolSuffix = envOr("PRICE_SYMBOL_SUFFIX", "m")

	var err error
	if c.PriceFeedTimeout, err = durationEnv("PRICE_FEED_TIMEOUT", 5*time.Second); err != nil {
		return c, err
	}
	if c.PriceFeedRPS, err = floatEnv("PRICE_FEED_RPS", 5); err != nil {
		return c, err
	}
	if c.PriceFeedCacheTTL, err = durationEnv("PRICE_FEED_CACHE_TTL", time.Second); err != nil {
		return c, err
	}
	if c.SweepInterval, err = durationEnv("SWEEP_INTERVAL", 5*time.Second); err != nil {
		return c, err
	}
	if c.SweepInterval < 0 {
		return c, errors.New("invalid SWEEP_INTERVAL: must not be negative")
	}
	book, ok := types.ParseBook(envOr("DEFAULT_BOOK", string(types.BookA)))
	if !ok {
		return c, errors.New("invalid DEFAULT_BOOK: use A or B")
	}
	c.DefaultBook = book
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.LogLevel = envOr("LOG_LEVEL", "info")
	c.LogFormat = strings.ToLower(envOr("LOG_FORMAT", "text"))
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return c, errors.New("invalid LOG_FORMAT: use text or json")
	}
	if c.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 10); err != nil {
		return c, err
	}
	burst := envOr("RATE_LIMIT_BURST", "30")
	if c.RateLimitBurst, err = strconv.Atoi(burst); err != nil {
		return c, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	migrateOnStart := os.Getenv("MIGRATE_ON_START")
	if migrateOnStart != "" {
		b, err := strconv.ParseBool(migrateOnStart)
		if err != nil {
			return c, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
		}
		c.MigrateOnStart = b
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
