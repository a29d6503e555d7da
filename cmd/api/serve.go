package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lv-marginledger/internal/accounts"
	"lv-marginledger/internal/auth"
	"lv-marginledger/internal/health"
	"lv-marginledger/internal/httpserver"
	"lv-marginledger/internal/ledger"
	"lv-marginledger/internal/trades"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the liquidation sweep",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	startedAt := time.Now()
	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:     auth.NewHandler(a.auth),
		AccountsHandler: accounts.NewHandler(a.accounts),
		LedgerHandler:   ledger.NewHandler(a.ledger),
		TradesHandler:   trades.NewHandler(a.trades),
		HealthHandler:   health.NewHandler(startedAt, a.checks),
		AuthService:     a.auth,
		WSHandler:       httpserver.NewWSHandler(a.bus, a.auth, cfg.WebSocketOrigin, logger),
		Metrics:         a.metrics,
		RateLimiter:     httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		AllowedOrigin:   cfg.WebSocketOrigin,
		Logger:          logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler().Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("server listening")
	err = srv.ListenAndServe()
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
