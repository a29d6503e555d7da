package httpserver

import (
	"net/http"

	"lv-marginledger/internal/accounts"
	"lv-marginledger/internal/auth"
	"lv-marginledger/internal/health"
	"lv-marginledger/internal/ledger"
	"lv-marginledger/internal/metrics"
	"lv-marginledger/internal/trades"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	AuthHandler     *auth.Handler
	AccountsHandler *accounts.Handler
	LedgerHandler   *ledger.Handler
	TradesHandler   *trades.Handler
	HealthHandler   *health.Handler
	AuthService     *auth.Service
	WSHandler       http.Handler
	Metrics         *metrics.Metrics
	RateLimiter     *RateLimiter
	AllowedOrigin   string
	Logger          zerolog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(d.AllowedOrigin))
	r.Use(SecurityHeaders)
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if d.HealthHandler != nil {
		r.Get("/health/live", d.HealthHandler.Live)
		r.Get("/health/ready", d.HealthHandler.Ready)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", d.AuthHandler.Register)
		if d.WSHandler != nil {
			r.Get("/ws", d.WSHandler.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", withUser(d.AuthHandler.Me))

			r.Post("/accounts", withUser(d.AccountsHandler.Create))
			r.Get("/accounts/me", withUser(d.AccountsHandler.Get))
			r.Post("/accounts/login", withUser(d.AccountsHandler.Login))
			r.Post("/accounts/{accountID}/deposit", withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
				d.LedgerHandler.Deposit(w, r, userID, chi.URLParam(r, "accountID"))
			}))
			r.Post("/accounts/{accountID}/withdraw", withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
				d.LedgerHandler.Withdraw(w, r, userID, chi.URLParam(r, "accountID"))
			}))
			r.Get("/accounts/{accountID}/entries", withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
				d.LedgerHandler.Entries(w, r, userID, chi.URLParam(r, "accountID"))
			}))

			r.Post("/trades", withUser(d.TradesHandler.Open))
			r.Get("/trades", withUser(d.TradesHandler.History))
			r.Post("/trades/{tradeID}/close", withUser(func(w http.ResponseWriter, r *http.Request, userID string) {
				d.TradesHandler.Close(w, r, userID, chi.URLParam(r, "tradeID"))
			}))
		})
	})

	if d.Metrics != nil {
		return d.Metrics.Instrument(r)
	}
	return r
}

func cors(allowed string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowOrigin(r, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
