package ledger

import (
	"net/http"
	"strings"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/httputil"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type movementRequest struct {
	Amount    string `json:"amount"`
	WalletPin string `json:"wallet_pin,omitempty"`
}

// owned hides accounts of other users behind the same not-found answer.
func (h *Handler) owned(r *http.Request, userID, accountID string) error {
	account, err := h.svc.Account(r.Context(), accountID)
	if err != nil {
		return err
	}
	if account.UserID != userID {
		return apperr.ErrAccountNotFound
	}
	return nil
}

func (h *Handler) readMovement(w http.ResponseWriter, r *http.Request) (movementRequest, decimal.Decimal, bool) {
	var req movementRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return req, decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteError(w, apperr.ErrInvalidAmount)
		return req, decimal.Zero, false
	}
	return req, amount, true
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	_, amount, ok := h.readMovement(w, r)
	if !ok {
		return
	}
	if err := h.owned(r, userID, accountID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	balances, err := h.svc.Deposit(r.Context(), accountID, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	req, amount, ok := h.readMovement(w, r)
	if !ok {
		return
	}
	if err := h.owned(r, userID, accountID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	balances, err := h.svc.Withdraw(r.Context(), accountID, amount, req.WalletPin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

func (h *Handler) Entries(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	if err := h.owned(r, userID, accountID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, broken, err := h.svc.Entries(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entries":      entries,
		"chain_intact": broken < 0,
	})
}
