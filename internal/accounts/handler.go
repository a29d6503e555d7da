package accounts

import (
	"net/http"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/httputil"
	"lv-marginledger/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type accountResponse struct {
	model.Account
	BuyingPowerDrift string `json:"buying_power_drift"`
}

func respond(a model.Account) accountResponse {
	return accountResponse{Account: a, BuyingPowerDrift: BuyingPowerDrift(a).String()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Leverage       string `json:"leverage"`
		CustomLeverage string `json:"custom_leverage"`
		WalletPin      string `json:"wallet_pin"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	acc, err := h.svc.Create(r.Context(), userID, CreateRequest{
		Leverage:       req.Leverage,
		CustomLeverage: req.CustomLeverage,
		WalletPin:      req.WalletPin,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, respond(acc))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	acc, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, respond(acc))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		AccountID string `json:"account_id"`
		WalletPin string `json:"wallet_pin"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	acc, err := h.svc.Login(r.Context(), req.AccountID, req.WalletPin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if acc.UserID != userID {
		httputil.WriteError(w, apperr.ErrAccountNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, respond(acc))
}
