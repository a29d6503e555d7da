package trades

import (
	"net/http"
	"strings"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/httputil"
	"lv-marginledger/internal/model"

	"github.com/shopspring/decimal"
)

const retryAttempts = 3

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type openTradeRequest struct {
	Symbol     string  `json:"symbol"`
	Volume     string  `json:"volume"`
	TakeProfit *string `json:"take_profit"`
	StopLoss   *string `json:"stop_loss"`
	OpenPrice  string  `json:"open_price"`
	Type       string  `json:"type"`
}

type closeTradeRequest struct {
	ClosePrice string `json:"close_price"`
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid %s", field)
	}
	return v, nil
}

func parseOptionalDecimal(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := parseDecimal(field, *raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request, userID string) {
	var req openTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	volume, err := parseDecimal("volume", req.Volume)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	openPrice, err := parseDecimal("open_price", req.OpenPrice)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	takeProfit, err := parseOptionalDecimal("take_profit", req.TakeProfit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stopLoss, err := parseOptionalDecimal("stop_loss", req.StopLoss)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var pos model.Position
	err = Retry(r.Context(), retryAttempts, func() error {
		var openErr error
		pos, openErr = h.svc.Open(r.Context(), userID, OpenRequest{
			Symbol:     req.Symbol,
			Volume:     volume,
			TakeProfit: takeProfit,
			StopLoss:   stopLoss,
			OpenPrice:  openPrice,
			Type:       req.Type,
		})
		return openErr
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pos)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	var req closeTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	closePrice, err := parseDecimal("close_price", req.ClosePrice)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var pos model.Position
	err = Retry(r.Context(), retryAttempts, func() error {
		var closeErr error
		pos, closeErr = h.svc.Close(r.Context(), userID, tradeID, closePrice)
		return closeErr
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, userID string) {
	positions, err := h.svc.History(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": positions})
}
