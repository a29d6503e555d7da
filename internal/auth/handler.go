package auth

import (
	"errors"
	"net/http"

	"lv-marginledger/internal/apperr"
	"lv-marginledger/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Book string `json:"book"`
}

// Register accepts an empty body. The book is server policy, so a client
// that names one is rejected rather than silently moved.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrBodyRequired) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Book != "" {
		httputil.WriteError(w, apperr.Validation("book is assigned by the server"))
		return
	}
	user, token, err := h.svc.Register(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":      user.ID,
		"book":         string(user.Book),
		"access_token": token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
