package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/GiorgiUbiria/rewards_settlement/internal/httputil"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/withdrawal"
)

type SubmitWithdrawalRequest struct {
	Username      string          `json:"username"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber string          `json:"account_number"`
	AccountTitle  string          `json:"account_title"`
	Gateway       string          `json:"gateway"`
}

type RejectWithdrawalRequest struct {
	Remarks string `json:"remarks"`
}

type WithdrawalStatus struct {
	WithdrawalEnabled bool `json:"withdrawal_enabled"`
}

func (h *Handler) SubmitWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitWithdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.Withdrawals.Submit(r.Context(), withdrawal.SubmitInput{
		Username:      req.Username,
		Amount:        req.Amount,
		AccountNumber: req.AccountNumber,
		AccountTitle:  req.AccountTitle,
		Gateway:       req.Gateway,
	})
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SubmittedResponse{ID: id})
}

func (h *Handler) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		out any
		err error
	)
	switch chi.URLParam(r, "status") {
	case string(models.StatusPending):
		out, err = h.Withdrawals.ListPending(r.Context())
	case string(models.StatusApproved):
		out, err = h.Withdrawals.ListApproved(r.Context())
	case string(models.StatusRejected):
		out, err = h.Withdrawals.ListRejected(r.Context())
	default:
		httputil.WriteError(w, http.StatusNotFound, "unknown status")
		return
	}
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Withdrawals.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "withdrawal approved"})
}

func (h *Handler) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req RejectWithdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Withdrawals.Reject(r.Context(), chi.URLParam(r, "id"), req.Remarks); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "withdrawal rejected"})
}

func (h *Handler) WithdrawalStatusHandler(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.Withdrawals.Enabled(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawalStatus{WithdrawalEnabled: enabled})
}

func (h *Handler) SetWithdrawalStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalStatus
	if !decode(w, r, &req) {
		return
	}
	if err := h.Withdrawals.SetEnabled(r.Context(), req.WithdrawalEnabled); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}
