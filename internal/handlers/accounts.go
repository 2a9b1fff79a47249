package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/GiorgiUbiria/rewards_settlement/internal/httputil"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/referral"
)

type TransferResponse struct {
	Transferred decimal.Decimal `json:"transferred"`
}

type TransferAllResponse struct {
	Accounts int `json:"accounts"`
}

type AssignParentRequest struct {
	Parent string `json:"parent"`
}

type AccrueCommissionRequest struct {
	TaskRef     string          `json:"task_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type ProductProfitRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Points         int             `json:"points"`
	ReferralPoints int             `json:"referral_points"`
	Reference      string          `json:"reference"`
}

type ProductProfitResponse struct {
	Balance              decimal.Decimal `json:"balance"`
	ProductProfitBalance decimal.Decimal `json:"product_profit_balance"`
	TotalPoints          int             `json:"total_points"`
	DirectPoints         int             `json:"direct_points"`
}

type ResetPointsResponse struct {
	Accounts int64 `json:"accounts"`
}

func (h *Handler) TransferCommissionHandler(w http.ResponseWriter, r *http.Request) {
	moved, err := h.Ledger.TransferPendingCommission(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TransferResponse{Transferred: moved})
}

func (h *Handler) TransferAllCommissionsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.TransferAllPendingCommissions(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TransferAllResponse{Accounts: n})
}

func (h *Handler) AccrueCommissionHandler(w http.ResponseWriter, r *http.Request) {
	var req AccrueCommissionRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.Ledger.AccrueTaskCommission(r.Context(), chi.URLParam(r, "username"), req.TaskRef, req.Amount, req.Description)
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, MessageResponse{Message: "commission accrued"})
}

func (h *Handler) AssignParentHandler(w http.ResponseWriter, r *http.Request) {
	var req AssignParentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := referral.AssignParent(r.Context(), h.DB, chi.URLParam(r, "username"), req.Parent); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "referrer updated"})
}

func (h *Handler) AccountHistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.AccountHistory(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) ProductProfitHandler(w http.ResponseWriter, r *http.Request) {
	var req ProductProfitRequest
	if !decode(w, r, &req) {
		return
	}
	acc, err := h.Ledger.CreditProductProfit(r.Context(), chi.URLParam(r, "username"), ledger.ProductProfit{
		Amount:         req.Amount,
		Points:         req.Points,
		ReferralPoints: req.ReferralPoints,
		Reference:      req.Reference,
	})
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ProductProfitResponse{
		Balance:              acc.Balance,
		ProductProfitBalance: acc.ProductProfitBalance,
		TotalPoints:          acc.TotalPoints,
		DirectPoints:         acc.DirectPoints,
	})
}

func (h *Handler) ResetPointsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.ResetPoints(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResetPointsResponse{Accounts: n})
}
