package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/GiorgiUbiria/rewards_settlement/internal/httputil"
	"github.com/GiorgiUbiria/rewards_settlement/internal/middleware"
)

type WithdrawProfitRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) PlatformSummaryHandler(w http.ResponseWriter, r *http.Request) {
	pa, err := h.Platform.Summary(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pa)
}

func (h *Handler) PlatformHistoryHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Platform.History(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txs)
}

func (h *Handler) WithdrawProfitHandler(w http.ResponseWriter, r *http.Request) {
	var req WithdrawProfitRequest
	if !decode(w, r, &req) {
		return
	}
	desc := "Profit withdrawal by " + middleware.Operator(r.Context())
	if err := h.Platform.Withdraw(r.Context(), req.Amount, desc); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "profit withdrawn"})
}

func (h *Handler) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reconciler.Run(r.Context())
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}
