package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GiorgiUbiria/rewards_settlement/internal/httputil"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/middleware"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/settlement"
)

type SubmitSettlementRequest struct {
	Username       string          `json:"username"`
	TransactionID  string          `json:"transaction_id"`
	Amount         decimal.Decimal `json:"amount"`
	Gateway        string          `json:"gateway"`
	ProofRef       string          `json:"proof_ref"`
	PlanName       string          `json:"plan_name"`
	DailyTaskLimit int             `json:"daily_task_limit"`
}

type SubmittedResponse struct {
	ID string `json:"id"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) SubmitSettlementHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitSettlementRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := h.Settlements.Submit(r.Context(), settlement.SubmitInput{
		Kind:           models.RequestKind(chi.URLParam(r, "kind")),
		Username:       req.Username,
		TransactionID:  req.TransactionID,
		Amount:         req.Amount,
		Gateway:        req.Gateway,
		ProofRef:       req.ProofRef,
		PlanName:       req.PlanName,
		DailyTaskLimit: req.DailyTaskLimit,
	})
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SubmittedResponse{ID: id})
}

func (h *Handler) ListSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.RequestKind(chi.URLParam(r, "kind"))

	var (
		out any
		err error
	)
	switch chi.URLParam(r, "status") {
	case string(models.StatusPending):
		out, err = h.Settlements.ListPending(r.Context(), kind)
	case string(models.StatusApproved):
		out, err = h.Settlements.ListApproved(r.Context(), kind)
	case string(models.StatusRejected):
		out, err = h.Settlements.ListRejected(r.Context(), kind)
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

func (h *Handler) ApproveSettlementHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Settlements.Approve(r.Context(), id)
	if err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	logger.Log.Info("approval by operator", zap.String("operator", middleware.Operator(r.Context())), zap.String("request_id", id))
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) RejectSettlementHandler(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Settlements.Reject(r.Context(), id, req.Reason); err != nil {
		httputil.WriteFailure(w, err)
		return
	}
	logger.Log.Info("rejection by operator", zap.String("operator", middleware.Operator(r.Context())), zap.String("request_id", id))
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "request rejected"})
}
