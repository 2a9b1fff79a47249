package routes

import (
	"net/http"

	"github.com/GiorgiUbiria/rewards_settlement/internal/handlers"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	appmw "github.com/GiorgiUbiria/rewards_settlement/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRoutes(h *handlers.Handler, limiter *appmw.RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Works Fine!"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Post("/auth/login", h.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(appmw.Authenticated)

		r.Post("/requests/{kind}", h.SubmitSettlementHandler)
		r.Get("/approvals/{kind}/{status}", h.ListSettlementsHandler)
		r.Post("/approvals/{id}/approve", h.ApproveSettlementHandler)
		r.Post("/approvals/{id}/reject", h.RejectSettlementHandler)

		r.Post("/withdrawals", h.SubmitWithdrawalHandler)
		r.Get("/withdrawals/{status}", h.ListWithdrawalsHandler)
		r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawalHandler)
		r.Post("/withdrawals/{id}/reject", h.RejectWithdrawalHandler)

		r.Get("/settings/withdrawal-status", h.WithdrawalStatusHandler)
		r.Post("/settings/withdrawal-status", h.SetWithdrawalStatusHandler)

		r.Post("/accounts/transfer-all-commissions", h.TransferAllCommissionsHandler)
		r.Post("/accounts/reset-points", h.ResetPointsHandler)
		r.Post("/accounts/{username}/product-profit", h.ProductProfitHandler)
		r.Post("/accounts/{username}/transfer-commission", h.TransferCommissionHandler)
		r.Post("/accounts/{username}/commissions", h.AccrueCommissionHandler)
		r.Put("/accounts/{username}/parent", h.AssignParentHandler)
		r.Get("/accounts/{username}/history", h.AccountHistoryHandler)

		r.Get("/platform", h.PlatformSummaryHandler)
		r.Get("/platform/history", h.PlatformHistoryHandler)
		r.Post("/platform/withdraw-profit", h.WithdrawProfitHandler)

		r.Post("/reconcile", h.ReconcileHandler)
	})

	return r
}
