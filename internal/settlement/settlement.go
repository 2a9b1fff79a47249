// Package settlement approves and rejects pending payment proofs.
//
// A request lives in settlement_requests while pending. Approval credits the
// submitter, the referral chain and the platform, journals each credit,
// writes an approval snapshot and deletes the pending row, all in one
// database transaction. Rejection moves the request to settlement_rejections
// without touching balances.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/commission"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

type Config struct {
	TrainingBonusPercent decimal.Decimal
	TrainingBonusPoints  int
}

type Engine struct {
	db       *gorm.DB
	platform *ledger.Platform
	calc     commission.Calculator
	cfg      Config
	now      func() time.Time
}

func NewEngine(db *gorm.DB, platform *ledger.Platform, calc commission.Calculator, cfg Config) *Engine {
	return &Engine{
		db:       db,
		platform: platform,
		calc:     calc,
		cfg:      cfg,
		now:      time.Now,
	}
}

type SubmitInput struct {
	Kind           models.RequestKind
	Username       string
	TransactionID  string
	Amount         decimal.Decimal
	Gateway        string
	ProofRef       string
	PlanName       string
	DailyTaskLimit int
}

func (in SubmitInput) validate(places int32) error {
	switch {
	case !in.Kind.Valid():
		return apperr.Invalid("unknown request kind %q", in.Kind)
	case strings.TrimSpace(in.Username) == "":
		return apperr.Invalid("username is required")
	case strings.TrimSpace(in.TransactionID) == "":
		return apperr.Invalid("transaction id is required")
	case !in.Amount.IsPositive():
		return apperr.Invalid("amount must be positive")
	case strings.TrimSpace(in.Gateway) == "":
		return apperr.Invalid("gateway is required")
	case strings.TrimSpace(in.ProofRef) == "":
		return apperr.Invalid("proof of payment is required")
	case in.DailyTaskLimit < 0:
		return apperr.Invalid("daily task limit cannot be negative")
	}
	return ledger.CheckScale(in.Amount, places)
}

// Submit records a pending request and returns its id. A transaction id may
// be submitted once per kind.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if err := in.validate(e.calc.Places); err != nil {
		return "", err
	}

	req := models.SettlementRequest{
		ID:             uuid.NewString(),
		Kind:           in.Kind,
		TransactionID:  strings.TrimSpace(in.TransactionID),
		Username:       strings.TrimSpace(in.Username),
		Amount:         in.Amount,
		Gateway:        in.Gateway,
		ProofRef:       in.ProofRef,
		PlanName:       in.PlanName,
		DailyTaskLimit: in.DailyTaskLimit,
		Status:         models.StatusPending,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ledger.FindAccount(tx, req.Username); err != nil {
			return err
		}
		seen, err := transactionSeen(tx, req.Kind, req.TransactionID, true)
		if err != nil {
			return err
		}
		if seen {
			return fmt.Errorf("%w: %s", apperr.ErrDuplicateTransaction, req.TransactionID)
		}
		return tx.Create(&req).Error
	})
	if err != nil {
		return "", err
	}

	logger.Log.Info("settlement request submitted",
		zap.String("request_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("transaction_id", req.TransactionID),
		zap.String("account", req.Username))
	return req.ID, nil
}

func (e *Engine) ListPending(ctx context.Context, kind models.RequestKind) ([]models.SettlementRequest, error) {
	if !kind.Valid() {
		return nil, apperr.Invalid("unknown request kind %q", kind)
	}
	var reqs []models.SettlementRequest
	err := e.db.WithContext(ctx).Where("kind = ?", kind).Order("created_at").Find(&reqs).Error
	return reqs, err
}

func (e *Engine) ListApproved(ctx context.Context, kind models.RequestKind) ([]models.SettlementApproval, error) {
	if !kind.Valid() {
		return nil, apperr.Invalid("unknown request kind %q", kind)
	}
	var recs []models.SettlementApproval
	err := e.db.WithContext(ctx).Where("kind = ?", kind).Order("approved_at desc").Find(&recs).Error
	return recs, err
}

func (e *Engine) ListRejected(ctx context.Context, kind models.RequestKind) ([]models.SettlementRejection, error) {
	if !kind.Valid() {
		return nil, apperr.Invalid("unknown request kind %q", kind)
	}
	var recs []models.SettlementRejection
	err := e.db.WithContext(ctx).Where("kind = ?", kind).Order("rejected_at desc").Find(&recs).Error
	return recs, err
}

// lockPending loads the pending request with a row lock. A request that has
// already left the pending set yields ErrAlreadyProcessed.
func lockPending(tx *gorm.DB, id string) (*models.SettlementRequest, error) {
	var req models.SettlementRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var n int64
	if err := tx.Model(&models.SettlementApproval{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		if err := tx.Model(&models.SettlementRejection{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, err
		}
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrAlreadyProcessed, id)
	}
	return nil, fmt.Errorf("%w: %s", apperr.ErrRequestNotFound, id)
}

// transactionSeen reports whether kind/txnID is already archived, and, with
// includePending, whether it is waiting in the pending set.
func transactionSeen(tx *gorm.DB, kind models.RequestKind, txnID string, includePending bool) (bool, error) {
	tables := []any{&models.SettlementApproval{}, &models.SettlementRejection{}}
	if includePending {
		tables = append(tables, &models.SettlementRequest{})
	}
	for _, m := range tables {
		var n int64
		if err := tx.Model(m).Where("kind = ? AND transaction_id = ?", kind, txnID).Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Reject archives a pending request with the operator's reason. Balances are
// not touched.
func (e *Engine) Reject(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Invalid("rejection reason is required")
	}

	var req *models.SettlementRequest
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, id)
		if err != nil {
			return err
		}
		if err := e.checkUnsettled(tx, req); err != nil {
			return err
		}

		rec := models.SettlementRejection{
			ID:            req.ID,
			Kind:          req.Kind,
			TransactionID: req.TransactionID,
			Username:      req.Username,
			Amount:        req.Amount,
			Gateway:       req.Gateway,
			ProofRef:      req.ProofRef,
			Reason:        reason,
			Status:        models.StatusRejected,
			SubmittedAt:   req.CreatedAt,
			RejectedAt:    e.now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("archive rejection: %w", err)
		}
		return removePending(tx, req.ID)
	})
	if err != nil {
		e.logFailure("reject", id, err)
		return err
	}

	metrics.SettlementsTotal.WithLabelValues(string(req.Kind), string(models.StatusRejected)).Inc()
	logger.Log.Info("settlement request rejected",
		zap.String("request_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("transaction_id", req.TransactionID),
		zap.String("reason", reason))
	return nil
}

func removePending(tx *gorm.DB, id string) error {
	res := tx.Where("id = ?", id).Delete(&models.SettlementRequest{})
	if res.Error != nil {
		return fmt.Errorf("remove pending request: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: pending request %s removed %d rows", apperr.ErrPartialSettlement, id, res.RowsAffected)
	}
	return nil
}

func (e *Engine) logFailure(op, id string, err error) {
	switch {
	case errors.Is(err, apperr.ErrPartialSettlement):
		metrics.PartialSettlements.Inc()
		logger.Log.Error("partial settlement detected",
			zap.String("op", op),
			zap.String("request_id", id),
			zap.Error(err))
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrAlreadyProcessed),
		errors.Is(err, apperr.ErrValidation):
		logger.Log.Warn("settlement "+op+" refused", zap.String("request_id", id), zap.Error(err))
	default:
		logger.Log.Error("settlement "+op+" failed", zap.String("request_id", id), zap.Error(err))
	}
}
