// Package withdrawal settles debit-side requests.
//
// In DebitAtApproval mode the balance is only checked at submission and is
// re-checked and debited when an operator approves. In DebitAtSubmission
// mode the balance is debited when the request is created and refunded if
// the request is rejected. The mode in force at submission is stored on the
// request, so switching modes never double-debits or skips a debit.
package withdrawal

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
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

type DebitMode string

const (
	DebitAtApproval   DebitMode = "approval"
	DebitAtSubmission DebitMode = "submission"
)

func ParseDebitMode(s string) (DebitMode, error) {
	switch DebitMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DebitAtApproval:
		return DebitAtApproval, nil
	case DebitAtSubmission:
		return DebitAtSubmission, nil
	}
	return "", fmt.Errorf("%w: withdrawal debit mode %q", apperr.ErrInvalidConfiguration, s)
}

type Service struct {
	db        *gorm.DB
	mode      DebitMode
	minAmount decimal.Decimal
	now       func() time.Time
}

func NewService(db *gorm.DB, mode DebitMode, minAmount decimal.Decimal) *Service {
	return &Service{db: db, mode: mode, minAmount: minAmount, now: time.Now}
}

func (s *Service) Mode() DebitMode { return s.mode }

type SubmitInput struct {
	Username      string
	Amount        decimal.Decimal
	AccountNumber string
	AccountTitle  string
	Gateway       string
}

func (s *Service) validate(in SubmitInput) error {
	switch {
	case strings.TrimSpace(in.Username) == "":
		return apperr.Invalid("username is required")
	case !in.Amount.IsPositive():
		return apperr.Invalid("amount must be positive")
	case in.Amount.LessThan(s.minAmount):
		return apperr.Invalid("amount %s is below the minimum of %s", in.Amount, s.minAmount)
	case strings.TrimSpace(in.AccountNumber) == "":
		return apperr.Invalid("destination account number is required")
	case strings.TrimSpace(in.AccountTitle) == "":
		return apperr.Invalid("destination account title is required")
	case strings.TrimSpace(in.Gateway) == "":
		return apperr.Invalid("gateway is required")
	}
	return ledger.CheckScale(in.Amount, models.MoneyScale)
}

// Submit creates a pending withdrawal. The amount may not exceed the current
// balance; in DebitAtSubmission mode it is debited here.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if err := s.validate(in); err != nil {
		return "", err
	}

	req := models.WithdrawalRequest{
		ID:                  uuid.NewString(),
		Amount:              in.Amount,
		AccountNumber:       in.AccountNumber,
		AccountTitle:        in.AccountTitle,
		Gateway:             in.Gateway,
		DebitedAtSubmission: s.mode == DebitAtSubmission,
		Status:              models.StatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled, err := withdrawalsEnabled(tx)
		if err != nil {
			return err
		}
		if !enabled {
			return apperr.ErrWithdrawalsDisabled
		}

		acc, err := ledger.LockAccount(tx, strings.TrimSpace(in.Username))
		if err != nil {
			return err
		}
		req.AccountID = acc.ID
		req.Username = acc.Username

		if req.DebitedAtSubmission {
			if err := ledger.Debit(tx, acc, req.Amount, "Withdrawal request "+req.ID, req.ID); err != nil {
				return err
			}
		} else if acc.Balance.LessThan(req.Amount) {
			return fmt.Errorf("%w: balance %s, requested %s", apperr.ErrInsufficientBalance, acc.Balance, req.Amount)
		}
		return tx.Create(&req).Error
	})
	if err != nil {
		return "", err
	}

	metrics.WithdrawalsTotal.WithLabelValues("submitted").Inc()
	logger.Log.Info("withdrawal requested",
		zap.String("request_id", req.ID),
		zap.String("account", req.Username),
		zap.String("amount", req.Amount.String()),
		zap.Bool("debited", req.DebitedAtSubmission))
	return req.ID, nil
}

func (s *Service) ListPending(ctx context.Context) ([]models.WithdrawalRequest, error) {
	var reqs []models.WithdrawalRequest
	err := s.db.WithContext(ctx).Order("created_at").Find(&reqs).Error
	return reqs, err
}

func (s *Service) ListApproved(ctx context.Context) ([]models.WithdrawalApproval, error) {
	var recs []models.WithdrawalApproval
	err := s.db.WithContext(ctx).Order("approved_at desc").Find(&recs).Error
	return recs, err
}

func (s *Service) ListRejected(ctx context.Context) ([]models.WithdrawalRejection, error) {
	var recs []models.WithdrawalRejection
	err := s.db.WithContext(ctx).Order("rejected_at desc").Find(&recs).Error
	return recs, err
}

func lockPending(tx *gorm.DB, id string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var n int64
	if err := tx.Model(&models.WithdrawalApproval{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		if err := tx.Model(&models.WithdrawalRejection{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, err
		}
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrAlreadyProcessed, id)
	}
	return nil, fmt.Errorf("%w: %s", apperr.ErrRequestNotFound, id)
}

func removePending(tx *gorm.DB, id string) error {
	res := tx.Where("id = ?", id).Delete(&models.WithdrawalRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: pending withdrawal %s removed %d rows", apperr.ErrPartialSettlement, id, res.RowsAffected)
	}
	return nil
}

// Approve completes a withdrawal. When the debit was deferred, the balance
// is re-checked under lock and debited now; if it no longer covers the
// amount the request stays pending.
func (s *Service) Approve(ctx context.Context, id string) error {
	var req *models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, id)
		if err != nil {
			return err
		}

		if !req.DebitedAtSubmission {
			acc, err := ledger.LockAccountByID(tx, req.AccountID)
			if err != nil {
				return err
			}
			if err := ledger.Debit(tx, acc, req.Amount, "Withdrawal to "+req.Gateway+" "+req.AccountNumber, req.ID); err != nil {
				return err
			}
		}

		rec := models.WithdrawalApproval{
			ID:                  req.ID,
			AccountID:           req.AccountID,
			Username:            req.Username,
			Amount:              req.Amount,
			AccountNumber:       req.AccountNumber,
			AccountTitle:        req.AccountTitle,
			Gateway:             req.Gateway,
			DebitedAtSubmission: req.DebitedAtSubmission,
			Status:              models.StatusApproved,
			SubmittedAt:         req.CreatedAt,
			ApprovedAt:          s.now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("archive withdrawal approval: %w", err)
		}
		return removePending(tx, req.ID)
	})
	if err != nil {
		s.logFailure("approve", id, err)
		return err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(models.StatusApproved)).Inc()
	logger.Log.Info("withdrawal approved",
		zap.String("request_id", req.ID),
		zap.String("account", req.Username),
		zap.String("amount", req.Amount.String()))
	return nil
}

// Reject closes a withdrawal with remarks. Funds debited at submission are
// credited back.
func (s *Service) Reject(ctx context.Context, id, remarks string) error {
	var req *models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, id)
		if err != nil {
			return err
		}

		if req.DebitedAtSubmission {
			acc, err := ledger.LockAccountByID(tx, req.AccountID)
			if err != nil {
				return err
			}
			if err := ledger.Credit(tx, acc, ledger.Posting{
				Amount:      req.Amount,
				Description: "Withdrawal refund " + req.ID,
				Reference:   req.ID,
			}); err != nil {
				return err
			}
		}

		rec := models.WithdrawalRejection{
			ID:                  req.ID,
			AccountID:           req.AccountID,
			Username:            req.Username,
			Amount:              req.Amount,
			AccountNumber:       req.AccountNumber,
			AccountTitle:        req.AccountTitle,
			Gateway:             req.Gateway,
			DebitedAtSubmission: req.DebitedAtSubmission,
			Refunded:            req.DebitedAtSubmission,
			Remarks:             strings.TrimSpace(remarks),
			Status:              models.StatusRejected,
			SubmittedAt:         req.CreatedAt,
			RejectedAt:          s.now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("archive withdrawal rejection: %w", err)
		}
		return removePending(tx, req.ID)
	})
	if err != nil {
		s.logFailure("reject", id, err)
		return err
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(models.StatusRejected)).Inc()
	logger.Log.Info("withdrawal rejected",
		zap.String("request_id", req.ID),
		zap.String("account", req.Username),
		zap.Bool("refunded", req.DebitedAtSubmission))
	return nil
}

func (s *Service) logFailure(op, id string, err error) {
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAlreadyProcessed) ||
		errors.Is(err, apperr.ErrInsufficientBalance) {
		logger.Log.Warn("withdrawal "+op+" refused", zap.String("request_id", id), zap.Error(err))
		return
	}
	logger.Log.Error("withdrawal "+op+" failed", zap.String("request_id", id), zap.Error(err))
}
