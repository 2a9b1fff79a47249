package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/commission"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/referral"
)

type Result struct {
	RequestID        string             `json:"request_id"`
	Kind             models.RequestKind `json:"kind"`
	TransactionID    string             `json:"transaction_id"`
	Account          string             `json:"account"`
	DirectReferrer   string             `json:"direct_referrer,omitempty"`
	IndirectReferrer string             `json:"indirect_referrer,omitempty"`
	Shares           commission.Shares  `json:"shares"`
	AddedPoints      int                `json:"added_points"`
}

// Approve settles a pending request exactly once. Either every credit, the
// approval snapshot and the removal from the pending set commit together, or
// nothing does. A second call for the same id returns ErrAlreadyProcessed.
func (e *Engine) Approve(ctx context.Context, id string) (*Result, error) {
	var res *Result
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockPending(tx, id)
		if err != nil {
			return err
		}
		if err := e.checkUnsettled(tx, req); err != nil {
			return err
		}

		// A missing submitter aborts and leaves the request pending.
		submitter, err := ledger.LockAccount(tx, req.Username)
		if err != nil {
			return err
		}

		var chain referral.Chain
		selfPercent := e.cfg.TrainingBonusPercent
		if req.Kind == models.KindReferralPayment {
			selfPercent = submitter.SelfPercent
			if chain, err = referral.ResolveForUpdate(tx, submitter); err != nil {
				return err
			}
		}

		shares, err := e.calc.Compute(commission.Request{Amount: req.Amount, SelfPercent: selfPercent}, chain)
		if err != nil {
			return err
		}

		res = &Result{
			RequestID:        req.ID,
			Kind:             req.Kind,
			TransactionID:    req.TransactionID,
			Account:          submitter.Username,
			DirectReferrer:   chain.DirectName(),
			IndirectReferrer: chain.IndirectName(),
			Shares:           shares,
		}
		if err := e.applyCredits(tx, req, submitter, chain, shares, res); err != nil {
			return err
		}

		rec := models.SettlementApproval{
			ID:               req.ID,
			Kind:             req.Kind,
			TransactionID:    req.TransactionID,
			Username:         req.Username,
			Amount:           req.Amount,
			Gateway:          req.Gateway,
			ProofRef:         req.ProofRef,
			PlanName:         req.PlanName,
			DailyTaskLimit:   req.DailyTaskLimit,
			SelfShare:        shares.Self,
			DirectShare:      shares.Direct,
			IndirectShare:    shares.Indirect,
			PlatformShare:    shares.Platform,
			DirectReferrer:   res.DirectReferrer,
			IndirectReferrer: res.IndirectReferrer,
			AddedPoints:      res.AddedPoints,
			Status:           models.StatusApproved,
			SubmittedAt:      req.CreatedAt,
			ApprovedAt:       e.now(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("archive approval: %w", err)
		}

		return removePending(tx, req.ID)
	})
	if err != nil {
		e.logFailure("approve", id, err)
		return nil, err
	}

	kind := string(res.Kind)
	metrics.SettlementsTotal.WithLabelValues(kind, string(models.StatusApproved)).Inc()
	for role, amt := range map[string]decimal.Decimal{
		models.RoleSelf:     res.Shares.Self,
		models.RoleDirect:   res.Shares.Direct,
		models.RoleIndirect: res.Shares.Indirect,
		models.RolePlatform: res.Shares.Platform,
	} {
		metrics.SettledAmount.WithLabelValues(kind, role).Add(amt.InexactFloat64())
	}
	logger.Log.Info("settlement request approved",
		zap.String("request_id", res.RequestID),
		zap.String("kind", kind),
		zap.String("transaction_id", res.TransactionID),
		zap.String("account", res.Account),
		zap.String("direct_referrer", res.DirectReferrer),
		zap.String("indirect_referrer", res.IndirectReferrer),
		zap.String("self", res.Shares.Self.String()),
		zap.String("direct", res.Shares.Direct.String()),
		zap.String("indirect", res.Shares.Indirect.String()),
		zap.String("platform", res.Shares.Platform.String()))
	return res, nil
}

func (e *Engine) applyCredits(tx *gorm.DB, req *models.SettlementRequest, submitter *models.Account,
	chain referral.Chain, shares commission.Shares, res *Result) error {

	journal := func(role string, accountID *uint, amount decimal.Decimal) error {
		return tx.Create(&models.SettlementCredit{
			Kind:          req.Kind,
			TransactionID: req.TransactionID,
			Role:          role,
			RequestID:     req.ID,
			AccountID:     accountID,
			Amount:        amount,
		}).Error
	}

	selfBucket := ledger.BucketBonus
	selfDesc := fmt.Sprintf("Referral payment %s", req.TransactionID)
	profile := map[string]any{}
	switch req.Kind {
	case models.KindTrainingBonus:
		selfBucket = ledger.BucketTrainingBonus
		selfDesc = fmt.Sprintf("Training bonus %s", req.TransactionID)
		if e.cfg.TrainingBonusPoints > 0 {
			res.AddedPoints = e.cfg.TrainingBonusPoints
			submitter.TotalPoints += e.cfg.TrainingBonusPoints
			profile["total_points"] = submitter.TotalPoints
		}
	case models.KindReferralPayment:
		if req.DailyTaskLimit > 0 {
			submitter.DailyTaskLimit = req.DailyTaskLimit
			profile["daily_task_limit"] = req.DailyTaskLimit
		}
		if req.PlanName != "" {
			submitter.PlanName = req.PlanName
			profile["plan_name"] = req.PlanName
		}
	}
	if len(profile) > 0 {
		if err := tx.Model(submitter).Updates(profile).Error; err != nil {
			return fmt.Errorf("update %s profile: %w", submitter.Username, err)
		}
	}

	if shares.Self.IsPositive() {
		if err := ledger.Credit(tx, submitter, ledger.Posting{
			Amount:      shares.Self,
			Bucket:      selfBucket,
			Description: selfDesc,
			Reference:   req.TransactionID,
		}); err != nil {
			return err
		}
		if err := journal(models.RoleSelf, &submitter.ID, shares.Self); err != nil {
			return err
		}
	}

	if chain.Direct != nil && shares.Direct.IsPositive() {
		if err := ledger.Credit(tx, chain.Direct, ledger.Posting{
			Amount:      shares.Direct,
			Bucket:      ledger.BucketBonus,
			Description: fmt.Sprintf("Direct bonus from %s", submitter.Username),
			Reference:   req.TransactionID,
		}); err != nil {
			return err
		}
		if err := journal(models.RoleDirect, &chain.Direct.ID, shares.Direct); err != nil {
			return err
		}
	}

	if chain.Indirect != nil && shares.Indirect.IsPositive() {
		if err := ledger.Credit(tx, chain.Indirect, ledger.Posting{
			Amount:      shares.Indirect,
			Bucket:      ledger.BucketBonus,
			Description: fmt.Sprintf("Indirect bonus from %s", submitter.Username),
			Reference:   req.TransactionID,
		}); err != nil {
			return err
		}
		if err := journal(models.RoleIndirect, &chain.Indirect.ID, shares.Indirect); err != nil {
			return err
		}
	}

	if shares.Platform.IsPositive() {
		desc := fmt.Sprintf("%s %s from %s", req.Kind, req.TransactionID, submitter.Username)
		if err := e.platform.Deposit(tx, shares.Platform, desc, req.TransactionID); err != nil {
			return err
		}
		if err := journal(models.RolePlatform, nil, shares.Platform); err != nil {
			return err
		}
	}
	return nil
}

// checkUnsettled refuses to act on a pending request whose transaction has
// already been credited or archived. That state means an earlier attempt
// stopped half way and needs an operator.
func (e *Engine) checkUnsettled(tx *gorm.DB, req *models.SettlementRequest) error {
	var credits []models.SettlementCredit
	err := tx.Where("kind = ? AND transaction_id = ?", req.Kind, req.TransactionID).Find(&credits).Error
	if err != nil {
		return err
	}
	if len(credits) > 0 {
		fields := make([]zap.Field, 0, len(credits)+2)
		fields = append(fields, zap.String("request_id", req.ID), zap.String("transaction_id", req.TransactionID))
		for _, c := range credits {
			fields = append(fields, zap.String("credit_"+c.Role, c.Amount.String()))
		}
		logger.Log.Error("pending request already has settlement credits", fields...)
		return fmt.Errorf("%w: %d credits already journalled for %s %s",
			apperr.ErrPartialSettlement, len(credits), req.Kind, req.TransactionID)
	}

	archived, err := transactionSeen(tx, req.Kind, req.TransactionID, false)
	if err != nil {
		return err
	}
	if archived {
		return fmt.Errorf("%w: %s %s is pending and archived", apperr.ErrPartialSettlement, req.Kind, req.TransactionID)
	}
	return nil
}
