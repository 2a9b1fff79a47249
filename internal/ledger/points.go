package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

// ProductProfit is a product sale credited to an account. Points go to the
// account's total and direct points and to its referrer's total points;
// ReferralPoints go to the referrer's indirect points.
type ProductProfit struct {
	Amount         decimal.Decimal
	Points         int
	ReferralPoints int
	Reference      string
}

// CreditProductProfit credits a product sale and its points. The account is
// locked before its referrer, the same order the referral resolver uses.
func (s *Service) CreditProductProfit(ctx context.Context, username string, in ProductProfit) (*models.Account, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Invalid("product profit must be positive")
	}
	if err := CheckScale(in.Amount, models.MoneyScale); err != nil {
		return nil, err
	}
	if in.Points < 0 || in.ReferralPoints < 0 {
		return nil, apperr.Invalid("points cannot be negative")
	}

	var acc *models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		acc, err = LockAccount(tx, username)
		if err != nil {
			return err
		}
		if err := Credit(tx, acc, Posting{
			Amount:      in.Amount,
			Bucket:      BucketProductProfit,
			Description: "Product profit",
			Reference:   in.Reference,
		}); err != nil {
			return err
		}

		if in.Points > 0 {
			acc.TotalPoints += in.Points
			acc.DirectPoints += in.Points
			if err := tx.Model(acc).Updates(map[string]any{
				"total_points":  acc.TotalPoints,
				"direct_points": acc.DirectPoints,
			}).Error; err != nil {
				return fmt.Errorf("update points of %s: %w", acc.Username, err)
			}
		}

		if acc.ParentID == nil || (in.Points == 0 && in.ReferralPoints == 0) {
			return nil
		}
		parent, err := LockAccountByID(tx, *acc.ParentID)
		if errors.Is(err, apperr.ErrAccountNotFound) {
			logger.Log.Warn("referrer missing, referral points skipped",
				zap.String("account", acc.Username),
				zap.Uint("parent_id", *acc.ParentID))
			return nil
		}
		if err != nil {
			return err
		}
		parent.TotalPoints += in.Points
		parent.IndirectPoints += in.ReferralPoints
		return tx.Model(parent).Updates(map[string]any{
			"total_points":    parent.TotalPoints,
			"indirect_points": parent.IndirectPoints,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("product profit credited",
		zap.String("account", acc.Username),
		zap.String("amount", in.Amount.String()),
		zap.Int("points", in.Points),
		zap.Int("referral_points", in.ReferralPoints))
	return acc, nil
}

// ResetPoints starts a new points period for every account: points and the
// training bonus and product profit trackers go to zero. Spendable balances
// are untouched.
func (s *Service) ResetPoints(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("1 = 1").Updates(map[string]any{
		"total_points":           0,
		"direct_points":          0,
		"indirect_points":        0,
		"training_bonus_balance": decimal.Zero,
		"product_profit_balance": decimal.Zero,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("reset points: %w", res.Error)
	}
	logger.Log.Info("points reset", zap.Int64("accounts", res.RowsAffected))
	return res.RowsAffected, nil
}

// ResetDailyTasks clears every account's completed-task counter.
func (s *Service) ResetDailyTasks(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("tasks_completed_today > ?", 0).
		Update("tasks_completed_today", 0)
	if res.Error != nil {
		return 0, fmt.Errorf("reset daily tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
