package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

// AccrueTaskCommission defers a task reward: the amount is held in
// PendingCommission until transferred, and a pending task transaction is
// recorded against it. Each accrual counts as one completed task against the
// account's daily limit.
func (s *Service) AccrueTaskCommission(ctx context.Context, username, taskRef string, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return apperr.Invalid("commission amount must be positive")
	}
	if err := CheckScale(amount, models.MoneyScale); err != nil {
		return err
	}
	if strings.TrimSpace(taskRef) == "" {
		return apperr.Invalid("task reference is required")
	}
	if description == "" {
		description = "Task commission " + taskRef
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := LockAccount(tx, username)
		if err != nil {
			return err
		}
		if acc.DailyTaskLimit > 0 && acc.TasksCompletedToday >= acc.DailyTaskLimit {
			return fmt.Errorf("%w: %s completed %d of %d", apperr.ErrDailyLimitReached,
				acc.Username, acc.TasksCompletedToday, acc.DailyTaskLimit)
		}
		acc.PendingCommission = acc.PendingCommission.Add(amount)
		acc.TasksCompletedToday++
		if err := tx.Model(acc).Updates(map[string]any{
			"pending_commission":    acc.PendingCommission,
			"tasks_completed_today": acc.TasksCompletedToday,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.TaskTransaction{
			Username:        acc.Username,
			TaskRef:         taskRef,
			Amount:          amount,
			Status:          models.StatusPending,
			Description:     description,
			TransactionType: models.EntryCredit,
		}).Error
	})
}

// TransferPendingCommission moves an account's deferred commission into its
// spendable balance and returns the amount moved. Zero deferred commission
// is a no-op.
func (s *Service) TransferPendingCommission(ctx context.Context, username string) (decimal.Decimal, error) {
	var moved decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := LockAccount(tx, username)
		if err != nil {
			return err
		}
		moved, err = transferLocked(tx, acc)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if moved.IsPositive() {
		metrics.CommissionTransfers.Inc()
		logger.Log.Info("pending commission transferred",
			zap.String("account", username),
			zap.String("amount", moved.String()))
	}
	return moved, nil
}

func transferLocked(tx *gorm.DB, acc *models.Account) (decimal.Decimal, error) {
	pending := acc.PendingCommission
	if !pending.IsPositive() {
		return decimal.Zero, nil
	}

	acc.Balance = acc.Balance.Add(pending)
	acc.PendingCommission = decimal.Zero
	if err := tx.Model(acc).Updates(map[string]any{
		"balance":            acc.Balance,
		"pending_commission": acc.PendingCommission,
	}).Error; err != nil {
		return decimal.Zero, fmt.Errorf("transfer commission for %s: %w", acc.Username, err)
	}
	if err := appendHistory(tx, acc.ID, models.EntryCredit, pending, "Pending commission transfer", ""); err != nil {
		return decimal.Zero, err
	}

	err := tx.Model(&models.TaskTransaction{}).
		Where("username = ? AND status = ?", acc.Username, models.StatusPending).
		Update("status", models.StatusApproved).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("approve task transactions for %s: %w", acc.Username, err)
	}
	return pending, nil
}

// TransferAllPendingCommissions transfers every account holding deferred
// commission, one transaction per account, and returns how many moved.
func (s *Service) TransferAllPendingCommissions(ctx context.Context) (int, error) {
	var usernames []string
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("pending_commission > ?", 0).
		Order("id").
		Pluck("username", &usernames).Error
	if err != nil {
		return 0, err
	}
	if len(usernames) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return 0, fmt.Errorf("commission transfer pool: %w", err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		count atomic.Int64
	)
	for _, username := range usernames {
		username := username
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			moved, err := s.TransferPendingCommission(ctx, username)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", username, err))
				mu.Unlock()
				return
			}
			if moved.IsPositive() {
				count.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", username, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	n := int(count.Load())
	if len(errs) > 0 {
		logger.Log.Error("commission transfer finished with errors",
			zap.Int("transferred", n),
			zap.Int("failed", len(errs)))
		return n, errors.Join(errs...)
	}
	logger.Log.Info("all pending commissions transferred", zap.Int("accounts", n))
	return n, nil
}
