package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

// Bucket selects the secondary balance a credit also lands in.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketBonus
	BucketTrainingBonus
	BucketProductProfit
)

type Posting struct {
	Amount      decimal.Decimal
	Bucket      Bucket
	Description string
	Reference   string
}

// CheckScale rejects amounts that a money column would round.
func CheckScale(amount decimal.Decimal, places int32) error {
	if !amount.Equal(amount.Truncate(places)) {
		return apperr.Invalid("amount %s has more than %d decimal places", amount, places)
	}
	return nil
}

// Credit adds p.Amount to the spendable balance (and bucket) of a locked
// account and appends a credit entry.
func Credit(tx *gorm.DB, acc *models.Account, p Posting) error {
	if !p.Amount.IsPositive() {
		return apperr.Invalid("credit amount must be positive, got %s", p.Amount)
	}
	if err := CheckScale(p.Amount, models.MoneyScale); err != nil {
		return err
	}

	acc.Balance = acc.Balance.Add(p.Amount)
	updates := map[string]any{"balance": acc.Balance}
	switch p.Bucket {
	case BucketBonus:
		acc.BonusBalance = acc.BonusBalance.Add(p.Amount)
		updates["bonus_balance"] = acc.BonusBalance
	case BucketTrainingBonus:
		acc.TrainingBonusBalance = acc.TrainingBonusBalance.Add(p.Amount)
		updates["training_bonus_balance"] = acc.TrainingBonusBalance
	case BucketProductProfit:
		acc.ProductProfitBalance = acc.ProductProfitBalance.Add(p.Amount)
		updates["product_profit_balance"] = acc.ProductProfitBalance
	}

	if err := tx.Model(acc).Updates(updates).Error; err != nil {
		return fmt.Errorf("credit account %s: %w", acc.Username, err)
	}
	return appendHistory(tx, acc.ID, models.EntryCredit, p.Amount, p.Description, p.Reference)
}

// Debit removes amount from the spendable balance of a locked account. The
// balance is never taken below zero.
func Debit(tx *gorm.DB, acc *models.Account, amount decimal.Decimal, description, reference string) error {
	if !amount.IsPositive() {
		return apperr.Invalid("debit amount must be positive, got %s", amount)
	}
	if err := CheckScale(amount, models.MoneyScale); err != nil {
		return err
	}
	if acc.Balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, requested %s", apperr.ErrInsufficientBalance, acc.Balance, amount)
	}

	acc.Balance = acc.Balance.Sub(amount)
	if err := tx.Model(acc).Update("balance", acc.Balance).Error; err != nil {
		return fmt.Errorf("debit account %s: %w", acc.Username, err)
	}
	return appendHistory(tx, acc.ID, models.EntryDebit, amount, description, reference)
}

func appendHistory(tx *gorm.DB, accountID uint, kind string, amount decimal.Decimal, description, reference string) error {
	entry := models.HistoryEntry{
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Reference:   reference,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
