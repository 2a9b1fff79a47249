package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

// Platform is a handle to the operator's profit account. It is created once
// at startup and passed to every component that settles money.
type Platform struct {
	db   *gorm.DB
	id   uint
	name string
}

// EnsurePlatform returns the named platform account, creating it if needed.
func EnsurePlatform(ctx context.Context, db *gorm.DB, name string) (*Platform, error) {
	var pa models.PlatformAccount
	err := db.WithContext(ctx).Where(models.PlatformAccount{Name: name}).FirstOrCreate(&pa).Error
	if err != nil {
		return nil, fmt.Errorf("ensure platform account %q: %w", name, err)
	}
	return &Platform{db: db, id: pa.ID, name: name}, nil
}

func (p *Platform) ID() uint     { return p.id }
func (p *Platform) Name() string { return p.name }

func (p *Platform) lock(tx *gorm.DB) (*models.PlatformAccount, error) {
	var pa models.PlatformAccount
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pa, p.id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("platform account %q: %w", p.name, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &pa, nil
}

// Deposit books amount as profit inside the caller's transaction.
func (p *Platform) Deposit(tx *gorm.DB, amount decimal.Decimal, description, reference string) error {
	if !amount.IsPositive() {
		return apperr.Invalid("platform deposit must be positive, got %s", amount)
	}
	pa, err := p.lock(tx)
	if err != nil {
		return err
	}
	pa.TotalProfit = pa.TotalProfit.Add(amount)
	pa.MonthlyProfit = pa.MonthlyProfit.Add(amount)
	if err := tx.Model(pa).Updates(map[string]any{
		"total_profit":   pa.TotalProfit,
		"monthly_profit": pa.MonthlyProfit,
	}).Error; err != nil {
		return fmt.Errorf("platform deposit: %w", err)
	}
	return p.record(tx, models.PlatformDeposit, amount, description, reference)
}

// Withdraw takes amount out of the total profit.
func (p *Platform) Withdraw(ctx context.Context, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return apperr.Invalid("withdrawal amount must be positive")
	}
	if err := CheckScale(amount, models.MoneyScale); err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pa, err := p.lock(tx)
		if err != nil {
			return err
		}
		if pa.TotalProfit.LessThan(amount) {
			return fmt.Errorf("%w: total profit %s, requested %s", apperr.ErrInsufficientBalance, pa.TotalProfit, amount)
		}
		pa.TotalProfit = pa.TotalProfit.Sub(amount)
		if err := tx.Model(pa).Update("total_profit", pa.TotalProfit).Error; err != nil {
			return err
		}
		return p.record(tx, models.PlatformWithdrawal, amount, description, "")
	})
}

// ResetMonthly starts a new monthly profit window.
func (p *Platform) ResetMonthly(ctx context.Context) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pa, err := p.lock(tx)
		if err != nil {
			return err
		}
		return tx.Model(pa).Update("monthly_profit", decimal.Zero).Error
	})
}

func (p *Platform) Summary(ctx context.Context) (*models.PlatformAccount, error) {
	var pa models.PlatformAccount
	if err := p.db.WithContext(ctx).First(&pa, p.id).Error; err != nil {
		return nil, err
	}
	return &pa, nil
}

func (p *Platform) History(ctx context.Context) ([]models.PlatformTransaction, error) {
	var txs []models.PlatformTransaction
	err := p.db.WithContext(ctx).Where("platform_account_id = ?", p.id).Order("id").Find(&txs).Error
	return txs, err
}

func (p *Platform) record(tx *gorm.DB, kind string, amount decimal.Decimal, description, reference string) error {
	entry := models.PlatformTransaction{
		PlatformAccountID: p.id,
		Type:              kind,
		Amount:            amount,
		Description:       description,
		Reference:         reference,
	}
	return tx.Create(&entry).Error
}
