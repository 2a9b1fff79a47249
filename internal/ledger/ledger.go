// Package ledger owns account balances and their append-only history.
//
// Functions taking a *gorm.DB expect to run inside the caller's transaction;
// Service methods open their own.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	db       *gorm.DB
	poolSize int
}

func NewService(db *gorm.DB, poolSize int) *Service {
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Service{db: db, poolSize: poolSize}
}

type NewAccount struct {
	Username        string
	FullName        string
	PlanName        string
	DailyTaskLimit  int
	Parent          string
	SelfPercent     decimal.Decimal
	DirectPercent   decimal.Decimal
	IndirectPercent decimal.Decimal
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// OpenAccount enrolls an account, snapshotting its referral split.
func (s *Service) OpenAccount(ctx context.Context, in NewAccount) (*models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, apperr.Invalid("username is required")
	}
	for _, p := range []decimal.Decimal{in.SelfPercent, in.DirectPercent, in.IndirectPercent} {
		if !validPercent(p) {
			return nil, apperr.Invalid("split percentage %s out of range", p)
		}
	}

	acc := models.Account{
		Username:        in.Username,
		FullName:        in.FullName,
		PlanName:        in.PlanName,
		DailyTaskLimit:  in.DailyTaskLimit,
		SelfPercent:     in.SelfPercent,
		DirectPercent:   in.DirectPercent,
		IndirectPercent: in.IndirectPercent,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Parent != "" {
			parent, err := FindAccount(tx, in.Parent)
			if err != nil {
				return fmt.Errorf("parent %q: %w", in.Parent, err)
			}
			acc.ParentID = &parent.ID
		}
		return tx.Create(&acc).Error
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Service) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	return FindAccount(s.db.WithContext(ctx), username)
}

func (s *Service) AccountHistory(ctx context.Context, username string) ([]models.HistoryEntry, error) {
	acc, err := s.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	var entries []models.HistoryEntry
	if err := s.db.WithContext(ctx).Where("account_id = ?", acc.ID).Order("id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func FindAccount(tx *gorm.DB, username string) (*models.Account, error) {
	var acc models.Account
	if err := tx.Where("username = ?", username).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrAccountNotFound, username)
		}
		return nil, err
	}
	return &acc, nil
}

// LockAccount loads an account with a row lock held until the transaction ends.
func LockAccount(tx *gorm.DB, username string) (*models.Account, error) {
	return FindAccount(tx.Clauses(clause.Locking{Strength: "UPDATE"}), username)
}

func LockAccountByID(tx *gorm.DB, id uint) (*models.Account, error) {
	var acc models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", apperr.ErrAccountNotFound, id)
		}
		return nil, err
	}
	return &acc, nil
}
