package seed

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

type Options struct {
	OperatorUsername string
	OperatorPassword string
	PlatformName     string
}

// Run creates the platform account, the first operator and the system
// settings row if they are missing, and returns the platform handle.
func Run(ctx context.Context, db *gorm.DB, opts Options) (*ledger.Platform, error) {
	platform, err := ledger.EnsurePlatform(ctx, db, opts.PlatformName)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := models.SystemSettings{ID: 1}
		if err := tx.Where(st).Attrs(models.SystemSettings{WithdrawalEnabled: true}).FirstOrCreate(&st).Error; err != nil {
			return err
		}

		var op models.Operator
		err := tx.Where("username = ?", opts.OperatorUsername).First(&op).Error
		if err == nil {
			logger.Log.Info("seed already applied, skipping operator")
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if opts.OperatorPassword == "" {
			logger.Log.Warn("no operator password configured, operator not seeded")
			return nil
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(opts.OperatorPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		op = models.Operator{Name: "Administrator", Username: opts.OperatorUsername, Password: string(hash)}
		if err := tx.Create(&op).Error; err != nil {
			return err
		}
		logger.Log.Info("seeded operator", zap.String("username", op.Username))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return platform, nil
}
