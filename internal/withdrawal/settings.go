package withdrawal

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

const settingsID = 1

// withdrawalsEnabled defaults to enabled when no settings row exists yet.
func withdrawalsEnabled(tx *gorm.DB) (bool, error) {
	var st models.SystemSettings
	err := tx.Where(models.SystemSettings{ID: settingsID}).
		Attrs(models.SystemSettings{WithdrawalEnabled: true}).
		FirstOrCreate(&st).Error
	if err != nil {
		return false, err
	}
	return st.WithdrawalEnabled, nil
}

func (s *Service) Enabled(ctx context.Context) (bool, error) {
	return withdrawalsEnabled(s.db.WithContext(ctx))
}

func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	st := models.SystemSettings{ID: settingsID, WithdrawalEnabled: enabled}
	if err := s.db.WithContext(ctx).Save(&st).Error; err != nil {
		return err
	}
	logger.Log.Info("withdrawal status changed", zap.Bool("enabled", enabled))
	return nil
}
