package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 24, cfg.JWT.TTL)
	assert.Equal(t, 50.0, cfg.Settlement.TrainingBonusPercent)
	assert.EqualValues(t, 2, cfg.Settlement.CurrencyPlaces)
	assert.Equal(t, "approval", cfg.Withdrawal.DebitMode)
	assert.Equal(t, 300, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, "platform", cfg.Seed.PlatformName)
	assert.Equal(t, 8, cfg.Scheduler.TransferPoolSize)
	assert.Equal(t, "0 0 * * *", cfg.Scheduler.DailyTaskResetCron)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
db:
  dsn: "host=db"
jwt:
  secret: "from-file"
settlement:
  training_bonus_percent: 40
  training_bonus_points: 5
withdrawal:
  debit_mode: submission
  min_amount: 2.5
scheduler:
  commission_transfer_cron: "0 3 * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "host=db", cfg.DB.DSN)
	assert.Equal(t, "from-env", cfg.JWT.SECRET)
	assert.Equal(t, 40.0, cfg.Settlement.TrainingBonusPercent)
	assert.Equal(t, 5, cfg.Settlement.TrainingBonusPoints)
	assert.Equal(t, "submission", cfg.Withdrawal.DebitMode)
	assert.Equal(t, 2.5, cfg.Withdrawal.MinAmount)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.CommissionTransferCron)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("http: [unclosed"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsCurrencyPlacesBeyondColumnScale(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("settlement:\n  currency_places: 3\n"), 0o600))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "currency_places")
}

func TestShippedConfigCarriesNoSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SEED_OPERATOR_PASSWORD", "")

	cfg, err := Load(".")
	require.NoError(t, err)

	assert.Empty(t, cfg.JWT.SECRET)
	assert.Empty(t, cfg.Seed.OperatorPassword)
	assert.Equal(t, 8, cfg.Scheduler.TransferPoolSize)
}
