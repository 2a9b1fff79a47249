package configs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	HTTP struct {
		Addr      string  `mapstructure:"addr"`
		RateLimit float64 `mapstructure:"rate_limit"`
		RateBurst int     `mapstructure:"rate_burst"`
	} `mapstructure:"http"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	JWT struct {
		SECRET string `mapstructure:"secret"`
		TTL    int    `mapstructure:"ttl"` // hours
	} `mapstructure:"jwt"`
	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Seed       struct {
		OperatorUsername string `mapstructure:"operator_username"`
		OperatorPassword string `mapstructure:"operator_password"`
		PlatformName     string `mapstructure:"platform_name"`
	} `mapstructure:"seed"`
}

type SettlementConfig struct {
	TrainingBonusPercent float64 `mapstructure:"training_bonus_percent"`
	TrainingBonusPoints  int     `mapstructure:"training_bonus_points"`
	CurrencyPlaces       int32   `mapstructure:"currency_places"`
}

type WithdrawalConfig struct {
	DebitMode string  `mapstructure:"debit_mode"` // approval | submission
	MinAmount float64 `mapstructure:"min_amount"`
}

type SchedulerConfig struct {
	CommissionTransferCron string `mapstructure:"commission_transfer_cron"`
	TransferPoolSize       int    `mapstructure:"transfer_pool_size"`
	DailyTaskResetCron     string `mapstructure:"daily_task_reset_cron"`
	ReconcileInterval      int    `mapstructure:"reconcile_interval"` // seconds, 0 disables
	MonthlyResetCron       string `mapstructure:"monthly_reset_cron"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 20)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("db.dsn", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("settlement.training_bonus_percent", 50)
	v.SetDefault("settlement.training_bonus_points", 0)
	v.SetDefault("settlement.currency_places", 2)
	v.SetDefault("withdrawal.debit_mode", "approval")
	v.SetDefault("withdrawal.min_amount", 0)
	v.SetDefault("scheduler.commission_transfer_cron", "")
	v.SetDefault("scheduler.transfer_pool_size", 8)
	v.SetDefault("scheduler.daily_task_reset_cron", "0 0 * * *")
	v.SetDefault("scheduler.reconcile_interval", 300)
	v.SetDefault("scheduler.monthly_reset_cron", "0 0 1 * *")
	v.SetDefault("seed.operator_username", "admin")
	v.SetDefault("seed.operator_password", "")
	v.SetDefault("seed.platform_name", "platform")
}

// Load reads config.yaml from the given directories (./configs when none are
// given) with environment overrides such as DB_DSN or JWT_SECRET.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"./configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var fileLookupError viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupError) {
			return cfg, err
		}
		logger.Log.Warn("config file not found, using defaults and environment", zap.Error(err))
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if p := cfg.Settlement.CurrencyPlaces; p < 0 || p > models.MoneyScale {
		return cfg, fmt.Errorf("settlement.currency_places must be between 0 and %d, got %d", models.MoneyScale, p)
	}
	return cfg, nil
}

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug(".env not loaded", zap.Error(err))
	}

	cfg, err := Load()
	if err != nil {
		logger.Log.Fatal("failed to read config", zap.Error(err))
	}
	AppConfig = cfg
}
