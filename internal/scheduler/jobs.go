package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
)

const jobTimeout = 5 * time.Minute

// CommissionTransferrer is satisfied by *ledger.Service.
type CommissionTransferrer interface {
	TransferAllPendingCommissions(ctx context.Context) (int, error)
}

type CommissionTransferJob struct {
	ledger CommissionTransferrer
	cron   string
}

func NewCommissionTransferJob(l CommissionTransferrer, crontab string) *CommissionTransferJob {
	return &CommissionTransferJob{ledger: l, cron: crontab}
}

func (j *CommissionTransferJob) Name() string { return "commission_transfer" }

func (j *CommissionTransferJob) Schedule() gocron.JobDefinition {
	return gocron.CronJob(j.cron, false)
}

func (j *CommissionTransferJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := j.ledger.TransferAllPendingCommissions(ctx)
	if err != nil {
		logger.Log.Error("scheduled commission transfer failed", zap.Int("transferred", n), zap.Error(err))
		return
	}
	logger.Log.Info("scheduled commission transfer done", zap.Int("transferred", n))
}

// ReconcileFunc runs one reconciliation pass and returns the finding count.
type ReconcileFunc func(ctx context.Context) (findings int, err error)

type ReconcileJob struct {
	run      ReconcileFunc
	interval time.Duration
}

func NewReconcileJob(run ReconcileFunc, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{run: run, interval: interval}
}

func (j *ReconcileJob) Name() string { return "settlement_reconcile" }

func (j *ReconcileJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *ReconcileJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := j.run(ctx)
	if err != nil {
		logger.Log.Error("reconciliation failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Warn("reconciliation found inconsistencies", zap.Int("findings", n))
	}
}

type MonthlyResetter interface {
	ResetMonthly(ctx context.Context) error
}

type MonthlyProfitResetJob struct {
	platform MonthlyResetter
	cron     string
}

func NewMonthlyProfitResetJob(p MonthlyResetter, crontab string) *MonthlyProfitResetJob {
	return &MonthlyProfitResetJob{platform: p, cron: crontab}
}

func (j *MonthlyProfitResetJob) Name() string { return "monthly_profit_reset" }

func (j *MonthlyProfitResetJob) Schedule() gocron.JobDefinition {
	return gocron.CronJob(j.cron, false)
}

func (j *MonthlyProfitResetJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.platform.ResetMonthly(ctx); err != nil {
		logger.Log.Error("monthly profit reset failed", zap.Error(err))
		return
	}
	logger.Log.Info("monthly profit reset")
}

type DailyTaskResetter interface {
	ResetDailyTasks(ctx context.Context) (int64, error)
}

type DailyTaskResetJob struct {
	ledger DailyTaskResetter
	cron   string
}

func NewDailyTaskResetJob(l DailyTaskResetter, crontab string) *DailyTaskResetJob {
	return &DailyTaskResetJob{ledger: l, cron: crontab}
}

func (j *DailyTaskResetJob) Name() string { return "daily_task_reset" }

func (j *DailyTaskResetJob) Schedule() gocron.JobDefinition {
	return gocron.CronJob(j.cron, false)
}

func (j *DailyTaskResetJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := j.ledger.ResetDailyTasks(ctx)
	if err != nil {
		logger.Log.Error("daily task reset failed", zap.Error(err))
		return
	}
	logger.Log.Info("daily task counters reset", zap.Int64("accounts", n))
}
