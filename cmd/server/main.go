package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GiorgiUbiria/rewards_settlement/configs"
	"github.com/GiorgiUbiria/rewards_settlement/internal/commission"
	"github.com/GiorgiUbiria/rewards_settlement/internal/handlers"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	appmw "github.com/GiorgiUbiria/rewards_settlement/internal/middleware"
	"github.com/GiorgiUbiria/rewards_settlement/internal/reconcile"
	"github.com/GiorgiUbiria/rewards_settlement/internal/routes"
	"github.com/GiorgiUbiria/rewards_settlement/internal/scheduler"
	"github.com/GiorgiUbiria/rewards_settlement/internal/seed"
	"github.com/GiorgiUbiria/rewards_settlement/internal/settlement"
	"github.com/GiorgiUbiria/rewards_settlement/internal/store"
	"github.com/GiorgiUbiria/rewards_settlement/internal/withdrawal"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	configs.LoadConfig()
	cfg := configs.AppConfig
	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Fatal("failed to configure logger", zap.Error(err))
	}
	if cfg.JWT.SECRET == "" {
		logger.Log.Fatal("jwt.secret is not set, export JWT_SECRET")
	}

	store.NewDB()
	store.DBMigrate()

	ctx := context.Background()
	platform, err := seed.Run(ctx, store.DB, seed.Options{
		OperatorUsername: cfg.Seed.OperatorUsername,
		OperatorPassword: cfg.Seed.OperatorPassword,
		PlatformName:     cfg.Seed.PlatformName,
	})
	if err != nil {
		logger.Log.Fatal("seed failed", zap.Error(err))
	}

	mode, err := withdrawal.ParseDebitMode(cfg.Withdrawal.DebitMode)
	if err != nil {
		logger.Log.Fatal("invalid withdrawal config", zap.Error(err))
	}

	ledgerSvc := ledger.NewService(store.DB, cfg.Scheduler.TransferPoolSize)
	engine := settlement.NewEngine(store.DB, platform, commission.NewCalculator(cfg.Settlement.CurrencyPlaces), settlement.Config{
		TrainingBonusPercent: decimal.NewFromFloat(cfg.Settlement.TrainingBonusPercent),
		TrainingBonusPoints:  cfg.Settlement.TrainingBonusPoints,
	})
	withdrawals := withdrawal.NewService(store.DB, mode, decimal.NewFromFloat(cfg.Withdrawal.MinAmount))
	reconciler := reconcile.New(store.DB)
	logger.Sugar().Infof("settling into platform account %q, withdrawals debit at %s", platform.Name(), withdrawals.Mode())

	var jobs []scheduler.Job
	if cfg.Scheduler.CommissionTransferCron != "" {
		jobs = append(jobs, scheduler.NewCommissionTransferJob(ledgerSvc, cfg.Scheduler.CommissionTransferCron))
	}
	if cfg.Scheduler.DailyTaskResetCron != "" {
		jobs = append(jobs, scheduler.NewDailyTaskResetJob(ledgerSvc, cfg.Scheduler.DailyTaskResetCron))
	}
	if cfg.Scheduler.ReconcileInterval > 0 {
		jobs = append(jobs, scheduler.NewReconcileJob(func(ctx context.Context) (int, error) {
			rep, err := reconciler.Run(ctx)
			return len(rep.Findings), err
		}, time.Duration(cfg.Scheduler.ReconcileInterval)*time.Second))
	}
	if cfg.Scheduler.MonthlyResetCron != "" {
		jobs = append(jobs, scheduler.NewMonthlyProfitResetJob(platform, cfg.Scheduler.MonthlyResetCron))
	}
	sched, err := scheduler.NewManager(jobs...)
	if err != nil {
		logger.Log.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := sched.RegisterJobs(); err != nil {
		logger.Log.Fatal("failed to register jobs", zap.Error(err))
	}
	sched.Start()

	router := routes.NewRoutes(&handlers.Handler{
		DB:          store.DB,
		Ledger:      ledgerSvc,
		Platform:    platform,
		Settlements: engine,
		Withdrawals: withdrawals,
		Reconciler:  reconciler,
	}, appmw.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop()

	sqlDB, err := store.DB.DB()
	if err != nil {
		logger.Log.Error("db close skipped, reason:", zap.Error(err))
	} else {
		sqlDB.Close()
		logger.Log.Info("db closed")
	}

	logger.Log.Info("server stopped")
}
