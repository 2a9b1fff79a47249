// Package reconcile looks for settlements that stopped half way.
//
// It only reports. Fixing a finding is an operator decision.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/metrics"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

const (
	ProblemCreditedNotArchived  = "credited_not_archived"
	ProblemArchivedStillPending = "archived_still_pending"
	ProblemApprovedAndRejected  = "approved_and_rejected"
	ProblemSharesMismatch       = "shares_mismatch"
)

type Finding struct {
	Problem       string             `json:"problem"`
	Kind          models.RequestKind `json:"kind"`
	TransactionID string             `json:"transaction_id"`
	RequestID     string             `json:"request_id,omitempty"`
	Detail        string             `json:"detail"`
}

type Report struct {
	CheckedAt time.Time `json:"checked_at"`
	Findings  []Finding `json:"findings"`
}

func (r Report) Clean() bool { return len(r.Findings) == 0 }

type Reconciler struct {
	db        *gorm.DB
	batchSize int
}

func New(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db, batchSize: 500}
}

type ref struct {
	Kind          models.RequestKind
	TransactionID string
}

// Run checks the credit journal and the request collections against each
// other. Every finding is logged as a partial settlement.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	db := r.db.WithContext(ctx)
	rep := Report{CheckedAt: time.Now()}

	var orphans []ref
	err := db.Model(&models.SettlementCredit{}).
		Distinct("kind", "transaction_id").
		Where("NOT EXISTS (SELECT 1 FROM settlement_approvals a WHERE a.kind = settlement_credits.kind AND a.transaction_id = settlement_credits.transaction_id)").
		Scan(&orphans).Error
	if err != nil {
		return rep, fmt.Errorf("scan credit journal: %w", err)
	}
	for _, o := range orphans {
		rep.Findings = append(rep.Findings, Finding{
			Problem:       ProblemCreditedNotArchived,
			Kind:          o.Kind,
			TransactionID: o.TransactionID,
			Detail:        "credits journalled without an approval record",
		})
	}

	var stuck []models.SettlementRequest
	err = db.Where("EXISTS (SELECT 1 FROM settlement_approvals a WHERE a.kind = settlement_requests.kind AND a.transaction_id = settlement_requests.transaction_id)" +
		" OR EXISTS (SELECT 1 FROM settlement_rejections j WHERE j.kind = settlement_requests.kind AND j.transaction_id = settlement_requests.transaction_id)").
		Find(&stuck).Error
	if err != nil {
		return rep, fmt.Errorf("scan pending requests: %w", err)
	}
	for _, s := range stuck {
		rep.Findings = append(rep.Findings, Finding{
			Problem:       ProblemArchivedStillPending,
			Kind:          s.Kind,
			TransactionID: s.TransactionID,
			RequestID:     s.ID,
			Detail:        "request archived but not removed from pending",
		})
	}

	var both []ref
	err = db.Model(&models.SettlementApproval{}).
		Select("settlement_approvals.kind, settlement_approvals.transaction_id").
		Joins("JOIN settlement_rejections j ON j.kind = settlement_approvals.kind AND j.transaction_id = settlement_approvals.transaction_id").
		Scan(&both).Error
	if err != nil {
		return rep, fmt.Errorf("scan archives: %w", err)
	}
	for _, b := range both {
		rep.Findings = append(rep.Findings, Finding{
			Problem:       ProblemApprovedAndRejected,
			Kind:          b.Kind,
			TransactionID: b.TransactionID,
			Detail:        "transaction present in both approved and rejected archives",
		})
	}

	var batch []models.SettlementApproval
	res := db.FindInBatches(&batch, r.batchSize, func(tx *gorm.DB, _ int) error {
		for _, a := range batch {
			sum := a.SelfShare.Add(a.DirectShare).Add(a.IndirectShare).Add(a.PlatformShare)
			if !sum.Equal(a.Amount) {
				rep.Findings = append(rep.Findings, Finding{
					Problem:       ProblemSharesMismatch,
					Kind:          a.Kind,
					TransactionID: a.TransactionID,
					RequestID:     a.ID,
					Detail:        fmt.Sprintf("shares sum to %s, amount %s", sum, a.Amount),
				})
			}
		}
		return nil
	})
	if res.Error != nil {
		return rep, fmt.Errorf("scan approvals: %w", res.Error)
	}

	for _, f := range rep.Findings {
		metrics.ReconcileFindings.WithLabelValues(f.Problem).Inc()
		logger.Log.Error(apperr.ErrPartialSettlement.Error(),
			zap.String("problem", f.Problem),
			zap.String("kind", string(f.Kind)),
			zap.String("transaction_id", f.TransactionID),
			zap.String("request_id", f.RequestID),
			zap.String("detail", f.Detail))
	}
	if rep.Clean() {
		logger.Log.Info("reconciliation clean")
	}
	return rep, nil
}
