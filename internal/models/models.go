package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Operator is an administrator allowed to review requests.
type Operator struct {
	gorm.Model
	Name     string `gorm:"size:50;not null"`
	Username string `gorm:"uniqueIndex;size:64;not null"`
	Password string `gorm:"size:255"`
}

// MoneyScale is the number of decimal places every numeric(20,2) money
// column keeps.
const MoneyScale = 2

type Account struct {
	gorm.Model
	Username             string          `gorm:"uniqueIndex;size:64;not null"`
	FullName             string          `gorm:"size:100"`
	PlanName             string          `gorm:"size:64"`
	Balance              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BonusBalance         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	TrainingBonusBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PendingCommission    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ProductProfitBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	DailyTaskLimit       int             // 0 means unlimited
	TasksCompletedToday  int
	TotalPoints          int
	DirectPoints         int
	IndirectPoints       int
	ParentID             *uint           `gorm:"index"`
	SelfPercent          decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	DirectPercent        decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	IndirectPercent      decimal.Decimal `gorm:"type:numeric(5,2);not null"`
}

const (
	EntryCredit = "credit"
	EntryDebit  = "debit"
)

// HistoryEntry is append-only.
type HistoryEntry struct {
	ID          uint            `gorm:"primaryKey"`
	AccountID   uint            `gorm:"index;not null"`
	Kind        string          `gorm:"size:8;not null"` // credit | debit
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Description string          `gorm:"size:255"`
	Reference   string          `gorm:"index;size:128"`
	CreatedAt   time.Time
}

type PlatformAccount struct {
	gorm.Model
	Name          string          `gorm:"uniqueIndex;size:64;not null"`
	TotalProfit   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	MonthlyProfit decimal.Decimal `gorm:"type:numeric(20,2);not null"`
}

const (
	PlatformDeposit    = "Deposit"
	PlatformWithdrawal = "Withdrawal"
)

type PlatformTransaction struct {
	ID                uint            `gorm:"primaryKey"`
	PlatformAccountID uint            `gorm:"index;not null"`
	Type              string          `gorm:"size:16;not null"` // Deposit | Withdrawal
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Description       string          `gorm:"size:255"`
	Reference         string          `gorm:"index;size:128"`
	CreatedAt         time.Time
}

type RequestKind string

const (
	KindTrainingBonus   RequestKind = "training_bonus"
	KindReferralPayment RequestKind = "referral_payment"
)

func (k RequestKind) Valid() bool {
	return k == KindTrainingBonus || k == KindReferralPayment
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// SettlementRequest rows only ever hold pending requests. A terminal
// transition moves the request into SettlementApproval or SettlementRejection.
type SettlementRequest struct {
	ID             string          `gorm:"primaryKey;size:36"`
	Kind           RequestKind     `gorm:"size:32;not null;uniqueIndex:idx_pending_kind_txn"`
	TransactionID  string          `gorm:"size:128;not null;uniqueIndex:idx_pending_kind_txn"`
	Username       string          `gorm:"index;size:64;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Gateway        string          `gorm:"size:64;not null"`
	ProofRef       string          `gorm:"size:255;not null"`
	PlanName       string          `gorm:"size:64"`
	DailyTaskLimit int
	Status         RequestStatus `gorm:"size:16;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SettlementApproval is the write-once audit snapshot of an approved request.
type SettlementApproval struct {
	ID               string          `gorm:"primaryKey;size:36"`
	Kind             RequestKind     `gorm:"size:32;not null;uniqueIndex:idx_approved_kind_txn"`
	TransactionID    string          `gorm:"size:128;not null;uniqueIndex:idx_approved_kind_txn"`
	Username         string          `gorm:"index;size:64;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Gateway          string          `gorm:"size:64;not null"`
	ProofRef         string          `gorm:"size:255;not null"`
	PlanName         string          `gorm:"size:64"`
	DailyTaskLimit   int
	SelfShare        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	DirectShare      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	IndirectShare    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	PlatformShare    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	DirectReferrer   string          `gorm:"size:64"`
	IndirectReferrer string          `gorm:"size:64"`
	AddedPoints      int
	Status           RequestStatus `gorm:"size:16;not null"`
	SubmittedAt      time.Time
	ApprovedAt       time.Time
}

type SettlementRejection struct {
	ID            string          `gorm:"primaryKey;size:36"`
	Kind          RequestKind     `gorm:"size:32;not null;uniqueIndex:idx_rejected_kind_txn"`
	TransactionID string          `gorm:"size:128;not null;uniqueIndex:idx_rejected_kind_txn"`
	Username      string          `gorm:"index;size:64;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Gateway       string          `gorm:"size:64;not null"`
	ProofRef      string          `gorm:"size:255;not null"`
	Reason        string          `gorm:"size:500;not null"`
	Status        RequestStatus   `gorm:"size:16;not null"`
	SubmittedAt   time.Time
	RejectedAt    time.Time
}

const (
	RoleSelf     = "self"
	RoleDirect   = "direct"
	RoleIndirect = "indirect"
	RolePlatform = "platform"
)

// SettlementCredit journals one share paid by an approval. The unique index
// makes a second credit for the same transaction and role impossible.
type SettlementCredit struct {
	ID            uint            `gorm:"primaryKey"`
	Kind          RequestKind     `gorm:"size:32;not null;uniqueIndex:idx_credit_ref_role"`
	TransactionID string          `gorm:"size:128;not null;uniqueIndex:idx_credit_ref_role"`
	Role          string          `gorm:"size:16;not null;uniqueIndex:idx_credit_ref_role"`
	RequestID     string          `gorm:"index;size:36;not null"`
	AccountID     *uint           `gorm:"index"` // nil for the platform share
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt     time.Time
}

type WithdrawalRequest struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	AccountID           uint            `gorm:"index;not null"`
	Username            string          `gorm:"index;size:64;not null"`
	Amount              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	AccountNumber       string          `gorm:"size:64;not null"`
	AccountTitle        string          `gorm:"size:100;not null"`
	Gateway             string          `gorm:"size:64;not null"`
	DebitedAtSubmission bool            `gorm:"not null"`
	Status              RequestStatus   `gorm:"size:16;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type WithdrawalApproval struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	AccountID           uint            `gorm:"index;not null"`
	Username            string          `gorm:"index;size:64;not null"`
	Amount              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	AccountNumber       string          `gorm:"size:64;not null"`
	AccountTitle        string          `gorm:"size:100;not null"`
	Gateway             string          `gorm:"size:64;not null"`
	DebitedAtSubmission bool            `gorm:"not null"`
	Status              RequestStatus   `gorm:"size:16;not null"`
	SubmittedAt         time.Time
	ApprovedAt          time.Time
}

type WithdrawalRejection struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	AccountID           uint            `gorm:"index;not null"`
	Username            string          `gorm:"index;size:64;not null"`
	Amount              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	AccountNumber       string          `gorm:"size:64;not null"`
	AccountTitle        string          `gorm:"size:100;not null"`
	Gateway             string          `gorm:"size:64;not null"`
	DebitedAtSubmission bool            `gorm:"not null"`
	Refunded            bool            `gorm:"not null"`
	Remarks             string          `gorm:"size:500"`
	Status              RequestStatus   `gorm:"size:16;not null"`
	SubmittedAt         time.Time
	RejectedAt          time.Time
}

// TaskTransaction is the per-task commission ledger drained by the
// commission transfer.
type TaskTransaction struct {
	gorm.Model
	Username        string          `gorm:"index;size:64;not null"`
	TaskRef         string          `gorm:"size:64;not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status          RequestStatus   `gorm:"size:16;index;not null"`
	Description     string          `gorm:"size:255;not null"`
	TransactionType string          `gorm:"size:8;not null"` // credit | debit
}

type SystemSettings struct {
	ID                uint `gorm:"primaryKey"`
	WithdrawalEnabled bool `gorm:"not null"`
	UpdatedAt         time.Time
}

// All lists every model for migration.
func All() []any {
	return []any{
		&Operator{},
		&Account{},
		&HistoryEntry{},
		&PlatformAccount{},
		&PlatformTransaction{},
		&SettlementRequest{},
		&SettlementApproval{},
		&SettlementRejection{},
		&SettlementCredit{},
		&WithdrawalRequest{},
		&WithdrawalApproval{},
		&WithdrawalRejection{},
		&TaskTransaction{},
		&SystemSettings{},
	}
}
