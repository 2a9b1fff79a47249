package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/commission"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/storetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Service
	platform *ledger.Platform
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New(t)
	platform, err := ledger.EnsurePlatform(context.Background(), db, "platform")
	require.NoError(t, err)
	engine := NewEngine(db, platform, commission.NewCalculator(2), Config{
		TrainingBonusPercent: dec("50"),
		TrainingBonusPoints:  10,
	})
	return &fixture{db: db, ledger: ledger.NewService(db, 2), platform: platform, engine: engine}
}

func (f *fixture) open(t *testing.T, name, parent, self, direct, indirect string) {
	t.Helper()
	_, err := f.ledger.OpenAccount(context.Background(), ledger.NewAccount{
		Username:        name,
		Parent:          parent,
		SelfPercent:     dec(self),
		DirectPercent:   dec(direct),
		IndirectPercent: dec(indirect),
	})
	require.NoError(t, err)
}

// chain opens c <- b <- a with a:self 10, b:direct 5, c:indirect 2.
func (f *fixture) chain(t *testing.T) {
	f.open(t, "c", "", "0", "0", "2")
	f.open(t, "b", "c", "0", "5", "0")
	f.open(t, "a", "b", "10", "0", "0")
}

func (f *fixture) submit(t *testing.T, kind models.RequestKind, user, txn, amount string) string {
	t.Helper()
	id, err := f.engine.Submit(context.Background(), SubmitInput{
		Kind:          kind,
		Username:      user,
		TransactionID: txn,
		Amount:        dec(amount),
		Gateway:       "bank",
		ProofRef:      "proofs/" + txn + ".png",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) account(t *testing.T, name string) *models.Account {
	t.Helper()
	acc, err := f.ledger.GetAccount(context.Background(), name)
	require.NoError(t, err)
	return acc
}

func (f *fixture) balance(t *testing.T, name string) decimal.Decimal {
	return f.account(t, name).Balance
}

func (f *fixture) profit(t *testing.T) decimal.Decimal {
	t.Helper()
	sum, err := f.platform.Summary(context.Background())
	require.NoError(t, err)
	return sum.TotalProfit
}

func (f *fixture) pending(t *testing.T, kind models.RequestKind) int {
	t.Helper()
	reqs, err := f.engine.ListPending(context.Background(), kind)
	require.NoError(t, err)
	return len(reqs)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s", want, got)
}

func TestApproveCreditsWholeChain(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()

	id, err := f.engine.Submit(ctx, SubmitInput{
		Kind:           models.KindReferralPayment,
		Username:       "a",
		TransactionID:  "TXN-1",
		Amount:         dec("1000"),
		Gateway:        "bank",
		ProofRef:       "proofs/1.png",
		PlanName:       "gold",
		DailyTaskLimit: 12,
	})
	require.NoError(t, err)

	res, err := f.engine.Approve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", res.DirectReferrer)
	assert.Equal(t, "c", res.IndirectReferrer)
	assertDec(t, "100", res.Shares.Self)
	assertDec(t, "50", res.Shares.Direct)
	assertDec(t, "20", res.Shares.Indirect)
	assertDec(t, "830", res.Shares.Platform)

	a := f.account(t, "a")
	assertDec(t, "100", a.Balance)
	assertDec(t, "100", a.BonusBalance)
	assert.Equal(t, "gold", a.PlanName)
	assert.Equal(t, 12, a.DailyTaskLimit)
	assertDec(t, "50", f.balance(t, "b"))
	assertDec(t, "20", f.balance(t, "c"))
	assertDec(t, "830", f.profit(t))

	assert.Zero(t, f.pending(t, models.KindReferralPayment))
	approved, err := f.engine.ListApproved(ctx, models.KindReferralPayment)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, id, approved[0].ID)
	assertDec(t, "830", approved[0].PlatformShare)

	var credits int64
	require.NoError(t, f.db.Model(&models.SettlementCredit{}).Where("request_id = ?", id).Count(&credits).Error)
	assert.EqualValues(t, 4, credits)

	hist, err := f.ledger.AccountHistory(ctx, "b")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "Direct bonus from a", hist[0].Description)
}

func TestApproveWithoutGrandparent(t *testing.T) {
	f := newFixture(t)
	f.open(t, "b", "", "0", "5", "0")
	f.open(t, "a", "b", "10", "0", "0")

	res, err := f.engine.Approve(context.Background(), f.submit(t, models.KindReferralPayment, "a", "T", "500"))
	require.NoError(t, err)
	assert.Empty(t, res.IndirectReferrer)
	assertDec(t, "50", f.balance(t, "a"))
	assertDec(t, "25", f.balance(t, "b"))
	assertDec(t, "425", f.profit(t))
}

func TestApproveTwiceIsRefused(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	id := f.submit(t, models.KindReferralPayment, "a", "TXN-2", "1000")

	_, err := f.engine.Approve(ctx, id)
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	assert.ErrorIs(t, f.engine.Reject(ctx, id, "late"), apperr.ErrAlreadyProcessed)

	assertDec(t, "100", f.balance(t, "a"))
	assertDec(t, "50", f.balance(t, "b"))
	assertDec(t, "20", f.balance(t, "c"))
	assertDec(t, "830", f.profit(t))
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrRequestNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApproveMissingAccountLeavesRequestPending(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	id := f.submit(t, models.KindReferralPayment, "a", "TXN-3", "1000")
	require.NoError(t, f.db.Where("username = ?", "a").Delete(&models.Account{}).Error)

	_, err := f.engine.Approve(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	assert.Equal(t, 1, f.pending(t, models.KindReferralPayment))
	assert.True(t, f.balance(t, "b").IsZero())
	assert.True(t, f.profit(t).IsZero())
}

func TestApproveInvalidSplitsLeavesRequestPending(t *testing.T) {
	f := newFixture(t)
	f.open(t, "c", "", "0", "0", "20")
	f.open(t, "b", "c", "0", "30", "0")
	f.open(t, "a", "b", "60", "0", "0")
	id := f.submit(t, models.KindReferralPayment, "a", "TXN-4", "100")

	_, err := f.engine.Approve(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
	assert.Equal(t, 1, f.pending(t, models.KindReferralPayment))
	assert.True(t, f.balance(t, "a").IsZero())
}

func TestApproveDetectsEarlierPartialSettlement(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	id := f.submit(t, models.KindReferralPayment, "a", "TXN-5", "1000")
	require.NoError(t, f.db.Create(&models.SettlementCredit{
		Kind:          models.KindReferralPayment,
		TransactionID: "TXN-5",
		Role:          models.RoleSelf,
		RequestID:     id,
		Amount:        dec("100"),
	}).Error)

	_, err := f.engine.Approve(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrPartialSettlement)
	assert.Equal(t, 1, f.pending(t, models.KindReferralPayment))
	assert.True(t, f.balance(t, "a").IsZero())
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	id := f.submit(t, models.KindReferralPayment, "a", "TXN-6", "1000")

	assert.ErrorIs(t, f.engine.Reject(ctx, id, "   "), apperr.ErrValidation)
	assert.Equal(t, 1, f.pending(t, models.KindReferralPayment))

	require.NoError(t, f.engine.Reject(ctx, id, "  blurry proof "))
	rejected, err := f.engine.ListRejected(ctx, models.KindReferralPayment)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "blurry proof", rejected[0].Reason)

	_, err = f.engine.Approve(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	assert.True(t, f.balance(t, "a").IsZero())
	assert.True(t, f.profit(t).IsZero())
}

func TestSubmitRejectsDuplicateTransaction(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	id := f.submit(t, models.KindReferralPayment, "a", "DUP", "10")

	in := SubmitInput{
		Kind:          models.KindReferralPayment,
		Username:      "b",
		TransactionID: "DUP",
		Amount:        dec("10"),
		Gateway:       "bank",
		ProofRef:      "p",
	}
	_, err := f.engine.Submit(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrDuplicateTransaction)

	require.NoError(t, f.engine.Reject(ctx, id, "no"))
	_, err = f.engine.Submit(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrDuplicateTransaction)

	in.Kind = models.KindTrainingBonus
	_, err = f.engine.Submit(ctx, in)
	assert.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	f.open(t, "a", "", "10", "0", "0")
	ctx := context.Background()

	valid := SubmitInput{
		Kind:          models.KindTrainingBonus,
		Username:      "a",
		TransactionID: "T",
		Amount:        dec("10"),
		Gateway:       "bank",
		ProofRef:      "p",
	}
	cases := map[string]func(in *SubmitInput){
		"kind":     func(in *SubmitInput) { in.Kind = "lottery" },
		"amount":   func(in *SubmitInput) { in.Amount = dec("-5") },
		"txn":      func(in *SubmitInput) { in.TransactionID = " " },
		"proof":    func(in *SubmitInput) { in.ProofRef = "" },
		"gateway":  func(in *SubmitInput) { in.Gateway = "" },
		"tasks":    func(in *SubmitInput) { in.DailyTaskLimit = -1 },
		"username": func(in *SubmitInput) { in.Username = "" },
		"sub-cent": func(in *SubmitInput) { in.Amount = dec("0.001") },
		"scale":    func(in *SubmitInput) { in.Amount = dec("10.005") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.engine.Submit(ctx, in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	in := valid
	in.Amount = dec("10.50")
	in.TransactionID = "T-cents"
	_, err := f.engine.Submit(ctx, in)
	assert.NoError(t, err)

	in = valid
	in.Username = "ghost"
	_, err = f.engine.Submit(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	_, err = f.engine.ListPending(ctx, "lottery")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApproveTrainingBonus(t *testing.T) {
	f := newFixture(t)
	f.chain(t)

	res, err := f.engine.Approve(context.Background(), f.submit(t, models.KindTrainingBonus, "a", "TRN-1", "200"))
	require.NoError(t, err)
	assert.Empty(t, res.DirectReferrer)
	assert.Equal(t, 10, res.AddedPoints)

	a := f.account(t, "a")
	assertDec(t, "100", a.Balance)
	assertDec(t, "100", a.TrainingBonusBalance)
	assert.True(t, a.BonusBalance.IsZero())
	assert.Equal(t, 10, a.TotalPoints)
	assert.True(t, f.balance(t, "b").IsZero())
	assertDec(t, "100", f.profit(t))
}

func TestConcurrentApprovalsSettleOnce(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	id := f.submit(t, models.KindReferralPayment, "a", "RACE", "1000")

	const workers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Approve(context.Background(), id)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assertDec(t, "100", f.balance(t, "a"))
	assertDec(t, "830", f.profit(t))
}
