package withdrawal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/storetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setup opens account "w" holding balance.
func setup(t *testing.T, mode DebitMode, balance string) (*gorm.DB, *Service, *ledger.Service) {
	t.Helper()
	db := storetest.New(t)
	accounts := ledger.NewService(db, 1)
	acc, err := accounts.OpenAccount(context.Background(), ledger.NewAccount{Username: "w"})
	require.NoError(t, err)
	require.NoError(t, ledger.Credit(db, acc, ledger.Posting{Amount: dec(balance), Description: "seed"}))
	return db, NewService(db, mode, dec("1")), accounts
}

func request(amount string) SubmitInput {
	return SubmitInput{
		Username:      "w",
		Amount:        dec(amount),
		AccountNumber: "PK00-1234",
		AccountTitle:  "W Holder",
		Gateway:       "bank",
	}
}

func balance(t *testing.T, accounts *ledger.Service) decimal.Decimal {
	t.Helper()
	acc, err := accounts.GetAccount(context.Background(), "w")
	require.NoError(t, err)
	return acc.Balance
}

func TestParseDebitMode(t *testing.T) {
	m, err := ParseDebitMode("")
	require.NoError(t, err)
	assert.Equal(t, DebitAtApproval, m)

	m, err = ParseDebitMode(" Submission ")
	require.NoError(t, err)
	assert.Equal(t, DebitAtSubmission, m)

	_, err = ParseDebitMode("never")
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
}

func TestDebitAtApproval(t *testing.T) {
	_, svc, accounts := setup(t, DebitAtApproval, "100")
	ctx := context.Background()

	_, err := svc.Submit(ctx, request("150"))
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	id, err := svc.Submit(ctx, request("60"))
	require.NoError(t, err)
	assert.True(t, balance(t, accounts).Equal(dec("100")), "nothing debited before approval")

	require.NoError(t, svc.Approve(ctx, id))
	assert.True(t, balance(t, accounts).Equal(dec("40")))

	assert.ErrorIs(t, svc.Approve(ctx, id), apperr.ErrAlreadyProcessed)
	assert.True(t, balance(t, accounts).Equal(dec("40")))

	approved, err := svc.ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.False(t, approved[0].DebitedAtSubmission)
}

func TestDebitAtApprovalRechecksBalance(t *testing.T) {
	db, svc, accounts := setup(t, DebitAtApproval, "100")
	ctx := context.Background()

	first, err := svc.Submit(ctx, request("70"))
	require.NoError(t, err)
	second, err := svc.Submit(ctx, request("70"))
	require.NoError(t, err)

	require.NoError(t, svc.Approve(ctx, first))
	assert.ErrorIs(t, svc.Approve(ctx, second), apperr.ErrInsufficientBalance)
	assert.True(t, balance(t, accounts).Equal(dec("30")))

	var pending int64
	require.NoError(t, db.Model(&models.WithdrawalRequest{}).Where("id = ?", second).Count(&pending).Error)
	assert.EqualValues(t, 1, pending)

	require.NoError(t, svc.Reject(ctx, second, "insufficient funds"))
	rejected, err := svc.ListRejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.False(t, rejected[0].Refunded)
	assert.True(t, balance(t, accounts).Equal(dec("30")))
}

func TestDebitAtSubmissionRefundsOnReject(t *testing.T) {
	_, svc, accounts := setup(t, DebitAtSubmission, "100")
	ctx := context.Background()

	id, err := svc.Submit(ctx, request("80"))
	require.NoError(t, err)
	assert.True(t, balance(t, accounts).Equal(dec("20")))

	_, err = svc.Submit(ctx, request("30"))
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	require.NoError(t, svc.Reject(ctx, id, "wrong account"))
	assert.True(t, balance(t, accounts).Equal(dec("100")))
	assert.ErrorIs(t, svc.Reject(ctx, id, "again"), apperr.ErrAlreadyProcessed)
	assert.True(t, balance(t, accounts).Equal(dec("100")))

	rejected, err := svc.ListRejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.True(t, rejected[0].Refunded)
	assert.Equal(t, "wrong account", rejected[0].Remarks)
}

func TestDebitAtSubmissionRejectsSubCentAmount(t *testing.T) {
	_, svc, accounts := setup(t, DebitAtSubmission, "100")

	_, err := svc.Submit(context.Background(), request("1.001"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.True(t, balance(t, accounts).Equal(dec("100")))
}

func TestDebitAtSubmissionApproveDoesNotDebitAgain(t *testing.T) {
	_, svc, accounts := setup(t, DebitAtSubmission, "100")
	ctx := context.Background()

	id, err := svc.Submit(ctx, request("25"))
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, id))
	assert.True(t, balance(t, accounts).Equal(dec("75")))
}

func TestModeSwitchHonoursStoredMode(t *testing.T) {
	db, submitAtSubmission, accounts := setup(t, DebitAtSubmission, "100")
	ctx := context.Background()

	id, err := submitAtSubmission.Submit(ctx, request("40"))
	require.NoError(t, err)

	atApproval := NewService(db, DebitAtApproval, dec("1"))
	require.NoError(t, atApproval.Approve(ctx, id))
	assert.True(t, balance(t, accounts).Equal(dec("60")))
}

func TestWithdrawalSwitch(t *testing.T) {
	_, svc, _ := setup(t, DebitAtApproval, "100")
	ctx := context.Background()

	enabled, err := svc.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, svc.SetEnabled(ctx, false))
	_, err = svc.Submit(ctx, request("10"))
	assert.ErrorIs(t, err, apperr.ErrWithdrawalsDisabled)

	require.NoError(t, svc.SetEnabled(ctx, true))
	_, err = svc.Submit(ctx, request("10"))
	assert.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	_, svc, _ := setup(t, DebitAtApproval, "100")
	ctx := context.Background()

	_, err := svc.Submit(ctx, request("0.5"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Submit(ctx, request("10.005"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in := request("10")
	in.AccountNumber = ""
	_, err = svc.Submit(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in = request("10")
	in.Username = "ghost"
	_, err = svc.Submit(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	assert.ErrorIs(t, svc.Approve(ctx, "missing"), apperr.ErrRequestNotFound)
}
