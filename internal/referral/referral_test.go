package referral

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

// line opens accounts so that each name is referred by the next one.
func line(t *testing.T, db *gorm.DB, names ...string) map[string]*models.Account {
	t.Helper()
	svc := ledger.NewService(db, 1)
	accs := make(map[string]*models.Account, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		in := ledger.NewAccount{Username: names[i], DirectPercent: decimal.NewFromInt(5)}
		if i+1 < len(names) {
			in.Parent = names[i+1]
		}
		acc, err := svc.OpenAccount(context.Background(), in)
		require.NoError(t, err)
		accs[names[i]] = acc
	}
	return accs
}

func TestResolveStopsAtTwoLevels(t *testing.T) {
	db := storetest.New(t)
	accs := line(t, db, "a", "b", "c", "d")

	chain, err := Resolve(db, accs["a"])
	require.NoError(t, err)
	assert.Equal(t, "b", chain.DirectName())
	assert.Equal(t, "c", chain.IndirectName())
}

func TestResolveWithoutReferrer(t *testing.T) {
	db := storetest.New(t)
	accs := line(t, db, "solo")

	chain, err := ResolveForUpdate(db, accs["solo"])
	require.NoError(t, err)
	assert.Nil(t, chain.Direct)
	assert.Nil(t, chain.Indirect)
	assert.Empty(t, chain.DirectName())
}

func TestResolveMissingGrandparent(t *testing.T) {
	db := storetest.New(t)
	accs := line(t, db, "a", "b", "c")
	require.NoError(t, db.Delete(accs["c"]).Error)

	chain, err := Resolve(db, accs["a"])
	require.NoError(t, err)
	assert.Equal(t, "b", chain.DirectName())
	assert.Nil(t, chain.Indirect)
}

func TestResolveLoopEndsChain(t *testing.T) {
	db := storetest.New(t)
	accs := line(t, db, "a", "b")
	require.NoError(t, db.Model(accs["b"]).Update("parent_id", accs["a"].ID).Error)

	chain, err := Resolve(db, accs["a"])
	require.NoError(t, err)
	assert.Equal(t, "b", chain.DirectName())
	assert.Nil(t, chain.Indirect)
}

func TestAssignParent(t *testing.T) {
	db := storetest.New(t)
	ctx := context.Background()
	line(t, db, "a", "b", "c")
	line(t, db, "x")

	t.Run("self", func(t *testing.T) {
		err := AssignParent(ctx, db, "a", "a")
		assert.ErrorIs(t, err, apperr.ErrReferralCycle)
	})

	t.Run("ancestor becomes child", func(t *testing.T) {
		assert.ErrorIs(t, AssignParent(ctx, db, "c", "a"), apperr.ErrReferralCycle)
		assert.ErrorIs(t, AssignParent(ctx, db, "b", "a"), apperr.ErrReferralCycle)
	})

	t.Run("descendant beyond resolver depth", func(t *testing.T) {
		line(t, db, "p", "q", "r", "s")
		err := AssignParent(ctx, db, "s", "p")
		assert.ErrorIs(t, err, apperr.ErrReferralCycle)
		assert.Nil(t, reload(t, db, "s").ParentID)
	})

	t.Run("unknown parent", func(t *testing.T) {
		assert.ErrorIs(t, AssignParent(ctx, db, "a", "ghost"), apperr.ErrAccountNotFound)
	})

	t.Run("reassign and clear", func(t *testing.T) {
		require.NoError(t, AssignParent(ctx, db, "c", "x"))
		chain, err := Resolve(db, reload(t, db, "b"))
		require.NoError(t, err)
		assert.Equal(t, "c", chain.DirectName())
		assert.Equal(t, "x", chain.IndirectName())

		require.NoError(t, AssignParent(ctx, db, "a", ""))
		assert.Nil(t, reload(t, db, "a").ParentID)
	})
}

func reload(t *testing.T, db *gorm.DB, username string) *models.Account {
	t.Helper()
	acc, err := ledger.FindAccount(db, username)
	require.NoError(t, err)
	return acc
}
