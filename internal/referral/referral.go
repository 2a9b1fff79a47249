// Package referral walks the sponsor graph.
//
// Commission is paid to at most MaxDepth ancestors: the direct referrer and
// the direct referrer's own referrer. Deeper ancestors receive nothing.
package referral

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
)

const MaxDepth = 2

// Chain holds the resolved referrers. Either may be nil; Indirect is only
// set when Direct is.
type Chain struct {
	Direct   *models.Account
	Indirect *models.Account
}

func (c Chain) DirectName() string {
	if c.Direct == nil {
		return ""
	}
	return c.Direct.Username
}

func (c Chain) IndirectName() string {
	if c.Indirect == nil {
		return ""
	}
	return c.Indirect.Username
}

// Resolve reads the chain above acc without locking.
func Resolve(tx *gorm.DB, acc *models.Account) (Chain, error) {
	return resolve(tx, acc, false)
}

// ResolveForUpdate reads the chain above acc and row-locks each referrer.
// Locks are always taken child to ancestor, which cannot deadlock on an
// acyclic graph.
func ResolveForUpdate(tx *gorm.DB, acc *models.Account) (Chain, error) {
	return resolve(tx, acc, true)
}

func resolve(tx *gorm.DB, acc *models.Account, lock bool) (Chain, error) {
	ancestors, err := walk(tx, acc, MaxDepth, lock)
	if err != nil {
		return Chain{}, err
	}
	var c Chain
	if len(ancestors) > 0 {
		c.Direct = ancestors[0]
	}
	if len(ancestors) > 1 {
		c.Indirect = ancestors[1]
	}
	return c, nil
}

// unbounded makes walk follow parent links to the root.
const unbounded = -1

// walk follows parent links up to depth hops. A link to a missing account or
// back onto the path ends the walk.
func walk(tx *gorm.DB, acc *models.Account, depth int, lock bool) ([]*models.Account, error) {
	seen := map[uint]bool{acc.ID: true}
	var path []*models.Account

	cur := acc
	for hop := 0; (depth == unbounded || hop < depth) && cur.ParentID != nil; hop++ {
		q := tx
		if lock {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var parent models.Account
		err := q.First(&parent, *cur.ParentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Debug("referrer missing, chain ends",
				zap.String("account", cur.Username),
				zap.Uint("parent_id", *cur.ParentID))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("resolve referrer of %s: %w", cur.Username, err)
		}
		if seen[parent.ID] {
			logger.Log.Warn("referral loop detected, chain ends",
				zap.String("account", cur.Username),
				zap.Uint("parent_id", parent.ID))
			break
		}
		seen[parent.ID] = true
		path = append(path, &parent)
		cur = &parent
	}
	return path, nil
}

// AssignParent sets child's referrer. An empty parent clears it. The
// assignment is refused when parent is child itself or a descendant of it,
// at any depth. Child and parent rows stay locked until commit, so two
// opposing assignments cannot both pass the check.
func AssignParent(ctx context.Context, db *gorm.DB, child, parent string) error {
	if child == "" {
		return apperr.Invalid("account is required")
	}
	if parent != "" && parent == child {
		return fmt.Errorf("%w: %s cannot refer itself", apperr.ErrReferralCycle, child)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := ledger.LockAccount(tx, child)
		if err != nil {
			return err
		}
		if parent == "" {
			return tx.Model(acc).Update("parent_id", nil).Error
		}

		p, err := ledger.LockAccount(tx, parent)
		if err != nil {
			return fmt.Errorf("parent %q: %w", parent, err)
		}
		ancestors, err := walk(tx, p, unbounded, false)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == acc.ID {
				return fmt.Errorf("%w: %s is an ancestor of %s", apperr.ErrReferralCycle, child, parent)
			}
		}
		return tx.Model(acc).Update("parent_id", p.ID).Error
	})
}
