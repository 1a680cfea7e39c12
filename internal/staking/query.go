package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpstaking/internal/auth"
	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

// Claimable breaks down what a Claim would pay right now.
type Claimable struct {
	Pending uint64 `json:"pending"`
	Accrued uint64 `json:"accrued"`
	Total   uint64 `json:"total"`
}

// Now returns the controller clock reading, which bounds query expiries.
func (c *Controller) Now() uint64 {
	return c.clock.Now()
}

// Pool returns the committed pool record.
func (c *Controller) Pool(ctx context.Context) (model.Pool, error) {
	var pool model.Pool
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var ok bool
		var err error
		pool, ok, err = tx.Pool()
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotInitialized
		}
		return nil
	})
	return pool, err
}

// viewOwn authenticates a signed query and runs fn against the signer's own
// records. Positions are private to their owner.
func (c *Controller) viewOwn(ctx context.Context, op string, req auth.Request, fn func(tx storage.Tx, owner common.Address, now uint64) error) error {
	now := c.clock.Now()
	owner, err := auth.AuthenticateQuery(req, c.cfg.Program, now)
	if err != nil {
		c.logger.Debug("query rejected", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.store.View(ctx, func(tx storage.Tx) error {
		return fn(tx, owner, now)
	})
}

// Position returns the signer's position; ok is false when there is none.
func (c *Controller) Position(ctx context.Context, req auth.Request) (pos model.StakePosition, ok bool, err error) {
	err = c.viewOwn(ctx, "position", req, func(tx storage.Tx, owner common.Address, _ uint64) error {
		pos, ok, err = tx.Position(owner)
		return err
	})
	return pos, ok, err
}

// PendingReward returns the reward retained for the signer by earlier
// unstakes.
func (c *Controller) PendingReward(ctx context.Context, req auth.Request) (pending model.PendingReward, ok bool, err error) {
	err = c.viewOwn(ctx, "pending_reward", req, func(tx storage.Tx, owner common.Address, _ uint64) error {
		pending, ok, err = tx.Pending(owner)
		return err
	})
	return pending, ok, err
}

// Claimable returns the signer's retained and accrued rewards as of now.
func (c *Controller) Claimable(ctx context.Context, req auth.Request) (Claimable, error) {
	var out Claimable
	err := c.viewOwn(ctx, "claimable", req, func(tx storage.Tx, owner common.Address, now uint64) error {
		pool, ok, err := tx.Pool()
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotInitialized
		}
		pending, _, err := tx.Pending(owner)
		if err != nil {
			return err
		}
		out.Pending = pending.Amount

		pos, hasPosition, err := tx.Position(owner)
		if err != nil {
			return err
		}
		if hasPosition {
			if out.Accrued, _, err = accruedReward(pos, pool, now); err != nil {
				return err
			}
		}
		if out.Total, err = model.AddAmount(out.Pending, out.Accrued); err != nil {
			return fmt.Errorf("claimable: %w", err)
		}
		return nil
	})
	return out, err
}

// Balance returns the token balance of acct. Token balances are public.
func (c *Controller) Balance(ctx context.Context, acct model.Account) (uint64, error) {
	var amount uint64
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		amount, _, err = tx.Balance(acct)
		return err
	})
	return amount, err
}

// Nonce returns the last nonce accepted from owner.
func (c *Controller) Nonce(ctx context.Context, owner common.Address) (uint64, error) {
	var nonce uint64
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		nonce, err = tx.Nonce(owner)
		return err
	})
	return nonce, err
}
