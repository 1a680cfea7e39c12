package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lpstaking/internal/auth"
	"lpstaking/internal/ledger"
	"lpstaking/internal/model"
	"lpstaking/internal/position"
	"lpstaking/internal/reward"
	"lpstaking/internal/storage"
	"lpstaking/internal/vault"
)

// txn bundles the components bound to one storage transaction.
type txn struct {
	program   common.Address
	tx        storage.Tx
	now       uint64
	bank      *vault.Bank
	ledger    *ledger.Ledger
	positions *position.Store
	events    []model.EventRecord
}

func (c *Controller) newTxn(tx storage.Tx, now uint64) *txn {
	bank := vault.NewBank(tx, c.cfg.Program)
	return &txn{
		program:   c.cfg.Program,
		tx:        tx,
		now:       now,
		bank:      bank,
		ledger:    ledger.New(tx, bank, now),
		positions: position.New(tx),
	}
}

func (t *txn) emit(name string, data interface{}) {
	t.events = append(t.events, model.EventRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: t.now,
		Data:      data,
	})
}

func (t *txn) fundRewards(funder common.Address, amount uint64) (model.Pool, error) {
	if err := t.bank.Transfer(vault.UserAccount(model.TokenReward, funder), vault.RewardsVault(t.program), amount); err != nil {
		return model.Pool{}, err
	}
	return t.ledger.RecordRewardsFunded(amount)
}

func (t *txn) requireAuthority(caller common.Address) error {
	pool, err := t.ledger.Pool()
	if err != nil {
		return err
	}
	if pool.Authority != caller {
		return fmt.Errorf("%s is not the pool authority: %w", caller.Hex(), model.ErrUnauthorized)
	}
	return nil
}

// useNonce accepts nonce only if it is above the owner's last accepted one.
func (t *txn) useNonce(owner common.Address, nonce uint64) error {
	last, err := t.tx.Nonce(owner)
	if err != nil {
		return fmt.Errorf("load nonce: %w", err)
	}
	if nonce <= last {
		return fmt.Errorf("nonce %d not above %d: %w", nonce, last, model.ErrUnauthorized)
	}
	return t.tx.PutNonce(owner, nonce)
}

// accruedReward settles pos up to now. carry is the fractional remainder to
// store on the position if the reward is paid.
func accruedReward(pos model.StakePosition, pool model.Pool, now uint64) (amount, carry uint64, err error) {
	return reward.Accrue(pos.Amount, pool.RewardRate, pool.RewardMultiplier, reward.Elapsed(pos.AccrualStart, now), pos.RewardCarry)
}

// run authenticates req, consumes its nonce and executes fn atomically.
func (c *Controller) run(ctx context.Context, op string, req auth.Request, action auth.Action, fn func(t *txn, owner common.Address) error) error {
	owner, err := auth.Authenticate(req, c.cfg.Program, action)
	if err != nil {
		c.metrics.ObserveOperation(op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.update(ctx, op, func(t *txn) error {
		if err := t.useNonce(owner, req.Nonce); err != nil {
			return err
		}
		return fn(t, owner)
	})
}

// update executes fn in one storage transaction and verifies the vault
// mirrors before commit. Events are published only after a successful commit.
func (c *Controller) update(ctx context.Context, op string, fn func(t *txn) error) error {
	now := c.clock.Now()

	var (
		events  []model.EventRecord
		pool    model.Pool
		hasPool bool
	)
	err := c.store.Update(ctx, func(tx storage.Tx) error {
		t := c.newTxn(tx, now)
		if err := fn(t); err != nil {
			return err
		}
		p, ok, err := tx.Pool()
		if err != nil {
			return fmt.Errorf("load pool: %w", err)
		}
		if ok {
			if err := t.ledger.CheckVaults(p, c.cfg.Program); err != nil {
				return err
			}
		}
		events, pool, hasPool = t.events, p, ok
		return nil
	})
	c.metrics.ObserveOperation(op, err)
	if err != nil {
		if model.IsFatal(err) {
			c.logger.Error("invariant violation", zap.String("op", op), zap.Error(err))
		} else {
			c.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if hasPool {
		c.metrics.ObservePool(pool)
	}
	if err := c.events.PutEventBatch(events); err != nil {
		c.logger.Warn("publish events", zap.String("op", op), zap.Error(err))
	}
	return nil
}
