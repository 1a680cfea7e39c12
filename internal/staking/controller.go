// Package staking orchestrates pool initialization, staking, unstaking and
// reward claims. Each operation commits as one storage transaction covering
// the pool ledger, the position store and the token vaults.
package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpstaking/internal/auth"
	"lpstaking/internal/metrics"
	"lpstaking/internal/model"
	"lpstaking/internal/storage"
	"lpstaking/internal/vault"
)

// Config holds controller settings.
type Config struct {
	// Program is the deployment identity. Vault addresses are derived from it
	// and signed requests are bound to it.
	Program common.Address
}

// Controller is the single entry point for staking operations.
type Controller struct {
	cfg     Config
	store   storage.Store
	clock   Clock
	events  storage.EventSink
	metrics *metrics.StakingMetrics
	logger  *zap.Logger
}

// NewController builds a Controller with its dependencies.
func NewController(cfg Config, store storage.Store, clock Clock, events storage.EventSink, m *metrics.StakingMetrics, logger *zap.Logger) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if events == nil {
		events = storage.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		store:   store,
		clock:   clock,
		events:  events,
		metrics: m,
		logger:  logger,
	}
}

// Program returns the deployment identity requests must be signed for.
func (c *Controller) Program() common.Address {
	return c.cfg.Program
}

// UnstakeResult describes a completed unstake.
type UnstakeResult struct {
	Amount         uint64 `json:"amount"`
	RetainedReward uint64 `json:"retained_reward"`
}

// Initialize creates the pool. req.Rate and req.Multiplier set the reward
// parameters; a positive req.Amount seeds the rewards vault from the caller's
// reward-token account. The caller becomes the pool authority.
func (c *Controller) Initialize(ctx context.Context, req auth.Request) (model.Pool, error) {
	var pool model.Pool
	err := c.run(ctx, model.EventInitialize, req, auth.ActionInitialize, func(t *txn, owner common.Address) error {
		var err error
		pool, err = t.ledger.Initialize(owner, req.Rate, req.Multiplier)
		if err != nil {
			return err
		}
		if req.Amount > 0 {
			if pool, err = t.fundRewards(owner, req.Amount); err != nil {
				return err
			}
		}
		t.emit(model.EventInitialize, model.InitializeEvent{
			Authority:        owner,
			RewardRate:       req.Rate,
			RewardMultiplier: req.Multiplier,
			SeedRewards:      req.Amount,
		})
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}

	c.logger.Info("pool initialized",
		zap.String("authority", pool.Authority.Hex()),
		zap.Uint64("reward_rate", pool.RewardRate),
		zap.Uint64("reward_multiplier", pool.RewardMultiplier),
		zap.Uint64("seed_rewards", req.Amount),
	)
	return pool, nil
}

// Stake locks req.Amount LP tokens for req.Lockup seconds. An owner holds at
// most one position; staking again before unstaking fails with
// ErrPositionExists.
func (c *Controller) Stake(ctx context.Context, req auth.Request) (model.StakePosition, error) {
	if req.Amount == 0 {
		return model.StakePosition{}, fmt.Errorf("%s: %w", model.EventStake, model.ErrInvalidAmount)
	}
	if req.Lockup < 0 {
		return model.StakePosition{}, fmt.Errorf("%s: %w", model.EventStake, model.ErrInvalidLockup)
	}

	var pos model.StakePosition
	err := c.run(ctx, model.EventStake, req, auth.ActionStake, func(t *txn, owner common.Address) error {
		if _, err := t.ledger.Pool(); err != nil {
			return err
		}
		_, exists, err := t.positions.Get(owner)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrPositionExists
		}

		lockupEnd, err := model.AddAmount(t.now, uint64(req.Lockup))
		if err != nil {
			return fmt.Errorf("lockup end: %w", err)
		}
		if err := t.bank.Transfer(vault.UserAccount(model.TokenLP, owner), vault.LPVault(c.cfg.Program), req.Amount); err != nil {
			return err
		}

		pos = model.StakePosition{
			Owner:        owner,
			Amount:       req.Amount,
			LockupEnd:    lockupEnd,
			AccrualStart: t.now,
			StakedAt:     t.now,
		}
		if err := t.positions.Upsert(pos); err != nil {
			return err
		}
		pool, err := t.ledger.RecordStake(req.Amount)
		if err != nil {
			return err
		}

		t.emit(model.EventStake, model.StakeEvent{
			User:         owner,
			Amount:       req.Amount,
			LockupPeriod: req.Lockup,
			LockupEnd:    lockupEnd,
			TotalStaked:  pool.TotalStaked,
		})
		return nil
	})
	if err != nil {
		return model.StakePosition{}, err
	}

	c.logger.Info("stake committed",
		zap.String("owner", pos.Owner.Hex()),
		zap.Uint64("amount", pos.Amount),
		zap.Uint64("lockup_end", pos.LockupEnd),
	)
	return pos, nil
}

// Unstake returns the caller's LP tokens once the lockup has ended. Reward
// accrued up to now is retained for a later Claim.
func (c *Controller) Unstake(ctx context.Context, req auth.Request) (UnstakeResult, error) {
	var (
		owner  common.Address
		result UnstakeResult
	)
	err := c.run(ctx, model.EventUnstake, req, auth.ActionUnstake, func(t *txn, signer common.Address) error {
		owner = signer
		pool, err := t.ledger.Pool()
		if err != nil {
			return err
		}
		pos, exists, err := t.positions.Get(owner)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("position %s: %w", owner.Hex(), model.ErrNotFound)
		}
		if !pos.Unlockable(t.now) {
			return fmt.Errorf("lockup ends at %d, now %d: %w", pos.LockupEnd, t.now, model.ErrLockupNotExpired)
		}

		// The sub-unit carry closes with the position.
		accrued, _, err := accruedReward(pos, pool, t.now)
		if err != nil {
			return err
		}
		if _, err := t.positions.Retain(owner, accrued, t.now); err != nil {
			return err
		}
		if err := t.bank.Transfer(vault.LPVault(c.cfg.Program), vault.UserAccount(model.TokenLP, owner), pos.Amount); err != nil {
			return model.Invariant(fmt.Errorf("release stake: %w", err))
		}
		pool, err = t.ledger.RecordUnstake(pos.Amount)
		if err != nil {
			return err
		}
		if err := t.positions.Remove(owner); err != nil {
			return err
		}

		result = UnstakeResult{Amount: pos.Amount, RetainedReward: accrued}
		t.emit(model.EventUnstake, model.UnstakeEvent{
			User:           owner,
			Amount:         pos.Amount,
			RetainedReward: accrued,
			TotalStaked:    pool.TotalStaked,
		})
		return nil
	})
	if err != nil {
		return UnstakeResult{}, err
	}

	c.logger.Info("unstake committed",
		zap.String("owner", owner.Hex()),
		zap.Uint64("amount", result.Amount),
		zap.Uint64("retained_reward", result.RetainedReward),
	)
	return result, nil
}

// Claim pays out rewards retained from a prior unstake plus the accrual of the
// live position since its last settlement, then resets the accrual baseline.
func (c *Controller) Claim(ctx context.Context, req auth.Request) (uint64, error) {
	var (
		owner common.Address
		paid  uint64
	)
	err := c.run(ctx, model.EventClaimRewards, req, auth.ActionClaim, func(t *txn, signer common.Address) error {
		owner = signer
		pool, err := t.ledger.Pool()
		if err != nil {
			return err
		}
		pos, hasPosition, err := t.positions.Get(owner)
		if err != nil {
			return err
		}
		pending, hasPending, err := t.positions.Pending(owner)
		if err != nil {
			return err
		}

		var accrued, carry uint64
		if hasPosition {
			if accrued, carry, err = accruedReward(pos, pool, t.now); err != nil {
				return err
			}
		}
		total, err := model.AddAmount(pending.Amount, accrued)
		if err != nil {
			return fmt.Errorf("claimable: %w", err)
		}
		if total == 0 {
			return model.ErrNothingToClaim
		}

		if _, err := t.ledger.RecordRewardsPaid(total); err != nil {
			return err
		}
		if err := t.bank.Transfer(vault.RewardsVault(c.cfg.Program), vault.UserAccount(model.TokenReward, owner), total); err != nil {
			return model.Invariant(fmt.Errorf("pay rewards: %w", err))
		}
		if hasPosition {
			pos.AccrualStart = t.now
			pos.RewardCarry = carry
			if err := t.positions.Upsert(pos); err != nil {
				return err
			}
		}
		if hasPending {
			if err := t.positions.ClearPending(owner); err != nil {
				return err
			}
		}

		paid = total
		t.emit(model.EventClaimRewards, model.ClaimRewardsEvent{User: owner, Rewards: total})
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.metrics.ObserveRewardsPaid(paid)
	c.logger.Info("claim committed", zap.String("owner", owner.Hex()), zap.Uint64("rewards", paid))
	return paid, nil
}

// FundRewards moves req.Amount reward tokens from the caller into the rewards
// vault.
func (c *Controller) FundRewards(ctx context.Context, req auth.Request) (model.Pool, error) {
	if req.Amount == 0 {
		return model.Pool{}, fmt.Errorf("%s: %w", model.EventFundRewards, model.ErrInvalidAmount)
	}
	var pool model.Pool
	err := c.run(ctx, model.EventFundRewards, req, auth.ActionFundRewards, func(t *txn, owner common.Address) error {
		var err error
		if pool, err = t.fundRewards(owner, req.Amount); err != nil {
			return err
		}
		t.emit(model.EventFundRewards, model.FundRewardsEvent{Funder: owner, Amount: req.Amount})
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}
	c.logger.Info("rewards funded", zap.Uint64("amount", req.Amount), zap.Uint64("rewards_vault", pool.RewardsVaultBalance))
	return pool, nil
}

// SetRewardRate replaces the pool reward rate. Only the pool authority may
// call it.
func (c *Controller) SetRewardRate(ctx context.Context, req auth.Request) (model.Pool, error) {
	var pool model.Pool
	err := c.run(ctx, model.EventSetRewardRate, req, auth.ActionSetRewardRate, func(t *txn, owner common.Address) error {
		if err := t.requireAuthority(owner); err != nil {
			return err
		}
		var err error
		if pool, err = t.ledger.SetRewardRate(req.Rate); err != nil {
			return err
		}
		t.emit(model.EventSetRewardRate, model.SetRewardRateEvent{NewRate: req.Rate})
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}
	c.logger.Info("reward rate updated", zap.Uint64("reward_rate", pool.RewardRate))
	return pool, nil
}

// SetRewardMultiplier replaces the pool reward multiplier. Only the pool
// authority may call it.
func (c *Controller) SetRewardMultiplier(ctx context.Context, req auth.Request) (model.Pool, error) {
	var pool model.Pool
	err := c.run(ctx, model.EventSetRewardMultiplier, req, auth.ActionSetRewardMultiplier, func(t *txn, owner common.Address) error {
		if err := t.requireAuthority(owner); err != nil {
			return err
		}
		var err error
		if pool, err = t.ledger.SetRewardMultiplier(req.Multiplier); err != nil {
			return err
		}
		t.emit(model.EventSetRewardMultiplier, model.SetRewardMultiplierEvent{NewMultiplier: req.Multiplier})
		return nil
	})
	if err != nil {
		return model.Pool{}, err
	}
	c.logger.Info("reward multiplier updated", zap.Uint64("reward_multiplier", pool.RewardMultiplier))
	return pool, nil
}

// Mint credits tokens to an external account. It is the funding hook for
// local deployments that have no separate token program; program vaults can
// only be funded through FundRewards or Stake.
func (c *Controller) Mint(ctx context.Context, acct model.Account, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("mint: %w", model.ErrInvalidAmount)
	}
	if acct == vault.LPVault(c.cfg.Program) || acct == vault.RewardsVault(c.cfg.Program) {
		return 0, fmt.Errorf("mint into program vault %s: %w", acct, model.ErrUnauthorized)
	}
	var balance uint64
	err := c.update(ctx, "mint", func(t *txn) error {
		if err := t.bank.Mint(acct, amount); err != nil {
			return err
		}
		var err error
		balance, err = t.bank.BalanceOf(acct)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("minted", zap.String("account", acct.String()), zap.Uint64("amount", amount))
	return balance, nil
}
