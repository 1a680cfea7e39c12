// Package ledger maintains the singleton pool record: reward parameters, the
// total staked amount and mirrors of the two vault balances.
package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
	"lpstaking/internal/vault"
)

// Ledger mutates the pool record inside one storage transaction. It is only
// valid for the lifetime of that transaction.
type Ledger struct {
	tx     storage.Tx
	vaults vault.Adapter
	now    uint64
}

func New(tx storage.Tx, vaults vault.Adapter, now uint64) *Ledger {
	return &Ledger{tx: tx, vaults: vaults, now: now}
}

// Initialize creates the pool record and both vaults.
func (l *Ledger) Initialize(authority common.Address, rewardRate, rewardMultiplier uint64) (model.Pool, error) {
	_, exists, err := l.tx.Pool()
	if err != nil {
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if exists {
		return model.Pool{}, model.ErrAlreadyInitialized
	}

	if _, err := l.vaults.CreateVault(model.TokenLP, vault.LPVaultSeed); err != nil {
		return model.Pool{}, fmt.Errorf("create lp vault: %w", err)
	}
	if _, err := l.vaults.CreateVault(model.TokenReward, vault.RewardsVaultSeed); err != nil {
		return model.Pool{}, fmt.Errorf("create rewards vault: %w", err)
	}

	pool := model.Pool{
		Authority:        authority,
		RewardRate:       rewardRate,
		RewardMultiplier: rewardMultiplier,
		LastUpdateTime:   l.now,
		CreatedAt:        l.now,
	}
	if err := l.tx.PutPool(pool); err != nil {
		return model.Pool{}, fmt.Errorf("save pool: %w", err)
	}
	return pool, nil
}

// Pool returns the pool record or ErrNotInitialized.
func (l *Ledger) Pool() (model.Pool, error) {
	pool, ok, err := l.tx.Pool()
	if err != nil {
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if !ok {
		return model.Pool{}, model.ErrNotInitialized
	}
	return pool, nil
}

// RecordStake adds amount to the total staked and the LP vault mirror.
func (l *Ledger) RecordStake(amount uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		total, err := model.AddAmount(pool.TotalStaked, amount)
		if err != nil {
			return fmt.Errorf("total staked: %w", err)
		}
		lpVault, err := model.AddAmount(pool.LPVaultBalance, amount)
		if err != nil {
			return fmt.Errorf("lp vault: %w", err)
		}
		pool.TotalStaked, pool.LPVaultBalance = total, lpVault
		return nil
	})
}

// RecordUnstake removes amount from the total staked and the LP vault mirror.
func (l *Ledger) RecordUnstake(amount uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		total, err := model.SubAmount(pool.TotalStaked, amount)
		if err != nil {
			return fmt.Errorf("total staked: %w", err)
		}
		lpVault, err := model.SubAmount(pool.LPVaultBalance, amount)
		if err != nil {
			return fmt.Errorf("lp vault: %w", err)
		}
		pool.TotalStaked, pool.LPVaultBalance = total, lpVault
		return nil
	})
}

// RecordRewardsFunded adds amount to the rewards vault mirror.
func (l *Ledger) RecordRewardsFunded(amount uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		rewards, err := model.AddAmount(pool.RewardsVaultBalance, amount)
		if err != nil {
			return fmt.Errorf("rewards vault: %w", err)
		}
		pool.RewardsVaultBalance = rewards
		return nil
	})
}

// RecordRewardsPaid removes amount from the rewards vault mirror. A vault too
// small to cover an accrued reward means the pool was configured with a rate
// its funding cannot sustain.
func (l *Ledger) RecordRewardsPaid(amount uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		if pool.RewardsVaultBalance < amount {
			return model.Invariant(fmt.Errorf("reward %d exceeds vault balance %d: %w",
				amount, pool.RewardsVaultBalance, model.ErrInsufficientRewardsVault))
		}
		pool.RewardsVaultBalance -= amount
		return nil
	})
}

// SetRewardRate replaces the reward rate.
func (l *Ledger) SetRewardRate(rate uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		pool.RewardRate = rate
		return nil
	})
}

// SetRewardMultiplier replaces the reward multiplier.
func (l *Ledger) SetRewardMultiplier(multiplier uint64) (model.Pool, error) {
	return l.mutate(func(pool *model.Pool) error {
		pool.RewardMultiplier = multiplier
		return nil
	})
}

// CheckVaults verifies the pool mirrors against the vault adapter.
func (l *Ledger) CheckVaults(pool model.Pool, program common.Address) error {
	if pool.LPVaultBalance != pool.TotalStaked {
		return model.Invariant(fmt.Errorf("lp vault mirror %d != total staked %d", pool.LPVaultBalance, pool.TotalStaked))
	}
	lpVault, err := l.vaults.BalanceOf(vault.LPVault(program))
	if err != nil {
		return err
	}
	if lpVault != pool.LPVaultBalance {
		return model.Invariant(fmt.Errorf("lp vault balance %d != mirror %d", lpVault, pool.LPVaultBalance))
	}
	rewards, err := l.vaults.BalanceOf(vault.RewardsVault(program))
	if err != nil {
		return err
	}
	if rewards != pool.RewardsVaultBalance {
		return model.Invariant(fmt.Errorf("rewards vault balance %d != mirror %d", rewards, pool.RewardsVaultBalance))
	}
	return nil
}

func (l *Ledger) mutate(fn func(pool *model.Pool) error) (model.Pool, error) {
	pool, err := l.Pool()
	if err != nil {
		return model.Pool{}, err
	}
	if err := fn(&pool); err != nil {
		return model.Pool{}, err
	}
	if l.now > pool.LastUpdateTime {
		pool.LastUpdateTime = l.now
	}
	if err := l.tx.PutPool(pool); err != nil {
		return model.Pool{}, fmt.Errorf("save pool: %w", err)
	}
	return pool, nil
}
