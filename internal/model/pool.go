package model

import "github.com/ethereum/go-ethereum/common"

// Pool is the singleton record holding staking parameters and vault mirrors.
type Pool struct {
	Authority           common.Address `json:"authority"`
	RewardRate          uint64         `json:"reward_rate"`
	RewardMultiplier    uint64         `json:"reward_multiplier"`
	TotalStaked         uint64         `json:"total_staked"`
	LPVaultBalance      uint64         `json:"lp_vault_balance"`
	RewardsVaultBalance uint64         `json:"rewards_vault_balance"`
	LastUpdateTime      uint64         `json:"last_update_time"`
	CreatedAt           uint64         `json:"created_at"`
}
