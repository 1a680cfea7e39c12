package model

import "github.com/ethereum/go-ethereum/common"

const (
	EventInitialize          = "initialize"
	EventStake               = "stake"
	EventUnstake             = "unstake"
	EventClaimRewards        = "claim_rewards"
	EventFundRewards         = "fund_rewards"
	EventSetRewardRate       = "set_reward_rate"
	EventSetRewardMultiplier = "set_reward_multiplier"
)

// InitializeEvent is emitted once the pool record exists.
type InitializeEvent struct {
	Authority        common.Address `json:"authority"`
	RewardRate       uint64         `json:"reward_rate"`
	RewardMultiplier uint64         `json:"reward_multiplier"`
	SeedRewards      uint64         `json:"seed_rewards"`
}

// StakeEvent is the committed stake payload.
type StakeEvent struct {
	User         common.Address `json:"user"`
	Amount       uint64         `json:"amount"`
	LockupPeriod int64          `json:"lockup_period"`
	LockupEnd    uint64         `json:"lockup_end"`
	TotalStaked  uint64         `json:"total_staked"`
}

// UnstakeEvent is the committed unstake payload.
type UnstakeEvent struct {
	User           common.Address `json:"user"`
	Amount         uint64         `json:"amount"`
	RetainedReward uint64         `json:"retained_reward"`
	TotalStaked    uint64         `json:"total_staked"`
}

// ClaimRewardsEvent is the committed claim payload.
type ClaimRewardsEvent struct {
	User    common.Address `json:"user"`
	Rewards uint64         `json:"rewards"`
}

// FundRewardsEvent records reward tokens moved into the rewards vault.
type FundRewardsEvent struct {
	Funder common.Address `json:"funder"`
	Amount uint64         `json:"amount"`
}

// SetRewardRateEvent records a reward rate change.
type SetRewardRateEvent struct {
	NewRate uint64 `json:"new_rate"`
}

// SetRewardMultiplierEvent records a reward multiplier change.
type SetRewardMultiplierEvent struct {
	NewMultiplier uint64 `json:"new_multiplier"`
}

// EventRecord is the envelope written to event sinks.
type EventRecord struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Timestamp uint64      `json:"timestamp"`
	Data      interface{} `json:"data"`
}
