package model

import "github.com/ethereum/go-ethereum/common"

// StakePosition is a user's locked stake. A stored position always has a
// positive Amount; "no position" is represented by absence.
type StakePosition struct {
	Owner        common.Address `json:"owner"`
	Amount       uint64         `json:"amount"`
	LockupEnd    uint64         `json:"lockup_end"`
	AccrualStart uint64         `json:"accrual_start"`
	StakedAt     uint64         `json:"staked_at"`
	// RewardCarry is the accrued fraction of a reward unit, in 1/1000 units,
	// not yet paid by the last claim.
	RewardCarry uint64 `json:"reward_carry" rlp:"optional"`
}

// Unlockable reports whether the lockup has elapsed at now.
func (p StakePosition) Unlockable(now uint64) bool {
	return now >= p.LockupEnd
}

// PendingReward is reward settled at unstake time and not yet claimed.
type PendingReward struct {
	Owner      common.Address `json:"owner"`
	Amount     uint64         `json:"amount"`
	RetainedAt uint64         `json:"retained_at"`
}
