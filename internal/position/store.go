// Package position keeps each owner's stake position and the rewards retained
// for owners who unstaked before claiming.
package position

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

// Store addresses positions by owner within one storage transaction.
type Store struct {
	tx storage.Tx
}

func New(tx storage.Tx) *Store {
	return &Store{tx: tx}
}

// Get returns the owner's position; ok is false when the owner has none.
func (s *Store) Get(owner common.Address) (pos model.StakePosition, ok bool, err error) {
	pos, ok, err = s.tx.Position(owner)
	if err != nil {
		return model.StakePosition{}, false, fmt.Errorf("load position %s: %w", owner.Hex(), err)
	}
	return pos, ok, nil
}

// Upsert inserts or replaces a position. A zero amount is not a position.
func (s *Store) Upsert(pos model.StakePosition) error {
	if pos.Amount == 0 {
		return fmt.Errorf("position %s: %w", pos.Owner.Hex(), model.ErrInvalidAmount)
	}
	if err := s.tx.PutPosition(pos); err != nil {
		return fmt.Errorf("save position %s: %w", pos.Owner.Hex(), err)
	}
	return nil
}

// Remove deletes the owner's position or returns ErrNotFound.
func (s *Store) Remove(owner common.Address) error {
	return s.tx.DeletePosition(owner)
}

// Pending returns rewards retained for owner.
func (s *Store) Pending(owner common.Address) (model.PendingReward, bool, error) {
	pending, ok, err := s.tx.Pending(owner)
	if err != nil {
		return model.PendingReward{}, false, fmt.Errorf("load pending %s: %w", owner.Hex(), err)
	}
	return pending, ok, nil
}

// Retain adds amount to the owner's retained rewards. Nothing is stored for a
// zero amount.
func (s *Store) Retain(owner common.Address, amount, now uint64) (model.PendingReward, error) {
	pending, _, err := s.Pending(owner)
	if err != nil {
		return model.PendingReward{}, err
	}
	if amount == 0 {
		return pending, nil
	}
	total, err := model.AddAmount(pending.Amount, amount)
	if err != nil {
		return model.PendingReward{}, fmt.Errorf("retain reward: %w", err)
	}
	pending = model.PendingReward{Owner: owner, Amount: total, RetainedAt: now}
	if err := s.tx.PutPending(pending); err != nil {
		return model.PendingReward{}, fmt.Errorf("save pending %s: %w", owner.Hex(), err)
	}
	return pending, nil
}

// ClearPending drops retained rewards for owner.
func (s *Store) ClearPending(owner common.Address) error {
	return s.tx.DeletePending(owner)
}
