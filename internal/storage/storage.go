package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"lpstaking/internal/model"
)

// Tx is a unit of work over persisted staking state. Writes made through a Tx
// become visible only when the enclosing Update returns nil.
type Tx interface {
	Pool() (model.Pool, bool, error)
	PutPool(pool model.Pool) error

	Position(owner common.Address) (model.StakePosition, bool, error)
	PutPosition(pos model.StakePosition) error
	// DeletePosition returns model.ErrNotFound when no position exists.
	DeletePosition(owner common.Address) error

	Pending(owner common.Address) (model.PendingReward, bool, error)
	PutPending(pending model.PendingReward) error
	DeletePending(owner common.Address) error

	Balance(acct model.Account) (uint64, bool, error)
	PutBalance(acct model.Account, amount uint64) error

	Nonce(owner common.Address) (uint64, error)
	PutNonce(owner common.Address, nonce uint64) error
}

// Store runs transactions. Update is serializable: concurrent Updates observe
// each other's effects either fully or not at all.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// EventSink receives committed staking events.
type EventSink interface {
	PutEventBatch(events []model.EventRecord) error
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) PutEventBatch([]model.EventRecord) error { return nil }
