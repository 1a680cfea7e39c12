package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpdateCommitsRecords(t *testing.T) {
	store := newMemStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutPool(model.Pool{Authority: alice, RewardRate: 1, RewardMultiplier: 2, TotalStaked: 10, LPVaultBalance: 10}); err != nil {
			return err
		}
		if err := tx.PutPosition(model.StakePosition{Owner: bob, Amount: 10, LockupEnd: 100, AccrualStart: 5, RewardCarry: 750}); err != nil {
			return err
		}
		if err := tx.PutBalance(model.Account{Token: model.TokenLP, Address: bob}, 90); err != nil {
			return err
		}
		return tx.PutNonce(bob, 3)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(tx storage.Tx) error {
		pool, ok, err := tx.Pool()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, alice, pool.Authority)
		require.EqualValues(t, 10, pool.TotalStaked)

		pos, ok, err := tx.Position(bob)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 100, pos.LockupEnd)
		require.EqualValues(t, 750, pos.RewardCarry)

		_, ok, err = tx.Position(alice)
		require.NoError(t, err)
		require.False(t, ok)

		bal, ok, err := tx.Balance(model.Account{Token: model.TokenLP, Address: bob})
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 90, bal)

		_, ok, err = tx.Balance(model.Account{Token: model.TokenReward, Address: bob})
		require.NoError(t, err)
		require.False(t, ok)

		nonce, err := tx.Nonce(bob)
		require.NoError(t, err)
		require.EqualValues(t, 3, nonce)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store := newMemStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.PutPool(model.Pool{RewardRate: 9}))
		_, ok, err := tx.Pool()
		require.NoError(t, err)
		require.True(t, ok, "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.Pool()
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestDeletePositionMissing(t *testing.T) {
	store := newMemStore(t)
	err := store.Update(context.Background(), func(tx storage.Tx) error {
		return tx.DeletePosition(alice)
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestViewRejectsWrites(t *testing.T) {
	store := newMemStore(t)
	err := store.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutNonce(alice, 1)
	})
	require.ErrorIs(t, err, errReadOnlyTx)
}

func TestOpenFilePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Update(context.Background(), func(tx storage.Tx) error {
		return tx.PutPending(model.PendingReward{Owner: alice, Amount: 42, RetainedAt: 7})
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.View(context.Background(), func(tx storage.Tx) error {
		pending, ok, err := tx.Pending(alice)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 42, pending.Amount)
		return nil
	}))

	_, err = Open("  ")
	require.Error(t, err)
}
