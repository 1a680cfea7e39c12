package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFatal(t *testing.T) {
	fatal := fmt.Errorf("claim: %w", Invariant(ErrInsufficientRewardsVault))
	require.True(t, IsFatal(fatal))
	require.True(t, errors.Is(fatal, ErrInsufficientRewardsVault))

	require.False(t, IsFatal(fmt.Errorf("unstake: %w", ErrLockupNotExpired)))
	require.False(t, IsFatal(nil))
	require.Nil(t, Invariant(nil))
}

func TestAccountKey(t *testing.T) {
	acct := Account{Token: TokenLP}
	acct.Address[19] = 0xab
	require.Equal(t, "lp:0x00000000000000000000000000000000000000ab", acct.Key())

	tok, err := ParseToken(" Reward ")
	require.NoError(t, err)
	require.Equal(t, TokenReward, tok)

	_, err = ParseToken("gov")
	require.Error(t, err)
}

func TestCheckedAmounts(t *testing.T) {
	sum, err := AddAmount(1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, sum)

	_, err = AddAmount(^uint64(0), 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	diff, err := SubAmount(5, 5)
	require.NoError(t, err)
	require.Zero(t, diff)

	_, err = SubAmount(4, 5)
	require.ErrorIs(t, err, ErrArithmeticUnderflow)
}
