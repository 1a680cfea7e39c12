package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	failures int
	failWith error
	garbage  bool
	head     uint64
	calls    int
	blocks   []uint64
	balances map[common.Address]*big.Int
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, f.failure()
	}
	return f.head, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.failure()
	}
	f.blocks = append(f.blocks, blockNumber.Uint64())
	if f.garbage {
		return []byte{}, nil
	}
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, err
	}
	args, err := parsed.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	bal, ok := f.balances[args[0].(common.Address)]
	if !ok {
		bal = new(big.Int)
	}
	return parsed.Methods["balanceOf"].Outputs.Pack(bal)
}

func (f *fakeChain) failure() error {
	if f.failWith != nil {
		return f.failWith
	}
	return errors.New("connection reset")
}

type codeError struct {
	code int
}

func (e codeError) Error() string  { return fmt.Sprintf("rpc error %d", e.code) }
func (e codeError) ErrorCode() int { return e.code }

var (
	owner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	token = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestTokenReaderBalanceOf(t *testing.T) {
	client := &fakeChain{failures: 2, balances: map[common.Address]*big.Int{owner: big.NewInt(42)}}

	reader := NewTokenReader(client, 3, time.Millisecond)
	bal, err := reader.BalanceOf(context.Background(), token, owner, 1234)
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(big.NewInt(42)))
	require.Equal(t, 3, client.calls)
	require.Equal(t, []uint64{1234}, client.blocks)
}

func TestTokenReaderLatestBlock(t *testing.T) {
	client := &fakeChain{failures: 1, head: 19_000_000}

	block, err := NewTokenReader(client, 2, time.Millisecond).LatestBlock(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 19_000_000, block)
	require.Equal(t, 2, client.calls)
}

func TestTokenReaderGivesUp(t *testing.T) {
	client := &fakeChain{failures: 10}
	reader := NewTokenReader(client, 1, time.Millisecond)

	_, err := reader.BalanceOf(context.Background(), common.Address{}, common.Address{}, 1)
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 2, client.calls)
}

func TestTokenReaderDoesNotRetryFinalErrors(t *testing.T) {
	client := &fakeChain{garbage: true}
	_, err := NewTokenReader(client, 5, time.Millisecond).BalanceOf(context.Background(), token, owner, 7)
	require.ErrorContains(t, err, "unpack balanceOf")
	require.Equal(t, 1, client.calls, "an undecodable result is not retried")

	reverted := &fakeChain{failures: 10, failWith: codeError{code: 3}}
	_, err = NewTokenReader(reverted, 5, time.Millisecond).BalanceOf(context.Background(), token, owner, 7)
	require.Error(t, err)
	require.Equal(t, 1, reverted.calls, "a node error is not retried")

	limited := &fakeChain{failures: 2, failWith: codeError{code: codeLimitExceeded}}
	_, err = NewTokenReader(limited, 5, time.Millisecond).BalanceOf(context.Background(), token, owner, 7)
	require.NoError(t, err)
	require.Equal(t, 3, limited.calls)
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", errors.New("connection reset"), true},
		{"http 429", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, true},
		{"http 502", fmt.Errorf("call: %w", rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}), true},
		{"http 401", rpc.HTTPError{StatusCode: 401, Status: "401 Unauthorized"}, false},
		{"rate limited", codeError{code: codeLimitExceeded}, true},
		{"reverted", codeError{code: 3}, false},
		{"permanent", permanent(errors.New("pack balanceOf")), false},
		{"wrapped permanent", fmt.Errorf("read: %w", permanent(errors.New("bad"))), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, transient(tc.err))
		})
	}
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		return errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
}
