package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func loadERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

// Reader is the subset of Client that TokenReader needs.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// TokenReader reads ERC-20 vault balances. Every read names the block it is
// taken at so that several balances describe one chain state.
type TokenReader struct {
	client     Reader
	maxRetries int
	baseDelay  time.Duration
}

func NewTokenReader(client Reader, maxRetries int, baseDelay time.Duration) *TokenReader {
	return &TokenReader{client: client, maxRetries: maxRetries, baseDelay: baseDelay}
}

// LatestBlock returns the current head block number.
func (r *TokenReader) LatestBlock(ctx context.Context) (uint64, error) {
	if r.client == nil {
		return 0, errors.New("chain client is nil")
	}
	var block uint64
	err := withRetry(ctx, r.maxRetries, r.baseDelay, func(ctx context.Context) error {
		var err error
		block, err = r.client.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	return block, nil
}

// BalanceOf returns owner's balance of token as of block.
func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address, block uint64) (*big.Int, error) {
	if r.client == nil {
		return nil, errors.New("chain client is nil")
	}
	data, err := packBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	at := new(big.Int).SetUint64(block)

	var bal *big.Int
	err = withRetry(ctx, r.maxRetries, r.baseDelay, func(ctx context.Context) error {
		resp, err := r.client.CallContract(ctx, msg, at)
		if err != nil {
			return err
		}
		bal, err = unpackBalance(resp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s on %s at block %d: %w", owner.Hex(), token.Hex(), block, err)
	}
	return bal, nil
}

func packBalanceOf(owner common.Address) ([]byte, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, permanent(err)
	}
	data, err := parsed.Pack("balanceOf", owner)
	if err != nil {
		return nil, permanent(fmt.Errorf("pack balanceOf: %w", err))
	}
	return data, nil
}

// unpackBalance decodes a balanceOf result. A malformed result is permanent:
// an address without the ERC-20 method answers the same way every time.
func unpackBalance(resp []byte) (*big.Int, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, permanent(err)
	}
	values, err := parsed.Unpack("balanceOf", resp)
	if err != nil {
		return nil, permanent(fmt.Errorf("unpack balanceOf: %w", err))
	}
	if len(values) != 1 {
		return nil, permanent(fmt.Errorf("balanceOf returned %d values", len(values)))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, permanent(fmt.Errorf("balanceOf returned %T", values[0]))
	}
	return bal, nil
}
