// Package reconcile compares the pool's vault mirrors with the ERC-20
// balances that the vault addresses hold on chain.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lpstaking/internal/model"
	"lpstaking/internal/vault"
)

// BalanceReader reads token balances of on-chain addresses at a given block.
type BalanceReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
	BalanceOf(ctx context.Context, token, owner common.Address, block uint64) (*big.Int, error)
}

// PoolSource yields the committed pool record.
type PoolSource interface {
	Pool(ctx context.Context) (model.Pool, error)
}

// Tokens maps each pool token to its ERC-20 contract.
type Tokens struct {
	LP     common.Address
	Reward common.Address
}

// Check is the comparison for a single vault.
type Check struct {
	Vault   string         `json:"vault"`
	Address common.Address `json:"address"`
	Token   common.Address `json:"token"`
	Ledger  uint64         `json:"ledger"`
	OnChain string         `json:"on_chain"`
	Match   bool           `json:"match"`
}

// Report collects the vault checks, all read at Block.
type Report struct {
	Program common.Address `json:"program"`
	Block   uint64         `json:"block"`
	Checks  []Check        `json:"checks"`
}

// Drifted reports whether any vault disagrees with its mirror.
func (r Report) Drifted() bool {
	for _, c := range r.Checks {
		if !c.Match {
			return true
		}
	}
	return false
}

type Reconciler struct {
	pools   PoolSource
	reader  BalanceReader
	tokens  Tokens
	program common.Address
	logger  *zap.Logger
}

func New(pools PoolSource, reader BalanceReader, tokens Tokens, program common.Address, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		pools:   pools,
		reader:  reader,
		tokens:  tokens,
		program: program,
		logger:  logger,
	}
}

// Run reads both vault balances concurrently at the current head block and
// compares them with the ledger mirrors.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return Report{}, err
	}
	block, err := r.reader.LatestBlock(ctx)
	if err != nil {
		return Report{}, err
	}
	r.logger.Info("reconcile at block", zap.Uint64("block", block))

	checks := []Check{
		{
			Vault:   vault.LPVaultSeed,
			Address: vault.LPVault(r.program).Address,
			Token:   r.tokens.LP,
			Ledger:  pool.LPVaultBalance,
		},
		{
			Vault:   vault.RewardsVaultSeed,
			Address: vault.RewardsVault(r.program).Address,
			Token:   r.tokens.Reward,
			Ledger:  pool.RewardsVaultBalance,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range checks {
		check := &checks[i]
		g.Go(func() error {
			bal, err := r.reader.BalanceOf(gctx, check.Token, check.Address, block)
			if err != nil {
				return fmt.Errorf("%s: %w", check.Vault, err)
			}
			check.OnChain = bal.String()
			onChain, overflow := uint256.FromBig(bal)
			check.Match = !overflow && onChain.IsUint64() && onChain.Uint64() == check.Ledger
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Program: r.program, Block: block, Checks: checks}
	for _, c := range report.Checks {
		if c.Match {
			r.logger.Info("vault reconciled", zap.String("vault", c.Vault), zap.Uint64("balance", c.Ledger))
			continue
		}
		r.logger.Warn("vault drift",
			zap.String("vault", c.Vault),
			zap.String("address", c.Address.Hex()),
			zap.Uint64("ledger", c.Ledger),
			zap.String("on_chain", c.OnChain),
		)
	}
	return report, nil
}
