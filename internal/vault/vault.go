// Package vault moves fungible token balances on behalf of the staking
// program. All operations run inside the caller's storage transaction, so a
// failed operation leaves no partial transfer behind.
package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lpstaking/internal/model"
	"lpstaking/internal/storage"
)

const (
	LPVaultSeed      = "lp_vault"
	RewardsVaultSeed = "rewards_vault"
)

var derivationDomain = []byte("lpstaking/vault")

// Adapter is the token primitive surface the staking core depends on.
type Adapter interface {
	CreateVault(token model.Token, seed string) (model.Account, error)
	Transfer(from, to model.Account, amount uint64) error
	BalanceOf(acct model.Account) (uint64, error)
}

// DeriveAddress returns the deterministic address of a program-owned vault.
func DeriveAddress(program common.Address, seed string) common.Address {
	return common.BytesToAddress(crypto.Keccak256(derivationDomain, program.Bytes(), []byte(seed)))
}

// LPVault is the handle of the vault holding staked LP tokens.
func LPVault(program common.Address) model.Account {
	return model.Account{Token: model.TokenLP, Address: DeriveAddress(program, LPVaultSeed)}
}

// RewardsVault is the handle of the vault paying out reward tokens.
func RewardsVault(program common.Address) model.Account {
	return model.Account{Token: model.TokenReward, Address: DeriveAddress(program, RewardsVaultSeed)}
}

// UserAccount is the external token account of owner.
func UserAccount(token model.Token, owner common.Address) model.Account {
	return model.Account{Token: token, Address: owner}
}

// Bank is an Adapter over balance slots of a storage transaction.
type Bank struct {
	tx      storage.Tx
	program common.Address
}

func NewBank(tx storage.Tx, program common.Address) *Bank {
	return &Bank{tx: tx, program: program}
}

// CreateVault derives the vault address for seed and opens an empty balance
// slot for it. Creating an existing vault returns its handle unchanged.
func (b *Bank) CreateVault(token model.Token, seed string) (model.Account, error) {
	acct := model.Account{Token: token, Address: DeriveAddress(b.program, seed)}
	_, exists, err := b.tx.Balance(acct)
	if err != nil {
		return model.Account{}, err
	}
	if exists {
		return acct, nil
	}
	if err := b.tx.PutBalance(acct, 0); err != nil {
		return model.Account{}, fmt.Errorf("create vault %s: %w", seed, err)
	}
	return acct, nil
}

// Transfer moves amount from one account to another of the same token.
// Transfers to the source account are rejected.
func (b *Bank) Transfer(from, to model.Account, amount uint64) error {
	if from.Token != to.Token {
		return fmt.Errorf("transfer %s -> %s: token mismatch", from, to)
	}
	if from == to {
		return fmt.Errorf("transfer %s to itself: %w", from, model.ErrUnauthorized)
	}

	fromBal, err := b.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from, fromBal, model.ErrInsufficientFunds)
	}
	toBal, err := b.BalanceOf(to)
	if err != nil {
		return err
	}
	credited, err := model.AddAmount(toBal, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	if err := b.tx.PutBalance(from, fromBal-amount); err != nil {
		return err
	}
	return b.tx.PutBalance(to, credited)
}

// BalanceOf returns the balance of acct; unknown accounts hold zero.
func (b *Bank) BalanceOf(acct model.Account) (uint64, error) {
	amount, _, err := b.tx.Balance(acct)
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", acct, err)
	}
	return amount, nil
}

// Mint credits newly issued tokens to acct. It stands in for the external
// mint authority when funding accounts outside a real token program.
func (b *Bank) Mint(acct model.Account, amount uint64) error {
	bal, err := b.BalanceOf(acct)
	if err != nil {
		return err
	}
	credited, err := model.AddAmount(bal, amount)
	if err != nil {
		return fmt.Errorf("mint to %s: %w", acct, err)
	}
	return b.tx.PutBalance(acct, credited)
}
