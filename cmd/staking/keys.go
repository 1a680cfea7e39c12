package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"lpstaking/internal/config"
	"lpstaking/internal/model"
	"lpstaking/internal/vault"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"address": crypto.PubkeyToAddress(key.PublicKey).Hex(),
				"key":     hexutil.Encode(crypto.FromECDSA(key)),
			})
		},
	}
}

func newMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint <lp|reward> <address>",
		Short: "Credit tokens to an account (local deployments only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := model.ParseToken(args[0])
			if err != nil {
				return err
			}
			addr, err := config.ParseAddress(args[1])
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetUint64("amount")
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				acct := vault.UserAccount(token, addr)
				balance, err := e.ctrl.Mint(ctx, acct, amount)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", acct, balance)
				return err
			})
		},
	}
	cmd.Flags().Uint64("amount", 0, "tokens to mint")
	return cmd
}
