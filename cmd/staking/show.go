package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"lpstaking/internal/auth"
	"lpstaking/internal/config"
	"lpstaking/internal/model"
	"lpstaking/internal/staking"
	"lpstaking/internal/vault"
)

const queryWindow = 60

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print pool, position, claimable or balance state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pool",
		Short: "Print the pool record and vault addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				pool, err := e.ctrl.Pool(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, struct {
					Program      common.Address `json:"program"`
					LPVault      common.Address `json:"lp_vault"`
					RewardsVault common.Address `json:"rewards_vault"`
					model.Pool
				}{
					Program:      e.cfg.Program,
					LPVault:      vault.LPVault(e.cfg.Program).Address,
					RewardsVault: vault.RewardsVault(e.cfg.Program).Address,
					Pool:         pool,
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "position",
		Short: "Print the signer's stake position and retained reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return signQuery(cmd, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				pos, ok, err := ctrl.Position(ctx, req)
				if err != nil {
					return nil, err
				}
				pending, _, err := ctrl.PendingReward(ctx, req)
				if err != nil {
					return nil, err
				}
				out := struct {
					Position *model.StakePosition `json:"position"`
					Pending  uint64               `json:"pending_reward"`
				}{Pending: pending.Amount}
				if ok {
					out.Position = &pos
				}
				return out, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "claimable",
		Short: "Print what a claim by the signer would pay now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return signQuery(cmd, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.Claimable(ctx, req)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <lp|reward> <address>",
		Short: "Print a token balance",
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
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				acct := vault.UserAccount(token, addr)
				balance, err := e.ctrl.Balance(ctx, acct)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", acct, balance)
				return err
			})
		},
	})

	return cmd
}

// signQuery signs a short-lived read of the key holder's own records.
func signQuery(cmd *cobra.Command, op func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error)) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		if e.cfg.Key == "" {
			return fmt.Errorf("key is required to read owner records")
		}
		key, err := auth.ParseKey(e.cfg.Key)
		if err != nil {
			return err
		}
		signed, err := auth.Sign(auth.NewQuery(e.ctrl.Now(), queryWindow), e.cfg.Program, key)
		if err != nil {
			return err
		}
		out, err := op(ctx, e.ctrl, signed)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	})
}
