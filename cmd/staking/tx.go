package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"lpstaking/internal/auth"
	"lpstaking/internal/staking"
)

// signAndRun signs req with the configured key using the owner's next nonce
// and passes it to op.
func signAndRun(cmd *cobra.Command, req auth.Request, op func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error)) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		if e.cfg.Key == "" {
			return fmt.Errorf("key is required to sign %s", req.Action)
		}
		key, err := auth.ParseKey(e.cfg.Key)
		if err != nil {
			return err
		}
		owner := crypto.PubkeyToAddress(key.PublicKey)
		last, err := e.ctrl.Nonce(ctx, owner)
		if err != nil {
			return fmt.Errorf("load nonce: %w", err)
		}
		req.Nonce = last + 1

		signed, err := auth.Sign(req, e.cfg.Program, key)
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

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the pool; the signer becomes its authority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate, _ := cmd.Flags().GetUint64("rate")
			multiplier, _ := cmd.Flags().GetUint64("multiplier")
			seed, _ := cmd.Flags().GetUint64("seed-rewards")
			req := auth.Request{Action: auth.ActionInitialize, Rate: rate, Multiplier: multiplier, Amount: seed}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.Initialize(ctx, req)
			})
		},
	}
	cmd.Flags().Uint64("rate", 0, "reward rate (thousandths of a reward unit per staked unit per second)")
	cmd.Flags().Uint64("multiplier", 1, "reward multiplier")
	cmd.Flags().Uint64("seed-rewards", 0, "reward tokens moved from the signer into the rewards vault")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Move reward tokens from the signer into the rewards vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")
			req := auth.Request{Action: auth.ActionFundRewards, Amount: amount}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.FundRewards(ctx, req)
			})
		},
	}
	cmd.Flags().Uint64("amount", 0, "reward tokens to deposit")
	return cmd
}

func newStakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Lock LP tokens for a lockup period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")
			lockup, _ := cmd.Flags().GetInt64("lockup")
			req := auth.Request{Action: auth.ActionStake, Amount: amount, Lockup: lockup}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.Stake(ctx, req)
			})
		},
	}
	cmd.Flags().Uint64("amount", 0, "LP tokens to stake")
	cmd.Flags().Int64("lockup", 0, "lockup period in seconds")
	return cmd
}

func newUnstakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw the signer's staked LP tokens after the lockup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := auth.Request{Action: auth.ActionUnstake}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.Unstake(ctx, req)
			})
		},
	}
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Pay out the signer's accrued and retained rewards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := auth.Request{Action: auth.ActionClaim}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				paid, err := ctrl.Claim(ctx, req)
				if err != nil {
					return nil, err
				}
				return map[string]uint64{"rewards": paid}, nil
			})
		},
	}
}

func newSetRateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-rate",
		Short: "Change the pool reward rate (authority only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate, _ := cmd.Flags().GetUint64("rate")
			req := auth.Request{Action: auth.ActionSetRewardRate, Rate: rate}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.SetRewardRate(ctx, req)
			})
		},
	}
	cmd.Flags().Uint64("rate", 0, "new reward rate")
	return cmd
}

func newSetMultiplierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-multiplier",
		Short: "Change the pool reward multiplier (authority only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			multiplier, _ := cmd.Flags().GetUint64("multiplier")
			req := auth.Request{Action: auth.ActionSetRewardMultiplier, Multiplier: multiplier}
			return signAndRun(cmd, req, func(ctx context.Context, ctrl *staking.Controller, req auth.Request) (interface{}, error) {
				return ctrl.SetRewardMultiplier(ctx, req)
			})
		},
	}
	cmd.Flags().Uint64("multiplier", 0, "new reward multiplier")
	return cmd
}
