package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpstaking/internal/chain"
	"lpstaking/internal/config"
	"lpstaking/internal/model"
	"lpstaking/internal/reconcile"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare vault mirrors with on-chain ERC-20 balances",
		RunE:  runReconcile,
	}
	cmd.Flags().String("rpc", "", "EVM RPC URL")
	cmd.Flags().String("lp-token", "", "LP token contract address")
	cmd.Flags().String("reward-token", "", "reward token contract address")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("report", "./data/reconcile.json", "last reconcile report path (empty disables)")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cfg.Config, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	e.logger.Info("reconcile start",
		zap.String("chain_id", chainID.String()),
		zap.String("lp_token", cfg.LPToken.Hex()),
		zap.String("reward_token", cfg.RewardToken.Hex()),
	)

	reader := chain.NewTokenReader(chainClient, cfg.MaxRetries, cfg.RetryBackoff)
	tokens := reconcile.Tokens{LP: cfg.LPToken, Reward: cfg.RewardToken}
	report, err := reconcile.New(e.ctrl, reader, tokens, cfg.Program, e.logger).Run(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, report); err != nil {
		return err
	}

	reports := reconcile.NewReportStore(cfg.Report)
	previous, hadPrevious, err := reports.Load()
	if err != nil {
		return err
	}
	if hadPrevious && previous.Drifted != report.Drifted() {
		e.logger.Warn("vault drift status changed",
			zap.Bool("was_drifted", previous.Drifted),
			zap.Bool("drifted", report.Drifted()),
			zap.String("previous_run", previous.UpdatedAt),
			zap.Uint64("previous_block", previous.Block),
		)
	}
	if err := reports.Save(report); err != nil {
		return err
	}
	if report.Drifted() {
		return model.Invariant(errors.New("vault balances drifted from the ledger"))
	}
	return nil
}
