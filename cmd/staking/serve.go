package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpstaking/internal/api"
	"lpstaking/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the staking API over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	cmd.Flags().Bool("enable-mint", false, "expose the local token faucet")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e, err := openEnv(ctx, cfg.Config, reg)
	if err != nil {
		return err
	}
	defer e.Close()

	e.logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("store", cfg.Store),
		zap.String("program", cfg.Program.Hex()),
		zap.Bool("enable_mint", cfg.EnableMint),
	)

	srv := api.New(e.ctrl, api.Options{EnableMint: cfg.EnableMint, Gatherer: reg}, e.logger)
	return srv.Run(ctx, cfg.Listen, cfg.ShutdownTimeout)
}
