package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lpstaking/internal/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if model.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "staking",
		Short:        "LP staking pool ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", "leveldb", "state store (leveldb, memory, postgres)")
	flags.String("data-dir", "./data/staking", "leveldb data directory")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("program", "", "program address that vaults and signatures are bound to")
	flags.String("events", "./data/events.jsonl", "event log JSONL path; {event} splits files by event name (empty disables)")
	flags.String("now", "", "pin the clock (unix seconds or RFC3339)")
	flags.String("key", "", "hex private key used to sign requests")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(),
		newFundCmd(),
		newMintCmd(),
		newStakeCmd(),
		newUnstakeCmd(),
		newClaimCmd(),
		newSetRateCmd(),
		newSetMultiplierCmd(),
		newShowCmd(),
		newKeygenCmd(),
		newServeCmd(),
		newReconcileCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
