package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpstaking/internal/config"
	"lpstaking/internal/metrics"
	"lpstaking/internal/staking"
	"lpstaking/internal/storage"
	"lpstaking/internal/storage/kv"
	"lpstaking/internal/storage/postgres"
)

// env is the wiring shared by every command.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  storage.Store
	ctrl   *staking.Controller
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

// openEnv builds the logger, store and controller for cfg. reg may be nil.
func openEnv(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*env, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	var clock staking.Clock = staking.SystemClock{}
	if cfg.Now > 0 {
		clock = staking.NewManualClock(cfg.Now)
	}

	var events storage.EventSink = storage.NopSink{}
	if cfg.Events != "" {
		events = storage.NewEventLog(cfg.Events)
	}

	logger.Debug("staking env",
		zap.String("store", cfg.Store),
		zap.String("data_dir", cfg.DataDir),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("program", cfg.Program.Hex()),
		zap.String("events", cfg.Events),
		zap.Uint64("now", cfg.Now),
	)

	ctrl := staking.NewController(staking.Config{Program: cfg.Program}, store, clock, events, metrics.New(reg), logger)
	return &env{cfg: cfg, logger: logger, store: store, ctrl: ctrl}, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return kv.OpenMem()
	case config.StoreLevelDB:
		return kv.Open(cfg.DataDir)
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// withEnv loads configuration, opens the env and runs fn.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEnv(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
