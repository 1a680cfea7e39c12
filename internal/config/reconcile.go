package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// ReconcileConfig holds configuration for on-chain vault reconciliation.
type ReconcileConfig struct {
	Config
	RPCURL       string
	LPToken      common.Address
	RewardToken  common.Address
	MaxRetries   int
	RetryBackoff time.Duration
	Report       string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ReconcileConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		Config:       base,
		RPCURL:       v.GetString("rpc"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Report:       v.GetString("report"),
	}
	if cfg.RPCURL == "" {
		return ReconcileConfig{}, fmt.Errorf("rpc is required")
	}
	if cfg.LPToken, err = ParseAddress(v.GetString("lp-token")); err != nil {
		return ReconcileConfig{}, fmt.Errorf("lp-token: %w", err)
	}
	if cfg.RewardToken, err = ParseAddress(v.GetString("reward-token")); err != nil {
		return ReconcileConfig{}, fmt.Errorf("reward-token: %w", err)
	}
	return cfg, nil
}
