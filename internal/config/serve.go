package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the HTTP server.
type ServeConfig struct {
	Config
	Listen          string
	ShutdownTimeout time.Duration
	EnableMint      bool
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}
	v.SetDefault("shutdown-timeout", "10s")

	base, err := fromViper(v)
	if err != nil {
		return ServeConfig{}, err
	}
	cfg := ServeConfig{
		Config:          base,
		Listen:          v.GetString("listen"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		EnableMint:      v.GetBool("enable-mint"),
	}
	if cfg.Listen == "" {
		return ServeConfig{}, fmt.Errorf("listen address is required")
	}
	return cfg, nil
}
