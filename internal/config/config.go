package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StoreLevelDB  = "leveldb"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// DefaultProgram is the deployment identity used when none is configured.
var DefaultProgram = common.BytesToAddress(crypto.Keccak256([]byte("lpstaking/local")))

// Config holds the settings shared by every command.
type Config struct {
	Store    string
	DataDir  string
	PGDSN    string
	Program  common.Address
	Events   string
	LogLevel string
	// Now pins the clock to a unix timestamp; zero means wall-clock time.
	Now uint64
	Key string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreLevelDB)
	v.SetDefault("data-dir", "./data/staking")
	v.SetDefault("program", DefaultProgram.Hex())
	v.SetDefault("events", "./data/events.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", "500ms")
	v.SetDefault("report", "./data/reconcile.json")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	program, err := ParseAddress(v.GetString("program"))
	if err != nil {
		return Config{}, fmt.Errorf("program: %w", err)
	}
	now, err := ParseTimestamp(v.GetString("now"))
	if err != nil {
		return Config{}, fmt.Errorf("now: %w", err)
	}

	cfg := Config{
		Store:    strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DataDir:  v.GetString("data-dir"),
		PGDSN:    v.GetString("pg-dsn"),
		Program:  program,
		Events:   v.GetString("events"),
		LogLevel: v.GetString("log-level"),
		Now:      now,
		Key:      v.GetString("key"),
	}

	switch cfg.Store {
	case StoreLevelDB:
		if cfg.DataDir == "" {
			return Config{}, fmt.Errorf("data-dir is required for the %s store", StoreLevelDB)
		}
	case StorePostgres:
		if cfg.PGDSN == "" {
			return Config{}, fmt.Errorf("pg-dsn is required for the %s store", StorePostgres)
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	return cfg, nil
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}
