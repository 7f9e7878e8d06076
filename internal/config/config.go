package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix is the prefix of environment overrides, e.g. EORE_RPC.
const EnvPrefix = "EORE"

// Config holds all configuration for the miner.
type Config struct {
	// Chain access
	RPC          string  `mapstructure:"rpc"`
	Commitment   string  `mapstructure:"commitment"`
	RPCRateLimit float64 `mapstructure:"rpc-rate-limit"`
	RPCBurst     int     `mapstructure:"rpc-burst"`

	// Keys
	Keypair  string `mapstructure:"keypair"`
	FeePayer string `mapstructure:"fee-payer"`

	// Fees
	PriorityFee uint64 `mapstructure:"priority-fee"`
	DynamicFee  bool   `mapstructure:"dynamic-fee"`

	// Mining
	Cores         int    `mapstructure:"cores"`
	BufferTime    int64  `mapstructure:"buffer-time"`
	MinDifficulty uint32 `mapstructure:"min-difficulty"`
	BoostConfig   string `mapstructure:"boost-config"`
	BoostProgram  string `mapstructure:"boost-program"`
	Verbose       bool   `mapstructure:"verbose"`

	// Benchmark
	BenchmarkDuration time.Duration `mapstructure:"benchmark-duration"`

	// Status and history
	StatusAddr   string `mapstructure:"status-addr"`
	DataDir      string `mapstructure:"data-dir"`
	HistorySize  int    `mapstructure:"history-size"`
	JournalLimit int    `mapstructure:"journal-limit"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
}

// DefaultPriorityFee is the static priority fee, in microlamports per
// compute unit, and the cap on dynamic estimates.
const DefaultPriorityFee = 1000

// DefaultCores leaves one core for the rest of the system.
func DefaultCores() int {
	return max(runtime.NumCPU()-1, 1)
}

// DefaultConfig returns a Config with defaults for mainnet.
func DefaultConfig() *Config {
	return &Config{
		RPC:          "https://api.mainnet-beta.solana.com",
		Commitment:   "confirmed",
		RPCRateLimit: 10,
		RPCBurst:     10,

		Keypair: "~/.config/solana/id.json",

		PriorityFee: DefaultPriorityFee,

		Cores:         DefaultCores(),
		BufferTime:    5,
		MinDifficulty: 20,

		BenchmarkDuration: 15 * time.Second,

		HistorySize:  30,
		JournalLimit: 10_000,

		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional config file at path and
// EORE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(ExpandHome(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("rpc", d.RPC)
	v.SetDefault("commitment", d.Commitment)
	v.SetDefault("rpc-rate-limit", d.RPCRateLimit)
	v.SetDefault("rpc-burst", d.RPCBurst)
	v.SetDefault("keypair", d.Keypair)
	v.SetDefault("fee-payer", d.FeePayer)
	v.SetDefault("priority-fee", d.PriorityFee)
	v.SetDefault("dynamic-fee", d.DynamicFee)
	v.SetDefault("cores", d.Cores)
	v.SetDefault("buffer-time", d.BufferTime)
	v.SetDefault("min-difficulty", d.MinDifficulty)
	v.SetDefault("boost-config", d.BoostConfig)
	v.SetDefault("boost-program", d.BoostProgram)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("benchmark-duration", d.BenchmarkDuration)
	v.SetDefault("status-addr", d.StatusAddr)
	v.SetDefault("data-dir", d.DataDir)
	v.SetDefault("history-size", d.HistorySize)
	v.SetDefault("journal-limit", d.JournalLimit)
	v.SetDefault("log-level", d.LogLevel)
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.RPC == "" {
		return fmt.Errorf("%w: rpc is required", ErrInvalid)
	}
	if c.Keypair == "" {
		return fmt.Errorf("%w: keypair is required", ErrInvalid)
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: commitment must be processed, confirmed or finalized", ErrInvalid)
	}
	if c.Cores < 1 {
		return fmt.Errorf("%w: cores must be at least 1", ErrInvalid)
	}
	if c.BufferTime < 0 || c.BufferTime >= 60 {
		return fmt.Errorf("%w: buffer-time must be 0-59 seconds", ErrInvalid)
	}
	if c.MinDifficulty > 256 {
		return fmt.Errorf("%w: min-difficulty must be at most 256", ErrInvalid)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history-size must be at least 1", ErrInvalid)
	}
	if c.BenchmarkDuration <= 0 {
		return fmt.Errorf("%w: benchmark-duration must be positive", ErrInvalid)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log-level must be debug, info, warn or error", ErrInvalid)
	}
	return nil
}

// FeePayerPath returns the fee payer keypair path, defaulting to the signer.
func (c *Config) FeePayerPath() string {
	if c.FeePayer == "" {
		return ExpandHome(c.Keypair)
	}
	return ExpandHome(c.FeePayer)
}

// KeypairPath returns the signer keypair path with ~ expanded.
func (c *Config) KeypairPath() string {
	return ExpandHome(c.Keypair)
}

// JournalPath returns the outcome journal location, or "" when no data
// directory is configured.
func (c *Config) JournalPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(ExpandHome(c.DataDir), "history.db")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
