package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BufferTime != 5 || cfg.MinDifficulty != 20 {
		t.Errorf("buffer = %d, min difficulty = %d", cfg.BufferTime, cfg.MinDifficulty)
	}
	if cfg.Cores < 1 {
		t.Errorf("cores = %d", cfg.Cores)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no rpc", func(c *Config) { c.RPC = "" }},
		{"no keypair", func(c *Config) { c.Keypair = "" }},
		{"bad commitment", func(c *Config) { c.Commitment = "max" }},
		{"zero cores", func(c *Config) { c.Cores = 0 }},
		{"negative buffer", func(c *Config) { c.BufferTime = -1 }},
		{"buffer too large", func(c *Config) { c.BufferTime = 60 }},
		{"difficulty too large", func(c *Config) { c.MinDifficulty = 300 }},
		{"empty history", func(c *Config) { c.HistorySize = 0 }},
		{"zero benchmark", func(c *Config) { c.BenchmarkDuration = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eore.yaml")
	body := strings.Join([]string{
		"rpc: http://localhost:8899",
		"cores: 1",
		"min-difficulty: 25",
		"benchmark-duration: 3s",
		"data-dir: /tmp/eore",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EORE_PRIORITY_FEE", "5000")
	t.Setenv("EORE_MIN_DIFFICULTY", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC != "http://localhost:8899" {
		t.Errorf("rpc = %s", cfg.RPC)
	}
	if cfg.Cores != 1 {
		t.Errorf("cores = %d, want 1", cfg.Cores)
	}
	if cfg.MinDifficulty != 30 {
		t.Errorf("min difficulty = %d, want env override 30", cfg.MinDifficulty)
	}
	if cfg.PriorityFee != 5000 {
		t.Errorf("priority fee = %d, want 5000", cfg.PriorityFee)
	}
	if cfg.BenchmarkDuration != 3*time.Second {
		t.Errorf("benchmark duration = %s", cfg.BenchmarkDuration)
	}
	if cfg.BufferTime != 5 || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: buffer %d, log level %s", cfg.BufferTime, cfg.LogLevel)
	}
	if cfg.JournalPath() != filepath.Join("/tmp/eore", "history.db") {
		t.Errorf("journal path = %s", cfg.JournalPath())
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC != DefaultConfig().RPC {
		t.Errorf("rpc = %s", cfg.RPC)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keypair = "/keys/id.json"
	if cfg.FeePayerPath() != "/keys/id.json" {
		t.Errorf("fee payer path = %s, want signer path", cfg.FeePayerPath())
	}
	cfg.FeePayer = "/keys/payer.json"
	if cfg.FeePayerPath() != "/keys/payer.json" {
		t.Errorf("fee payer path = %s", cfg.FeePayerPath())
	}
	if cfg.JournalPath() != "" {
		t.Errorf("journal path = %q, want empty without data dir", cfg.JournalPath())
	}

	home, err := os.UserHomeDir()
	if err == nil && ExpandHome("~/x") != filepath.Join(home, "x") {
		t.Errorf("ExpandHome = %s", ExpandHome("~/x"))
	}
	if ExpandHome("/abs") != "/abs" {
		t.Error("absolute path changed")
	}
}

func TestDefaultConfig_PriorityFee(t *testing.T) {
	if got := DefaultConfig().PriorityFee; got != 1000 || DefaultPriorityFee != 1000 {
		t.Errorf("default priority fee = %d, want 1000", got)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PriorityFee != DefaultPriorityFee {
		t.Errorf("loaded priority fee = %d, want %d", cfg.PriorityFee, DefaultPriorityFee)
	}
}
