package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eore-labs/eore-cli/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// action runs a parsed command.
type action func(logger *zap.Logger) error

// command is a subcommand. setup registers its flags on fs; the returned
// function applies the explicitly set ones to cfg and yields the action.
type command struct {
	name  string
	usage string
	setup func(fs *flag.FlagSet, cfg *config.Config) func(set map[string]bool) (action, error)
}

var commands = []command{
	{name: "mine", usage: "start mining", setup: mineCommand},
	{name: "benchmark", usage: "measure the hash rate", setup: benchmarkCommand},
	{name: "account", usage: "show balances and proof", setup: accountCommand},
	{name: "history", usage: "print journaled round outcomes", setup: historyCommand},
}

func run(args []string) error {
	global := flag.NewFlagSet("eore", flag.ContinueOnError)
	var (
		configPath  = global.String("config", "", "path to a config file (yaml, toml or json)")
		rpcURL      = global.String("rpc", "", "JSON-RPC endpoint")
		keypair     = global.String("keypair", "", "signer keypair file")
		feePayer    = global.String("fee-payer", "", "fee payer keypair file (defaults to the signer)")
		priorityFee = global.Uint64("priority-fee", 0, "priority fee in microlamports per compute unit; the cap when -dynamic-fee is set")
		dynamicFee  = global.Bool("dynamic-fee", false, "estimate the priority fee from recent fees")
		logLevel    = global.String("log-level", "", "log level (debug, info, warn, error)")
	)
	global.Usage = func() { usage(global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if global.NArg() == 0 {
		usage(global)
		return errors.New("no command given")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Flags override the file and environment only when given.
	global.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rpc":
			cfg.RPC = *rpcURL
		case "keypair":
			cfg.Keypair = *keypair
		case "fee-payer":
			cfg.FeePayer = *feePayer
		case "priority-fee":
			cfg.PriorityFee = *priorityFee
		case "dynamic-fee":
			cfg.DynamicFee = *dynamicFee
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	name := global.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage(global)
		return fmt.Errorf("unknown command %q", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	apply := cmd.setup(fs, cfg)
	if err := fs.Parse(global.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	act, err := apply(set)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Sync()

	return act(logger)
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "eore - solo miner for the eore program\n\n")
	fmt.Fprintf(out, "Usage:\n  eore [global flags] <command> [flags]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(out, "\nGlobal flags:\n")
	fs.PrintDefaults()
	fmt.Fprintf(out, "\nEvery setting can also be given as an %s_* environment variable, e.g. %s_RPC.\n",
		config.EnvPrefix, config.EnvPrefix)
}

// parseCores accepts a core count or ALL for every available core.
func parseCores(s string, available int) (int, error) {
	if strings.EqualFold(s, "all") {
		return available, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: cores must be a number or ALL, got %q", config.ErrInvalid, s)
	}
	return n, nil
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}
