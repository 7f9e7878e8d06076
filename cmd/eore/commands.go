package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/config"
	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/miner"
	"github.com/eore-labs/eore-cli/internal/protocol"
	"github.com/eore-labs/eore-cli/internal/search"

	"go.uber.org/zap"
)

func benchmarkCommand(fs *flag.FlagSet, cfg *config.Config) func(map[string]bool) (action, error) {
	cores := fs.String("cores", strconv.Itoa(cfg.Cores), "number of cores to benchmark, or ALL")
	fs.DurationVar(&cfg.BenchmarkDuration, "duration", cfg.BenchmarkDuration, "how long to hash")

	return func(map[string]bool) (action, error) {
		n, err := parseCores(*cores, runtime.NumCPU())
		if err != nil {
			return nil, err
		}
		cfg.Cores = n
		return func(logger *zap.Logger) error { return runBenchmark(cfg, logger) }, nil
	}
}

func runBenchmark(cfg *config.Config, logger *zap.Logger) error {
	if err := search.CheckWorkers(cfg.Cores); err != nil {
		return err
	}
	engine := search.NewEngine(search.KeccakScorer{}, logger.Named("search"))

	fmt.Printf("Benchmarking %d core(s) for %s...\n", cfg.Cores, cfg.BenchmarkDuration)
	rate := engine.Benchmark(cfg.Cores, cfg.BenchmarkDuration)
	fmt.Printf("Hash rate: %d H/s\n", rate)
	return nil
}

func accountCommand(fs *flag.FlagSet, cfg *config.Config) func(map[string]bool) (action, error) {
	address := fs.String("address", "", "account to show (defaults to the signer)")
	return func(map[string]bool) (action, error) {
		return func(logger *zap.Logger) error { return runAccount(cfg, logger, *address) }, nil
	}
}

func runAccount(cfg *config.Config, logger *zap.Logger, address string) error {
	var authority chain.PublicKey
	if address != "" {
		pk, err := chain.PublicKeyFromBase58(address)
		if err != nil {
			return fmt.Errorf("%w: address: %w", config.ErrInvalid, err)
		}
		authority = pk
	} else {
		kp, err := chain.LoadKeypair(cfg.KeypairPath())
		if err != nil {
			return fmt.Errorf("load keypair: %w", err)
		}
		authority = kp.PublicKey()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := chain.Dial(ctx, cfg.RPC, logger.Named("chain"),
		chain.WithRateLimit(cfg.RPCRateLimit, cfg.RPCBurst),
		chain.WithCommitment(cfg.Commitment),
	)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	acct, err := miner.LookupAccount(ctx, client, authority)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Address\t%s\n", acct.Authority)
	fmt.Fprintf(w, "SOL\t%s\n", protocol.FormatSOL(acct.Lamports))
	fmt.Fprintf(w, "Balance\t%s EORE\n", protocol.FormatAmount(acct.Tokens))
	if acct.Proof == nil {
		fmt.Fprintf(w, "Proof\tnot opened\n")
		return w.Flush()
	}
	fmt.Fprintf(w, "Proof\t%s\n", protocol.ProofAddress(authority))
	fmt.Fprintf(w, "Stake\t%s EORE\n", protocol.FormatAmount(acct.Proof.Balance))
	fmt.Fprintf(w, "Last hash at\t%s\n", time.Unix(acct.Proof.LastHashAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Total hashes\t%d\n", acct.Proof.TotalHashes)
	fmt.Fprintf(w, "Total rewards\t%s EORE\n", protocol.FormatAmount(acct.Proof.TotalRewards))
	return w.Flush()
}

func historyCommand(fs *flag.FlagSet, cfg *config.Config) func(map[string]bool) (action, error) {
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the outcome journal")
	limit := fs.Int("limit", 20, "number of outcomes to print (0 for all)")
	return func(map[string]bool) (action, error) {
		return func(logger *zap.Logger) error { return runHistory(cfg, logger, *limit) }, nil
	}
}

func runHistory(cfg *config.Config, logger *zap.Logger, limit int) error {
	path := cfg.JournalPath()
	if path == "" {
		return fmt.Errorf("%w: data-dir is required", config.ErrInvalid)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no journal at %s", path)
	}
	journal, err := history.OpenBoltJournal(path, cfg.JournalLimit, logger.Named("journal"))
	if err != nil {
		return err
	}
	defer journal.Close()

	outcomes, err := journal.Recent(limit)
	if err != nil {
		return err
	}
	return printOutcomes(os.Stdout, outcomes)
}

func printOutcomes(out io.Writer, outcomes []history.Outcome) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tDIFFICULTY\tREWARD\tSIGNATURE")
	for _, o := range outcomes {
		reward := "-"
		if o.Event != nil {
			reward = protocol.FormatReward(o.Event.TotalReward)
		}
		detail := o.Signature
		if !o.Confirmed() && o.Error != "" {
			detail = o.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			o.RecordedAt.Local().Format(time.DateTime), o.Status, o.Difficulty, reward, detail)
	}
	return w.Flush()
}
