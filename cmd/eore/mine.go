package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/config"
	"github.com/eore-labs/eore-cli/internal/fee"
	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/miner"
	"github.com/eore-labs/eore-cli/internal/protocol"
	"github.com/eore-labs/eore-cli/internal/search"
	"github.com/eore-labs/eore-cli/internal/web"

	"go.uber.org/zap"
)

func mineCommand(fs *flag.FlagSet, cfg *config.Config) func(map[string]bool) (action, error) {
	cores := fs.String("cores", strconv.Itoa(cfg.Cores), "number of cores to mine on, or ALL")
	minDifficulty := fs.Uint("min-difficulty", uint(cfg.MinDifficulty), "minimum difficulty to submit")
	fs.Int64Var(&cfg.BufferTime, "buffer-time", cfg.BufferTime, "seconds before the round cutoff to stop searching")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log full signatures")
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "serve the status dashboard on this address (e.g. :8080)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the outcome journal")
	fs.StringVar(&cfg.BoostConfig, "boost-config", cfg.BoostConfig, "boost config account to pass to mine")
	fs.StringVar(&cfg.BoostProgram, "boost-program", cfg.BoostProgram, "boost program whose config account is passed to mine when -boost-config is unset")

	return func(set map[string]bool) (action, error) {
		if set["cores"] {
			n, err := parseCores(*cores, runtime.NumCPU())
			if err != nil {
				return nil, err
			}
			cfg.Cores = n
		}
		if set["min-difficulty"] {
			cfg.MinDifficulty = uint32(min(*minDifficulty, 256))
		}
		return func(logger *zap.Logger) error { return runMine(cfg, logger) }, nil
	}
}

func runMine(cfg *config.Config, logger *zap.Logger) error {
	signer, err := chain.LoadKeypair(cfg.KeypairPath())
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}
	payer, err := chain.LoadKeypair(cfg.FeePayerPath())
	if err != nil {
		return fmt.Errorf("load fee payer: %w", err)
	}
	boost, err := boostConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting eore miner",
		zap.String("rpc", cfg.RPC),
		zap.Stringer("authority", signer.PublicKey()),
		zap.Stringer("fee_payer", payer.PublicKey()),
		zap.Int("cores", cfg.Cores),
	)

	client, err := chain.Dial(ctx, cfg.RPC, logger.Named("chain"),
		chain.WithRateLimit(cfg.RPCRateLimit, cfg.RPCBurst),
		chain.WithCommitment(cfg.Commitment),
		chain.WithSkipPreflight(true),
	)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	// History: an in-memory ring, mirrored to disk when a data dir is set.
	var journal *history.BoltJournal
	ring := history.NewRing(cfg.HistorySize, nil, logger.Named("history"))
	if path := cfg.JournalPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		journal, err = history.OpenBoltJournal(path, cfg.JournalLimit, logger.Named("journal"))
		if err != nil {
			return err
		}
		defer journal.Close()
		ring = history.NewRing(cfg.HistorySize, journal, logger.Named("history"))
		recent, err := journal.Recent(cfg.HistorySize)
		if err != nil {
			logger.Warn("failed to preload history", zap.Error(err))
		}
		ring.Preload(recent)
	}

	opts := []miner.Option{miner.WithHistory(ring)}
	if est := feeEstimator(cfg, client); est != nil {
		opts = append(opts, miner.WithFeeEstimator(est))
	}

	engine := search.NewEngine(search.KeccakScorer{}, logger.Named("search"))
	m := miner.New(client, engine, signer, payer, logger.Named("miner"), miner.Options{
		Cores:         cfg.Cores,
		BufferTime:    cfg.BufferTime,
		MinDifficulty: cfg.MinDifficulty,
		PriorityFee:   cfg.PriorityFee,
		BoostConfig:   boost,
		Verbose:       cfg.Verbose,
	}, opts...)

	if cfg.StatusAddr != "" {
		historyFunc := func(limit int) ([]history.Outcome, error) {
			if journal != nil {
				return journal.Recent(limit)
			}
			out := ring.Snapshot()
			if limit > 0 && len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		}
		srv, err := web.Listen(cfg.StatusAddr, web.NewHandler(func() *web.StatusData {
			return statusData(m.Status(), ring.Snapshot())
		}, historyFunc), logger.Named("web"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = m.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("received signal, shutting down")
		return nil
	}
	var pe *miner.PhaseError
	if errors.As(err, &pe) {
		logger.Error("mining stopped", zap.String("phase", string(pe.Phase)), zap.Error(pe.Err))
	}
	return err
}

func statusData(s miner.Status, recent []history.Outcome) *web.StatusData {
	return &web.StatusData{
		Authority:       s.Authority.String(),
		Proof:           s.Proof.String(),
		Cores:           s.Cores,
		Round:           s.Round,
		Phase:           string(s.Phase),
		Challenge:       hex.EncodeToString(s.Challenge[:]),
		MinDifficulty:   s.MinDifficulty,
		LastDifficulty:  s.LastDifficulty,
		BestDifficulty:  s.BestDifficulty,
		PriorityFee:     s.PriorityFee,
		Balance:         protocol.FormatAmount(s.StakeBalance),
		RoundsConfirmed: s.Confirmed,
		RoundsFailed:    s.Failed,
		TotalRewards:    protocol.FormatReward(s.Rewards),
		Uptime:          int64(time.Since(s.Started).Seconds()),
		Recent:          recent,
	}
}

// feeEstimator returns the dynamic fee estimator, capped at the static
// priority fee, or nil when dynamic fees are off.
func feeEstimator(cfg *config.Config, source fee.FeeSource) fee.Estimator {
	if !cfg.DynamicFee {
		return nil
	}
	accounts := append([]chain.PublicKey{protocol.ProgramID}, protocol.BusAddresses[:]...)
	return fee.Capped{Estimator: fee.NewRecentFees(source, accounts), Max: cfg.PriorityFee}
}

// boostConfig resolves the boost config account passed to mine: an explicit
// address first, then the config PDA of the boost program. The zero key
// leaves the account out.
func boostConfig(cfg *config.Config) (chain.PublicKey, error) {
	if cfg.BoostConfig != "" {
		pk, err := chain.PublicKeyFromBase58(cfg.BoostConfig)
		if err != nil {
			return chain.PublicKey{}, fmt.Errorf("%w: boost-config: %w", config.ErrInvalid, err)
		}
		return pk, nil
	}
	if cfg.BoostProgram != "" {
		program, err := chain.PublicKeyFromBase58(cfg.BoostProgram)
		if err != nil {
			return chain.PublicKey{}, fmt.Errorf("%w: boost-program: %w", config.ErrInvalid, err)
		}
		return protocol.BoostConfigAddress(program)
	}
	return chain.PublicKey{}, nil
}
