// Package miner runs the solo mining loop: it waits for the proof to
// advance, searches for the best nonce before the round's cutoff and submits
// it, one round at a time.
package miner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/fee"
	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/metrics"
	"github.com/eore-labs/eore-cli/internal/protocol"
	"github.com/eore-labs/eore-cli/internal/retry"
	"github.com/eore-labs/eore-cli/internal/search"

	"go.uber.org/zap"
)

// DefaultProofPollInterval is the pause between proof reads while waiting
// for the previous round to land.
const DefaultProofPollInterval = time.Second

// Chain is the subset of the RPC client the miner uses.
type Chain interface {
	GetAccountInfo(ctx context.Context, address chain.PublicKey) (*chain.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []chain.PublicKey) ([]*chain.AccountInfo, error)
	GetBalance(ctx context.Context, address chain.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (chain.Hash, error)
	SendTransaction(ctx context.Context, tx *chain.Transaction) (chain.Signature, error)
	GetTransaction(ctx context.Context, sig chain.Signature) (*chain.ConfirmedTransaction, error)
}

// Searcher finds the best nonce for a challenge. *search.Engine implements it.
type Searcher interface {
	Search(challenge [32]byte, deadline time.Duration, minDifficulty uint32, starts []uint64) search.Best
}

// Options are the mining parameters.
type Options struct {
	Cores         int
	BufferTime    int64
	MinDifficulty uint32
	PriorityFee   uint64
	BoostConfig   chain.PublicKey
	Verbose       bool
}

// Miner runs mining rounds for one signer.
type Miner struct {
	chain   Chain
	engine  Searcher
	signer  chain.Signer
	payer   chain.Signer
	fees    fee.Estimator
	history *history.Ring
	logger  *zap.Logger
	opts    Options

	policy            retry.Policy
	confirmAttempts   int
	confirmInterval   time.Duration
	proofPollInterval time.Duration
	now               func() time.Time

	mu     sync.RWMutex
	status Status
}

// Option configures a Miner.
type Option func(*Miner)

// WithFeeEstimator sets a dynamic fee estimator. Without one the static
// priority fee is used.
func WithFeeEstimator(e fee.Estimator) Option {
	return func(m *Miner) { m.fees = e }
}

// WithHistory records round outcomes in r.
func WithHistory(r *history.Ring) Option {
	return func(m *Miner) { m.history = r }
}

// WithRetryPolicy overrides the policy used for chain reads.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Miner) { m.policy = p }
}

// WithConfirmation sets how many times and how often a transaction is polled.
func WithConfirmation(attempts int, interval time.Duration) Option {
	return func(m *Miner) {
		if attempts > 0 {
			m.confirmAttempts = attempts
		}
		m.confirmInterval = interval
	}
}

// WithProofPollInterval sets the pause between proof reads.
func WithProofPollInterval(d time.Duration) Option {
	return func(m *Miner) { m.proofPollInterval = d }
}

// WithClock replaces the wall clock used to timestamp outcomes.
func WithClock(now func() time.Time) Option {
	return func(m *Miner) { m.now = now }
}

// New creates a miner. signer owns the proof; payer pays fees and may be
// the same keypair.
func New(c Chain, engine Searcher, signer, payer chain.Signer, logger *zap.Logger, opts Options, options ...Option) *Miner {
	m := &Miner{
		chain:             c,
		engine:            engine,
		signer:            signer,
		payer:             payer,
		logger:            logger,
		opts:              opts,
		policy:            retry.DefaultPolicy(),
		confirmAttempts:   DefaultConfirmAttempts,
		confirmInterval:   DefaultConfirmInterval,
		proofPollInterval: DefaultProofPollInterval,
		now:               time.Now,
	}
	for _, o := range options {
		o(m)
	}
	m.status = Status{
		Authority: signer.PublicKey(),
		Proof:     protocol.ProofAddress(signer.PublicKey()),
		Cores:     opts.Cores,
		Phase:     PhaseIdle,
		Started:   m.now(),
	}
	return m
}

// read runs a chain read under the miner's retry policy, counting retries
// under op.
func read[T any](ctx context.Context, m *Miner, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p := m.policy
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.RPCRetries.WithLabelValues(op).Inc()
		m.logger.Debug("retrying chain read",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return retry.Do(ctx, p, fn)
}

// Run mines until ctx is cancelled or a round fails. It returns ctx.Err()
// on cancellation and a *PhaseError otherwise.
func (m *Miner) Run(ctx context.Context) error {
	starts, err := search.StartingNonces(m.opts.Cores)
	if err != nil {
		return err
	}
	if err := m.ensureProof(ctx); err != nil {
		return err
	}

	m.logger.Info("mining started",
		zap.Stringer("authority", m.signer.PublicKey()),
		zap.Int("cores", m.opts.Cores),
		zap.Int64("buffer_time", m.opts.BufferTime),
		zap.Uint32("min_difficulty", m.opts.MinDifficulty),
	)

	var lastHashAt int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.round(ctx, starts, &lastHashAt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// ensureProof opens the signer's proof account if it does not exist.
func (m *Miner) ensureProof(ctx context.Context) error {
	m.setPhase(PhaseOpen)
	address := protocol.ProofAddress(m.signer.PublicKey())
	_, err := read(ctx, m, "get_proof", func(ctx context.Context) (*chain.AccountInfo, error) {
		info, err := m.chain.GetAccountInfo(ctx, address)
		if errors.Is(err, chain.ErrAccountNotFound) {
			return nil, retry.Permanent(err)
		}
		return info, err
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, chain.ErrAccountNotFound) {
		return &PhaseError{Phase: PhaseOpen, Err: err}
	}

	m.logger.Info("opening proof account", zap.Stringer("proof", address))
	ix := protocol.Open(m.signer.PublicKey(), m.signer.PublicKey(), m.payer.PublicKey())
	sig, _, err := m.sendAndConfirm(ctx, OpenComputeUnits, []chain.Instruction{ix})
	if err != nil {
		return err
	}
	m.logger.Info("proof account opened", zap.String("signature", sig.String()))
	return nil
}

// round runs one mining round. lastHashAt carries the proof timestamp of
// the previous round across calls.
func (m *Miner) round(ctx context.Context, starts []uint64, lastHashAt *int64) error {
	m.setPhase(PhaseConfig)
	cfg, err := m.fetchConfig(ctx)
	if err != nil {
		return &PhaseError{Phase: PhaseConfig, Err: err}
	}

	m.setPhase(PhaseProof)
	proof, err := m.waitForProof(ctx, *lastHashAt)
	if err != nil {
		return &PhaseError{Phase: PhaseProof, Err: err}
	}
	*lastHashAt = proof.LastHashAt

	m.setPhase(PhaseClock)
	clock, err := m.clock(ctx)
	if err != nil {
		return &PhaseError{Phase: PhaseClock, Err: err}
	}
	cutoff := Cutoff(proof.LastHashAt, RoundLength, m.opts.BufferTime, clock.UnixTimestamp)
	minDifficulty := max(m.opts.MinDifficulty, uint32(min(cfg.MinDifficulty, 256)))
	metrics.RoundCutoff.Set(cutoff.Seconds())

	round := m.beginRound(proof, minDifficulty)
	m.logger.Info("round started",
		zap.Uint64("round", round),
		zap.Duration("cutoff", cutoff),
		zap.Uint32("min_difficulty", minDifficulty),
		zap.String("stake", protocol.FormatAmount(proof.Balance)),
	)

	m.setPhase(PhaseSearch)
	best := m.engine.Search(proof.Challenge, cutoff, minDifficulty, starts)
	m.logger.Info("search finished",
		zap.Uint64("round", round),
		zap.Uint32("difficulty", best.Difficulty),
		zap.Uint64("nonce", best.Nonce),
	)

	// The search may have run well past the cutoff, so read the clock again.
	m.setPhase(PhaseClock)
	clock, err = m.clock(ctx)
	if err != nil {
		return &PhaseError{Phase: PhaseClock, Err: err}
	}
	reset := NeedsReset(cfg.LastResetAt, EpochLength, ResetMargin, clock.UnixTimestamp)
	if reset {
		metrics.Resets.Inc()
		m.logger.Info("epoch over, including reset", zap.Int64("last_reset_at", cfg.LastResetAt))
	}

	bus := m.findBus(ctx)
	ixs, cu := RoundInstructions(m.signer.PublicKey(), bus, best.Solution(), reset, m.opts.BoostConfig)

	outcome, err := m.submit(ctx, cu, ixs, best.Difficulty)
	m.record(outcome)
	if err != nil {
		return err
	}
	m.setPhase(PhaseIdle)
	return nil
}

func (m *Miner) fetchConfig(ctx context.Context) (*protocol.Config, error) {
	return read(ctx, m, "get_config", func(ctx context.Context) (*protocol.Config, error) {
		info, err := m.chain.GetAccountInfo(ctx, protocol.ConfigAddress)
		if err != nil {
			return nil, err
		}
		cfg, err := protocol.DecodeConfig(info.Data)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return cfg, nil
	})
}

func (m *Miner) fetchProof(ctx context.Context) (*protocol.Proof, error) {
	address := protocol.ProofAddress(m.signer.PublicKey())
	return read(ctx, m, "get_proof", func(ctx context.Context) (*protocol.Proof, error) {
		info, err := m.chain.GetAccountInfo(ctx, address)
		if err != nil {
			return nil, err
		}
		proof, err := protocol.DecodeProof(info.Data)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return proof, nil
	})
}

// waitForProof polls the proof until its last_hash_at moves past lastHashAt.
// The wait is unbounded: a proof that never advances means the previous
// round has not landed yet, not that something failed.
func (m *Miner) waitForProof(ctx context.Context, lastHashAt int64) (*protocol.Proof, error) {
	return retry.Until(ctx, m.proofPollInterval, func(ctx context.Context) (*protocol.Proof, bool, error) {
		proof, err := m.fetchProof(ctx)
		if err != nil {
			return nil, false, err
		}
		if proof.LastHashAt <= lastHashAt {
			m.logger.Debug("waiting for proof update", zap.Int64("last_hash_at", proof.LastHashAt))
			return nil, false, nil
		}
		return proof, true, nil
	})
}

func (m *Miner) clock(ctx context.Context) (*protocol.Clock, error) {
	return read(ctx, m, "get_clock", func(ctx context.Context) (*protocol.Clock, error) {
		info, err := m.chain.GetAccountInfo(ctx, chain.SysvarClockID)
		if err != nil {
			return nil, err
		}
		clock, err := protocol.DecodeClock(info.Data)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return clock, nil
	})
}

// record stores the round's outcome and updates counters.
func (m *Miner) record(o history.Outcome) {
	metrics.Rounds.WithLabelValues(string(o.Status)).Inc()
	if m.history != nil {
		m.history.Add(o)
	}

	m.mu.Lock()
	m.status.LastDifficulty = o.Difficulty
	m.status.BestDifficulty = max(m.status.BestDifficulty, o.Difficulty)
	if o.Confirmed() {
		m.status.Confirmed++
	} else {
		m.status.Failed++
	}
	if o.Event != nil {
		m.status.Rewards += o.Event.TotalReward
	}
	m.mu.Unlock()

	sig := o.Signature
	if !m.opts.Verbose && len(sig) > 8 {
		sig = sig[:8] + "..."
	}
	switch {
	case !o.Confirmed():
		m.logger.Error("round failed", zap.String("signature", sig), zap.String("error", o.Error))
	case o.Event == nil:
		m.logger.Info("round confirmed", zap.String("signature", sig), zap.Uint64("slot", o.Slot))
	default:
		metrics.Rewards.Add(float64(o.Event.TotalReward) / 1e11)
		m.logger.Info("round confirmed",
			zap.String("signature", sig),
			zap.Uint64("slot", o.Slot),
			zap.Uint64("difficulty", o.Event.Difficulty),
			zap.String("base_reward", protocol.FormatReward(o.Event.BaseReward)),
			zap.String("boost_reward", protocol.FormatReward(o.Event.BoostReward)),
			zap.String("total_reward", protocol.FormatReward(o.Event.TotalReward)),
			zap.String("timing", fmt.Sprintf("%ds", o.Event.Timing)),
		)
	}
}
