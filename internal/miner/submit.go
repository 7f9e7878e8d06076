package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/history"
	"github.com/eore-labs/eore-cli/internal/metrics"
	"github.com/eore-labs/eore-cli/internal/protocol"
	"github.com/eore-labs/eore-cli/internal/retry"
	"github.com/eore-labs/eore-cli/internal/search"

	"go.uber.org/zap"
)

// Compute budgets, in compute units.
const (
	MineComputeUnits  uint32 = 750_000
	ResetComputeUnits uint32 = 100_000
	OpenComputeUnits  uint32 = 400_000
)

// MinFeePayerBalance is the lamport balance below which nothing is sent.
const MinFeePayerBalance = 500_000

const (
	// DefaultConfirmAttempts is how many times a sent transaction is looked up.
	DefaultConfirmAttempts = 30

	// DefaultConfirmInterval is the pause between lookups.
	DefaultConfirmInterval = time.Second
)

// BuildInstructions prefixes the round's instructions with the compute
// budget: the unit limit first, then the unit price.
func BuildInstructions(computeUnits uint32, priorityFee uint64, round []chain.Instruction) []chain.Instruction {
	ixs := make([]chain.Instruction, 0, len(round)+2)
	ixs = append(ixs, chain.SetComputeUnitLimit(computeUnits), chain.SetComputeUnitPrice(priorityFee))
	return append(ixs, round...)
}

// RoundInstructions returns the round's instructions, auth first, then the
// optional reset, then mine, along with the compute budget they need.
func RoundInstructions(signer, bus chain.PublicKey, solution search.Solution, reset bool, boostConfig chain.PublicKey) ([]chain.Instruction, uint32) {
	ixs := []chain.Instruction{protocol.Auth(protocol.ProofAddress(signer))}
	cu := MineComputeUnits
	if reset {
		ixs = append(ixs, protocol.Reset(signer))
		cu += ResetComputeUnits
	}
	ixs = append(ixs, protocol.Mine(signer, signer, bus, solution, boostConfig))
	return ixs, cu
}

// priorityFee asks the estimator for a price and falls back to the static
// fee when it fails.
func (m *Miner) priorityFee(ctx context.Context) uint64 {
	if m.fees == nil {
		return m.opts.PriorityFee
	}
	fee, err := m.fees.Estimate(ctx)
	if err != nil {
		m.logger.Warn("priority fee estimate failed, using static fee",
			zap.Uint64("priority_fee", m.opts.PriorityFee),
			zap.Error(err),
		)
		return m.opts.PriorityFee
	}
	return fee
}

// checkBalance refuses to send when the fee payer is underfunded. The fee
// payer is checked rather than the signer since it is the account charged;
// the two only differ when -fee-payer is set. A failed balance read counts
// as an empty balance.
func (m *Miner) checkBalance(ctx context.Context) error {
	payer := m.payer.PublicKey()
	balance, err := read(ctx, m, "get_balance", func(ctx context.Context) (uint64, error) {
		return m.chain.GetBalance(ctx, payer)
	})
	if err != nil {
		m.logger.Warn("fee payer balance unavailable", zap.Error(err))
		balance = 0
	}
	if balance < MinFeePayerBalance {
		return fmt.Errorf("%w: %s SOL < %s SOL", ErrInsufficientBalance,
			protocol.FormatSOL(balance), protocol.FormatSOL(MinFeePayerBalance))
	}
	return nil
}

// send signs and sends instructions once. Every failure is an ErrSubmission.
func (m *Miner) send(ctx context.Context, computeUnits uint32, round []chain.Instruction) (chain.Signature, error) {
	if err := m.checkBalance(ctx); err != nil {
		return chain.Signature{}, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	fee := m.priorityFee(ctx)
	metrics.PriorityFee.Set(float64(fee))
	m.setPriorityFee(fee)
	ixs := BuildInstructions(computeUnits, fee, round)

	blockhash, err := read(ctx, m, "get_latest_blockhash", m.chain.GetLatestBlockhash)
	if err != nil {
		return chain.Signature{}, fmt.Errorf("%w: blockhash: %w", ErrSubmission, err)
	}

	tx, err := chain.NewTransaction(ixs, blockhash, m.payer.PublicKey(), m.signer, m.payer)
	if err != nil {
		return chain.Signature{}, fmt.Errorf("%w: build transaction: %w", ErrSubmission, err)
	}

	m.logger.Debug("sending transaction",
		zap.Int("instructions", len(ixs)),
		zap.Uint32("compute_units", computeUnits),
		zap.Uint64("priority_fee", fee),
	)
	sig, err := m.chain.SendTransaction(ctx, tx)
	if err != nil {
		return chain.Signature{}, fmt.Errorf("%w: send: %w", ErrSubmission, err)
	}
	return sig, nil
}

// confirm polls for sig until it is visible or the attempts run out. Each
// lookup retries transport faults; a not-found result moves on to the next
// poll.
func (m *Miner) confirm(ctx context.Context, sig chain.Signature) (*chain.ConfirmedTransaction, error) {
	for attempt := 1; attempt <= m.confirmAttempts; attempt++ {
		metrics.ConfirmationPolls.Inc()
		tx, err := read(ctx, m, "get_transaction", func(ctx context.Context) (*chain.ConfirmedTransaction, error) {
			tx, err := m.chain.GetTransaction(ctx, sig)
			if errors.Is(err, chain.ErrTransactionNotFound) {
				return nil, retry.Permanent(err)
			}
			return tx, err
		})
		if err == nil {
			return tx, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Debug("transaction not visible yet",
			zap.String("signature", sig.Short()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == m.confirmAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.confirmInterval):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConfirmationTimeout, sig, m.confirmAttempts)
}

// sendAndConfirm sends instructions and waits until the transaction lands.
// A transaction that executed with an error is an ErrSubmission.
func (m *Miner) sendAndConfirm(ctx context.Context, computeUnits uint32, round []chain.Instruction) (chain.Signature, *chain.ConfirmedTransaction, error) {
	m.setPhase(PhaseSubmit)
	sig, err := m.send(ctx, computeUnits, round)
	if err != nil {
		return sig, nil, &PhaseError{Phase: PhaseSubmit, Err: err}
	}

	m.setPhase(PhaseConfirm)
	tx, err := m.confirm(ctx, sig)
	if err != nil {
		return sig, nil, &PhaseError{Phase: PhaseConfirm, Err: err}
	}
	if tx.Failed() {
		return sig, tx, &PhaseError{Phase: PhaseConfirm, Err: fmt.Errorf("%w: %s failed on chain: %s", ErrSubmission, sig, tx.Err)}
	}
	return sig, tx, nil
}

// submit runs the round's transaction and returns the outcome to record.
// The outcome is filled in for failures too.
func (m *Miner) submit(ctx context.Context, computeUnits uint32, round []chain.Instruction, difficulty uint32) (history.Outcome, error) {
	outcome := history.Outcome{Difficulty: difficulty, RecordedAt: m.now()}

	sig, tx, err := m.sendAndConfirm(ctx, computeUnits, round)
	if sig != (chain.Signature{}) {
		outcome.Signature = sig.String()
	}
	if err != nil {
		outcome.Status = history.StatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	outcome.Status = history.StatusConfirmed
	outcome.Slot = tx.Slot
	if tx.BlockTime != nil {
		outcome.BlockTime = *tx.BlockTime
	}
	outcome.Event = m.decodeEvent(tx)
	return outcome, nil
}

// decodeEvent extracts the mine event from a confirmed transaction. Missing
// or malformed return data yields nil.
func (m *Miner) decodeEvent(tx *chain.ConfirmedTransaction) *history.Event {
	data, ok := chain.ReturnData(tx.LogMessages, protocol.ProgramID)
	if !ok {
		m.logger.Warn("confirmed transaction carries no return data", zap.Uint64("slot", tx.Slot))
		return nil
	}
	ev, err := protocol.DecodeMineEvent(data)
	if err != nil {
		m.logger.Warn("failed to decode mine event", zap.Uint64("slot", tx.Slot), zap.Error(err))
		return nil
	}
	return &history.Event{
		Difficulty:  ev.Difficulty,
		BaseReward:  ev.NetBaseReward,
		BoostReward: ev.NetMinerBoostReward,
		TotalReward: ev.NetReward,
		Timing:      ev.Timing,
	}
}
