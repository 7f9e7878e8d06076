package miner

import (
	"time"

	"github.com/eore-labs/eore-cli/internal/chain"
	"github.com/eore-labs/eore-cli/internal/protocol"
)

// Status is a point-in-time view of the miner for display.
type Status struct {
	Authority      chain.PublicKey
	Proof          chain.PublicKey
	Cores          int
	Phase          Phase
	Round          uint64
	Challenge      [32]byte
	MinDifficulty  uint32
	LastDifficulty uint32
	BestDifficulty uint32
	PriorityFee    uint64
	StakeBalance   uint64
	Confirmed      uint64
	Failed         uint64
	Rewards        uint64
	Started        time.Time
}

// Status returns a copy of the miner's current status.
func (m *Miner) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Miner) setPhase(p Phase) {
	m.mu.Lock()
	m.status.Phase = p
	m.mu.Unlock()
}

func (m *Miner) beginRound(proof *protocol.Proof, minDifficulty uint32) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Round++
	m.status.Challenge = proof.Challenge
	m.status.MinDifficulty = minDifficulty
	m.status.StakeBalance = proof.Balance
	return m.status.Round
}

func (m *Miner) setPriorityFee(fee uint64) {
	m.mu.Lock()
	m.status.PriorityFee = fee
	m.mu.Unlock()
}
