package search

import (
	"sync"
	"sync/atomic"
)

// Best is a candidate result: the nonce, its difficulty and the hash that
// produced it.
type Best struct {
	Nonce      uint64
	Difficulty uint32
	Hash       Hash
}

// Solution converts b into the on-chain solution.
func (b Best) Solution() Solution {
	return NewSolution(b.Hash.D, b.Nonce)
}

// Register holds the best result seen by any worker in a round. Updates are
// monotonic: a candidate replaces the current value only if strictly better.
//
// The difficulty is mirrored in an atomic so workers can reject most
// candidates without taking the lock.
type Register struct {
	difficulty atomic.Uint32

	mu   sync.RWMutex
	best Best
}

// Offer records b if it beats the current best and reports whether it did.
// The comparison and the write happen under the same lock.
func (r *Register) Offer(b Best) bool {
	if b.Difficulty <= r.difficulty.Load() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b.Difficulty <= r.best.Difficulty {
		return false
	}
	r.best = b
	r.difficulty.Store(b.Difficulty)
	return true
}

// Difficulty returns the current best difficulty.
func (r *Register) Difficulty() uint32 {
	return r.difficulty.Load()
}

// Load returns the current best.
func (r *Register) Load() Best {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.best
}
