package search

import (
	"encoding/binary"
	"math/bits"
)

// Hash is one scored digest for a (challenge, nonce) pair.
type Hash struct {
	D [16]byte // digest submitted on-chain
	H [32]byte // hash the difficulty is measured on
}

// Difficulty returns the number of leading zero bits of h.H.
func (h Hash) Difficulty() uint32 {
	var n uint32
	for _, b := range h.H {
		if b == 0 {
			n += 8
			continue
		}
		n += uint32(bits.LeadingZeros8(b))
		break
	}
	return n
}

// Solution is what a round submits on-chain.
type Solution struct {
	D [16]byte
	N [8]byte
}

// NewSolution pairs a digest with its nonce.
func NewSolution(d [16]byte, nonce uint64) Solution {
	var s Solution
	s.D = d
	binary.LittleEndian.PutUint64(s.N[:], nonce)
	return s
}

// Nonce returns the solution's nonce as an integer.
func (s Solution) Nonce() uint64 {
	return binary.LittleEndian.Uint64(s.N[:])
}

// Scorer produces per-worker solvers. The scoring function must be
// deterministic for a given challenge and nonce.
type Scorer interface {
	NewSolver() Solver
}

// Solver evaluates nonces. A Solver is used by a single goroutine and may
// keep scratch memory between calls. It may return several hashes per nonce.
type Solver interface {
	Hashes(challenge [32]byte, nonce [8]byte) []Hash
}

// NonceBytes encodes a nonce the way solvers and the program expect it.
func NonceBytes(nonce uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], nonce)
	return b
}
