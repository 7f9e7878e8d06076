package search

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// KeccakScorer is a reference Scorer: the digest is the first 16 bytes of
// keccak256(challenge || nonce) and the scored hash is keccak256(digest || nonce).
//
// It is not the drillx function the eore program verifies. A drillx binding
// satisfying Scorer is required for accepted submissions; this one is used for
// benchmarking and tests.
type KeccakScorer struct{}

// NewSolver implements Scorer.
func (KeccakScorer) NewSolver() Solver {
	return &keccakSolver{h: sha3.NewLegacyKeccak256()}
}

type keccakSolver struct {
	h   hash.Hash
	buf [32]byte
	out [1]Hash
}

func (s *keccakSolver) Hashes(challenge [32]byte, nonce [8]byte) []Hash {
	s.h.Reset()
	s.h.Write(challenge[:])
	s.h.Write(nonce[:])
	sum := s.h.Sum(s.buf[:0])

	var hx Hash
	copy(hx.D[:], sum[:16])

	s.h.Reset()
	s.h.Write(hx.D[:])
	s.h.Write(nonce[:])
	s.h.Sum(hx.H[:0])

	s.out[0] = hx
	return s.out[:]
}
