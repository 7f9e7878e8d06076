// Package chain is a small Solana client: addresses, legacy transactions,
// program-derived addresses and the JSON-RPC calls the miner needs.
package chain

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned when a base58 string does not decode to a key of
// the expected length.
var ErrInvalidKey = errors.New("invalid key")

// PublicKey is a 32-byte account address.
type PublicKey [32]byte

// PublicKeyFromBase58 parses a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidKey, s, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey is PublicKeyFromBase58 for compile-time constants.
func MustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p PublicKey) String() string { return base58.Encode(p[:]) }

// IsZero reports whether p is the all-zero key (the system program).
func (p PublicKey) IsZero() bool { return p == PublicKey{} }

func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PublicKey) UnmarshalText(text []byte) error {
	pk, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Signature is an ed25519 transaction signature.
type Signature [64]byte

// SignatureFromBase58 parses a base58 signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("%w: signature %q: %v", ErrInvalidKey, s, err)
	}
	if len(b) != len(sig) {
		return sig, fmt.Errorf("%w: signature decodes to %d bytes", ErrInvalidKey, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := SignatureFromBase58(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// Short returns the first 8 characters of the signature for log lines.
func (s Signature) Short() string {
	str := s.String()
	if len(str) <= 8 {
		return str
	}
	return str[:8] + "..."
}

// Hash is a recent blockhash.
type Hash [32]byte

// HashFromBase58 parses a base58 blockhash.
func HashFromBase58(s string) (Hash, error) {
	pk, err := PublicKeyFromBase58(s)
	return Hash(pk), err
}

func (h Hash) String() string { return base58.Encode(h[:]) }
