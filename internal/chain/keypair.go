package chain

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	key ed25519.PrivateKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidKey, len(seed))
	}
	return &Keypair{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// NewKeypairFromBytes accepts a 64-byte secret||public key or a 32-byte seed.
// A 64-byte key whose public half does not match its seed is rejected.
func NewKeypairFromBytes(b []byte) (*Keypair, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return NewKeypairFromSeed(b)
	case ed25519.PrivateKeySize:
		kp, _ := NewKeypairFromSeed(b[:ed25519.SeedSize])
		if !bytes.Equal(kp.key[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: public key does not match secret key", ErrInvalidKey)
		}
		return kp, nil
	default:
		return nil, fmt.Errorf("%w: key is %d bytes", ErrInvalidKey, len(b))
	}
}

// LoadKeypair reads a keypair file. Both the JSON byte array written by
// solana-keygen and a single base58 string are accepted.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	if bytes.HasPrefix(raw, []byte("[")) {
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, fmt.Errorf("parse keypair %s: %w", path, err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range in %s", ErrInvalidKey, i, path)
			}
			b[i] = byte(v)
		}
		return NewKeypairFromBytes(b)
	}

	b, err := base58.Decode(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is neither a JSON array nor base58", ErrInvalidKey, path)
	}
	return NewKeypairFromBytes(b)
}

// PublicKey returns the keypair's address.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.key[ed25519.SeedSize:])
	return pk
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.key, message))
	return sig
}
