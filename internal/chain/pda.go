package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	// ErrOnCurve is returned when seeds hash to a valid ed25519 point and
	// therefore cannot be used as a program address.
	ErrOnCurve = errors.New("program address is on the ed25519 curve")

	// ErrNoBump is returned when no bump seed yields an off-curve address.
	ErrNoBump = errors.New("no viable bump seed")
)

// CreateProgramAddress derives the address for seeds under program.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("%d seeds exceeds the limit of %d", len(seeds), maxSeeds)
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed of %d bytes exceeds the limit of %d", len(s), maxSeedLength)
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte("ProgramDerivedAddress"))

	var pk PublicKey
	h.Sum(pk[:0])
	if IsOnCurve(pk) {
		return PublicKey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return PublicKey{}, 0, err
		}
		return pk, uint8(bump), nil
	}
	return PublicKey{}, 0, ErrNoBump
}

// IsOnCurve reports whether pk decodes to an ed25519 point.
func IsOnCurve(pk PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// AssociatedTokenAddress returns the associated token account of wallet for mint.
func AssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{wallet[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
	return pk, err
}
