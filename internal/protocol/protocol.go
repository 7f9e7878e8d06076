// Package protocol holds the eore program's addresses, account layouts,
// instruction builders and event decoding.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/eore-labs/eore-cli/internal/chain"
)

var (
	// ProgramID is the eore program.
	ProgramID = chain.MustPublicKey("EorefDWqzJK31vLxaqkDGsx3CRKqPVpWfuJL7qBQMZYd")

	// NoopProgramID is the program used for the per-round auth instruction.
	NoopProgramID = chain.MustPublicKey("noopb9bkMVfRPU8AsbpTUg8AQkHtKwMYZiFUjNRtMmV")
)

const (
	// BusCount is the number of reward pools.
	BusCount = 8

	// TokenDecimals is the mint's decimal precision.
	TokenDecimals = 11

	// EpochDuration is the length of a reward epoch in seconds.
	EpochDuration = 60

	// OneMinute is the nominal length of a mining round in seconds.
	OneMinute = 60
)

// Account seeds.
var (
	ConfigSeed   = []byte("config")
	ProofSeed    = []byte("proof")
	BusSeed      = []byte("bus")
	TreasurySeed = []byte("treasury")
	MintSeed     = []byte("mint")

	MintNoise = []byte{89, 157, 88, 232, 243, 249, 197, 132, 199, 49, 19, 234, 91, 94, 150, 41}
)

// Derived program accounts. They depend only on ProgramID and are computed once.
var (
	ConfigAddress         chain.PublicKey
	TreasuryAddress       chain.PublicKey
	MintAddress           chain.PublicKey
	TreasuryTokensAddress chain.PublicKey
	BusAddresses          [BusCount]chain.PublicKey
)

func init() {
	ConfigAddress = mustPDA(ConfigSeed)
	TreasuryAddress = mustPDA(TreasurySeed)
	MintAddress = mustPDA(MintSeed, MintNoise)
	for i := range BusAddresses {
		BusAddresses[i] = mustPDA(BusSeed, []byte{byte(i)})
	}
	ata, err := chain.AssociatedTokenAddress(TreasuryAddress, MintAddress)
	if err != nil {
		panic(fmt.Sprintf("derive treasury token account: %v", err))
	}
	TreasuryTokensAddress = ata
}

// BoostConfigAddress returns the config account of a boost program.
func BoostConfigAddress(boostProgram chain.PublicKey) (chain.PublicKey, error) {
	pk, _, err := chain.FindProgramAddress([][]byte{ConfigSeed}, boostProgram)
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("derive boost config: %w", err)
	}
	return pk, nil
}

func mustPDA(seeds ...[]byte) chain.PublicKey {
	pk, _, err := chain.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic(fmt.Sprintf("derive program address %q: %v", seeds[0], err))
	}
	return pk
}

// ProofAddress returns the proof account of authority.
func ProofAddress(authority chain.PublicKey) chain.PublicKey {
	return mustPDA(ProofSeed, authority[:])
}

// FormatAmount renders a raw token amount with all 11 decimals.
func FormatAmount(amount uint64) string {
	const unit = 100_000_000_000
	return fmt.Sprintf("%d.%011d", amount/unit, amount%unit)
}

// FormatReward is FormatAmount except that zero renders as "0".
func FormatReward(amount uint64) string {
	if amount == 0 {
		return "0"
	}
	return FormatAmount(amount)
}

// FormatSOL renders lamports as SOL.
func FormatSOL(lamports uint64) string {
	return fmt.Sprintf("%d.%09d", lamports/chain.LamportsPerSOL, lamports%chain.LamportsPerSOL)
}

func u64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }
func i64(b []byte, off int) int64 { return int64(binary.LittleEndian.Uint64(b[off:])) }
