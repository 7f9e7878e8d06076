package protocol

import (
	"errors"
	"fmt"

	"github.com/eore-labs/eore-cli/internal/chain"
)

// ErrDecode is returned for account or event data that does not match the
// expected layout.
var ErrDecode = errors.New("decode error")

// Account discriminators, stored in the first of 8 leading bytes.
const (
	BusDiscriminator      = 100
	ConfigDiscriminator   = 101
	ProofDiscriminator    = 102
	TreasuryDiscriminator = 103
)

const discriminatorSize = 8

// Bus is a reward pool.
type Bus struct {
	ID                 uint64
	Rewards            uint64
	TheoreticalRewards uint64
	TopBalance         uint64
}

// Config holds the program's global parameters.
type Config struct {
	BaseRewardRate uint64
	LastResetAt    int64
	MinDifficulty  uint64
	TopBalance     uint64
}

// Proof is a miner's account.
type Proof struct {
	Authority    chain.PublicKey
	Balance      uint64
	Challenge    [32]byte
	LastHash     [32]byte
	LastHashAt   int64
	LastStakeAt  int64
	Miner        chain.PublicKey
	TotalHashes  uint64
	TotalRewards uint64
}

// Clock is the clock sysvar.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func body(data []byte, disc byte, size int, name string) ([]byte, error) {
	if len(data) < discriminatorSize+size {
		return nil, fmt.Errorf("%w: %s account is %d bytes, want %d", ErrDecode, name, len(data), discriminatorSize+size)
	}
	if data[0] != disc {
		return nil, fmt.Errorf("%w: %s discriminator %d, want %d", ErrDecode, name, data[0], disc)
	}
	return data[discriminatorSize:], nil
}

// DecodeBus parses bus account data.
func DecodeBus(data []byte) (*Bus, error) {
	b, err := body(data, BusDiscriminator, 32, "bus")
	if err != nil {
		return nil, err
	}
	return &Bus{
		ID:                 u64(b, 0),
		Rewards:            u64(b, 8),
		TheoreticalRewards: u64(b, 16),
		TopBalance:         u64(b, 24),
	}, nil
}

// DecodeConfig parses config account data.
func DecodeConfig(data []byte) (*Config, error) {
	b, err := body(data, ConfigDiscriminator, 32, "config")
	if err != nil {
		return nil, err
	}
	return &Config{
		BaseRewardRate: u64(b, 0),
		LastResetAt:    i64(b, 8),
		MinDifficulty:  u64(b, 16),
		TopBalance:     u64(b, 24),
	}, nil
}

// DecodeProof parses proof account data.
func DecodeProof(data []byte) (*Proof, error) {
	b, err := body(data, ProofDiscriminator, 168, "proof")
	if err != nil {
		return nil, err
	}
	p := &Proof{
		Balance:      u64(b, 32),
		LastHashAt:   i64(b, 104),
		LastStakeAt:  i64(b, 112),
		TotalHashes:  u64(b, 152),
		TotalRewards: u64(b, 160),
	}
	copy(p.Authority[:], b[0:32])
	copy(p.Challenge[:], b[40:72])
	copy(p.LastHash[:], b[72:104])
	copy(p.Miner[:], b[120:152])
	return p, nil
}

// DecodeClock parses clock sysvar data.
func DecodeClock(data []byte) (*Clock, error) {
	if len(data) < 40 {
		return nil, fmt.Errorf("%w: clock is %d bytes", ErrDecode, len(data))
	}
	return &Clock{
		Slot:                u64(data, 0),
		EpochStartTimestamp: i64(data, 8),
		Epoch:               u64(data, 16),
		LeaderScheduleEpoch: u64(data, 24),
		UnixTimestamp:       i64(data, 32),
	}, nil
}

// tokenAccountSize is the length of an SPL token account.
const tokenAccountSize = 165

// DecodeTokenAmount returns the balance held by an SPL token account.
func DecodeTokenAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountSize {
		return 0, fmt.Errorf("%w: token account is %d bytes, want %d", ErrDecode, len(data), tokenAccountSize)
	}
	return u64(data, 64), nil
}
