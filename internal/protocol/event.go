package protocol

import "fmt"

// MineEventSize is the encoded size of a MineEvent.
const MineEventSize = 56

// MineEvent is returned by the program for every accepted solution.
type MineEvent struct {
	Balance             uint64
	Difficulty          uint64
	LastHashAt          int64
	Timing              int64
	NetReward           uint64
	NetBaseReward       uint64
	NetMinerBoostReward uint64
}

// DecodeMineEvent parses mine instruction return data.
func DecodeMineEvent(data []byte) (*MineEvent, error) {
	if len(data) != MineEventSize {
		return nil, fmt.Errorf("%w: mine event is %d bytes, want %d", ErrDecode, len(data), MineEventSize)
	}
	return &MineEvent{
		Balance:             u64(data, 0),
		Difficulty:          u64(data, 8),
		LastHashAt:          i64(data, 16),
		Timing:              i64(data, 24),
		NetReward:           u64(data, 32),
		NetBaseReward:       u64(data, 40),
		NetMinerBoostReward: u64(data, 48),
	}, nil
}
