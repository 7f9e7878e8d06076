// Package history keeps the outcomes of recent mining rounds: a bounded
// in-memory ring for display and an optional bbolt journal on disk.
package history

import "time"

// Status is the final state of a round's submission.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Event is the reward report decoded from a confirmed submission.
type Event struct {
	Difficulty  uint64 `cbor:"1,keyasint" json:"difficulty"`
	BaseReward  uint64 `cbor:"2,keyasint" json:"base_reward"`
	BoostReward uint64 `cbor:"3,keyasint" json:"boost_reward"`
	TotalReward uint64 `cbor:"4,keyasint" json:"total_reward"`
	Timing      int64  `cbor:"5,keyasint" json:"timing"`
}

// Outcome records one round. Event is nil for failed rounds and for
// confirmed rounds whose return data could not be decoded.
type Outcome struct {
	Status     Status    `cbor:"1,keyasint" json:"status"`
	Signature  string    `cbor:"2,keyasint,omitempty" json:"signature,omitempty"`
	Slot       uint64    `cbor:"3,keyasint,omitempty" json:"slot,omitempty"`
	BlockTime  int64     `cbor:"4,keyasint,omitempty" json:"block_time,omitempty"`
	Event      *Event    `cbor:"5,keyasint,omitempty" json:"event,omitempty"`
	Error      string    `cbor:"6,keyasint,omitempty" json:"error,omitempty"`
	Difficulty uint32    `cbor:"7,keyasint" json:"difficulty"`
	RecordedAt time.Time `cbor:"8,keyasint" json:"recorded_at"`
}

// Confirmed reports whether the round's transaction landed.
func (o Outcome) Confirmed() bool { return o.Status == StatusConfirmed }
