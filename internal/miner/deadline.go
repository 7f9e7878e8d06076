package miner

import "time"

const (
	// RoundLength is the nominal time between accepted solutions, in seconds.
	RoundLength int64 = 60

	// EpochLength is the time between resets, in seconds.
	EpochLength int64 = 60

	// ResetMargin makes the reset fire slightly before the epoch ends.
	ResetMargin int64 = 5
)

// Cutoff returns how long the search may run before the round's submission
// must go out: lastHashAt + roundLength - buffer - now seconds, floored at 0.
func Cutoff(lastHashAt, roundLength, buffer, now int64) time.Duration {
	secs := lastHashAt + roundLength - buffer - now
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}

// NeedsReset reports whether the epoch that started at lastResetAt is over
// (within margin) at chain time now.
func NeedsReset(lastResetAt, epochLength, margin, now int64) bool {
	return lastResetAt+epochLength-margin <= now
}
