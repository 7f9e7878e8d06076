package search

import (
	"errors"
	"fmt"
	"math"
	"runtime"
)

// ErrWorkerCount is returned for a worker count outside [1, NumCPU].
var ErrWorkerCount = errors.New("invalid worker count")

// CheckWorkers verifies that n workers can each get their own core.
func CheckWorkers(n int) error {
	cores := runtime.NumCPU()
	if n < 1 {
		return fmt.Errorf("%w: %d (must be at least 1)", ErrWorkerCount, n)
	}
	if n > cores {
		return fmt.Errorf("%w: requested %d cores but only %d are available", ErrWorkerCount, n, cores)
	}
	return nil
}

// StartingNonce returns the first nonce of worker i out of n.
func StartingNonce(n, i int) uint64 {
	return (math.MaxUint64 / uint64(n)) * uint64(i)
}

// StartingNonces returns one disjoint starting nonce per worker.
func StartingNonces(n int) ([]uint64, error) {
	if err := CheckWorkers(n); err != nil {
		return nil, err
	}
	starts := make([]uint64, n)
	for i := range starts {
		starts[i] = StartingNonce(n, i)
	}
	return starts, nil
}
