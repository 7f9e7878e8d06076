// Package fee estimates the compute unit price attached to submissions.
package fee

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/eore-labs/eore-cli/internal/chain"
)

// ErrNoFees is returned when the node reports no recent prioritization fees.
var ErrNoFees = errors.New("no recent prioritization fees")

const (
	// DefaultPercentile is the percentile RecentFees reports.
	DefaultPercentile = 75

	// DefaultWindow is how many of the most recent slots RecentFees considers.
	DefaultWindow = 150
)

// Estimator returns a compute unit price in micro-lamports.
type Estimator interface {
	Estimate(ctx context.Context) (uint64, error)
}

// Static always returns the same price.
type Static uint64

// Estimate implements Estimator.
func (s Static) Estimate(context.Context) (uint64, error) { return uint64(s), nil }

// FeeSource is the chain read RecentFees depends on.
type FeeSource interface {
	GetRecentPrioritizationFees(ctx context.Context, addresses []chain.PublicKey) ([]chain.PrioritizationFee, error)
}

// RecentFees estimates the price from recent prioritization fees paid by
// transactions touching accounts.
type RecentFees struct {
	source     FeeSource
	accounts   []chain.PublicKey
	percentile int
	window     int
}

// NewRecentFees creates a RecentFees estimator using the default percentile
// and window.
func NewRecentFees(source FeeSource, accounts []chain.PublicKey) *RecentFees {
	return &RecentFees{
		source:     source,
		accounts:   accounts,
		percentile: DefaultPercentile,
		window:     DefaultWindow,
	}
}

// Estimate implements Estimator.
func (r *RecentFees) Estimate(ctx context.Context) (uint64, error) {
	entries, err := r.source.GetRecentPrioritizationFees(ctx, r.accounts)
	if err != nil {
		return 0, fmt.Errorf("recent prioritization fees: %w", err)
	}
	if len(entries) == 0 {
		return 0, ErrNoFees
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Slot > entries[j].Slot })
	if len(entries) > r.window {
		entries = entries[:r.window]
	}
	fees := make([]uint64, len(entries))
	for i, e := range entries {
		fees[i] = e.PrioritizationFee
	}
	return Percentile(fees, r.percentile), nil
}

// Percentile returns the p-th percentile of fees using nearest rank:
// the element at round(p/100 * n), one-based, clamped to the first.
// fees is sorted in place. It returns 0 for an empty slice.
func Percentile(fees []uint64, p int) uint64 {
	if len(fees) == 0 {
		return 0
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	idx := int(math.Round(float64(p) / 100 * float64(len(fees))))
	if idx > len(fees) {
		idx = len(fees)
	}
	if idx < 1 {
		idx = 1
	}
	return fees[idx-1]
}

// Capped limits another estimator's result to Max.
type Capped struct {
	Estimator Estimator
	Max       uint64
}

// Estimate implements Estimator.
func (c Capped) Estimate(ctx context.Context) (uint64, error) {
	v, err := c.Estimator.Estimate(ctx)
	if err != nil {
		return 0, err
	}
	return min(v, c.Max), nil
}
