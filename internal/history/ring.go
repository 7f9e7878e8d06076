package history

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity is the number of outcomes a Ring keeps.
const DefaultCapacity = 30

// Journal persists outcomes beyond the ring's lifetime.
type Journal interface {
	Append(o Outcome) error
}

// Ring is a bounded, mutex-guarded outcome history. The oldest outcome is
// evicted once capacity is reached.
type Ring struct {
	mu       sync.Mutex
	items    []Outcome
	capacity int
	journal  Journal
	logger   *zap.Logger
}

// NewRing creates a ring holding up to capacity outcomes. journal may be nil.
func NewRing(capacity int, journal Journal, logger *zap.Logger) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{
		items:    make([]Outcome, 0, capacity),
		capacity: capacity,
		journal:  journal,
		logger:   logger,
	}
}

// Add appends o and mirrors it to the journal. A journal failure is logged
// and does not affect the in-memory history.
func (r *Ring) Add(o Outcome) {
	r.push(o)
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(o); err != nil {
		r.logger.Warn("failed to journal outcome",
			zap.String("status", string(o.Status)),
			zap.String("signature", o.Signature),
			zap.Error(err),
		)
	}
}

// Preload seeds the ring with outcomes given newest first, without
// journaling them again.
func (r *Ring) Preload(newestFirst []Outcome) {
	for i := len(newestFirst) - 1; i >= 0; i-- {
		r.push(newestFirst[i])
	}
}

func (r *Ring) push(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, o)
	if len(r.items) > r.capacity {
		r.items = r.items[len(r.items)-r.capacity:]
	}
}

// Snapshot returns a copy of the history, newest first.
func (r *Ring) Snapshot() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.items))
	for i, o := range r.items {
		out[len(r.items)-1-i] = o
	}
	return out
}

// Latest returns the most recent outcome.
func (r *Ring) Latest() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Outcome{}, false
	}
	return r.items[len(r.items)-1], true
}

// Len returns the number of outcomes held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
