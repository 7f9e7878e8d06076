package search

import (
	"sync"
	"time"

	"github.com/eore-labs/eore-cli/internal/metrics"

	"go.uber.org/zap"
)

// DefaultCheckInterval is how many nonces a worker hashes between deadline checks.
const DefaultCheckInterval = 100

// Engine runs a parallel nonce search over a fixed set of workers.
type Engine struct {
	scorer        Scorer
	logger        *zap.Logger
	sink          chan<- Solution
	pin           bool
	checkInterval uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink streams every new global best that meets the minimum difficulty to
// ch. Sends never block: when ch is full the solution is dropped.
func WithSink(ch chan<- Solution) Option {
	return func(e *Engine) { e.sink = ch }
}

// WithPinning enables or disables per-core thread pinning.
func WithPinning(pin bool) Option {
	return func(e *Engine) { e.pin = pin }
}

// WithCheckInterval sets how many nonces pass between termination checks.
func WithCheckInterval(n uint64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.checkInterval = n
		}
	}
}

// NewEngine creates a search engine around scorer.
func NewEngine(scorer Scorer, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		scorer:        scorer,
		logger:        logger,
		pin:           true,
		checkInterval: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search hashes from each starting nonce in parallel and returns the best
// result found.
//
// Workers stop once the deadline has elapsed and the shared best meets
// minDifficulty. The deadline alone never stops the search: if minDifficulty
// is not reached, Search keeps going.
func (e *Engine) Search(challenge [32]byte, deadline time.Duration, minDifficulty uint32, starts []uint64) Best {
	var (
		register Register
		wg       sync.WaitGroup
		results  = make([]Best, len(starts))
		start    = time.Now()
	)

	for i, nonce := range starts {
		wg.Add(1)
		go func(id int, nonce uint64) {
			defer wg.Done()
			results[id] = e.work(id, challenge, nonce, start, deadline, minDifficulty, &register)
		}(i, nonce)
	}
	wg.Wait()

	var best Best
	for i, r := range results {
		if i == 0 || r.Difficulty > best.Difficulty {
			best = r
		}
	}

	metrics.BestDifficulty.Set(float64(best.Difficulty))
	e.logger.Debug("search finished",
		zap.Int("workers", len(starts)),
		zap.Uint32("difficulty", best.Difficulty),
		zap.Uint64("nonce", best.Nonce),
		zap.Duration("elapsed", time.Since(start)),
	)
	return best
}

func (e *Engine) work(id int, challenge [32]byte, nonce uint64, start time.Time, deadline time.Duration, minDifficulty uint32, register *Register) Best {
	if e.pin {
		if err := pinToCore(id); err != nil {
			e.logger.Debug("core pinning unavailable", zap.Int("worker", id), zap.Error(err))
		}
	}

	solver := e.scorer.NewSolver()
	local := Best{Nonce: nonce}
	var counted uint64

	for {
		for _, hx := range solver.Hashes(challenge, NonceBytes(nonce)) {
			difficulty := hx.Difficulty()
			if difficulty <= local.Difficulty {
				continue
			}
			local = Best{Nonce: nonce, Difficulty: difficulty, Hash: hx}
			if register.Offer(local) && difficulty >= minDifficulty {
				e.publish(id, local)
			}
		}
		counted++

		if nonce%e.checkInterval == 0 {
			metrics.Hashes.Add(float64(counted))
			counted = 0
			if time.Since(start) >= deadline && register.Difficulty() >= minDifficulty {
				break
			}
		}
		nonce++
	}

	return local
}

func (e *Engine) publish(id int, b Best) {
	if e.sink == nil {
		return
	}
	select {
	case e.sink <- b.Solution():
	default:
		e.logger.Warn("solution sink full, dropping solution",
			zap.Int("worker", id),
			zap.Uint32("difficulty", b.Difficulty),
		)
	}
}

// Benchmark hashes a zero challenge on workers goroutines for d and returns
// the aggregate hash rate in hashes per second.
func (e *Engine) Benchmark(workers int, d time.Duration) uint64 {
	var (
		challenge [32]byte
		wg        sync.WaitGroup
		counts    = make([]uint64, workers)
		start     = time.Now()
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if e.pin {
				if err := pinToCore(id); err != nil {
					e.logger.Debug("core pinning unavailable", zap.Int("worker", id), zap.Error(err))
				}
			}
			solver := e.scorer.NewSolver()
			first := StartingNonce(workers, id)
			nonce := first
			for {
				solver.Hashes(challenge, NonceBytes(nonce))
				nonce++
				if (nonce-first)%e.checkInterval == 0 && time.Since(start) >= d {
					break
				}
			}
			counts[id] = nonce - first
		}(i)
	}
	wg.Wait()

	var total uint64
	for _, c := range counts {
		total += c
	}
	metrics.Hashes.Add(float64(total))

	if d <= 0 {
		return total
	}
	return uint64(float64(total) / d.Seconds())
}
