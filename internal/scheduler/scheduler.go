package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

// Runner executes one decision cycle.
type Runner interface {
	Run(ctx context.Context, asset ledger.AssetID) (*strategy.CycleResult, error)
}

// Outcome represents the result of one cycle in a batch.
type Outcome struct {
	Asset     ledger.AssetID        `json:"asset"`
	Result    *strategy.CycleResult `json:"result,omitempty"`
	Error     error                 `json:"-"`
	ErrorMsg  string                `json:"error,omitempty"`
	Latency   time.Duration         `json:"latency_ms"`
	Timestamp time.Time             `json:"timestamp"`
}

func (o Outcome) Success() bool { return o.Error == nil }

// Scheduler runs cycles for a fixed asset list on an interval, with bounded concurrency.
type Scheduler struct {
	runner     Runner
	assets     []ledger.AssetID
	interval   time.Duration
	workerPool chan struct{}

	busy atomic.Bool
	wg   sync.WaitGroup

	mu   sync.RWMutex
	last []Outcome
}

// New creates a scheduler. workers bounds how many assets cycle at once.
func New(runner Runner, assets []ledger.AssetID, interval time.Duration, workers int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:     runner,
		assets:     assets,
		interval:   interval,
		workerPool: make(chan struct{}, workers),
	}
}

func (s *Scheduler) Assets() []ledger.AssetID { return s.assets }

// RunBatch runs one cycle per asset and waits for all of them. A failing or panicking
// asset never stops the others. Outcomes come back in the order of assets.
func (s *Scheduler) RunBatch(ctx context.Context, assets []ledger.AssetID) []Outcome {
	out := make([]Outcome, len(assets))
	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = s.run(ctx, asset)
		}()
	}
	wg.Wait()

	failed := 0
	for _, o := range out {
		if !o.Success() {
			failed++
		}
	}
	log.Printf("[scheduler] batch done: %d assets, %d failed", len(out), failed)

	s.mu.Lock()
	s.last = out
	s.mu.Unlock()
	return out
}

// Trigger runs a single manual cycle through the same worker pool.
func (s *Scheduler) Trigger(ctx context.Context, asset ledger.AssetID) Outcome {
	return s.run(ctx, asset)
}

// Last returns the outcomes of the most recent batch.
func (s *Scheduler) Last() []Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Outcome(nil), s.last...)
}

func (s *Scheduler) run(ctx context.Context, asset ledger.AssetID) (o Outcome) {
	o.Asset = asset
	select {
	case s.workerPool <- struct{}{}: // acquire worker slot
	case <-ctx.Done():
		o.Error = ctx.Err()
		o.ErrorMsg = o.Error.Error()
		o.Timestamp = time.Now()
		return o
	}
	defer func() { <-s.workerPool }()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [scheduler] cycle %s panicked: %v\n%s", asset, r, debug.Stack())
			o.Error = fmt.Errorf("cycle panic: %v", r)
		}
		o.Latency = time.Since(start)
		o.Timestamp = time.Now()
		if o.Error != nil {
			o.ErrorMsg = o.Error.Error()
		}
	}()

	o.Result, o.Error = s.runner.Run(ctx, asset)
	return o
}

// Start runs a batch immediately and then on every tick until ctx is cancelled.
// A tick that arrives while a batch is still running is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[scheduler] stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	log.Printf("[scheduler] started: %d assets every %s", len(s.assets), s.interval)
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		log.Printf("⚠️ [scheduler] previous batch still running, skipping tick")
		return
	}
	defer s.busy.Store(false)
	s.RunBatch(ctx, s.assets)
}

// Wait blocks until the loop started by Start has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
