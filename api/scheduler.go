/*
scheduler.go - Automated settlement sweep scheduler

PURPOSE:
  Periodically runs the settlement sweep so that matured investments and
  calendar events are settled even for accounts nobody visits.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each sweep evaluates every account as of today
  - Idempotency makes overlap with access-time settlement harmless: the
    second trigger for any event resolves to "skipped"

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(eng)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - engine/engine.go: RunSweep
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mesu/settlement-engine/engine"
)

// SweepScheduler runs periodic settlement sweeps.
type SweepScheduler struct {
	Engine        *engine.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(eng *engine.Engine) *SweepScheduler {
	return &SweepScheduler{
		Engine:        eng,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()
	asOf := engine.Today()

	results, err := ss.Engine.RunSweep(ctx, asOf)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}

	var settled, skipped, failed int
	for _, res := range results {
		switch res.Status {
		case engine.SettlementSettled:
			settled++
		case engine.SettlementSkipped:
			skipped++
		case engine.SettlementFailed:
			failed++
			log.Printf("[Scheduler] Settlement failed for %s (%s): %v", res.SubjectID, res.Kind, res.Err)
		}
	}

	if settled > 0 || failed > 0 {
		log.Printf("[Scheduler] Sweep as of %s: %d settled, %d skipped, %d failed",
			asOf, settled, skipped, failed)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}
