/*
scheduler.go - Automated expiry of stale requests

PURPOSE:
  Periodically cancels reservations still in "requested" state whose
  arrival date has passed. Their dates were held without an administrator
  ever confirming them; expiring them frees the calendar.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each pass is booking.Service.ExpireStale; a reservation confirmed or
    cancelled concurrently is skipped, never overwritten

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(service)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - booking/service.go: ExpireStale
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/stay-booking/booking"
)

// ExpiryScheduler handles automated expiry of stale requests.
type ExpiryScheduler struct {
	Service       *booking.Service
	CheckInterval time.Duration
	Enabled       bool

	// Timeout bounds a single pass.
	Timeout time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(service *booking.Service) *ExpiryScheduler {
	return &ExpiryScheduler{
		Service:       service,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Timeout:       1 * time.Minute,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if es.ticker != nil {
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.stop = make(chan struct{})
	es.wg.Add(1)

	go es.run(es.ticker, es.stop)

	log.Printf("[Scheduler] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (es *ExpiryScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer es.wg.Done()

	// Run immediately on start
	es.RunOnce()

	for {
		select {
		case <-ticker.C:
			es.RunOnce()
		case <-stop:
			return
		}
	}
}

// RunOnce performs a single expiry pass and returns how many requests were
// cancelled.
func (es *ExpiryScheduler) RunOnce() int {
	timeout := es.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	expired, err := es.Service.ExpireStale(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error expiring stale requests: %v", err)
	}
	if expired > 0 {
		log.Printf("[Scheduler] Expired %d stale requests", expired)
	}
	return expired
}
