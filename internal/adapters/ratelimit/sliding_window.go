package ratelimit

import (
	"sync"
	"time"

	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/poyrazK/licensegate/internal/infrastructure/metrics"
)

// DefaultWindow is the trailing interval requests are counted over.
const DefaultWindow = 60 * time.Second

// SlidingWindow implements a per-client sliding window log.
// One instance is shared by every route it guards.
type SlidingWindow struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSlidingWindow allows at most limit requests per client in any trailing window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	return &SlidingWindow{
		clients: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow purges timestamps older than the window, then admits and records the call
// if fewer than limit remain. Rejected calls are not recorded.
func (sw *SlidingWindow) Allow(client string) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	recent := prune(sw.clients[client], now.Add(-sw.window))
	if len(recent) >= sw.limit {
		sw.clients[client] = recent
		return false
	}
	sw.clients[client] = append(recent, now)
	return true
}

// prune drops entries at or before cutoff. Timestamps are appended in order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// Cleanup removes clients with no requests inside the window to prevent memory leaks.
func (sw *SlidingWindow) Cleanup() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.now().Add(-sw.window)
	for client, stamps := range sw.clients {
		if recent := prune(stamps, cutoff); len(recent) == 0 {
			delete(sw.clients, client)
		} else {
			sw.clients[client] = recent
		}
	}
	metrics.RateLimiterClients.Set(float64(len(sw.clients)))
}

// Start runs Cleanup every interval until Stop is called.
func (sw *SlidingWindow) Start(interval time.Duration) {
	if interval <= 0 {
		interval = sw.window
	}
	sw.mu.Lock()
	if sw.stop != nil {
		sw.mu.Unlock()
		return
	}
	sw.stop = make(chan struct{})
	sw.done = make(chan struct{})
	stop, done := sw.stop, sw.done
	sw.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sw.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup loop and waits for it to exit.
func (sw *SlidingWindow) Stop() {
	sw.mu.Lock()
	stop, done := sw.stop, sw.done
	sw.stop, sw.done = nil, nil
	sw.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

var _ ports.RateLimiter = (*SlidingWindow)(nil)
