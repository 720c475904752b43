/*
ratelimit.go - Duplicate-scan guard

PURPOSE:
  Stops the same QR code being stamped twice when the camera reads it in
  quick succession. One token bucket per customer, refilled once per
  configured interval.

SEMANTICS:
  - Only scans that add stamps keep their token; a scan that fails
    (unknown customer, store error) releases it so staff can retry at once
  - State lives in this process only
  - Idle buckets are dropped by Cleanup, called from the birthday sweep

SEE ALSO:
  - handlers.go: ProcessScan
  - scheduler.go: Cleanup call
*/
package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ScanGuard rejects a second scan of the same customer arriving faster than
// the configured interval, e.g. the same QR code read twice by the camera.
// State is per server instance.
type ScanGuard struct {
	mu       sync.Mutex
	limiters map[string]*guardEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type guardEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewScanGuard allows burst scans per customer, refilled once per interval.
// A zero interval disables the guard.
func NewScanGuard(interval time.Duration, burst int) *ScanGuard {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &ScanGuard{
		limiters: make(map[string]*guardEntry),
		limit:    limit,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a scan of customerID may proceed now, keeping the
// token when it does.
func (g *ScanGuard) Allow(customerID string) bool {
	_, ok := g.Reserve(customerID)
	return ok
}

// Reserve takes the scan token for customerID. ok is false when the customer
// was scanned too recently. Calling release hands the token back, for scans
// that did not go through. release is never nil.
func (g *ScanGuard) Reserve(customerID string) (release func(), ok bool) {
	if g == nil || g.limit == rate.Inf {
		return func() {}, true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, found := g.limiters[customerID]
	if !found {
		e = &guardEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.limiters[customerID] = e
	}
	e.lastSeen = now

	if e.limiter.TokensAt(now) < 1 {
		return func() {}, false
	}
	r := e.limiter.ReserveN(now, 1)
	// Cancelling at the reservation instant restores the full token.
	return func() { r.CancelAt(now) }, true
}

// Cleanup drops limiters idle for longer than the idle TTL. Returns the
// number removed.
func (g *ScanGuard) Cleanup() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.idleTTL)
	removed := 0
	for id, e := range g.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(g.limiters, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked customers.
func (g *ScanGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.limiters)
}
