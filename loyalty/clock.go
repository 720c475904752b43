/*
clock.go - Time source for the service

PURPOSE:
  Every operation reads "now" through a Clock so tests and demo scenarios
  can pin the date. The service converts the instant into the café's time
  zone before the birthday rule looks at the calendar day.

SEE ALSO:
  - service.go: WithClock, WithLocation
  - birthday.go: Calendar-day matching
*/
package loyalty

import (
	"sync"
	"time"
)

// Clock supplies the current time. The engine never calls time.Now itself.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location, or UTC when Location is nil.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant until moved. Used by tests and
// demo scenarios.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
