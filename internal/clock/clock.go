// Package clock abstracts wall-clock access so time-sensitive components
// (cache freshness, tracker staleness) can be tested deterministically.
package clock

import "time"

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// System implements Clock using time.Now.
type System struct{}

// NewSystem creates a new System clock.
func NewSystem() System {
	return System{}
}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}
