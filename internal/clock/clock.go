// Package clock provides the wall-clock implementation of newsletter.Clock.
package clock

import "time"

// System reads time.Now in UTC.
type System struct{}

// New creates a System clock.
func New() System {
	return System{}
}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant; intended for tests.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return f.T
}
