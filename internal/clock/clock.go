// Package clock provides a replaceable time source so tracking and reporting
// code can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides time information.
type Clock interface {
	Now() time.Time
}

// Real provides actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	mu      sync.Mutex
	current time.Time
}

// NewFixed returns a Fixed clock set to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{current: t}
}

// Now returns the clock's current time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}
