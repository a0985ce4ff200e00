// Package clock abstracts time so blocking waits can be simulated in tests.
package clock

import "time"

// Clock tells the time and blocks the caller for a duration.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a simulated clock. Sleep advances Now instantly.
// Not safe for concurrent use.
type Fake struct {
	now time.Time

	// Sleeps records every requested sleep in order.
	Sleeps []time.Duration

	// Overshoot is added to every sleep, simulating a stalled process.
	Overshoot time.Duration
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time { return f.now }

// Sleep records d and advances the simulated time.
func (f *Fake) Sleep(d time.Duration) {
	f.Sleeps = append(f.Sleeps, d)
	f.now = f.now.Add(d + f.Overshoot)
}

// Advance moves the simulated time forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) { f.now = f.now.Add(d) }

// Slept returns the sum of all recorded sleeps.
func (f *Fake) Slept() time.Duration {
	var total time.Duration
	for _, d := range f.Sleeps {
		total += d
	}
	return total
}

// Reset clears recorded sleeps.
func (f *Fake) Reset() {
	f.Sleeps = nil
}
