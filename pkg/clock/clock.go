// Package clock wraps clockwork.Clock with the TIME_SPEED simulation
// factor described in spec.md §4.8: every periodic task consults this
// Clock instead of the raw OS timer, so a run with TIME_SPEED=10 makes a
// full simulation complete ten times faster without touching the control
// loop logic.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock scales durations passed to Sleep/NewTicker/NewTimer by 1/speed
// before delegating to the underlying clockwork.Clock. speed > 1 makes
// time pass faster than real time; speed < 1 slows it down.
type Clock struct {
	underlying clockwork.Clock
	speed      float64
}

// New builds a Clock backed by the real wall clock.
func New(speed float64) *Clock {
	return newWith(clockwork.NewRealClock(), speed)
}

// NewFake builds a Clock backed by a clockwork.FakeClock, for simulation
// runs and tests: time only advances when the caller calls Advance.
func NewFake(speed float64) (*Clock, clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return newWith(fc, speed), fc
}

func newWith(underlying clockwork.Clock, speed float64) *Clock {
	if speed <= 0 {
		speed = 1.0
	}
	return &Clock{underlying: underlying, speed: speed}
}

// Speed returns the configured TIME_SPEED factor.
func (c *Clock) Speed() float64 { return c.speed }

// Period scales a nominal period (e.g. a planning window ΔT, or a worker's
// configured interval) by the inverse of the simulation speed.
func (c *Clock) Period(nominal time.Duration) time.Duration {
	if c.speed == 1.0 {
		return nominal
	}
	return time.Duration(float64(nominal) / c.speed)
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time { return c.underlying.Now() }

// Sleep blocks for the scaled duration, or until ctx is cancelled.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) {
	select {
	case <-c.underlying.After(c.Period(d)):
	case <-ctx.Done():
	}
}

// NewTicker returns a clockwork.Ticker firing at the scaled period.
func (c *Clock) NewTicker(d time.Duration) clockwork.Ticker {
	return c.underlying.NewTicker(c.Period(d))
}

// NewTimer returns a clockwork.Timer firing after the scaled duration.
func (c *Clock) NewTimer(d time.Duration) clockwork.Timer {
	return c.underlying.NewTimer(c.Period(d))
}

// Since returns the scaled-independent wall-clock elapsed time; callers
// comparing durations against unscaled constants (e.g. "more than 5s since
// last ping") should instead compare against Period(5*time.Second).
func (c *Clock) Since(t time.Time) time.Duration {
	return c.underlying.Since(t)
}
