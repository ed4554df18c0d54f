package timer

import "time"

// Clock abstracts time so the scheduler can be driven by tests.
type Clock interface {
	Now() time.Time
	// AfterFunc arms a one-shot wait that calls f in its own goroutine.
	AfterFunc(d time.Duration, f func()) Waiter
}

// Waiter is an armed one-shot wait.
type Waiter interface {
	// Stop cancels the wait; it reports false if f already started.
	Stop() bool
}

type systemClock struct{}

// Now drops the monotonic reading: deadlines are compared on the wall clock,
// which keeps advancing while the host is suspended.
func (systemClock) Now() time.Time { return time.Now().Round(0) }

func (systemClock) AfterFunc(d time.Duration, f func()) Waiter { return time.AfterFunc(d, f) }

// SystemClock is the default clock implementation.
var SystemClock Clock = systemClock{}
