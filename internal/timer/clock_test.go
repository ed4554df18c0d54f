package timer

import (
	"sort"
	"sync"
	"time"
)

// fakeClock fires waits only when the test advances it. Callbacks run
// synchronously in the goroutine calling Advance.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []*fakeWait
}

type fakeWait struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWait{c: c, at: c.now.Add(d), f: f}
	c.waits = append(c.waits, w)
	return w
}

func (w *fakeWait) Stop() bool {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	active := !w.stopped && !w.fired
	w.stopped = true
	return active
}

// Sleep moves time forward without firing anything, like work in progress.
func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Advance moves time forward and fires every wait that became due, in
// deadline order, including waits armed by the callbacks themselves.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	for {
		due := c.dueLocked()
		if due == nil {
			break
		}
		due.fired = true
		c.mu.Unlock()
		due.f()
		c.mu.Lock()
	}
	c.mu.Unlock()
}

func (c *fakeClock) dueLocked() *fakeWait {
	var ready []*fakeWait
	for _, w := range c.waits {
		if !w.stopped && !w.fired && !w.at.After(c.now) {
			ready = append(ready, w)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })
	return ready[0]
}

// pending counts armed waits that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waits {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}
