package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"waketimer/internal/eventbus"
	logx "waketimer/pkg/logx"
)

// EventRound is the eventbus topic for completed rounds.
const EventRound = "timer.round"

// RoundEvent describes one completed round.
type RoundEvent struct {
	ID          string        `json:"id"`
	Timer       string        `json:"timer"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Subscribers int           `json:"subscribers"`
	Invoked     int           `json:"invoked"`
	Failures    int           `json:"failures"`
	NextWait    time.Duration `json:"next_wait"` // 0 when the timer was not re-armed
	Error       string        `json:"error,omitempty"`
}

// PanicError wraps a value recovered from a panicking subscriber.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("subscriber panic: %v", e.Value) }

// NextWait returns the delay before the next round given how long the last
// one took: the rest of the interval, but never less than a tenth of it and
// never less than MinWait.
func NextWait(interval, elapsed time.Duration) time.Duration {
	wait := interval - elapsed
	if floor := interval / 10; wait < floor {
		wait = floor
	}
	if wait < MinWait {
		wait = MinWait
	}
	return wait
}

// fire runs one round for the wait armed with generation gen.
func (t *Timer) fire(gen uint64) {
	t.roundMu.Lock()
	defer t.roundMu.Unlock()

	t.mu.Lock()
	// Stop/Suspend (or a re-arm) won the race against this expiry.
	if gen != t.gen || t.state != Run {
		t.mu.Unlock()
		return
	}
	t.wait = nil
	started := t.clock.Now()
	t.lastFired = started
	t.mu.Unlock()

	subs := t.subs.snapshot()
	ev := RoundEvent{
		ID:          uuid.NewString(),
		Timer:       t.name,
		Started:     started,
		Subscribers: len(subs),
	}

	for _, action := range subs {
		if t.State() != Run {
			break
		}
		ev.Invoked++
		if err := t.invoke(action); err != nil {
			ev.Failures++
			if ev.Error == "" {
				ev.Error = err.Error()
			}
			t.reportFailure(err)
		}
	}
	t.rounds.Add(1)

	t.mu.Lock()
	now := t.clock.Now()
	ev.Duration = now.Sub(started)
	if t.state == Run {
		ev.NextWait = NextWait(t.interval, now.Sub(t.lastFired))
		t.next = now.Add(ev.NextWait)
		t.armLocked(ev.NextWait)
	}
	t.mu.Unlock()

	if ev.NextWait > 0 {
		t.log.Trace("round done", logx.Int("invoked", ev.Invoked), logx.Duration("took", ev.Duration), logx.Duration("next_wait", ev.NextWait))
	} else {
		t.log.Debug("round done; not re-armed", logx.Int("invoked", ev.Invoked), logx.Int("subscribers", ev.Subscribers))
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: EventRound, Time: started, Data: ev})
	}
}

func (t *Timer) invoke(action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: logx.StackTrace(4, 16)}
		}
	}()
	return action(t.actx)
}

func (t *Timer) reportFailure(err error) {
	t.failures.Add(1)
	t.lastErr.Store(err.Error())
	if !t.failLimit.Allow() {
		t.suppressed.Add(1)
		return
	}
	fields := []logx.Field{logx.Err(err)}
	if n := t.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		fields = append(fields, logx.Stack(pe.Stack))
	}
	t.log.Warn("subscriber failed", fields...)
}
