package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"waketimer/internal/eventbus"
	"waketimer/internal/power"
	logx "waketimer/pkg/logx"
)

const (
	// DefaultInterval is used when New gets a non-positive interval.
	DefaultInterval = time.Second
	// MinWait is the shortest wait the timer ever arms for a scheduled round.
	MinWait = time.Millisecond
	// ResumeGrace is the minimum delay applied when the host wakes up.
	ResumeGrace = 100 * time.Millisecond
)

// Subscriber failures are logged at most failureLogBurst times per
// failureLogEvery; the rest are counted and reported with the next log line.
const (
	failureLogEvery = 5 * time.Second
	failureLogBurst = 3
)

// Action is a unit of work fired once per round. It may block; the round
// waits for it before invoking the next subscriber. The context is canceled
// when the Timer is closed.
type Action func(ctx context.Context) error

// Timer fires its subscribers at an approximately fixed interval, pausing
// while the host is suspended and correcting for slow rounds.
//
// State transitions are serialized by mu. A round runs without mu held, so
// subscribers may call Start, Stop, Suspend or Resume on the timer that is
// invoking them; those calls take effect at the checks made before each
// subscriber and before re-arming.
type Timer struct {
	name    string
	log     logx.Logger
	clock   Clock
	monitor *power.Monitor
	bus     eventbus.Bus

	mu        sync.Mutex
	state     State
	interval  time.Duration
	next      time.Time
	lastFired time.Time
	wait      Waiter
	gen       uint64 // bumped on every arm/cancel; stale expirations are ignored
	closed    bool

	// roundMu keeps rounds from overlapping.
	roundMu sync.Mutex

	subs       registry[Action]
	powerSubs  registry[func(power.Mode)]
	unwatch    func()
	actx       context.Context
	cancelActx context.CancelFunc

	failLimit  *rate.Limiter
	rounds     atomic.Uint64
	failures   atomic.Uint64
	suppressed atomic.Uint64
	lastErr    atomic.Value // string
}

type Option func(*Timer)

// WithName labels the timer in logs, snapshots and round events.
func WithName(name string) Option {
	return func(t *Timer) { t.name = name }
}

func WithLogger(log logx.Logger) Option {
	return func(t *Timer) { t.log = log }
}

func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithMonitor makes the timer follow the monitor's power transitions.
func WithMonitor(m *power.Monitor) Option {
	return func(t *Timer) { t.monitor = m }
}

// WithBus publishes an EventRound after every completed round.
func WithBus(bus eventbus.Bus) Option {
	return func(t *Timer) { t.bus = bus }
}

// WithContext sets the parent of the context handed to actions.
func WithContext(ctx context.Context) Option {
	return func(t *Timer) {
		if ctx != nil {
			t.actx = ctx
		}
	}
}

// New returns a stopped timer. The caller owns it and must Close it.
func New(interval time.Duration, opts ...Option) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Timer{
		interval:  interval,
		state:     Stop,
		actx:      context.Background(),
		failLimit: rate.NewLimiter(rate.Every(failureLogEvery), failureLogBurst),
	}
	for _, o := range opts {
		o(t)
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	if t.name != "" {
		t.log = t.log.With(logx.String("timer", t.name))
	}
	if t.clock == nil {
		t.clock = SystemClock
	}
	t.actx, t.cancelActx = context.WithCancel(t.actx)
	t.next = t.clock.Now()
	if t.monitor != nil {
		t.unwatch = t.monitor.Subscribe(t.onPowerModeChanged)
	}
	return t
}

func (t *Timer) Name() string { return t.name }

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the period and recomputes the next deadline (Reset).
// Non-positive values are clamped to MinWait.
func (t *Timer) SetInterval(d time.Duration) {
	if d <= 0 {
		d = MinWait
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interval == d {
		return
	}
	t.interval = d
	t.resetLocked()
}

// Next returns the deadline of the next round.
func (t *Timer) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// LastFired returns when the most recent round started; zero if never.
func (t *Timer) LastFired() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFired
}

// PowerMode reports the monitor's current mode (Resume without a monitor).
func (t *Timer) PowerMode() power.Mode {
	if t.monitor == nil {
		return power.Resume
	}
	return t.monitor.CurrentMode()
}

// Start begins scheduling; the first round fires after delay (at least
// MinWait). Starting a running timer is a no-op; starting a suspended one
// resumes it with delay as the minimum wait.
func (t *Timer) Start(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	switch t.state {
	case Run:
		return
	case Suspend:
		t.resumeLocked(delay)
		return
	}
	if delay < MinWait {
		delay = MinWait
	}
	t.state = Run
	t.next = t.clock.Now().Add(delay)
	t.armLocked(delay)
	t.log.Debug("timer started", logx.Duration("delay", delay), logx.Duration("interval", t.interval))
}

// Stop cancels the pending wait. Next and LastFired are kept.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Stop {
		return
	}
	t.cancelLocked()
	t.state = Stop
	t.log.Debug("timer stopped")
}

// Suspend pauses a running timer, remembering its deadline.
func (t *Timer) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Run {
		return
	}
	t.cancelLocked()
	t.state = Suspend
	t.log.Debug("timer suspended", logx.Duration("interval", t.interval), logx.Time("next", t.next))
}

// Resume restarts a suspended timer. It waits for whichever is longer: the
// time left until the remembered deadline, or minDelay.
func (t *Timer) Resume(minDelay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumeLocked(minDelay)
}

func (t *Timer) resumeLocked(minDelay time.Duration) {
	if t.state != Suspend || t.closed {
		return
	}
	now := t.clock.Now()
	wait := t.next.Sub(now)
	if minDelay > wait {
		wait = minDelay
	}
	if wait < 0 {
		wait = 0
	}
	t.state = Run
	t.next = now.Add(wait)
	t.armLocked(wait)
	t.log.Debug("timer resumed", logx.Time("last", t.lastFired), logx.Time("next", t.next), logx.Duration("interval", t.interval))
}

// Reset moves the deadline to one full interval from now without firing.
// A running timer is re-armed; other states only remember the new deadline.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Timer) resetLocked() {
	t.next = t.clock.Now().Add(t.interval)
	if t.state == Run {
		t.armLocked(t.interval)
	}
}

// Subscribe appends action to the round. The returned function removes this
// registration only; it is safe to call more than once.
func (t *Timer) Subscribe(action Action) (unsubscribe func()) {
	if action == nil {
		return func() {}
	}
	return t.subs.add(action)
}

// SubscribeFunc registers a synchronous action.
func (t *Timer) SubscribeFunc(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return t.Subscribe(func(context.Context) error {
		fn()
		return nil
	})
}

// OnPowerModeChanged registers fn for the power transitions this timer
// receives, after the timer has reacted to them.
func (t *Timer) OnPowerModeChanged(fn func(power.Mode)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return t.powerSubs.add(fn)
}

// Close stops the timer, releases its wait, detaches it from the monitor and
// cancels the context handed to actions. It does not wait for a running
// round, so it may be called from a subscriber.
func (t *Timer) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancelLocked()
	t.state = Stop
	unwatch := t.unwatch
	t.unwatch = nil
	t.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	t.cancelActx()
	return nil
}

func (t *Timer) onPowerModeChanged(mode power.Mode) {
	switch mode {
	case power.Suspend:
		t.Suspend()
	case power.Resume:
		t.Resume(ResumeGrace)
	}
	for _, fn := range t.powerSubs.snapshot() {
		fn(mode)
	}
}

// armLocked replaces the outstanding wait. Call with t.mu held.
func (t *Timer) armLocked(d time.Duration) {
	t.cancelLocked()
	gen := t.gen
	t.wait = t.clock.AfterFunc(d, func() { t.fire(gen) })
}

// cancelLocked drops the outstanding wait, if any. Call with t.mu held.
func (t *Timer) cancelLocked() {
	t.gen++
	if t.wait != nil {
		t.wait.Stop()
		t.wait = nil
	}
}
