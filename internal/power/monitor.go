package power

import (
	"context"
	"errors"
	"sync"
	"time"

	"waketimer/internal/eventbus"
	logx "waketimer/pkg/logx"
)

// EventModeChanged is the eventbus topic for distinct power transitions.
const EventModeChanged = "power.mode"

// ModeEvent is the payload published on EventModeChanged.
type ModeEvent struct {
	Mode   string    `json:"mode"`
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
}

// Monitor turns raw power transitions into a de-duplicated change feed.
//
// Listeners are invoked synchronously, in subscription order, with no Monitor
// lock held except the one serializing deliveries: a listener may read
// CurrentMode but must not call Notify or Configure on the same Monitor.
type Monitor struct {
	log logx.Logger
	bus eventbus.Bus

	// notifyMu serializes Notify and Configure so a context swap never races
	// an in-flight delivery.
	notifyMu sync.Mutex

	mu  sync.Mutex
	ctx *Context
	src string

	lmu       sync.Mutex
	seq       uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn func(Mode)
}

type Option func(*Monitor)

func WithLogger(log logx.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithBus publishes every distinct transition on bus as EventModeChanged.
func WithBus(bus eventbus.Bus) Option {
	return func(m *Monitor) { m.bus = bus }
}

// NewMonitor returns a monitor that assumes the process starts awake.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{}
	for _, o := range opts {
		o(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.ctx = NewContext(Resume)
	m.ctx.attach(m.dispatch)
	return m
}

// CurrentMode returns the last observed mode.
func (m *Monitor) CurrentMode() Mode {
	return m.Context().Mode()
}

// Context returns the active context.
func (m *Monitor) Context() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Configure swaps in ctx as the active context. The change hook moves from
// the old context to the new one; Monitor listeners are kept.
func (m *Monitor) Configure(ctx *Context) {
	if ctx == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	old := m.ctx
	m.ctx = ctx
	m.mu.Unlock()

	if old != nil && old != ctx {
		old.detach()
	}
	ctx.attach(m.dispatch)
	m.log.Debug("power context configured", logx.String("mode", ctx.Mode().String()), logx.Bool("ignore_status_change", ctx.IgnoreStatusChange()))
}

// Subscribe registers fn for distinct transitions. The returned function
// removes it and is safe to call more than once.
func (m *Monitor) Subscribe(fn func(Mode)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.lmu.Lock()
	m.seq++
	id := m.seq
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lmu.Lock()
			defer m.lmu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify feeds a raw transition into the active context. It reports whether
// the transition was distinct (and therefore delivered to listeners).
func (m *Monitor) Notify(mode Mode) bool {
	return m.notify(mode, "manual")
}

func (m *Monitor) notify(mode Mode, source string) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	ctx := m.ctx
	m.src = source
	m.mu.Unlock()

	return ctx.SetMode(mode)
}

func (m *Monitor) dispatch(mode Mode) {
	m.mu.Lock()
	src := m.src
	m.mu.Unlock()

	m.log.Info("power mode changed", logx.String("mode", mode.String()), logx.String("source", src))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: EventModeChanged, Data: ModeEvent{Mode: mode.String(), At: time.Now(), Source: src}})
	}

	// Snapshot so listeners can unsubscribe from inside a callback.
	m.lmu.Lock()
	ls := make([]listener, len(m.listeners))
	copy(ls, m.listeners)
	m.lmu.Unlock()

	for _, l := range ls {
		l.fn(mode)
	}
}

// Run pumps src into the monitor until ctx is done.
//
// A source reporting ErrUnavailable leaves the monitor in manual-only mode:
// Run logs once and returns nil, and Notify keeps working.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	if src == nil {
		src = ManualSource{}
	}
	name := src.Name()
	m.log.Debug("power source starting", logx.String("source", name))
	err := src.Watch(ctx, func(mode Mode) { m.notify(mode, name) })
	switch {
	case err == nil, errors.Is(err, context.Canceled), ctx.Err() != nil:
		return nil
	case errors.Is(err, ErrUnavailable):
		m.log.Warn("power source unavailable; manual-only mode", logx.String("source", name), logx.Err(err))
		return nil
	default:
		return err
	}
}
