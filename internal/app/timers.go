package app

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"waketimer/internal/config"
	"waketimer/internal/eventbus"
	"waketimer/internal/job"
	"waketimer/internal/power"
	"waketimer/internal/timer"
	logx "waketimer/pkg/logx"
)

// timerSet owns the configured timers and reconciles them with new configs.
type timerSet struct {
	log     logx.Logger
	monitor *power.Monitor
	bus     eventbus.Bus

	mu     sync.Mutex
	ctx    context.Context
	items  map[string]*managed
	closed bool
}

type managed struct {
	spec  config.TimerSpec
	t     *timer.Timer
	unsub func()
}

func newTimerSet(log logx.Logger, monitor *power.Monitor, bus eventbus.Bus) *timerSet {
	return &timerSet{
		log:     log,
		monitor: monitor,
		bus:     bus,
		ctx:     context.Background(),
		items:   map[string]*managed{},
	}
}

// apply makes the running set match specs:
//   - new names are created and started after their delay
//   - removed names are closed
//   - an interval change calls SetInterval (the deadline moves, nothing fires)
//   - a command or timeout change swaps the subscriber in place
func (s *timerSet) apply(ctx context.Context, specs []config.TimerSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("timer set closed; ignoring config", logx.Int("timers", len(specs)))
		return
	}
	if ctx != nil {
		s.ctx = ctx
	}

	want := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		want[spec.Name] = struct{}{}
		m, ok := s.items[spec.Name]
		if !ok {
			if m = s.createLocked(spec); m != nil {
				s.items[spec.Name] = m
				m.t.Start(spec.Delay)
				s.log.Info("timer added", logx.String("timer", spec.Name), logx.Duration("interval", spec.Interval), logx.Duration("delay", spec.Delay))
			}
			continue
		}
		if m.spec.Interval != spec.Interval {
			m.t.SetInterval(spec.Interval)
			s.log.Info("timer interval changed", logx.String("timer", spec.Name), logx.Duration("from", m.spec.Interval), logx.Duration("to", spec.Interval))
			m.spec.Interval = spec.Interval
		}
		if m.spec.Timeout == spec.Timeout && reflect.DeepEqual(m.spec.Command, spec.Command) {
			continue
		}
		unsub, err := s.subscribe(m.t, spec)
		if err != nil {
			s.log.Warn("timer command rejected; keeping previous", logx.String("timer", spec.Name), logx.Err(err))
			continue
		}
		m.unsub()
		m.unsub = unsub
		m.spec = spec
		s.log.Info("timer command changed", logx.String("timer", spec.Name))
	}

	for name, m := range s.items {
		if _, ok := want[name]; ok {
			continue
		}
		_ = m.t.Close()
		delete(s.items, name)
		s.log.Info("timer removed", logx.String("timer", name))
	}
}

func (s *timerSet) createLocked(spec config.TimerSpec) *managed {
	t := timer.New(spec.Interval,
		timer.WithName(spec.Name),
		timer.WithLogger(s.log),
		timer.WithMonitor(s.monitor),
		timer.WithBus(s.bus),
		timer.WithContext(s.ctx),
	)
	unsub, err := s.subscribe(t, spec)
	if err != nil {
		_ = t.Close()
		s.log.Warn("timer skipped", logx.String("timer", spec.Name), logx.Err(err))
		return nil
	}
	return &managed{spec: spec, t: t, unsub: unsub}
}

func (s *timerSet) subscribe(t *timer.Timer, spec config.TimerSpec) (func(), error) {
	cmd, err := job.NewCommand(spec.Command, spec.Timeout, s.log.With(logx.String("timer", spec.Name)))
	if err != nil {
		return nil, err
	}
	return t.Subscribe(cmd.Run), nil
}

func (s *timerSet) get(name string) (*timer.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[name]
	if !ok {
		return nil, false
	}
	return m.t, true
}

func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// snapshot returns every timer's snapshot sorted by name.
func (s *timerSet) snapshot() []timer.Snapshot {
	s.mu.Lock()
	out := make([]timer.Snapshot, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m.t.Snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// closeAll stops and releases every timer. Later applies are ignored.
func (s *timerSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, m := range s.items {
		_ = m.t.Close()
		delete(s.items, name)
	}
}
