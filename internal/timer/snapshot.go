package timer

import "time"

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Interval    time.Duration `json:"interval"`
	Next        time.Time     `json:"next"`
	LastFired   time.Time     `json:"last_fired"`
	Subscribers int           `json:"subscribers"`
	Rounds      uint64        `json:"rounds"`
	Failures    uint64        `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
	PowerMode   string        `json:"power_mode"`
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	s := Snapshot{
		Name:      t.name,
		State:     t.state.String(),
		Interval:  t.interval,
		Next:      t.next,
		LastFired: t.lastFired,
	}
	t.mu.Unlock()

	s.Subscribers = t.subs.len()
	s.Rounds = t.rounds.Load()
	s.Failures = t.failures.Load()
	if v, ok := t.lastErr.Load().(string); ok {
		s.LastError = v
	}
	s.PowerMode = t.PowerMode().String()
	return s
}
