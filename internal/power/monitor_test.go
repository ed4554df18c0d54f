package power

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waketimer/internal/eventbus"
)

func TestMonitorDeliversDistinctTransitionsInOrder(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	var got []string
	m.Subscribe(func(mode Mode) { got = append(got, "a:"+mode.String()) })
	m.Subscribe(func(mode Mode) { got = append(got, "b:"+mode.String()) })

	assert.False(t, m.Notify(Resume), "starts awake")
	assert.True(t, m.Notify(Suspend))
	assert.False(t, m.Notify(Suspend))
	assert.False(t, m.Notify(StatusChange))
	assert.True(t, m.Notify(Resume))

	assert.Equal(t, []string{"a:suspend", "b:suspend", "a:resume", "b:resume"}, got)
	assert.Equal(t, Resume, m.CurrentMode())
}

func TestMonitorUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	count := 0
	unsub := m.Subscribe(func(Mode) { count++ })
	m.Notify(Suspend)
	unsub()
	unsub()
	m.Notify(Resume)
	assert.Equal(t, 1, count)
}

func TestMonitorUnsubscribeFromListener(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	var unsub func()
	count, other := 0, 0
	unsub = m.Subscribe(func(Mode) {
		count++
		unsub()
	})
	m.Subscribe(func(Mode) { other++ })

	m.Notify(Suspend)
	m.Notify(Resume)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, other)
}

func TestMonitorConfigureSwapsContext(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	var got []Mode
	m.Subscribe(func(mode Mode) { got = append(got, mode) })
	old := m.Context()

	fresh := NewContext(Suspend)
	fresh.SetIgnoreStatusChange(false)
	m.Configure(fresh)
	m.Configure(nil)

	assert.Same(t, fresh, m.Context())
	assert.Equal(t, Suspend, m.CurrentMode())

	// The old context no longer reaches the listeners.
	old.SetMode(Suspend)
	assert.Empty(t, got)

	assert.True(t, m.Notify(StatusChange))
	assert.True(t, m.Notify(Resume))
	assert.Equal(t, []Mode{StatusChange, Resume}, got)
}

func TestMonitorPublishesOnBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(2, EventModeChanged)
	defer unsub()
	m := NewMonitor(WithBus(bus))

	m.Notify(Suspend)
	ev := <-ch
	me, ok := ev.Data.(ModeEvent)
	require.True(t, ok)
	assert.Equal(t, "suspend", me.Mode)
	assert.Equal(t, "manual", me.Source)
}

type stubSource struct {
	modes []Mode
	err   error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Watch(ctx context.Context, emit func(Mode)) error {
	for _, m := range s.modes {
		emit(m)
	}
	return s.err
}

func TestMonitorRun(t *testing.T) {
	t.Parallel()
	boom := errors.New("bus closed")
	tests := []struct {
		name    string
		src     Source
		wantErr error
	}{
		{name: "feeds transitions", src: stubSource{modes: []Mode{Suspend, Resume}}},
		{name: "unavailable is not fatal", src: stubSource{err: ErrUnavailable}},
		{name: "canceled is not fatal", src: stubSource{err: context.Canceled}},
		{name: "other errors surface", src: stubSource{err: boom}, wantErr: boom},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMonitor()
			err := m.Run(context.Background(), tt.src)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMonitorRunManualUntilCanceled(t *testing.T) {
	t.Parallel()
	m := NewMonitor()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, nil) }()

	assert.True(t, m.Notify(Suspend))
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
