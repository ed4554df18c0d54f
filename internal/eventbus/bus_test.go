package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	rounds, unsubRounds := b.Subscribe(4, "timer.round")
	defer unsubRounds()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "power.mode", Data: "suspend"})
	b.Publish(Event{Type: "timer.round", Data: 1})

	ev := <-rounds
	assert.Equal(t, "timer.round", ev.Type)
	assert.False(t, ev.Time.IsZero(), "publish stamps events")
	assert.Len(t, rounds, 0)

	require.Len(t, all, 2)
	assert.Equal(t, "power.mode", (<-all).Type)
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})

	assert.Equal(t, uint64(2), b.Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "x"})
}
