package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waketimer/internal/power"
	"waketimer/internal/timer"
)

type fakeManager struct {
	mu       sync.Mutex
	states   []string
	interval time.Duration
	pings    int
}

func (f *fakeManager) record(s string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return true, nil
}

func (f *fakeManager) Ready() (bool, error)            { return f.record("READY") }
func (f *fakeManager) Reloading() (bool, error)        { return f.record("RELOADING") }
func (f *fakeManager) Stopping() (bool, error)         { return f.record("STOPPING") }
func (f *fakeManager) Status(msg string) (bool, error) { return f.record("STATUS=" + msg) }
func (f *fakeManager) Watchdog() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return true, nil
}
func (f *fakeManager) WatchdogInterval() (time.Duration, error) { return f.interval, nil }

func (f *fakeManager) seen(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.states {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeManager) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func writeConfig(t *testing.T, path, journal string, timers string) {
	t.Helper()
	body := fmt.Sprintf(`
logging:
  level: error
  console: true
power:
  source: none
storage:
  driver: file
  path: %s
timers:
%s`, journal, timers)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func findTimer(a *App, name string) (timer.Snapshot, bool) {
	for _, s := range a.Timers() {
		if s.Name == name {
			return s, true
		}
	}
	return timer.Snapshot{}, false
}

func TestAppRunsTimersAndJournalsRounds(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "waked.yaml")
	journal := filepath.Join(dir, "journal")
	writeConfig(t, cfgPath, journal, `
  - name: tick
    interval: 30ms
    command: ["sh", "-c", "true"]
`)

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	sd := &fakeManager{interval: 40 * time.Millisecond}
	a.sd = sd

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.True(t, sd.seen("READY"))
	assert.True(t, sd.seen("STATUS=1 timers, power resume"))

	require.Eventually(t, func() bool {
		s, ok := findTimer(a, "tick")
		return ok && s.Rounds >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return sd.pingCount() >= 2 }, 5*time.Second, 10*time.Millisecond)

	// A power suspend pauses the timer; resume restarts it.
	a.Monitor().Notify(power.Suspend)
	s, _ := findTimer(a, "tick")
	assert.Equal(t, "suspend", s.State)
	a.Monitor().Notify(power.Resume)
	s, _ = findTimer(a, "tick")
	assert.Equal(t, "run", s.State)

	require.NoError(t, a.Stop(context.Background(), StopSIGTERM))
	assert.True(t, sd.seen("STOPPING"))
	assert.Empty(t, a.Timers())

	// The journal survives the app.
	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)
	st, err := OpenStore(cfg, nopLogger())
	require.NoError(t, err)
	defer st.Close()
	rounds, err := st.Rounds(context.Background(), "tick", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, rounds)
}

func TestAppHotReloadsTimers(t *testing.T) {
	requireShell(t)
	if testing.Short() {
		t.Skip("filesystem watcher test")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "waked.yaml")
	journal := filepath.Join(dir, "journal")
	writeConfig(t, cfgPath, journal, `
  - name: slow
    interval: 1h
    command: ["sh", "-c", "true"]
  - name: gone
    interval: 1h
    command: ["sh", "-c", "true"]
`)

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	sd := &fakeManager{}
	a.sd = sd
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer a.Stop(context.Background(), StopUnknown)

	// Let the watcher register before editing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, cfgPath, journal, `
  - name: slow
    interval: 2h
    command: ["sh", "-c", "true"]
  - name: fresh
    interval: 1h
    delay: 1m
    command: ["sh", "-c", "true"]
`)

	require.Eventually(t, func() bool {
		_, hasFresh := findTimer(a, "fresh")
		_, hasGone := findTimer(a, "gone")
		return hasFresh && !hasGone
	}, 5*time.Second, 20*time.Millisecond)

	slow, ok := findTimer(a, "slow")
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, slow.Interval)
	assert.Equal(t, "run", slow.State)
	assert.True(t, sd.seen("RELOADING"))
}

func TestTimerSetApply(t *testing.T) {
	t.Parallel()
	mon := power.NewMonitor()
	set := newTimerSet(nopLogger(), mon, nil)
	defer set.closeAll()

	set.apply(context.Background(), specs(
		spec("a", time.Hour, "true"),
		spec("b", time.Hour, "true"),
		spec("bad", time.Hour),
	))
	assert.Equal(t, 2, set.len(), "a timer with no command is skipped")

	a, ok := set.get("a")
	require.True(t, ok)
	assert.Equal(t, timer.Run, a.State())

	set.apply(context.Background(), specs(spec("a", 2*time.Hour, "false")))
	assert.Equal(t, 1, set.len())
	a2, _ := set.get("a")
	assert.Same(t, a, a2, "changed timers are updated in place")
	assert.Equal(t, 2*time.Hour, a.Interval())
	assert.Equal(t, 1, a.Snapshot().Subscribers)

	mon.Notify(power.Suspend)
	assert.Equal(t, timer.Suspend, a.State())
}

func TestTimerSetIgnoresApplyAfterClose(t *testing.T) {
	t.Parallel()
	mon := power.NewMonitor()
	set := newTimerSet(nopLogger(), mon, nil)

	set.apply(context.Background(), specs(spec("a", time.Hour, "true")))
	a, ok := set.get("a")
	require.True(t, ok)

	set.closeAll()
	assert.Equal(t, timer.Stop, a.State())

	// A reload racing shutdown must not start timers nobody will close.
	set.apply(context.Background(), specs(spec("a", time.Hour, "true"), spec("b", time.Minute, "true")))
	assert.Equal(t, 0, set.len())
	_, ok = set.get("b")
	assert.False(t, ok)
}
