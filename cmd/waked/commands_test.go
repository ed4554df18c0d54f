package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waketimer/internal/app"
	"waketimer/internal/storage"
	logx "waketimer/pkg/logx"
)

func writeConfig(t *testing.T, dir, storageBlock string) string {
	t.Helper()
	path := filepath.Join(dir, "waked.yaml")
	body := fmt.Sprintf(`
logging:
  level: error
power:
  source: none
%s
timers:
  - name: sync
    interval: "02:30"
    delay: 5s
    command: ["true"]
  - name: beat
    interval: "@every 90s"
    timeout: 10s
    command: ["true", "x"]
  - name: off
    interval: 1m
    command: ["true"]
    disabled: true
`, storageBlock)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(BuildArgs{Version: "test"}, &out).Run(append([]string{"waked"}, args...))
	return out.String(), err
}

func TestCheckPrintsParsedIntervals(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "")

	out, err := runCLI(t, "check", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "ok (power none, storage none)")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^sync\s+2h30m0s\s+5s\s+none\s+`, lines[2])
	assert.Regexp(t, `^beat\s+1m30s\s+0s\s+10s\s+`, lines[3])
	assert.NotContains(t, out, "off")
}

func TestCheckReportsEveryProblem(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timers:
  - name: a
    interval: "*/5 * * * *"
    command: ["true"]
  - name: a
    interval: 1m
`), 0o644))

	_, err := runCLI(t, "check", "--config", path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "timers[0](a).interval")
	assert.ErrorContains(t, err, `already used by timers[0]`)
	assert.ErrorContains(t, err, "timers[1](a).command: required")
}

func TestHistoryDisabledJournal(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "")

	_, err := runCLI(t, "history", "--config", path)
	assert.ErrorContains(t, err, "journal disabled")
}

func TestHistoryPrintsNewestFirst(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "journal")
	path := writeConfig(t, dir, fmt.Sprintf("storage:\n  driver: file\n  path: %s\n", prefix))

	st, err := storage.Open(storage.Config{Driver: "file", Path: prefix}, logx.Nop())
	require.NoError(t, err)
	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for i, name := range []string{"sync", "beat", "sync"} {
		require.NoError(t, st.AppendRound(context.Background(), storage.RoundRecord{
			ID:          fmt.Sprintf("r%d", i),
			Timer:       name,
			Started:     base.Add(time.Duration(i) * time.Minute),
			Duration:    time.Duration(i+1) * time.Millisecond,
			Subscribers: 1,
			Invoked:     1,
			NextWait:    time.Minute,
		}))
	}
	require.NoError(t, st.AppendRound(context.Background(), storage.RoundRecord{
		ID: "r3", Timer: "beat", Started: base.Add(3 * time.Minute),
		Subscribers: 1, Invoked: 1, Failures: 1, Error: "exit status 1",
	}))
	require.NoError(t, st.Close())

	out, err := runCLI(t, "history", "--config", path, "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "beat")
	assert.Contains(t, lines[1], "exit status 1")
	assert.Contains(t, lines[2], "sync")
	assert.Contains(t, lines[2], "1m0s")

	out, err = runCLI(t, "history", "--config", path, "--timer", "beat", "-n", "0")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines[1:] {
		assert.Contains(t, l, "beat")
	}
}

func TestRunRejectsMissingConfig(t *testing.T) {
	t.Parallel()
	_, err := runCLI(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStopReason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, app.StopSIGINT, stopReason(os.Interrupt))
	assert.Equal(t, app.StopSIGTERM, stopReason(syscall.SIGTERM))
	assert.Equal(t, app.StopUnknown, stopReason(syscall.SIGHUP))
}
