package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "waketimer/pkg/logx"
)

func openTest(t *testing.T, driver string, retain int) Store {
	t.Helper()
	name := "journal"
	if driver == "sqlite" {
		name = "journal.db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), name), Retain: retain}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func round(timer string, started time.Time) RoundRecord {
	return RoundRecord{
		ID:          uuid.NewString(),
		Timer:       timer,
		Started:     started,
		Duration:    15 * time.Millisecond,
		Subscribers: 2,
		Invoked:     2,
		NextWait:    985 * time.Millisecond,
	}
}

func TestStoreRounds(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, driver, 0)
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			var want []RoundRecord
			for i := 0; i < 4; i++ {
				timer := "sync"
				if i%2 == 1 {
					timer = "backup"
				}
				r := round(timer, base.Add(time.Duration(i)*time.Second))
				if i == 3 {
					r.Failures = 1
					r.Error = "exit status 1"
				}
				require.NoError(t, st.AppendRound(ctx, r))
				want = append(want, r)
			}

			got, err := st.Rounds(ctx, "", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, want[3].ID, got[0].ID, "newest first")
			assert.Equal(t, want[2].ID, got[1].ID)
			assert.True(t, want[3].Started.Equal(got[0].Started))
			assert.Equal(t, "exit status 1", got[0].Error)
			assert.Equal(t, 985*time.Millisecond, got[0].NextWait)
			assert.Equal(t, 15*time.Millisecond, got[0].Duration)

			got, err = st.Rounds(ctx, "backup", 0)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, want[3].ID, got[0].ID)
			assert.Equal(t, want[1].ID, got[1].ID)

			require.NoError(t, st.AppendPower(ctx, PowerRecord{At: base, Mode: "suspend", Source: "login1"}))
			require.NoError(t, st.AppendPower(ctx, PowerRecord{Mode: "resume"}))
		})
	}
}

func TestFileStoreCompactsToRetained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTest(t, "file", 3)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		r := round("sync", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, r.ID)
		require.NoError(t, st.AppendRound(ctx, r))
	}

	got, err := st.Rounds(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[2], got[2].ID)

	// Appends keep working on the compacted file.
	require.NoError(t, st.AppendRound(ctx, round("sync", base.Add(time.Minute))))
	got, err = st.Rounds(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSQLitePruneKeepsNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTest(t, "sqlite", 2)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		r := round("sync", base.Add(time.Duration(i)*time.Second))
		ids = append(ids, r.ID)
		require.NoError(t, st.AppendRound(ctx, r))
	}

	for _, mode := range []string{"suspend", "resume", "suspend", "resume"} {
		require.NoError(t, st.AppendPower(ctx, PowerRecord{Mode: mode}))
	}

	sq, ok := st.(*sqliteStore)
	require.True(t, ok)
	require.NoError(t, sq.prune(ctx))

	got, err := st.Rounds(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[3], got[0].ID)
	assert.Equal(t, ids[2], got[1].ID)

	var n int
	require.NoError(t, sq.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM power`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestFileStoreCompactsPower(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prefix := filepath.Join(t.TempDir(), "journal")
	st, err := Open(Config{Driver: "file", Path: prefix, Retain: 2}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	modes := []string{"suspend", "resume", "suspend", "resume", "suspend"}
	for i, mode := range modes {
		require.NoError(t, st.AppendPower(ctx, PowerRecord{At: base.Add(time.Duration(i) * time.Minute), Mode: mode}))
	}

	lines, err := readLines(prefix + ".power.jsonl")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[1]), `"suspend"`)
	assert.Contains(t, string(lines[0]), `"resume"`)

	// Rounds are compacted independently.
	require.NoError(t, st.AppendRound(ctx, round("sync", base)))
	got, err := st.Rounds(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCompactFailureKeepsAppending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "journal")
	st, err := Open(Config{Driver: "file", Path: prefix, Retain: 2}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	// A directory where the temp file goes makes every compaction fail.
	require.NoError(t, os.Mkdir(prefix+".rounds.jsonl.tmp", 0o755))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, st.AppendRound(ctx, round("sync", base.Add(time.Duration(i)*time.Second))))
	}
	got, err := st.Rounds(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	assert.ErrorIs(t, st.AppendRound(context.Background(), round("x", time.Now())), ErrClosed)
	assert.ErrorIs(t, st.AppendPower(context.Background(), PowerRecord{Mode: "resume"}), ErrClosed)
	_, err = st.Rounds(context.Background(), "", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "none"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = Open(Config{}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
