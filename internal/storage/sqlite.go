package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "waketimer/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retain     int
	roundOps   atomic.Uint64
	powerOps   atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, retain: cfg.Retain, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRound(ctx context.Context, r RoundRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds(id, timer, started_ns, duration_ns, subscribers, invoked, failures, next_wait_ns, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Timer, r.Started.UnixNano(), int64(r.Duration), r.Subscribers, r.Invoked, r.Failures,
		int64(r.NextWait), nullStr(r.Error),
	)
	if err == nil && s.roundOps.Add(1)%s.pruneEvery == 0 {
		s.pruneTable("rounds", s.pruneRounds)
	}
	return err
}

func (s *sqliteStore) pruneTable(table string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warn("journal prune failed", logx.String("table", table), logx.Err(err))
	}
}

func (s *sqliteStore) AppendPower(ctx context.Context, p PowerRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO power(at_ns, mode, source) VALUES(?,?,?)`,
		p.At.UnixNano(), p.Mode, nullStr(p.Source),
	)
	if err == nil && s.powerOps.Add(1)%s.pruneEvery == 0 {
		s.pruneTable("power", s.prunePower)
	}
	return err
}

func (s *sqliteStore) Rounds(ctx context.Context, timer string, limit int) ([]RoundRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timer, started_ns, duration_ns, subscribers, invoked, failures, next_wait_ns, err
		 FROM rounds
		 WHERE (? = '' OR timer = ?)
		 ORDER BY started_ns DESC
		 LIMIT ?`,
		timer, timer, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var (
			r                   RoundRecord
			started, took, next int64
			errStr              sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Timer, &started, &took, &r.Subscribers, &r.Invoked, &r.Failures, &next, &errStr); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started)
		r.Duration = time.Duration(took)
		r.NextWait = time.Duration(next)
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// prune applies the retention limit to every table.
func (s *sqliteStore) prune(ctx context.Context) error {
	return errors.Join(s.pruneRounds(ctx), s.prunePower(ctx))
}

// pruneRounds keeps the newest retain rounds.
func (s *sqliteStore) pruneRounds(ctx context.Context) error {
	if s == nil || s.db == nil || s.retain <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rounds WHERE started_ns < (
			SELECT started_ns FROM rounds ORDER BY started_ns DESC LIMIT 1 OFFSET ?
		)`, s.retain-1)
	return err
}

// prunePower keeps the newest retain power transitions, by insertion order.
func (s *sqliteStore) prunePower(ctx context.Context) error {
	if s == nil || s.db == nil || s.retain <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM power WHERE rowid <= (
			SELECT rowid FROM power ORDER BY rowid DESC LIMIT 1 OFFSET ?
		)`, s.retain)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
