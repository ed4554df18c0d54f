package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "waketimer/pkg/logx"
)

// fileStore keeps the journal in append-only JSON Lines files:
//   - <prefix>.rounds.jsonl
//   - <prefix>.power.jsonl
//
// Both files are periodically compacted down to the retained tail.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool
	rounds *jsonlFile
	power  *jsonlFile

	retain       int
	compactEvery int
}

// jsonlFile is one append-only JSON Lines file.
type jsonlFile struct {
	path   string
	f      *os.File
	writes int
}

func openJSONL(path string) (*jsonlFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &jsonlFile{path: path, f: f}, nil
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	rounds, err := openJSONL(prefix + ".rounds.jsonl")
	if err != nil {
		return nil, err
	}
	power, err := openJSONL(prefix + ".power.jsonl")
	if err != nil {
		_ = rounds.f.Close()
		return nil, err
	}

	every := cfg.Retain / 5
	if every < 1 {
		every = 1
	}
	return &fileStore{
		log:          log,
		rounds:       rounds,
		power:        power,
		retain:       cfg.Retain,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.rounds.f.Close(), s.power.f.Close())
}

func (s *fileStore) AppendRound(_ context.Context, r RoundRecord) error {
	return s.append(s.rounds, r)
}

func (s *fileStore) AppendPower(_ context.Context, p PowerRecord) error {
	return s.append(s.power, p)
}

func (s *fileStore) append(j *jsonlFile, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := json.NewEncoder(j.f).Encode(v); err != nil {
		return err
	}
	j.writes++
	if j.writes%s.compactEvery == 0 {
		if err := j.compact(s.retain); err != nil {
			// Appends continue on the uncompacted file.
			s.log.Warn("journal compact failed", logx.String("path", j.path), logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Rounds(ctx context.Context, timer string, limit int) ([]RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	all, err := readRounds(ctx, s.rounds.path, timer)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]RoundRecord, len(all))
	for i, r := range all {
		out[len(all)-1-i] = r
	}
	return out, nil
}

// compact rewrites the file with only its last retain records. The
// rewritten file is opened for appending before it replaces the old one,
// so a failure at any step leaves the current handle in place.
func (j *jsonlFile) compact(retain int) error {
	lines, err := readLines(j.path)
	if err != nil {
		return err
	}
	if len(lines) <= retain {
		return nil
	}
	lines = lines[len(lines)-retain:]

	tmp := j.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		_, _ = w.Write(l)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fail(err)
	}
	_ = j.f.Close()
	j.f = f
	return nil
}

// readLines returns every well-formed JSON line of path.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if !json.Valid(sc.Bytes()) {
			// Torn line from a crash mid-write.
			continue
		}
		out = append(out, append([]byte(nil), sc.Bytes()...))
	}
	return out, sc.Err()
}

func readRounds(ctx context.Context, path, timer string) ([]RoundRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RoundRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r RoundRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// Torn line from a crash mid-write.
			continue
		}
		if timer != "" && r.Timer != timer {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
