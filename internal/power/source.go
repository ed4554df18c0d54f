package power

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "waketimer/pkg/logx"
)

// ErrUnavailable is returned by sources that have no power-event feed on this
// host (no logind, no system bus, unsupported OS).
var ErrUnavailable = errors.New("power source unavailable")

// Source delivers raw power transitions until ctx is done.
type Source interface {
	Name() string
	Watch(ctx context.Context, emit func(Mode)) error
}

// ManualSource never emits. Transitions only arrive through Monitor.Notify.
type ManualSource struct{}

func (ManualSource) Name() string { return "manual" }

func (ManualSource) Watch(ctx context.Context, emit func(Mode)) error {
	<-ctx.Done()
	return nil
}

const (
	defaultGapSample    = time.Second
	defaultGapThreshold = 2 * time.Second
)

// GapSource detects sleep after the fact: when the wall clock advances by at
// least Sample+Threshold between two samples, the host was suspended, so it
// emits Suspend followed by Resume.
//
// Samples are compared without Go's monotonic reading, which does not advance
// while the host sleeps.
type GapSource struct {
	Sample    time.Duration
	Threshold time.Duration

	now func() time.Time
}

func NewGapSource(sample, threshold time.Duration) *GapSource {
	return &GapSource{Sample: sample, Threshold: threshold}
}

func (s *GapSource) Name() string { return "gap" }

func (s *GapSource) Watch(ctx context.Context, emit func(Mode)) error {
	sample := s.Sample
	if sample <= 0 {
		sample = defaultGapSample
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = defaultGapThreshold
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	t := time.NewTicker(sample)
	defer t.Stop()

	last := now().Round(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			cur := now().Round(0)
			gap := cur.Sub(last)
			last = cur
			if gap >= sample+threshold {
				emit(Suspend)
				emit(Resume)
			}
		}
	}
}

// SourceConfig selects and tunes the power-event source.
//
// Kind values:
//   - "auto": logind when a system bus is reachable, otherwise "gap"
//   - "login1": systemd-logind PrepareForSleep signals (Linux)
//   - "gap": wall-clock jump detection (any OS)
//   - "none": manual-only
type SourceConfig struct {
	Kind         string
	GapSample    time.Duration
	GapThreshold time.Duration
}

// NewSource builds the configured source.
func NewSource(cfg SourceConfig, log logx.Logger) (Source, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case "", "auto":
		if login1Available() {
			return NewLogin1Source(log), nil
		}
		log.Debug("logind not reachable; using wall-clock gap detection")
		return NewGapSource(cfg.GapSample, cfg.GapThreshold), nil
	case "login1", "logind":
		return NewLogin1Source(log), nil
	case "gap":
		return NewGapSource(cfg.GapSample, cfg.GapThreshold), nil
	case "none", "manual":
		return ManualSource{}, nil
	default:
		return nil, fmt.Errorf("unknown power source %q (use auto, login1, gap or none)", cfg.Kind)
	}
}
