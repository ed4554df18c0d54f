package config

import (
	"strings"
	"time"

	"waketimer/internal/power"
	logx "waketimer/pkg/logx"
)

type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Power   PowerConfig    `json:"power"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Timers  []TimerConfig  `json:"timers"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PowerConfig selects where power transitions come from.
//
// Defaults (when fields are omitted/zero):
//   - source: "auto" (logind, falling back to wall-clock gap detection)
//   - ignore_status_change: true
//   - gap_sample: "1s"
//   - gap_threshold: "2s"
type PowerConfig struct {
	Source string `json:"source,omitempty"`
	// IgnoreStatusChange is a pointer so an explicit false can be told apart
	// from an omitted key.
	IgnoreStatusChange *bool  `json:"ignore_status_change,omitempty"`
	GapSample          string `json:"gap_sample,omitempty"`
	GapThreshold       string `json:"gap_threshold,omitempty"`
}

// StorageConfig controls the round/power journal. Nil or driver "none"
// disables it.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./waked.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TimerConfig declares one wakeable timer and the command it runs each round.
//
// Interval accepts a Go duration ("15m"), HH:MM ("01:30") or "@every 15m".
// Delay and Timeout are Go durations; a zero Timeout means none.
type TimerConfig struct {
	Name     string   `json:"name"`
	Interval string   `json:"interval"`
	Delay    string   `json:"delay,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
	Command  []string `json:"command"`
	Disabled bool     `json:"disabled,omitempty"`
}

// TimerSpec is a TimerConfig with its durations parsed.
type TimerSpec struct {
	Name     string
	Interval time.Duration
	Delay    time.Duration
	Timeout  time.Duration
	Command  []string
}

// Spec parses the timer's durations. Errors are prefixed with path.
func (tc TimerConfig) Spec(path string) (TimerSpec, error) {
	iv, err := ParseInterval(tc.Interval)
	if err != nil {
		return TimerSpec{}, prefixErr(path+".interval", err)
	}
	delay, err := ParseDurationField(path+".delay", tc.Delay)
	if err != nil {
		return TimerSpec{}, err
	}
	timeout, err := ParseDurationField(path+".timeout", tc.Timeout)
	if err != nil {
		return TimerSpec{}, err
	}
	return TimerSpec{
		Name:     strings.TrimSpace(tc.Name),
		Interval: iv,
		Delay:    delay,
		Timeout:  timeout,
		Command:  append([]string(nil), tc.Command...),
	}, nil
}

// EnabledTimers returns the parsed specs of every timer not marked disabled,
// in file order.
func (c *Config) EnabledTimers() ([]TimerSpec, error) {
	out := make([]TimerSpec, 0, len(c.Timers))
	for i, tc := range c.Timers {
		if tc.Disabled {
			continue
		}
		spec, err := tc.Spec(timerPath(i, tc.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// LogConfig maps the logging section onto the logx service config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

// IgnoresStatusChange reports the effective ignore_status_change value.
func (p PowerConfig) IgnoresStatusChange() bool {
	if p.IgnoreStatusChange == nil {
		return true
	}
	return *p.IgnoreStatusChange
}

// SourceConfig parses the power section into a power.SourceConfig.
func (p PowerConfig) SourceConfig() (power.SourceConfig, error) {
	sample, err := ParseDurationField("power.gap_sample", p.GapSample)
	if err != nil {
		return power.SourceConfig{}, err
	}
	threshold, err := ParseDurationField("power.gap_threshold", p.GapThreshold)
	if err != nil {
		return power.SourceConfig{}, err
	}
	return power.SourceConfig{Kind: p.Source, GapSample: sample, GapThreshold: threshold}, nil
}

// StorageDriver returns the normalized driver name, "none" when disabled.
func (c *Config) StorageDriver() string {
	if c.Storage == nil {
		return "none"
	}
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d == "" {
		return "none"
	}
	return d
}
