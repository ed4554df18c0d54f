package config

import (
	"reflect"
	"sort"
	"strings"

	logx "waketimer/pkg/logx"
)

// TimerDiff lists enabled timers by name. A timer that became disabled is
// reported as removed, one that became enabled as added.
type TimerDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d TimerDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// SummarizeChange returns (1) a compact sorted list of changed sections,
// (2) structured attrs for logging and (3) the per-timer difference.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, TimerDiff) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !strings.EqualFold(strings.TrimSpace(oldCfg.Power.Source), strings.TrimSpace(newCfg.Power.Source)) ||
		oldCfg.Power.IgnoresStatusChange() != newCfg.Power.IgnoresStatusChange() ||
		strings.TrimSpace(oldCfg.Power.GapSample) != strings.TrimSpace(newCfg.Power.GapSample) ||
		strings.TrimSpace(oldCfg.Power.GapThreshold) != strings.TrimSpace(newCfg.Power.GapThreshold) {
		changed = append(changed, "power")
		attrs = append(attrs,
			logx.String("power.source", strings.TrimSpace(newCfg.Power.Source)),
			logx.Bool("power.ignore_status_change", newCfg.Power.IgnoresStatusChange()),
		)
	}

	var oBusy, nBusy, oPath, nPath string
	if oldCfg.Storage != nil {
		oBusy, oPath = strings.TrimSpace(oldCfg.Storage.BusyTimeout), strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nBusy, nPath = strings.TrimSpace(newCfg.Storage.BusyTimeout), strings.TrimSpace(newCfg.Storage.Path)
	}
	if oldCfg.StorageDriver() != newCfg.StorageDriver() || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.StorageDriver()),
			logx.String("storage.path", nPath),
		)
	}

	td := diffTimers(oldCfg.Timers, newCfg.Timers)
	if !td.Empty() {
		changed = append(changed, "timers")
		attrs = append(attrs,
			logx.Strs("timers.added", td.Added),
			logx.Strs("timers.removed", td.Removed),
			logx.Strs("timers.changed", td.Changed),
		)
	}

	sort.Strings(changed)
	return changed, attrs, td
}

func enabledByName(ts []TimerConfig) map[string]TimerConfig {
	out := make(map[string]TimerConfig, len(ts))
	for _, tc := range ts {
		if tc.Disabled {
			continue
		}
		out[strings.TrimSpace(tc.Name)] = tc
	}
	return out
}

func diffTimers(oldT, newT []TimerConfig) TimerDiff {
	o, n := enabledByName(oldT), enabledByName(newT)
	var d TimerDiff
	for name, nc := range n {
		oc, ok := o[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case !reflect.DeepEqual(oc, nc):
			d.Changed = append(d.Changed, name)
		}
	}
	for name := range o {
		if _, ok := n[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}
