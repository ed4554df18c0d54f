package config

import (
	"errors"
	"fmt"
	"strings"

	"waketimer/internal/power"
	logx "waketimer/pkg/logx"
)

var knownDrivers = map[string]struct{}{"none": {}, "file": {}, "sqlite": {}}

var knownSources = map[string]struct{}{
	"": {}, "auto": {}, "login1": {}, "logind": {}, "gap": {}, "none": {}, "manual": {},
}

// Validate reports every problem found in cfg, joined into one error.
// Each message starts with the offending key path (e.g. "timers[1].interval").
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.LookupLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}

	if _, ok := knownSources[strings.ToLower(strings.TrimSpace(cfg.Power.Source))]; !ok {
		errs = append(errs, fmt.Errorf("power.source: unknown source %q (use auto, login1, gap or none)", cfg.Power.Source))
	}
	if _, err := cfg.Power.SourceConfig(); err != nil {
		errs = append(errs, err)
	}

	driver := cfg.StorageDriver()
	if _, ok := knownDrivers[driver]; !ok {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (use file, sqlite or none)", driver))
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]int{}
	for i, tc := range cfg.Timers {
		path := timerPath(i, tc.Name)
		name := strings.TrimSpace(tc.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		default:
			if j, dup := seen[name]; dup {
				errs = append(errs, fmt.Errorf("%s.name: %q already used by timers[%d]", path, name, j))
			} else {
				seen[name] = i
			}
		}
		if len(tc.Command) == 0 || strings.TrimSpace(tc.Command[0]) == "" {
			errs = append(errs, fmt.Errorf("%s.command: required", path))
		}
		if _, err := tc.Spec(path); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ValidateSource additionally checks that the power source can be built.
func ValidateSource(cfg *Config, log logx.Logger) error {
	sc, err := cfg.Power.SourceConfig()
	if err != nil {
		return err
	}
	_, err = power.NewSource(sc, log)
	return prefixErr("power.source", err)
}

func timerPath(i int, name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return fmt.Sprintf("timers[%d](%s)", i, n)
	}
	return fmt.Sprintf("timers[%d]", i)
}

func prefixErr(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", path, err)
}
