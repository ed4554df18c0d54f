package app

import (
	"time"

	"waketimer/internal/config"
	logx "waketimer/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

func loadConfig(path string) (*config.Config, error) {
	return config.NewManager(path).Load()
}

func spec(name string, every time.Duration, argv ...string) config.TimerSpec {
	return config.TimerSpec{Name: name, Interval: every, Command: argv}
}

func specs(s ...config.TimerSpec) []config.TimerSpec { return s }
