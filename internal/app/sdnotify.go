package app

import (
	"time"

	"waketimer/internal/power"
	"waketimer/internal/timer"
	logx "waketimer/pkg/logx"
	"waketimer/pkg/systemd"
)

// serviceManager is the slice of sd_notify the app uses.
type serviceManager interface {
	Ready() (bool, error)
	Reloading() (bool, error)
	Stopping() (bool, error)
	Status(msg string) (bool, error)
	Watchdog() (bool, error)
	WatchdogInterval() (time.Duration, error)
}

type systemdManager struct{}

func (systemdManager) Ready() (bool, error)                     { return systemd.Ready() }
func (systemdManager) Reloading() (bool, error)                 { return systemd.Reloading() }
func (systemdManager) Stopping() (bool, error)                  { return systemd.Stopping() }
func (systemdManager) Status(msg string) (bool, error)          { return systemd.Status(msg) }
func (systemdManager) Watchdog() (bool, error)                  { return systemd.Watchdog() }
func (systemdManager) WatchdogInterval() (time.Duration, error) { return systemd.WatchdogInterval() }

// startWatchdog pings the service manager from a wakeable timer at half the
// configured watchdog interval. It returns nil when no watchdog is set.
// The timer follows the monitor, so pings pause while the host sleeps.
func startWatchdog(sd serviceManager, monitor *power.Monitor, log logx.Logger) *timer.Timer {
	every, err := sd.WatchdogInterval()
	if err != nil {
		log.Warn("watchdog config invalid; not pinging", logx.Err(err))
		return nil
	}
	if every <= 0 {
		return nil
	}
	t := timer.New(every/2, timer.WithName("watchdog"), timer.WithLogger(log), timer.WithMonitor(monitor))
	t.SubscribeFunc(func() {
		if _, err := sd.Watchdog(); err != nil {
			log.Debug("watchdog ping failed", logx.Err(err))
		}
	})
	t.Start(0)
	log.Info("systemd watchdog enabled", logx.Duration("interval", every))
	return t
}

func notify(log logx.Logger, what string, fn func() (bool, error)) {
	if _, err := fn(); err != nil {
		log.Debug("sd_notify failed", logx.String("state", what), logx.Err(err))
	}
}
