// Package systemd reports service state to the systemd manager.
//
// Every call is a no-op returning (false, nil) when the process was not
// started by systemd with NOTIFY_SOCKET set.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func Ready() (bool, error)     { return daemon.SdNotify(false, daemon.SdNotifyReady) }
func Stopping() (bool, error)  { return daemon.SdNotify(false, daemon.SdNotifyStopping) }
func Reloading() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReloading) }
func Watchdog() (bool, error)  { return daemon.SdNotify(false, daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+msg)
}

// WatchdogInterval returns how often the manager expects Watchdog pings,
// or 0 when the watchdog is not enabled for this process.
func WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
