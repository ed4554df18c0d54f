package timer

import "fmt"

// State governs what a Timer does with its scheduled ticks.
type State int

const (
	// Run delivers ticks to subscribers on schedule.
	Run State = 0
	// Stop means no scheduling and no firing.
	Stop State = 1
	// Suspend pauses scheduling; the pending deadline is kept for Resume.
	Suspend State = 2
	// Unknown is never produced by a Timer.
	Unknown State = -1
)

func (s State) String() string {
	switch s {
	case Run:
		return "run"
	case Stop:
		return "stop"
	case Suspend:
		return "suspend"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
