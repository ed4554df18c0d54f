package power

import (
	"fmt"
	"strings"
)

// Mode is an operating-system power transition.
type Mode int

const (
	Resume Mode = iota
	Suspend
	StatusChange
)

func (m Mode) String() string {
	switch m {
	case Resume:
		return "resume"
	case Suspend:
		return "suspend"
	case StatusChange:
		return "status_change"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names produced by Mode.String (case-insensitive,
// "-" and "_" interchangeable).
func ParseMode(raw string) (Mode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "resume":
		return Resume, nil
	case "suspend":
		return Suspend, nil
	case "status_change", "statuschange":
		return StatusChange, nil
	default:
		return 0, fmt.Errorf("invalid power mode %q (use resume, suspend or status_change)", raw)
	}
}
