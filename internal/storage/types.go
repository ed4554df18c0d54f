package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Retain caps the number of rounds kept; older ones are pruned in the
	// background of appends. 0 means DefaultRetain.
	Retain int
}

const DefaultRetain = 5000

// RoundRecord is one completed timer round.
// Keep it compact and schema-stable.
type RoundRecord struct {
	ID          string        `json:"id"`
	Timer       string        `json:"timer"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Subscribers int           `json:"subscribers"`
	Invoked     int           `json:"invoked"`
	Failures    int           `json:"failures"`
	NextWait    time.Duration `json:"next_wait"`
	Error       string        `json:"error,omitempty"`
}

// PowerRecord is one distinct power transition.
type PowerRecord struct {
	At     time.Time `json:"at"`
	Mode   string    `json:"mode"`
	Source string    `json:"source,omitempty"`
}
