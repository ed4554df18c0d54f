//go:build linux

package power

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/login1"

	logx "waketimer/pkg/logx"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// Login1Source listens for systemd-logind PrepareForSleep signals.
//
// While awake it holds a "delay" sleep inhibitor so logind waits for the
// Suspend notification to be dispatched before the host goes down. The lock
// is released right after dispatch and taken again after resume.
type Login1Source struct {
	log logx.Logger
	who string
}

func NewLogin1Source(log logx.Logger) *Login1Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Login1Source{log: log, who: "waked"}
}

func (s *Login1Source) Name() string { return "login1" }

func (s *Login1Source) Watch(ctx context.Context, emit func(Mode)) error {
	conn, err := login1.New()
	if err != nil {
		return fmt.Errorf("%w: login1: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	sigs := conn.Subscribe("PrepareForSleep")
	lock := s.inhibit(conn)
	defer func() {
		if lock != nil {
			_ = lock.Close()
		}
	}()
	s.log.Debug("subscribed to logind sleep signals", logx.Bool("inhibitor", lock != nil))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigs:
			if !ok {
				return errors.New("login1: signal channel closed")
			}
			if sig == nil || sig.Name != prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			sleeping, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if sleeping {
				emit(Suspend)
				if lock != nil {
					_ = lock.Close()
					lock = nil
				}
				continue
			}
			emit(Resume)
			if lock == nil {
				lock = s.inhibit(conn)
			}
		}
	}
}

func (s *Login1Source) inhibit(conn *login1.Conn) *os.File {
	f, err := conn.Inhibit("sleep", s.who, "pause wakeable timers before sleep", "delay")
	if err != nil {
		s.log.Debug("sleep inhibitor not acquired", logx.Err(err))
		return nil
	}
	return f
}

func login1Available() bool {
	conn, err := login1.New()
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
