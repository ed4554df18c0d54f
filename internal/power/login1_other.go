//go:build !linux

package power

import (
	"context"

	logx "waketimer/pkg/logx"
)

// Login1Source is only backed by systemd-logind on Linux.
type Login1Source struct{}

func NewLogin1Source(log logx.Logger) *Login1Source {
	_ = log
	return &Login1Source{}
}

func (s *Login1Source) Name() string { return "login1" }

func (s *Login1Source) Watch(ctx context.Context, emit func(Mode)) error {
	_ = ctx
	_ = emit
	return ErrUnavailable
}

func login1Available() bool { return false }
