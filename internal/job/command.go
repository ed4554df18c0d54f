// Package job provides the work a configured timer performs each round.
package job

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	logx "waketimer/pkg/logx"
)

// tailSize bounds the command output kept for error messages.
const tailSize = 2048

// Command runs an external program once per round.
type Command struct {
	argv    []string
	timeout time.Duration
	log     logx.Logger
}

// NewCommand validates argv. A zero timeout means the command may run until
// the round's context is canceled.
func NewCommand(argv []string, timeout time.Duration, log logx.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("job: empty command")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Command{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		log:     log,
	}, nil
}

func (c *Command) String() string { return strings.Join(c.argv, " ") }

// Run executes the command and waits for it. A non-zero exit, a timeout or
// a start failure is returned with the tail of the combined output.
func (c *Command) Run(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &tailBuffer{max: tailSize}
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)
	if err == nil {
		c.log.Debug("command finished", logx.String("cmd", c.argv[0]), logx.Duration("took", took))
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if c.timeout > 0 {
			err = fmt.Errorf("timed out after %s: %w", c.timeout, err)
		} else {
			err = fmt.Errorf("deadline exceeded: %w", err)
		}
	}
	if tail := strings.TrimSpace(out.String()); tail != "" {
		return fmt.Errorf("%s: %w: %s", c.argv[0], err, tail)
	}
	return fmt.Errorf("%s: %w", c.argv[0], err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	buf  []byte
	lost bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.lost = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return "..." + string(b.buf)
	}
	return string(b.buf)
}
