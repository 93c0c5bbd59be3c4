// Package execx runs external programs from argument vectors.
//
// Commands are never assembled into a shell string; every argument is passed
// to the program as-is.
package execx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command is killed because its deadline passed.
var ErrTimeout = errors.New("command timed out")

// Runner executes a program and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OS runs real processes. A zero Timeout means the caller's context alone
// bounds the command.
type OS struct {
	Timeout time.Duration
}

// Run executes name with args.
func (o OS) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s: %w", name, ErrTimeout)
		}
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// WithTimeout runs a single command under its own deadline.
func WithTimeout(ctx context.Context, r Runner, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout <= 0 {
		return r.Run(ctx, name, args...)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.Run(ctx, name, args...)
	if err != nil && !errors.Is(err, ErrTimeout) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	return out, err
}
