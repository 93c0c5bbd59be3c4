package printer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thereceipt/order-printer/internal/execx"
)

// Spooler submits text jobs through the system print command.
type Spooler struct {
	runner  execx.Runner
	timeout time.Duration
	tempDir string
}

// NewSpooler creates a Spooler whose lp invocations are killed after timeout.
func NewSpooler(runner execx.Runner, timeout time.Duration) *Spooler {
	return &Spooler{runner: runner, timeout: timeout}
}

// Print writes text to a temporary file and submits it with lp. An empty
// queue name targets the system default. The temporary file is removed on
// every return path.
func (s *Spooler) Print(ctx context.Context, queue, text string) error {
	f, err := os.CreateTemp(s.tempDir, "pedido-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	args := []string{}
	if queue != "" {
		args = append(args, "-d", queue)
	}
	args = append(args, path)

	if _, err := execx.WithTimeout(ctx, s.runner, s.timeout, "lp", args...); err != nil {
		return err
	}
	return nil
}
