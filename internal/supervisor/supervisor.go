// Package supervisor restarts the daemon process after abnormal exits
// with exponential backoff, giving up when crashes come too fast.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Restart policy.
const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
	crashWindow    = 10 * time.Minute
)

// Supervisor spawns and watches one child process.
type Supervisor struct {
	Command    string
	Args       []string
	MaxCrashes int // crashes tolerated inside the sliding window

	now func() time.Time
}

// New creates a Supervisor for the given command line.
func New(command string, args []string, maxCrashes int) *Supervisor {
	if maxCrashes <= 0 {
		maxCrashes = 5
	}
	return &Supervisor{Command: command, Args: args, MaxCrashes: maxCrashes, now: time.Now}
}

// Run supervises until the child exits cleanly, the crash budget is
// spent, or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	var crashes []time.Time
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := s.now()
		err := s.spawn(ctx)
		if err == nil {
			slog.Info("daemon exited cleanly, supervisor done")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("daemon crashed", "error", err, "uptime", s.now().Sub(start))

		// Slide the crash window.
		cutoff := s.now().Add(-crashWindow)
		crashes = append(crashes, s.now())
		kept := crashes[:0]
		for _, t := range crashes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		crashes = kept
		if len(crashes) > s.MaxCrashes {
			return fmt.Errorf("giving up: %d crashes within %s", len(crashes), crashWindow)
		}

		backoff := initialBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		} else {
			attempt++
		}
		slog.Info("restarting daemon", "backoff", backoff, "recent_crashes", len(crashes))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *Supervisor) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	return cmd.Wait()
}
