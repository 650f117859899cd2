package remedy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// maxOutput caps how much command output is kept in a result message.
const maxOutput = 512

// Command returns an action that runs argv as a child process. A zero exit
// status is a success. The signal text is exposed to the child as
// AUTOHEAL_SIGNAL. A positive timeout further bounds the run.
func Command(argv []string, timeout time.Duration) Action {
	return func(ctx context.Context, sig fault.Signal) (fault.Result, error) {
		if len(argv) == 0 {
			return fault.Result{}, fmt.Errorf("command action: empty argv")
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(cmd.Environ(), "AUTOHEAL_SIGNAL="+sig.Text)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		if err := cmd.Run(); err != nil {
			return fault.Result{}, fmt.Errorf("%s: %w (output: %s)", strings.Join(argv, " "), err, tail(out.String()))
		}
		msg := "command succeeded: " + strings.Join(argv, " ")
		if o := tail(out.String()); o != "" {
			msg += ": " + o
		}
		return fault.Result{Success: true, Message: msg}, nil
	}
}

// RestartUnit returns an action that restarts a systemd unit.
func RestartUnit(unit string, timeout time.Duration) Action {
	return Command([]string{"systemctl", "restart", unit}, timeout)
}

// Log returns an action that only records the fault.
func Log() Action {
	return func(_ context.Context, sig fault.Signal) (fault.Result, error) {
		slog.Info("fault recorded", "source", sig.Source, "signal", sig.Text)
		return fault.Result{Success: true, Message: "recorded"}, nil
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		return "..." + s[len(s)-maxOutput:]
	}
	return s
}
