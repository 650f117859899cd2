package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// maxSignalLen bounds the signal excerpt in a notification body.
const maxSignalLen = 500

// FormatTitle builds the ntfy notification title for a finished task.
func FormatTitle(instance string, task fault.Task, repeats int) string {
	emoji := "\u2705" // check mark
	outcome := "remediated"
	if !task.Result.Success {
		emoji = "\u274c" // cross mark
		outcome = "remediation failed"
	}
	title := fmt.Sprintf("%s [%s] %s %s", emoji, instance, task.Kind.Label(), outcome)
	if repeats > 0 {
		title += fmt.Sprintf(" (%d times)", repeats)
	}
	return title
}

// FormatBody builds the ntfy notification body for a finished task.
func FormatBody(instance string, task fault.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Host: %s\n", instance)
	fmt.Fprintf(&b, "Time: %s\n", task.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	if task.Signal.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", task.Signal.Source)
	}
	fmt.Fprintf(&b, "Duration: %s\n", task.Duration().Round(time.Millisecond))

	b.WriteString("\n")
	sig := task.Signal.Text
	if len(sig) > maxSignalLen {
		sig = sig[:maxSignalLen] + "..."
	}
	b.WriteString(sig)

	if task.Result.Message != "" {
		b.WriteString("\n\n")
		b.WriteString(task.Result.Message)
	}
	return b.String()
}

// TagsForTask returns the ntfy tags string for a finished task.
func TagsForTask(task fault.Task) string {
	if task.Result.Success {
		return "white_check_mark," + string(task.Kind)
	}
	return "warning," + string(task.Kind)
}
