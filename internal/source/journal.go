package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/setevik/autoheal/internal/fault"
)

// DefaultJournalPriority limits the journal to emerg..err.
const DefaultJournalPriority = "0..3"

// journalEntry is the subset of a journalctl -o json record we use.
type journalEntry struct {
	Message          string
	Priority         int
	SyslogIdentifier string
	SystemdUnit      string
	Timestamp        time.Time

	Fields map[string]string
}

// JournalStream follows journalctl --follow -o json and emits each MESSAGE
// as a signal.
type JournalStream struct {
	units      []string
	priority   string
	cursorFile string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewJournalStream creates a stream limited to units (all units if empty)
// at the given priority range. cursorFile lets journalctl resume after a
// restart; pass "" to disable.
func NewJournalStream(units []string, priority, cursorFile string) *JournalStream {
	if priority == "" {
		priority = DefaultJournalPriority
	}
	return &JournalStream{units: units, priority: priority, cursorFile: cursorFile}
}

func (j *JournalStream) args() []string {
	args := []string{"--follow", "-o", "json", "--no-pager", "-p", j.priority}
	for _, u := range j.units {
		args = append(args, "-u", u)
	}
	if j.cursorFile != "" {
		args = append(args, "--cursor-file", j.cursorFile)
	}
	return args
}

func (j *JournalStream) Signals(ctx context.Context) (<-chan fault.Signal, error) {
	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	cmd := exec.CommandContext(ctx, "journalctl", j.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting journalctl: %w", err)
	}

	ch := make(chan fault.Signal, 64)
	go func() {
		defer close(ch)
		defer func() {
			_ = cmd.Wait()
		}()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			entry, err := parseJournalJSON(scanner.Bytes())
			if err != nil {
				slog.Debug("skipping unparseable journal line", "error", err)
				continue
			}
			if entry.Message == "" {
				continue
			}
			select {
			case ch <- entry.signal():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("journal scanner error", "error", err)
		}
	}()

	slog.Info("journal stream started", "priority", j.priority, "units", j.units)
	return ch, nil
}

func (j *JournalStream) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

func (e journalEntry) signal() fault.Signal {
	origin := "journal"
	switch {
	case e.SystemdUnit != "":
		origin = "journal:" + e.SystemdUnit
	case e.SyslogIdentifier != "":
		origin = "journal:" + e.SyslogIdentifier
	}
	at := e.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return fault.Signal{Text: e.Message, CapturedAt: at, Source: origin}
}

// parseJournalJSON parses one line of journalctl -o json output.
func parseJournalJSON(data []byte) (journalEntry, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return journalEntry{}, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case []interface{}:
			// multi-value field; first wins
			if len(val) > 0 {
				fields[k] = fmt.Sprintf("%v", val[0])
			}
		default:
			fields[k] = fmt.Sprintf("%v", v)
		}
	}

	priority, _ := strconv.Atoi(fields["PRIORITY"])

	var ts time.Time
	if us, err := strconv.ParseInt(fields["__REALTIME_TIMESTAMP"], 10, 64); err == nil {
		ts = time.UnixMicro(us)
	}

	return journalEntry{
		Message:          fields["MESSAGE"],
		Priority:         priority,
		SyslogIdentifier: fields["SYSLOG_IDENTIFIER"],
		SystemdUnit:      fields["_SYSTEMD_UNIT"],
		Timestamp:        ts,
		Fields:           fields,
	}, nil
}
