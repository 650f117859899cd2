package source

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestParseJournalJSON(t *testing.T) {
	raw := map[string]interface{}{
		"MESSAGE":              "Error: connect ECONNREFUSED 127.0.0.1:5432",
		"PRIORITY":             "3",
		"SYSLOG_IDENTIFIER":    "node",
		"_SYSTEMD_UNIT":        "api.service",
		"__REALTIME_TIMESTAMP": "1708300000000000",
	}

	data, _ := json.Marshal(raw)
	entry, err := parseJournalJSON(data)
	if err != nil {
		t.Fatalf("parseJournalJSON error: %v", err)
	}

	if entry.Message != "Error: connect ECONNREFUSED 127.0.0.1:5432" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Priority != 3 {
		t.Errorf("Priority = %d, want 3", entry.Priority)
	}
	if entry.SystemdUnit != "api.service" {
		t.Errorf("SystemdUnit = %q", entry.SystemdUnit)
	}
	if want := time.UnixMicro(1708300000000000); !entry.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, want)
	}

	sig := entry.signal()
	if sig.Source != "journal:api.service" {
		t.Errorf("Source = %q", sig.Source)
	}
	if sig.Text != entry.Message {
		t.Errorf("Text = %q", sig.Text)
	}
}

func TestParseJournalJSONWithArrayField(t *testing.T) {
	raw := map[string]interface{}{
		"MESSAGE":           "test",
		"_SOME_ARRAY_FIELD": []interface{}{"first", "second"},
	}

	data, _ := json.Marshal(raw)
	entry, err := parseJournalJSON(data)
	if err != nil {
		t.Fatalf("parseJournalJSON error: %v", err)
	}
	if entry.Fields["_SOME_ARRAY_FIELD"] != "first" {
		t.Errorf("array field = %q, want %q", entry.Fields["_SOME_ARRAY_FIELD"], "first")
	}
}

func TestParseJournalJSONInvalid(t *testing.T) {
	if _, err := parseJournalJSON([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestJournalSignalFallbacks(t *testing.T) {
	sig := journalEntry{Message: "x", SyslogIdentifier: "kernel"}.signal()
	if sig.Source != "journal:kernel" {
		t.Errorf("Source = %q", sig.Source)
	}
	if sig.CapturedAt.IsZero() {
		t.Error("CapturedAt should default to now")
	}
	if got := (journalEntry{Message: "x"}).signal().Source; got != "journal" {
		t.Errorf("Source = %q, want journal", got)
	}
}

func TestJournalArgs(t *testing.T) {
	j := NewJournalStream([]string{"api.service", "worker.service"}, "", "/var/lib/autoheal/cursor")
	want := []string{
		"--follow", "-o", "json", "--no-pager", "-p", "0..3",
		"-u", "api.service", "-u", "worker.service",
		"--cursor-file", "/var/lib/autoheal/cursor",
	}
	if got := j.args(); !reflect.DeepEqual(got, want) {
		t.Errorf("args = %v\nwant %v", got, want)
	}
}
