package monitor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeStat writes a /proc/<pid>/stat line with the given utime and
// stime (in clock ticks) and RSS (in pages).
func writeFakeStat(t *testing.T, root string, utime, stime, rssPages int) {
	t.Helper()
	line := fmt.Sprintf("4242 (autoheal) S 1 4242 4242 0 -1 4194560 1200 0 0 0 %d %d 0 0 20 0 8 0 1000 123456789 %d 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0 0 0 0 0 0 0 0 0\n",
		utime, stime, rssPages)
	if err := os.WriteFile(filepath.Join(root, "4242", "stat"), []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fakeProc(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "4242"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("4242", filepath.Join(root, "self")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestProcSampler(t *testing.T) {
	root := fakeProc(t)
	writeFakeStat(t, root, 100, 50, 2560)

	s, err := NewProcSamplerAt(root)
	if err != nil {
		t.Fatalf("NewProcSamplerAt: %v", err)
	}
	clock := time.Date(2026, 2, 19, 14, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if first.CPUPercent != 0 {
		t.Errorf("first CPUPercent = %f, want 0", first.CPUPercent)
	}
	if first.RSSBytes <= 0 {
		t.Errorf("RSSBytes = %d, want > 0", first.RSSBytes)
	}
	if first.HostMemorySomeAvg10 != -1 {
		t.Errorf("HostMemorySomeAvg10 = %f, want -1 without PSI", first.HostMemorySomeAvg10)
	}

	// 50 more ticks (0.5s of CPU at USER_HZ=100) over 1s of wall time.
	writeFakeStat(t, root, 130, 70, 2560)
	clock = clock.Add(time.Second)

	second, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if math.Abs(second.CPUPercent-50) > 0.01 {
		t.Errorf("CPUPercent = %f, want 50", second.CPUPercent)
	}
}

func TestProcSamplerMissingProc(t *testing.T) {
	if _, err := NewProcSamplerAt("/nonexistent/proc"); err == nil {
		t.Fatal("expected error for missing procfs")
	}
}

func TestCPUPercent(t *testing.T) {
	tests := []struct {
		prev, cur float64
		elapsed   time.Duration
		want      float64
	}{
		{1.0, 1.5, time.Second, 50},
		{1.0, 3.0, time.Second, 200},
		{1.0, 1.0, time.Second, 0},
		{2.0, 1.0, time.Second, 0},
		{1.0, 2.0, 0, 0},
	}
	for _, tt := range tests {
		got := cpuPercent(tt.prev, tt.cur, tt.elapsed)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("cpuPercent(%v, %v, %v) = %v, want %v", tt.prev, tt.cur, tt.elapsed, got, tt.want)
		}
	}
}

func TestSampleMemoryMB(t *testing.T) {
	s := Sample{RSSBytes: 150 * 1024 * 1024}
	if s.MemoryMB() != 150 {
		t.Errorf("MemoryMB = %f, want 150", s.MemoryMB())
	}
}
