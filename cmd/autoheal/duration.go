package main

import (
	"fmt"
	"time"
)

// formatDuration renders d with its two most significant units, e.g.
// "42s", "5m 3s", "2h 15m" or "3d 4h".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Truncate(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	secs := (d - mins*time.Minute) / time.Second

	switch {
	case days > 0:
		return twoUnits(int64(days), "d", int64(hours), "h")
	case hours > 0:
		return twoUnits(int64(hours), "h", int64(mins), "m")
	case mins > 0:
		return twoUnits(int64(mins), "m", int64(secs), "s")
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func twoUnits(major int64, majorUnit string, minor int64, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s %d%s", major, majorUnit, minor, minorUnit)
}
