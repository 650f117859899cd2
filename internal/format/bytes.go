// Package format provides shared formatting utilities.
package format

import "fmt"

const (
	KB = 1024
	MB = KB * 1024
	GB = MB * 1024
)

// Bytes formats a byte count as a human-readable string (e.g., "3.0 GB", "512.0 MB").
func Bytes(b int64) string {
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// Megabytes formats a size given in megabytes, as reported by the resource
// sampler.
func Megabytes(mb float64) string {
	if mb < 0 {
		mb = 0
	}
	return Bytes(int64(mb * MB))
}

// Budget formats used against limit, e.g. "42.0 MB / 100.0 MB (42%)".
func Budget(usedMB, limitMB float64) string {
	if limitMB <= 0 {
		return Megabytes(usedMB)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", Megabytes(usedMB), Megabytes(limitMB), usedMB/limitMB*100)
}
