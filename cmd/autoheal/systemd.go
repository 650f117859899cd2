package main

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

// sdNotify writes state to $NOTIFY_SOCKET. It is a no-op when the daemon
// is not supervised by systemd. A leading "@" names an abstract socket.
func sdNotify(state string) {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return
	}
	if addr[0] == '@' {
		addr = "\x00" + addr[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: addr, Net: "unixgram"})
	if err != nil {
		slog.Debug("sd_notify dial failed", "state", state, "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		slog.Debug("sd_notify write failed", "state", state, "error", err)
	}
}

// watchdogInterval returns the systemd watchdog timeout, or 0 when the
// watchdog is disabled or addressed to another process.
func watchdogInterval() time.Duration {
	if pid := os.Getenv("WATCHDOG_PID"); pid != "" && pid != strconv.Itoa(os.Getpid()) {
		return 0
	}
	usec, err := strconv.ParseInt(os.Getenv("WATCHDOG_USEC"), 10, 64)
	if err != nil || usec <= 0 {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}
