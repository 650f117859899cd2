package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/setevik/autoheal/internal/engine"
	"github.com/setevik/autoheal/internal/format"
	"github.com/setevik/autoheal/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and recent history",
	Long: `Query a running daemon's status endpoint and summarise the history
database. The daemon section is skipped if the daemon is not reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging("error", false)

		if addr == "" {
			addr = cfg.HTTP.Listen
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== autoheal status ==="))
		fmt.Printf("Instance:     %s\n", cfg.Instance.ID)

		if addr == "" {
			fmt.Printf("Daemon:       %s\n", color.HiBlackString("status endpoint disabled"))
		} else if st, err := fetchStatus(addr); err != nil {
			fmt.Printf("Daemon:       %s (%v)\n", color.RedString("unreachable"), err)
		} else {
			printStatus(st)
		}

		db, err := store.Open(cfg.DBPath(), cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		fmt.Println()
		last, err := db.Query(store.QueryFilter{Limit: 1})
		if err == nil && len(last) > 0 {
			r := last[0]
			ago := time.Since(r.FinishedAt).Truncate(time.Second)
			fmt.Printf("Last fix:     [%s] %s, %s ago\n", r.Kind, r.Status, formatDuration(ago))
		} else {
			fmt.Println("Last fix:     none")
		}

		stats, _ := db.KindStats(time.Now().Add(-24 * time.Hour))
		var ok, failed int
		for _, s := range stats {
			ok += s.Succeeded
			failed += s.Failed
		}
		fmt.Printf("History (24h): %d succeeded, %d failed\n", ok, failed)

		count, _ := db.Count()
		fmt.Printf("DB rows:      %d total\n", count)
		fmt.Printf("DB path:      %s\n", cfg.DBPath())
		return nil
	},
}

func init() {
	statusCmd.Flags().String("addr", "", "daemon status address (default from http.listen)")
	rootCmd.AddCommand(statusCmd)
}

func fetchStatus(addr string) (engine.Status, error) {
	var st engine.Status

	url := addr
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url = strings.TrimSuffix(url, "/") + "/status"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

func printStatus(st engine.Status) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	state := gray("○ " + st.State)
	if st.IsRunning {
		state = green("● " + st.State)
	}
	fmt.Printf("Daemon:       %s, up %s\n", state, formatDuration(st.Metrics.SystemUptime))

	m := st.Metrics
	fmt.Printf("Operations:   %d total, %s, %s\n",
		m.TotalOperations,
		green(fmt.Sprintf("%d succeeded", m.SuccessfulOperations)),
		red(fmt.Sprintf("%d failed", m.FailedOperations)),
	)

	mem := format.Budget(m.MemoryUsageMB, st.MaxMemoryMB)
	if st.MemoryPressure {
		mem = yellow(mem + " (over budget, cache shed)")
	}
	cpu := fmt.Sprintf("%.1f%%", m.CPUUsagePercent)
	if st.MaxCPUPercent > 0 {
		cpu += fmt.Sprintf(" / %.0f%%", st.MaxCPUPercent)
	}
	if st.CPUPressure {
		cpu = yellow(cpu + " (over budget, concurrency reduced)")
	}
	fmt.Printf("Memory:       %s\n", mem)
	fmt.Printf("CPU:          %s\n", cpu)
	if st.HostMemoryPSI >= 0 {
		fmt.Printf("Host PSI:     memory some avg10=%.1f%%\n", st.HostMemoryPSI)
	}

	fmt.Printf("Concurrency:  %d/%d active (max %d)\n", len(st.ActiveTasks), st.ConcurrencyLimit, st.MaxConcurrentTasks)
	fmt.Printf("Cache:        %d entries, %d hits, %d misses\n", st.CacheEntries, st.Cache.Hits, st.Cache.Misses)
	if !st.LastTick.IsZero() {
		fmt.Printf("Last scan:    %s ago (%d scans, %d deferred)\n",
			formatDuration(time.Since(st.LastTick)), st.Ticks, st.Deferred)
	}

	kinds := make([]string, len(st.RegisteredKinds))
	for i, k := range st.RegisteredKinds {
		kinds[i] = string(k)
	}
	if len(kinds) == 0 {
		kinds = []string{gray("none")}
	}
	fmt.Printf("Remediations: %s\n", strings.Join(kinds, ", "))

	for _, t := range st.ActiveTasks {
		fmt.Printf("  %s %-20s %s (%s)\n", yellow("▶"), t.Kind, firstLine(t.Signal),
			formatDuration(time.Since(t.StartedAt)))
	}
}
