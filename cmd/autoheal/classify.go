package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [line...]",
	Short: "Classify log lines without remediating",
	Long: `Run log lines through the configured pattern table and show the fault
kind and the remediation that would run. Lines are read from the
arguments, or from stdin when none are given.

Examples:
  autoheal classify "Error: connect ECONNREFUSED 127.0.0.1:5432"
  tail -n 100 /var/log/app.log | autoheal classify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging("error", false)

		cls, err := cfg.Classifier()
		if err != nil {
			return err
		}
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}

		lines := args
		if len(lines) == 0 {
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if l := strings.TrimSpace(scanner.Text()); l != "" {
					lines = append(lines, l)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		matched := 0
		for _, line := range lines {
			c := cls.Classify(line)
			if c.IsUnknown() {
				fmt.Printf("%s  %s\n", gray(fmt.Sprintf("%-20s", "unknown")), line)
				continue
			}
			matched++

			action := yellow("no remediation")
			if _, ok := registry.Lookup(c.Kind); ok {
				action = green("remediation registered")
			}
			fmt.Printf("%-20s  %s\n", string(c.Kind), line)
			fmt.Printf("%-20s  %s (confidence %.1f)\n", "", action, c.Confidence)
		}

		fmt.Printf("\n%d of %d line(s) matched a fault pattern\n", matched, len(lines))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
