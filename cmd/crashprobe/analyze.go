package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/crashprobe/internal/crash"
	"github.com/muurk/crashprobe/internal/logging"
	"github.com/muurk/crashprobe/internal/ui"
)

var (
	analyzeELF   string
	analyzeJSON  bool
	analyzePlain bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze LOG",
	Short: "Analyze a coredump captured in a log",
	Long: `Find the last complete "#CD:" coredump in LOG, decode it, and resolve
the crash site against the firmware ELF.

The report shows the fault reason, the faulting PC and caller (LR) with
symbols, the registers, and a call chain. Frames after the crash site come
from a heuristic stack scan and can include stale return addresses.

Use "-" as LOG to read standard input.`,
	Example: `  crashprobe analyze uart.log --elf build/zephyr/zephyr.elf
  crashprobe analyze uart.log --elf zephyr.elf --json | jq .call_chain
  cat uart.log | crashprobe analyze - --elf zephyr.elf`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeELF, "elf", "", "Firmware ELF with symbols (required)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzePlain, "plain", false, "Print the report as plain text")
	_ = analyzeCmd.MarkFlagRequired("elf")
	analyzeCmd.MarkFlagsMutuallyExclusive("json", "plain")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	opts, err := cfg.CrashOptions()
	if err != nil {
		return err
	}
	opts.Logger = logging.GetLogger()

	var report *crash.Report
	if args[0] == "-" {
		data, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			return fmt.Errorf("failed to read standard input: %w", rerr)
		}
		report, err = crash.Analyze(string(data), analyzeELF, opts)
	} else {
		report, err = crash.AnalyzeFile(args[0], analyzeELF, opts)
	}
	if err != nil {
		if !analyzeJSON {
			ui.PrintFailure("Crash analysis failed", err, []string{
				"Check that the log holds a complete #CD:BEGIN# ... #CD:END# block",
				"Log prefixes other than timestamps and levels need coredump.prefix_patterns",
				"The ELF must be the exact build that crashed",
			})
		}
		return err
	}

	switch {
	case analyzeJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case analyzePlain || !ui.IsTerminal():
		return crash.Render(os.Stdout, report)
	default:
		return ui.RenderOnce(os.Stdout, ui.RenderReport(report, ui.GetTerminalWidth()))
	}
}
