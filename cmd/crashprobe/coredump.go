package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/crashprobe/internal/coredump"
	"github.com/muurk/crashprobe/internal/ui"
)

var convertOutput string

var coredumpCmd = &cobra.Command{
	Use:   "coredump",
	Short: "Inspect and convert coredumps",
}

var coredumpShowCmd = &cobra.Command{
	Use:   "show LOG",
	Short: "Print the decoded coredump structure",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoredumpShow,
}

var coredumpConvertCmd = &cobra.Command{
	Use:   "convert LOG",
	Short: "Write the coredump as an ELF core file",
	Long: `Decode the last coredump in LOG and write it as an ARM ELF core file.

The core holds one NT_PRSTATUS note with the exception registers and one
PT_LOAD segment per captured memory region, so it can be opened with:

  arm-none-eabi-gdb zephyr.elf core.elf`,
	Example: `  crashprobe coredump convert uart.log --output core.elf`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCoredumpConvert,
}

func init() {
	coredumpConvertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output core file (required)")
	_ = coredumpConvertCmd.MarkFlagRequired("output")

	coredumpCmd.AddCommand(coredumpShowCmd)
	coredumpCmd.AddCommand(coredumpConvertCmd)
	rootCmd.AddCommand(coredumpCmd)
}

func parseLogFile(path string) (*coredump.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	opts, err := cfg.ExtractOptions()
	if err != nil {
		return nil, err
	}
	return coredump.ParseLog(string(data), opts)
}

func runCoredumpShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	rec, err := parseLogFile(args[0])
	if err != nil {
		return err
	}
	fmt.Println(rec.String())
	return nil
}

func runCoredumpConvert(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	rec, err := parseLogFile(args[0])
	if err != nil {
		ui.PrintFailure("Coredump conversion failed", err, []string{
			"Check that the log holds a complete #CD:BEGIN# ... #CD:END# block",
		})
		return err
	}

	var buf bytes.Buffer
	if err := coredump.WriteELF(&buf, rec); err != nil {
		return err
	}
	if err := os.WriteFile(convertOutput, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write core file: %w", err)
	}

	ui.PrintSuccess("ELF core written",
		ui.Param{Key: "Output", Value: convertOutput},
		ui.Param{Key: "Reason", Value: rec.Reason.String()},
		ui.Param{Key: "Memory regions", Value: fmt.Sprintf("%d (%d bytes)", len(rec.Regions), rec.MemoryBytes())},
		ui.Param{Key: "Size", Value: fmt.Sprintf("%d bytes", buf.Len())},
	)
	return nil
}
