package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/crashprobe/internal/rtt"
	"github.com/muurk/crashprobe/internal/ui"
)

var (
	bootPattern string
	bootChannel int
	bootTail    int
)

var validateBootCmd = &cobra.Command{
	Use:   "validate-boot",
	Short: "Wait for a boot message on an RTT channel",
	Long: `Attach to RTT and poll an up channel until its output matches a
regular expression or the timeout expires.

Exits non-zero when the pattern is not seen, so it can gate a flash-and-test
pipeline. Whatever was captured is shown either way.`,
	Example: `  crashprobe validate-boot
  crashprobe validate-boot --pattern "app: ready" --timeout 20s --elf zephyr.elf`,
	Args: cobra.NoArgs,
	RunE: runValidateBoot,
}

func init() {
	validateBootCmd.Flags().StringVarP(&bootPattern, "pattern", "p", "", "Regular expression to wait for (default: boot.pattern)")
	validateBootCmd.Flags().IntVarP(&bootChannel, "channel", "c", -1, "Up channel (default: boot.channel)")
	validateBootCmd.Flags().StringVar(&rttControlBlock, "control-block", "", "Control block address, e.g. 0x20000400")
	validateBootCmd.Flags().StringVar(&rttELF, "elf", "", "Firmware ELF to look up _SEGGER_RTT in")
	validateBootCmd.Flags().IntVar(&bootTail, "tail", 20, "Captured lines to show")

	rootCmd.AddCommand(validateBootCmd)
}

func runValidateBoot(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if bootPattern != "" {
		cfg.Boot.Pattern = bootPattern
	}
	if bootChannel >= 0 {
		cfg.Boot.Channel = bootChannel
	}
	if opTimeout > 0 {
		cfg.Boot.Timeout = opTimeout
	}

	pattern, err := cfg.BootPattern()
	if err != nil {
		return err
	}
	opts := cfg.PollOptions()

	// Attach retries and the wait share one budget on top of the pattern
	// timeout, so a hung probe still ends the command.
	ctx, cancel := probeContext(opts.Timeout + defaultOpTimeout)
	defer cancel()

	width := ui.GetTerminalWidth()
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Boot Validation",
		Command: "crashprobe validate-boot",
		Params: []ui.Param{
			{Key: "OpenOCD", Value: openocdEndpoint()},
			{Key: "Channel", Value: fmt.Sprintf("up %d", cfg.Boot.Channel)},
			{Key: "Pattern", Value: pattern.String()},
			{Key: "Timeout", Value: opts.Timeout.String()},
		},
		Steps:           []string{"Connect to OpenOCD", "Attach to RTT control block", "Wait for boot pattern"},
		Troubleshooting: probeTroubleshooting,
	})

	_, err = runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Param, error) {
		s, err := openSession(ctx, onStep)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		onStep(3, ui.StepRunning, "")
		if ui.IsTerminal() {
			bar := ui.NewWaitBar("Waiting", opts.Timeout, width)
			opts.Progress = func(elapsed time.Duration, captured int) {
				fmt.Fprint(os.Stdout, bar.Render(elapsed, captured)+"\r")
			}
		}

		capture, err := s.transport.WaitForPattern(ctx, cfg.Boot.Channel, pattern, opts)
		if opts.Progress != nil {
			fmt.Fprintln(os.Stdout)
		}
		fmt.Println(ui.NewCaptureBox(fmt.Sprintf("Channel %d output", cfg.Boot.Channel), []byte(capture.Output)).
			SetWidth(width).
			SetMaxLines(bootTail).
			Render())

		if err != nil {
			onStep(3, ui.StepFailed, "")
			return nil, err
		}
		if !capture.Matched {
			onStep(3, ui.StepFailed, "timed out")
			return nil, bootTimeoutError(capture)
		}
		onStep(3, ui.StepComplete, capture.Elapsed.Round(time.Millisecond).String())

		return []ui.Param{
			{Key: "Matched", Value: capture.Match},
			{Key: "Captured", Value: fmt.Sprintf("%d bytes", len(capture.Output))},
		}, nil
	})
	return err
}

func bootTimeoutError(c rtt.Capture) error {
	return fmt.Errorf("boot pattern not seen within %s (%d bytes captured)",
		c.Elapsed.Round(time.Millisecond), len(c.Output))
}
