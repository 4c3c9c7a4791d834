package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/crashprobe/internal/console"
	"github.com/muurk/crashprobe/internal/rtt"
	"github.com/muurk/crashprobe/internal/ui"
)

var (
	readMax         int
	writeNewline    bool
	monitorInterval time.Duration
	consoleDown     int
	consoleNoEcho   bool
)

var rttCmd = &cobra.Command{
	Use:   "rtt",
	Short: "Access SEGGER RTT channels through OpenOCD",
	Long: `Locate the SEGGER RTT control block in target RAM and use its channels.

The control block address comes from --control-block, the _SEGGER_RTT
symbol in --elf, or rtt.control_block in the config file. Without any of
these the configured RAM ranges are scanned for the "SEGGER RTT" ID.`,
}

var rttChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List configured RTT channels",
	Args:  cobra.NoArgs,
	RunE:  runRTTChannels,
}

var rttReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read pending bytes from an up channel",
	Long: `Read the bytes waiting in an up (target to host) channel and write
them to standard output unchanged. Returns immediately; nothing pending
prints nothing.`,
	Example: `  crashprobe rtt read --channel 0 --max 4096 > pending.log`,
	Args:    cobra.NoArgs,
	RunE:    runRTTRead,
}

var rttWriteCmd = &cobra.Command{
	Use:   "write DATA...",
	Short: "Write to a down channel",
	Long: `Write DATA (arguments joined by spaces) to a down (host to target)
channel. Only as many bytes as fit in the ring buffer are written; the
count is reported.`,
	Example: `  crashprobe rtt write --newline kernel threads`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRTTWrite,
}

var rttMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream an up channel to the terminal",
	Long: `Poll an up channel and copy everything it produces to standard output
until Ctrl+C, or until --timeout when set.`,
	Args: cobra.NoArgs,
	RunE: runRTTMonitor,
}

var rttConsoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive terminal on an RTT channel pair",
	Long: `Open a full-screen terminal: output from the up channel scrolls in the
top pane and each line typed below is sent to the down channel.

Esc or Ctrl+C quits.`,
	Example: `  # Zephyr shell over RTT
  crashprobe rtt console --elf build/zephyr/zephyr.elf`,
	Args: cobra.NoArgs,
	RunE: runRTTConsole,
}

func init() {
	rttCmd.PersistentFlags().IntVarP(&rttChannel, "channel", "c", 0, "Channel index")
	rttCmd.PersistentFlags().StringVar(&rttControlBlock, "control-block", "", "Control block address, e.g. 0x20000400")
	rttCmd.PersistentFlags().StringVar(&rttELF, "elf", "", "Firmware ELF to look up _SEGGER_RTT in")

	rttReadCmd.Flags().IntVar(&readMax, "max", 0, "Maximum bytes to read (0: all pending)")
	rttWriteCmd.Flags().BoolVarP(&writeNewline, "newline", "n", false, "Append a newline")
	rttMonitorCmd.Flags().DurationVar(&monitorInterval, "interval", 50*time.Millisecond, "Poll interval")
	rttConsoleCmd.Flags().DurationVar(&monitorInterval, "interval", 50*time.Millisecond, "Poll interval")
	rttConsoleCmd.Flags().IntVar(&consoleDown, "down", -1, "Down channel (default: same index as --channel)")
	rttConsoleCmd.Flags().BoolVar(&consoleNoEcho, "no-echo", false, "Do not show sent lines")

	rttCmd.AddCommand(rttChannelsCmd)
	rttCmd.AddCommand(rttReadCmd)
	rttCmd.AddCommand(rttWriteCmd)
	rttCmd.AddCommand(rttMonitorCmd)
	rttCmd.AddCommand(rttConsoleCmd)
	rootCmd.AddCommand(rttCmd)
}

func oneShotTimeout() time.Duration {
	if opTimeout > 0 {
		return opTimeout
	}
	return defaultOpTimeout
}

func runRTTChannels(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := probeContext(oneShotTimeout())
	defer cancel()

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:           "RTT Channels",
		Command:         "crashprobe rtt channels",
		Params:          []ui.Param{{Key: "OpenOCD", Value: openocdEndpoint()}},
		Steps:           []string{"Connect to OpenOCD", "Attach to RTT control block", "Read channel descriptors"},
		Troubleshooting: probeTroubleshooting,
	})

	_, err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Param, error) {
		s, err := openSession(ctx, onStep)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		channels, err := s.transport.ListChannels()
		if err != nil {
			onStep(3, ui.StepFailed, "")
			return nil, err
		}
		onStep(3, ui.StepComplete, fmt.Sprintf("%d configured", len(channels)))

		details := make([]ui.Param, 0, len(channels))
		for _, ch := range channels {
			name := ch.Name
			if name == "" {
				name = "(unnamed)"
			}
			details = append(details, ui.Param{
				Key:   fmt.Sprintf("%s %d", ch.Direction, ch.Index),
				Value: fmt.Sprintf("%-12s %6d B  %s", name, ch.Size, ch.Mode),
			})
		}
		return details, nil
	})
	return err
}

func runRTTRead(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := probeContext(oneShotTimeout())
	defer cancel()

	s, err := openSession(ctx, quietSteps)
	if err != nil {
		return err
	}
	defer s.Close()

	data, err := s.transport.Read(ctx, rttChannel, readMax)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runRTTWrite(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data := strings.Join(args, " ")
	if writeNewline {
		data += "\n"
	}

	ctx, cancel := probeContext(oneShotTimeout())
	defer cancel()

	s, err := openSession(ctx, quietSteps)
	if err != nil {
		ui.PrintFailure("RTT write failed", err, probeTroubleshooting)
		return err
	}
	defer s.Close()

	n, err := s.transport.Write(ctx, rttChannel, []byte(data))
	if err != nil {
		ui.PrintFailure("RTT write failed", err, probeTroubleshooting)
		return err
	}

	details := []ui.Param{
		{Key: "Channel", Value: fmt.Sprintf("down %d", rttChannel)},
		{Key: "Written", Value: fmt.Sprintf("%d of %d bytes", n, len(data))},
	}
	if n < len(data) {
		ui.PrintWarning("Down buffer full, write truncated", details...)
		return nil
	}
	ui.PrintSuccess("RTT write complete", details...)
	return nil
}

func runRTTMonitor(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, cancel := probeContext(opTimeout)
	defer cancel()

	s, err := openSession(ctx, quietSteps)
	if err != nil {
		ui.PrintFailure("RTT monitor failed", err, probeTroubleshooting)
		return err
	}
	defer s.Close()

	channels, err := s.transport.ListChannels()
	if err != nil {
		return err
	}
	name := ""
	for _, ch := range channels {
		if ch.Direction == rtt.Up && ch.Index == rttChannel {
			name = ch.Name
		}
	}

	if ui.IsTerminal() {
		ui.PrintCommandHeader("RTT Monitor", "crashprobe rtt monitor",
			ui.Param{Key: "OpenOCD", Value: openocdEndpoint()},
			ui.Param{Key: "Control block", Value: fmt.Sprintf("0x%08x", s.transport.ControlBlockAddress())},
			ui.Param{Key: "Channel", Value: fmt.Sprintf("up %d %s", rttChannel, name)},
			ui.Param{Key: "Stop", Value: "Ctrl+C"},
		)
	}

	return s.transport.Stream(ctx, rttChannel, os.Stdout, monitorInterval)
}

func runRTTConsole(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if !ui.IsTerminal() {
		return fmt.Errorf("rtt console needs a terminal; use rtt monitor for pipes")
	}

	ctx, cancel := probeContext(opTimeout)
	defer cancel()

	s, err := openSession(ctx, quietSteps)
	if err != nil {
		ui.PrintFailure("RTT console failed", err, probeTroubleshooting)
		return err
	}
	defer s.Close()

	down := consoleDown
	if down < 0 {
		down = rttChannel
	}
	return console.Run(ctx, s.transport, console.Config{
		Title:    fmt.Sprintf("%s  cb 0x%08x", openocdEndpoint(), s.transport.ControlBlockAddress()),
		Up:       rttChannel,
		Down:     down,
		Interval: monitorInterval,
		NoEcho:   consoleNoEcho,
	})
}
