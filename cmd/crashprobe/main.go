// Crashprobe diagnoses crashed embedded targets and talks to running ones.
//
// Offline, it decodes a Zephyr "#CD:" coredump captured in a log, resolves
// the crash site against the firmware ELF, and prints a call chain. Online,
// it reaches the target's SEGGER RTT buffers through the OpenOCD Tcl server
// for reading, writing, monitoring, and boot validation.
//
// Prerequisites for the rtt and validate-boot commands:
//
//   - OpenOCD running and attached to the target (tcl_port 6666 by default)
//   - Firmware built with RTT enabled
//
// See 'crashprobe --help' for available commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/crashprobe/internal/config"
	"github.com/muurk/crashprobe/internal/logging"
	"github.com/muurk/crashprobe/internal/version"
)

// Global flags
var (
	configPath  string
	logLevel    string
	openocdHost string
	openocdPort int
	opTimeout   time.Duration
)

// cfg is the loaded configuration with flag overrides applied.
var cfg *config.Config

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crashprobe",
	Short: "Embedded crash analysis and RTT toolkit",
	Long: `Crash analysis and RTT access for embedded targets.

Offline:
  - Decode Zephyr coredumps ("#CD:" lines) from a captured log
  - Resolve the crash site and a heuristic call chain against the ELF
  - Convert a coredump into an ELF core file for GDB

Through OpenOCD:
  - List, read and write SEGGER RTT channels
  - Stream an RTT channel to the terminal
  - Validate that firmware booted by waiting for a log pattern

Configuration is read from --config or the default location
(crashprobe config path). Set CRASHPROBE_LOG_LEVEL=debug or pass
--log-level debug to see every probe transaction.`,
	Version:           version.Version,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	Example: `  # Analyze a crash from a UART capture
  crashprobe analyze uart.log --elf build/zephyr/zephyr.elf

  # Wait up to 15s for the boot banner
  crashprobe validate-boot --timeout 15s

  # Follow RTT channel 0
  crashprobe rtt monitor`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.LogLevelEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&openocdHost, "openocd-host", "", "OpenOCD hostname (overrides config)")
	rootCmd.PersistentFlags().IntVar(&openocdPort, "openocd-port", 0, "OpenOCD Tcl port (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&opTimeout, "timeout", 0, "Operation timeout, e.g. 30s (validate-boot: pattern wait)")

	rootCmd.AddCommand(versionCmd)
}

// skipConfigLoad marks commands that must run without a readable config.
const skipConfigLoad = "skip-config-load"

// setup runs before every command: logging first, then configuration.
func setup(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	if cmd.Annotations[skipConfigLoad] != "" {
		return nil
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if openocdHost != "" {
		loaded.OpenOCD.Host = openocdHost
	}
	if openocdPort != 0 {
		loaded.OpenOCD.Port = openocdPort
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crashprobe %s\n", version.Full())
	},
}
