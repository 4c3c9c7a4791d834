// Package config loads crashprobe's YAML configuration file.
//
// The file holds tuning knobs that rarely change between runs: where
// OpenOCD listens, where the RTT control block lives, how hard to retry
// while a target boots, which log decorations surround a coredump, and how
// deep the stack scan goes. Every value has a default, so the file is
// optional.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/crashprobe/config.yaml or $HOME/.config/crashprobe/config.yaml
//   - macOS: $HOME/.config/crashprobe/config.yaml
//   - Windows: %LOCALAPPDATA%\crashprobe\config.yaml
//
// A path given with --config overrides the default location and must exist.
//
// # Format
//
//	version: 1
//	openocd:
//	  host: localhost
//	  port: 6666
//	rtt:
//	  control_block: "0x20000400"
//	  scan_ranges:
//	    - start: "0x20000000"
//	      size: "0x10000"
//	  attach_attempts: 8
//	  initial_backoff: 250ms
//	boot:
//	  pattern: "Booting Zephyr"
//	  timeout: 10s
//	analysis:
//	  max_depth: 16
//
// Addresses are hex strings so they read the way they appear in a map file.
// Durations use Go duration syntax.
//
// The Config converts itself into the option structs of the packages that
// consume it (RTTOptions, PollOptions, ExtractOptions, CrashOptions,
// OpenOCDConfig), so the CLI never copies fields by hand.
package config
