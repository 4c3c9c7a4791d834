package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/crashprobe/internal/coredump"
	"github.com/muurk/crashprobe/internal/crash"
	"github.com/muurk/crashprobe/internal/openocd"
	"github.com/muurk/crashprobe/internal/rtt"
	"github.com/muurk/crashprobe/internal/symbols"
)

const (
	appName    = "crashprobe"
	configFile = "config.yaml"
)

const (
	defaultBootTimeout  = 10 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory.
//   - Linux: $XDG_CONFIG_HOME/crashprobe or $HOME/.config/crashprobe
//   - macOS: $HOME/.config/crashprobe
//   - Windows: %LOCALAPPDATA%\crashprobe
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	ocd := openocd.DefaultConfig()
	ro := rtt.DefaultOptions()

	ranges := make([]ScanRange, 0, len(ro.ScanRanges))
	for _, r := range ro.ScanRanges {
		ranges = append(ranges, ScanRange{Start: Address(r.Start), Size: Address(r.Size)})
	}

	return &Config{
		Version: 1,
		OpenOCD: OpenOCDConfig{
			Host:           ocd.Host,
			Port:           ocd.Port,
			DialTimeout:    ocd.DialTimeout,
			CommandTimeout: ocd.CommandTimeout,
			ChunkSize:      ocd.ChunkSize,
		},
		RTT: RTTConfig{
			ScanRanges:        ranges,
			ScanChunkSize:     ro.ScanChunkSize,
			MaxChannels:       ro.MaxChannels,
			AttachAttempts:    ro.AttachAttempts,
			InitialBackoff:    ro.InitialBackoff,
			MaxBackoff:        ro.MaxBackoff,
			BackoffMultiplier: ro.BackoffMultiplier,
		},
		Boot: BootConfig{
			Pattern:      `\*\*\* Booting Zephyr OS`,
			Channel:      0,
			Timeout:      defaultBootTimeout,
			PollInterval: defaultPollInterval,
		},
		Coredump: CoredumpConfig{
			LineMarker:     coredump.DefaultLineMarker,
			BeginMarker:    coredump.DefaultBeginMarker,
			EndMarker:      coredump.DefaultEndMarker,
			PrefixPatterns: append([]string(nil), coredump.DefaultPrefixPatterns...),
		},
		Analysis: AnalysisConfig{
			MaxDepth: crash.DefaultMaxDepth,
		},
	}
}

// Load reads the configuration. An empty path means the default location,
// where a missing file yields Default(). An explicit path must exist.
// Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Version = 0
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", cfg.Version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# crashprobe configuration
#
# Addresses are hex strings, durations use Go syntax (250ms, 10s).
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// ValidationError names the offending key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Key, e.Reason)
}

// Validate checks every value and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, reason string, args ...any) {
		errs = append(errs, &ValidationError{Key: key, Reason: fmt.Sprintf(reason, args...)})
	}

	if c.OpenOCD.Host == "" {
		bad("openocd.host", "must not be empty")
	}
	if c.OpenOCD.Port < 1 || c.OpenOCD.Port > 65535 {
		bad("openocd.port", "%d is not a valid port", c.OpenOCD.Port)
	}
	if c.OpenOCD.ChunkSize < 1 {
		bad("openocd.chunk_size", "must be positive")
	}
	if c.OpenOCD.DialTimeout <= 0 {
		bad("openocd.dial_timeout", "must be positive")
	}
	if c.OpenOCD.CommandTimeout <= 0 {
		bad("openocd.command_timeout", "must be positive")
	}

	if len(c.RTT.ScanRanges) == 0 {
		bad("rtt.scan_ranges", "at least one range is required")
	}
	for i, r := range c.RTT.ScanRanges {
		if r.Size == 0 {
			bad(fmt.Sprintf("rtt.scan_ranges[%d].size", i), "must be nonzero")
		}
	}
	if c.RTT.ScanChunkSize <= len(rtt.Magic) {
		bad("rtt.scan_chunk_size", "must be larger than %d", len(rtt.Magic))
	}
	if c.RTT.MaxChannels < 1 {
		bad("rtt.max_channels", "must be positive")
	}
	if c.RTT.AttachAttempts < 1 {
		bad("rtt.attach_attempts", "must be at least 1")
	}
	if c.RTT.InitialBackoff <= 0 {
		bad("rtt.initial_backoff", "must be positive")
	}
	if c.RTT.MaxBackoff < c.RTT.InitialBackoff {
		bad("rtt.max_backoff", "must not be below initial_backoff")
	}
	if c.RTT.BackoffMultiplier < 1 {
		bad("rtt.backoff_multiplier", "must be at least 1")
	}

	if _, err := regexp.Compile(c.Boot.Pattern); err != nil {
		bad("boot.pattern", "%v", err)
	}
	if c.Boot.Channel < 0 {
		bad("boot.channel", "must not be negative")
	}
	if c.Boot.Timeout <= 0 {
		bad("boot.timeout", "must be positive")
	}
	if c.Boot.PollInterval <= 0 {
		bad("boot.poll_interval", "must be positive")
	}

	if c.Coredump.LineMarker == "" {
		bad("coredump.line_marker", "must not be empty")
	}
	if c.Coredump.BeginMarker == "" || c.Coredump.EndMarker == "" {
		bad("coredump.begin_marker", "begin and end markers must not be empty")
	}
	for i, p := range c.Coredump.PrefixPatterns {
		if _, err := regexp.Compile(p); err != nil {
			bad(fmt.Sprintf("coredump.prefix_patterns[%d]", i), "%v", err)
		}
	}

	if c.Analysis.MaxDepth < 1 {
		bad("analysis.max_depth", "must be positive")
	}
	for i, r := range c.Analysis.CodeRanges {
		if r.End <= r.Start {
			bad(fmt.Sprintf("analysis.code_ranges[%d]", i), "end must be above start")
		}
	}

	return errors.Join(errs...)
}

// OpenOCDConfig returns the OpenOCD client settings.
func (c *Config) OpenOCDConfig() openocd.Config {
	return openocd.Config{
		Host:           c.OpenOCD.Host,
		Port:           c.OpenOCD.Port,
		DialTimeout:    c.OpenOCD.DialTimeout,
		CommandTimeout: c.OpenOCD.CommandTimeout,
		ChunkSize:      c.OpenOCD.ChunkSize,
	}
}

// RTTOptions returns the control block discovery settings.
func (c *Config) RTTOptions() rtt.Options {
	ranges := make([]rtt.ScanRange, 0, len(c.RTT.ScanRanges))
	for _, r := range c.RTT.ScanRanges {
		ranges = append(ranges, rtt.ScanRange{Start: uint64(r.Start), Size: uint64(r.Size)})
	}
	return rtt.Options{
		ScanRanges:        ranges,
		ScanChunkSize:     c.RTT.ScanChunkSize,
		MaxChannels:       c.RTT.MaxChannels,
		AttachAttempts:    c.RTT.AttachAttempts,
		InitialBackoff:    c.RTT.InitialBackoff,
		MaxBackoff:        c.RTT.MaxBackoff,
		BackoffMultiplier: c.RTT.BackoffMultiplier,
	}
}

// PollOptions returns the boot validation loop bounds.
func (c *Config) PollOptions() rtt.PollOptions {
	return rtt.PollOptions{
		Timeout:  c.Boot.Timeout,
		Interval: c.Boot.PollInterval,
		MaxChunk: c.Boot.MaxChunk,
	}
}

// BootPattern compiles the boot validation pattern.
func (c *Config) BootPattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Boot.Pattern)
	if err != nil {
		return nil, &ValidationError{Key: "boot.pattern", Reason: err.Error()}
	}
	return re, nil
}

// ExtractOptions returns the coredump log extraction settings.
func (c *Config) ExtractOptions() (coredump.ExtractOptions, error) {
	prefixes, err := coredump.CompilePrefixes(c.Coredump.PrefixPatterns)
	if err != nil {
		return coredump.ExtractOptions{}, &ValidationError{Key: "coredump.prefix_patterns", Reason: err.Error()}
	}
	return coredump.ExtractOptions{
		LineMarker:  c.Coredump.LineMarker,
		BeginMarker: c.Coredump.BeginMarker,
		EndMarker:   c.Coredump.EndMarker,
		Prefixes:    prefixes,
	}, nil
}

// CrashOptions returns the analysis settings.
func (c *Config) CrashOptions() (crash.Options, error) {
	extract, err := c.ExtractOptions()
	if err != nil {
		return crash.Options{}, err
	}

	var code []symbols.Range
	for _, r := range c.Analysis.CodeRanges {
		code = append(code, symbols.Range{Start: uint64(r.Start), End: uint64(r.End)})
	}

	opts := crash.DefaultOptions()
	opts.Extract = extract
	opts.CodeRanges = code
	opts.Walk.MaxDepth = c.Analysis.MaxDepth
	return opts, nil
}
