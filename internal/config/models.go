package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Address is a target address written as a hex string in YAML.
type Address uint64

// ParseAddress parses a hex ("0x20000400") or decimal address. An empty
// string is address zero.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseAddress(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a Address) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

func (a Address) String() string {
	return fmt.Sprintf("0x%08x", uint64(a))
}

// Config represents the entire configuration file.
type Config struct {
	Version  int            `yaml:"version"`
	OpenOCD  OpenOCDConfig  `yaml:"openocd"`
	RTT      RTTConfig      `yaml:"rtt"`
	Boot     BootConfig     `yaml:"boot"`
	Coredump CoredumpConfig `yaml:"coredump"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// OpenOCDConfig is the OpenOCD Tcl server endpoint.
type OpenOCDConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
}

// ScanRange is a RAM range searched for the RTT control block.
type ScanRange struct {
	Start Address `yaml:"start"`
	Size  Address `yaml:"size"`
}

// RTTConfig tunes control block discovery.
type RTTConfig struct {
	ControlBlock      Address       `yaml:"control_block,omitempty"` // Known control block address, 0 to scan
	ScanRanges        []ScanRange   `yaml:"scan_ranges"`
	ScanChunkSize     int           `yaml:"scan_chunk_size"`
	MaxChannels       int           `yaml:"max_channels"`
	AttachAttempts    int           `yaml:"attach_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// BootConfig is the boot validation default.
type BootConfig struct {
	Pattern      string        `yaml:"pattern"`
	Channel      int           `yaml:"channel"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxChunk     int           `yaml:"max_chunk"`
}

// CoredumpConfig describes how dumps appear in logs.
type CoredumpConfig struct {
	LineMarker     string   `yaml:"line_marker"`
	BeginMarker    string   `yaml:"begin_marker"`
	EndMarker      string   `yaml:"end_marker"`
	PrefixPatterns []string `yaml:"prefix_patterns"`
}

// CodeRange is an executable address range [Start, End).
type CodeRange struct {
	Start Address `yaml:"start"`
	End   Address `yaml:"end"`
}

// AnalysisConfig tunes crash report building.
type AnalysisConfig struct {
	MaxDepth   int         `yaml:"max_depth"`
	CodeRanges []CodeRange `yaml:"code_ranges,omitempty"` // Overrides the ELF's executable sections
}
