package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/muurk/crashprobe/internal/rtt"
	"github.com/muurk/crashprobe/internal/symbols"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if filepath.Base(configDir) != "crashprobe" {
		t.Errorf("GetConfigDir() = %v, should end in crashprobe", configDir)
	}
	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "crashprobe") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME/crashprobe", configDir)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.OpenOCD.Port != 6666 {
		t.Errorf("OpenOCD.Port = %d, want 6666", cfg.OpenOCD.Port)
	}
	if cfg.RTT.AttachAttempts != 8 || cfg.RTT.InitialBackoff != 250*time.Millisecond {
		t.Errorf("RTT retry = %d/%v, want 8/250ms", cfg.RTT.AttachAttempts, cfg.RTT.InitialBackoff)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
version: 1
openocd:
  host: probe-host
  port: 7777
rtt:
  control_block: "0x20000400"
  scan_ranges:
    - start: "0x20010000"
      size: "0x8000"
  attach_attempts: 3
  initial_backoff: 100ms
  max_backoff: 1s
boot:
  pattern: "app: ready"
  timeout: 30s
analysis:
  max_depth: 4
  code_ranges:
    - start: "0x08000000"
      end: "0x08040000"
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.OpenOCD.Host != "probe-host" || cfg.OpenOCD.Port != 7777 {
		t.Errorf("OpenOCD = %+v", cfg.OpenOCD)
	}
	if cfg.OpenOCD.ChunkSize != 1024 {
		t.Errorf("unset openocd.chunk_size = %d, want default 1024", cfg.OpenOCD.ChunkSize)
	}
	if cfg.RTT.ControlBlock != 0x20000400 {
		t.Errorf("RTT.ControlBlock = %v", cfg.RTT.ControlBlock)
	}

	ro := cfg.RTTOptions()
	if diff := cmp.Diff([]rtt.ScanRange{{Start: 0x20010000, Size: 0x8000}}, ro.ScanRanges); diff != "" {
		t.Errorf("RTTOptions().ScanRanges mismatch (-want +got):\n%s", diff)
	}
	if ro.AttachAttempts != 3 || ro.InitialBackoff != 100*time.Millisecond || ro.MaxBackoff != time.Second {
		t.Errorf("RTTOptions() retry = %+v", ro)
	}

	po := cfg.PollOptions()
	if po.Timeout != 30*time.Second || po.Interval != 50*time.Millisecond {
		t.Errorf("PollOptions() = %+v", po)
	}
	re, err := cfg.BootPattern()
	if err != nil || !re.MatchString("x app: ready") {
		t.Errorf("BootPattern() = %v, %v", re, err)
	}

	co, err := cfg.CrashOptions()
	if err != nil {
		t.Fatalf("CrashOptions() error = %v", err)
	}
	if co.Walk.MaxDepth != 4 {
		t.Errorf("CrashOptions().Walk.MaxDepth = %d, want 4", co.Walk.MaxDepth)
	}
	if diff := cmp.Diff([]symbols.Range{{Start: 0x08000000, End: 0x08040000}}, co.CodeRanges); diff != "" {
		t.Errorf("CrashOptions().CodeRanges mismatch (-want +got):\n%s", diff)
	}
	if len(co.Extract.Prefixes) == 0 || co.Extract.BeginMarker != "#CD:BEGIN#" {
		t.Errorf("CrashOptions().Extract = %+v", co.Extract)
	}

	oc := cfg.OpenOCDConfig()
	if oc.Host != "probe-host" || oc.Port != 7777 {
		t.Errorf("OpenOCDConfig() = %+v", oc)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
		wantMsg string
	}{
		{"missing version", "openocd:\n  port: 1\n", "", "unsupported config version: 0"},
		{"future version", "version: 2\n", "", "unsupported config version: 2"},
		{"bad address", "version: 1\nrtt:\n  control_block: \"0xZZ\"\n", "", "invalid address"},
		{"bad duration", "version: 1\nboot:\n  timeout: soon\n", "", "failed to parse"},
		{"bad port", "version: 1\nopenocd:\n  port: 70000\n", "openocd.port", ""},
		{"bad regex", "version: 1\nboot:\n  pattern: \"(\"\n", "boot.pattern", ""},
		{"backoff inverted", "version: 1\nrtt:\n  initial_backoff: 5s\n  max_backoff: 1s\n", "rtt.max_backoff", ""},
		{"empty scan range", "version: 1\nrtt:\n  scan_ranges:\n    - start: \"0x20000000\"\n", "rtt.scan_ranges[0].size", ""},
		{"inverted code range", "version: 1\nanalysis:\n  code_ranges:\n    - start: \"0x2000\"\n      end: \"0x1000\"\n", "analysis.code_ranges[0]", ""},
		{"bad prefix", "version: 1\ncoredump:\n  prefix_patterns: [\"[\"]\n", "coredump.prefix_patterns[0]", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantMsg)
			}
			if tt.wantKey != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("Parse() error = %v, want *ValidationError", err)
				}
				if ve.Key != tt.wantKey {
					t.Errorf("ValidationError.Key = %q, want %q", ve.Key, tt.wantKey)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("LOCALAPPDATA", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") with no file error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() without file mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing explicit) error = %v, want ErrNotExist", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.RTT.ControlBlock = 0x20000400
	cfg.Boot.Pattern = "ready"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `control_block: "0x20000400"`) && !strings.Contains(string(raw), "control_block: 0x20000400") {
		t.Errorf("saved file does not hold hex control block:\n%s", raw)
	}
	if !strings.Contains(string(raw), "initial_backoff: 250ms") {
		t.Errorf("saved file does not hold duration strings:\n%s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"0x20000400", 0x20000400, false},
		{"4096", 4096, false},
		{"", 0, false},
		{"0xgg", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
