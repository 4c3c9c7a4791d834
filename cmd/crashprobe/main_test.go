package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/crashprobe/internal/config"
	"github.com/muurk/crashprobe/internal/coredump"
)

// execute runs the root command with args after resetting flag state.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CRASHPROBE_LOG_LEVEL", "")

	configPath, logLevel, openocdHost, openocdPort, opTimeout = "", "", "", 0, 0
	convertOutput, configForce = "", false
	cfg = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSetupAppliesOverrides(t *testing.T) {
	if err := execute(t, "--openocd-host", "probe.lan", "--openocd-port", "7000", "config", "show"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if cfg.OpenOCD.Host != "probe.lan" || cfg.OpenOCD.Port != 7000 {
		t.Errorf("OpenOCD = %+v, want probe.lan:7000", cfg.OpenOCD)
	}
}

func TestSetupRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("version: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := execute(t, "--config", path, "config", "show")
	if err == nil || !strings.Contains(err.Error(), "unsupported config version") {
		t.Errorf("Execute() error = %v, want version error", err)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := execute(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.OpenOCD.Port != config.Default().OpenOCD.Port {
		t.Errorf("written config port = %d", loaded.OpenOCD.Port)
	}

	if err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Error("second config init without --force succeeded")
	}
}

func TestCoredumpConvert(t *testing.T) {
	regs, err := coredump.NewRegisterSet(1,
		0, 0, 0, 0, 0, // R0-R3, R12
		0x08000f01, // LR
		0x08001234, // PC
		0x61000000, // xPSR
		0x20000000, // SP
	)
	if err != nil {
		t.Fatal(err)
	}
	rec := &coredump.Record{
		Header:  coredump.Header{Version: 2, TargetCode: coredump.TargetCortexM, PointerBits: 5},
		Arch:    &coredump.ArchBlock{Version: 1, Registers: regs},
		Regions: []coredump.MemoryRegion{{Version: 1, Start: 0x20000000, Data: []byte{1, 2, 3, 4}}},
	}
	data, err := coredump.Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	dir := t.TempDir()
	logPath := filepath.Join(dir, "uart.log")
	if err := os.WriteFile(logPath, []byte("boot\n"+coredump.EncodeLog(data, 32)+"done\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	corePath := filepath.Join(dir, "core.elf")

	if err := execute(t, "coredump", "convert", logPath, "--output", corePath); err != nil {
		t.Fatalf("coredump convert error = %v", err)
	}
	core, err := os.ReadFile(corePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(core, []byte("\x7fELF")) {
		t.Errorf("core file starts with %q", core[:4])
	}
}

func TestControlBlockHint(t *testing.T) {
	cfg = config.Default()
	cfg.RTT.ControlBlock = 0x20000400
	defer func() { rttControlBlock, rttELF = "", "" }()

	rttControlBlock, rttELF = "", ""
	if got, err := controlBlockHint(nil); err != nil || got != 0x20000400 {
		t.Errorf("controlBlockHint() from config = %#x, %v", got, err)
	}

	rttControlBlock = "0x20008000"
	if got, err := controlBlockHint(nil); err != nil || got != 0x20008000 {
		t.Errorf("controlBlockHint() from flag = %#x, %v", got, err)
	}

	rttControlBlock = "nope"
	if _, err := controlBlockHint(nil); err == nil {
		t.Error("controlBlockHint() accepted a bad address")
	}
}
