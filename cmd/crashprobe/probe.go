package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/crashprobe/internal/config"
	"github.com/muurk/crashprobe/internal/logging"
	"github.com/muurk/crashprobe/internal/openocd"
	"github.com/muurk/crashprobe/internal/rtt"
	"github.com/muurk/crashprobe/internal/symbols"
	"github.com/muurk/crashprobe/internal/ui"
)

// rttSymbol is the control block variable in SEGGER's RTT sources.
const rttSymbol = "_SEGGER_RTT"

const defaultOpTimeout = 30 * time.Second

// RTT target flags, shared by rtt subcommands and validate-boot
var (
	rttChannel      int
	rttControlBlock string
	rttELF          string
)

var probeTroubleshooting = []string{
	"Is OpenOCD running with its Tcl server enabled (tcl_port)?",
	"Check --openocd-host and --openocd-port",
	"Pass --elf or --control-block if the RTT scan finds nothing",
	"Make sure the firmware has started and initialised RTT",
}

// probeContext is canceled on Ctrl+C and after timeout, when positive.
func probeContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// controlBlockHint picks the address to try before scanning:
// --control-block, then the ELF symbol, then the config file.
func controlBlockHint(logger *zap.Logger) (uint64, error) {
	if rttControlBlock != "" {
		addr, err := config.ParseAddress(rttControlBlock)
		if err != nil {
			return 0, fmt.Errorf("invalid --control-block: %w", err)
		}
		return uint64(addr), nil
	}

	if rttELF != "" {
		table, err := symbols.Load(rttELF)
		if err != nil {
			return 0, err
		}
		entry, ok := table.Lookup(rttSymbol)
		if !ok {
			logger.Warn("RTT symbol not in ELF, scanning instead",
				zap.String("symbol", rttSymbol),
				zap.String("elf", rttELF))
			return 0, nil
		}
		logger.Debug("RTT control block from ELF",
			zap.String("symbol", rttSymbol),
			zap.String("address", fmt.Sprintf("0x%08x", entry.Address)))
		return entry.Address, nil
	}

	return uint64(cfg.RTT.ControlBlock), nil
}

// session is an attached RTT transport over an OpenOCD connection.
type session struct {
	client    *openocd.Client
	transport *rtt.Transport
}

func (s *session) Close() {
	s.transport.Detach()
	if err := s.client.Close(); err != nil {
		logging.Debug("Failed to close OpenOCD connection", zap.Error(err))
	}
}

// openSession connects and attaches, reporting steps 1 and 2 to onStep.
func openSession(ctx context.Context, onStep ui.StepCallback) (*session, error) {
	logger := logging.GetLogger()

	hint, err := controlBlockHint(logger)
	if err != nil {
		return nil, err
	}

	ocd := cfg.OpenOCDConfig()
	onStep(1, ui.StepRunning, "")
	client, err := openocd.Dial(ctx, ocd, logger)
	if err != nil {
		onStep(1, ui.StepFailed, "")
		return nil, err
	}
	onStep(1, ui.StepComplete, fmt.Sprintf("%s:%d", ocd.Host, ocd.Port))

	onStep(2, ui.StepRunning, "")
	transport := rtt.New(client, cfg.RTTOptions(), logger)
	if err := transport.Attach(ctx, hint); err != nil {
		onStep(2, ui.StepFailed, "")
		_ = client.Close()
		return nil, err
	}
	onStep(2, ui.StepComplete, fmt.Sprintf("0x%08x", transport.ControlBlockAddress()))

	return &session{client: client, transport: transport}, nil
}

// quietSteps discards step updates for commands whose stdout carries data.
func quietSteps(int, ui.StepStatus, string) {}

func openocdEndpoint() string {
	return fmt.Sprintf("%s:%d", cfg.OpenOCD.Host, cfg.OpenOCD.Port)
}
