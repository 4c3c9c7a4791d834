package crash

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/muurk/crashprobe/internal/coredump"
	"github.com/muurk/crashprobe/internal/logging"
	"github.com/muurk/crashprobe/internal/symbols"
)

// HeuristicNote is attached to every report.
const HeuristicNote = "Frames after the crash site come from a heuristic stack scan. " +
	"Any stack word that looks like a return address into code is listed, " +
	"so some entries may be stale values rather than live callers."

// FrameKind says how a call-chain entry was found.
type FrameKind int

const (
	// FrameCrashSite is the faulting PC from the exception frame.
	FrameCrashSite FrameKind = iota
	// FrameStackScan is a candidate found by Walk.
	FrameStackScan
)

func (k FrameKind) String() string {
	if k == FrameCrashSite {
		return "crash site"
	}
	return "stack scan"
}

// MarshalText implements encoding.TextMarshaler.
func (k FrameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Frame is one call-chain entry.
type Frame struct {
	Index   int                `json:"index"`
	Address uint64             `json:"address"`
	Symbol  symbols.Resolution `json:"symbol"`
	Kind    FrameKind          `json:"kind"`
}

// RegisterValue is a named register in the dump.
type RegisterValue struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// MemorySummary describes one captured region.
type MemorySummary struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Size  int    `json:"size"`
}

// Report is the analysis of one coredump.
type Report struct {
	Reason       string `json:"reason"`
	ReasonSymbol string `json:"reason_symbol"`
	ReasonCode   uint32 `json:"reason_code"`

	// HasRegisters is false when the dump carried no architecture block;
	// PC, LR and SP are then zero and their symbols Unknown.
	HasRegisters bool               `json:"has_registers"`
	PC           uint64             `json:"pc"`
	PCSymbol     symbols.Resolution `json:"pc_symbol"`
	LR           uint64             `json:"lr"`
	LRSymbol     symbols.Resolution `json:"lr_symbol"`
	SP           uint64             `json:"sp"`

	Registers []RegisterValue `json:"registers"`
	CallChain []Frame         `json:"call_chain"`
	Memory    []MemorySummary `json:"memory"`
	Note      string          `json:"note"`
}

// Options configures report building.
type Options struct {
	// CodeRanges overrides the symbol table's executable ranges for the
	// stack scan.
	CodeRanges []symbols.Range
	// Walk bounds the stack scan. A zero PointerSize follows the dump
	// header.
	Walk WalkOptions
	// Extract configures log parsing in Analyze.
	Extract coredump.ExtractOptions
	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns the default analysis settings.
func DefaultOptions() Options {
	return Options{
		Walk:    WalkOptions{MaxDepth: DefaultMaxDepth},
		Extract: coredump.DefaultExtractOptions(),
	}
}

// Build assembles a report. It never fails: addresses that do not resolve
// are reported as Unknown, and a dump without registers yields an empty
// call chain.
func Build(rec *coredump.Record, table *symbols.Table, opts Options) *Report {
	if table == nil {
		table = symbols.FromEntries(nil, nil)
	}
	code := opts.CodeRanges
	if len(code) == 0 {
		code = table.CodeRanges()
	}

	r := &Report{
		Reason:       rec.Reason.String(),
		ReasonSymbol: rec.Reason.Symbol(),
		ReasonCode:   rec.Header.ReasonCode,
		Registers:    []RegisterValue{},
		CallChain:    []Frame{},
		Memory:       []MemorySummary{},
		Note:         HeuristicNote,
	}

	for _, m := range rec.Regions {
		r.Memory = append(r.Memory, MemorySummary{Start: m.Start, End: m.End(), Size: len(m.Data)})
	}

	regs, ok := rec.Registers()
	if !ok {
		return r
	}

	r.HasRegisters = true
	r.PC = uint64(regs.PC())
	r.LR = uint64(regs.LR())
	r.SP = uint64(regs.SP())
	r.PCSymbol = table.Resolve(r.PC)
	r.LRSymbol = table.Resolve(r.LR)

	for _, rv := range regs.Values() {
		r.Registers = append(r.Registers, RegisterValue{Name: rv.Register.String(), Value: rv.Value})
	}

	r.CallChain = append(r.CallChain, Frame{
		Index:   0,
		Address: r.PC,
		Symbol:  r.PCSymbol,
		Kind:    FrameCrashSite,
	})

	walk := opts.Walk
	if walk.PointerSize == 0 {
		walk.PointerSize = rec.Header.PointerSize()
	}
	for _, addr := range Walk(r.SP, rec.Regions, code, walk) {
		r.CallChain = append(r.CallChain, Frame{
			Index:   len(r.CallChain),
			Address: addr,
			Symbol:  table.Resolve(addr),
			Kind:    FrameStackScan,
		})
	}
	return r
}

// Analyze parses the last coredump in logText, loads symbols from the ELF
// at elfPath and builds the report. Parse and load failures are returned;
// unresolved addresses are not errors.
func Analyze(logText, elfPath string, opts Options) (*Report, error) {
	logger := logging.OrNop(opts.Logger)

	rec, err := coredump.ParseLog(logText, opts.Extract)
	if err != nil {
		return nil, fmt.Errorf("failed to parse coredump: %w", err)
	}
	logger.Debug("Parsed coredump", zap.Stringer("record", rec))

	table, err := symbols.Load(elfPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded symbols",
		zap.String("elf", elfPath),
		zap.Int("functions", table.Len()),
		zap.Int("code_ranges", len(table.CodeRanges())))

	report := Build(rec, table, opts)
	logger.Info("Crash analyzed",
		zap.String("reason", report.Reason),
		zap.String("pc", report.PCSymbol.String()),
		zap.Int("frames", len(report.CallChain)))
	return report, nil
}

// AnalyzeFile is Analyze reading the log from a file.
func AnalyzeFile(logPath, elfPath string, opts Options) (*Report, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return Analyze(string(data), elfPath, opts)
}
