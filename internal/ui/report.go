package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/crashprobe/internal/crash"
	"github.com/muurk/crashprobe/internal/symbols"
)

// RenderReport returns a styled crash report. crash.Render is the plain
// form for pipes and files.
func RenderReport(r *crash.Report, width int) string {
	width = clampWidth(width)

	title := ErrorTitleStyle.Render(fmt.Sprintf("%s  %s", FailureMarker, r.Reason)) +
		"  " + StepNoteStyle.Render(r.ReasonSymbol)

	sections := []string{title, ""}

	if r.HasRegisters {
		sections = append(sections,
			reportLine("Crash PC", r.PC, r.PCSymbol),
			reportLine("Caller (LR)", r.LR, r.LRSymbol),
			ResultKeyStyle.Render("Stack (SP)")+AddressStyle.Render(fmt.Sprintf("0x%08x", r.SP)),
		)
	} else {
		sections = append(sections, ResultKeyStyle.Render("Crash PC")+UnknownSymbolStyle.Render("no register block in dump"))
	}

	if len(r.CallChain) > 0 {
		sections = append(sections, "", SectionTitleStyle.Render("Call chain (heuristic)"))
		for _, f := range r.CallChain {
			idx := fmt.Sprintf("  #%-2d ", f.Index)
			if f.Kind == crash.FrameCrashSite {
				idx = CrashSiteStyle.Render(idx)
			}
			sections = append(sections, idx+
				AddressStyle.Render(fmt.Sprintf("0x%08x", f.Address))+"  "+
				symbolText(f.Symbol)+"  "+
				StepNoteStyle.Render("["+f.Kind.String()+"]"))
		}
	}

	if len(r.Registers) > 0 {
		sections = append(sections, "", SectionTitleStyle.Render("Registers"))
		var row []string
		for i, reg := range r.Registers {
			row = append(row, HeaderParamKeyStyle.Render(fmt.Sprintf("%-4s", reg.Name))+" "+
				AddressStyle.Render(fmt.Sprintf("0x%08x", reg.Value)))
			if len(row) == 4 || i == len(r.Registers)-1 {
				sections = append(sections, strings.Join(row, " "))
				row = row[:0]
			}
		}
	}

	if len(r.Memory) > 0 {
		sections = append(sections, "", SectionTitleStyle.Render("Captured memory"))
		for _, m := range r.Memory {
			sections = append(sections, "  "+AddressStyle.Render(fmt.Sprintf("0x%08x-0x%08x", m.Start, m.End))+
				StepNoteStyle.Render(fmt.Sprintf("  %d bytes", m.Size)))
		}
	}

	sections = append(sections, "", NoteStyle.Width(width-8).Render(r.Note))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ErrorColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(sections, "\n"))
}

func reportLine(label string, addr uint64, sym symbols.Resolution) string {
	return ResultKeyStyle.Render(label) +
		AddressStyle.Render(fmt.Sprintf("0x%08x", addr)) + " → " + symbolText(sym)
}

func symbolText(r symbols.Resolution) string {
	if !r.Known {
		return UnknownSymbolStyle.Render(r.String())
	}
	return SymbolStyle.Render(r.String())
}
