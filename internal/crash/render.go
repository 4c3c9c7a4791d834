package crash

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Render writes the report as plain text.
func Render(w io.Writer, r *Report) error {
	var sb strings.Builder

	sb.WriteString("=== Crash Analysis Report ===\n\n")
	fmt.Fprintf(&sb, "Fault reason: %s (%s)\n", r.Reason, r.ReasonSymbol)
	if r.HasRegisters {
		fmt.Fprintf(&sb, "Crash PC:     0x%08x -> %s\n", r.PC, r.PCSymbol)
		fmt.Fprintf(&sb, "Caller (LR):  0x%08x -> %s\n", r.LR, r.LRSymbol)
		fmt.Fprintf(&sb, "Stack (SP):   0x%08x\n", r.SP)
	} else {
		sb.WriteString("Crash PC:     Unknown (no register block in dump)\n")
	}

	if len(r.CallChain) > 0 {
		sb.WriteString("\nCall chain (heuristic):\n")
		tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
		for _, f := range r.CallChain {
			fmt.Fprintf(tw, "  #%d\t0x%08x\t%s\t[%s]\n", f.Index, f.Address, f.Symbol, f.Kind)
		}
		_ = tw.Flush()
	}

	if len(r.Registers) > 0 {
		sb.WriteString("\nRegisters:\n")
		for i, reg := range r.Registers {
			if i%4 == 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, " %-4s 0x%08x", reg.Name, reg.Value)
			if i%4 == 3 || i == len(r.Registers)-1 {
				sb.WriteByte('\n')
			}
		}
	}

	if len(r.Memory) > 0 {
		sb.WriteString("\nCaptured memory:\n")
		for _, m := range r.Memory {
			fmt.Fprintf(&sb, "  0x%08x-0x%08x (%d bytes)\n", m.Start, m.End, m.Size)
		}
	}

	fmt.Fprintf(&sb, "\nNote: %s\n", r.Note)

	_, err := io.WriteString(w, sb.String())
	return err
}
