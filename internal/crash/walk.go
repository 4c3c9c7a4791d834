package crash

import (
	"encoding/binary"
	"sort"

	"github.com/muurk/crashprobe/internal/coredump"
	"github.com/muurk/crashprobe/internal/symbols"
)

// DefaultMaxDepth bounds the number of stack-scan candidates.
const DefaultMaxDepth = 16

// WalkOptions bounds a stack scan.
type WalkOptions struct {
	// MaxDepth is the maximum number of candidates returned.
	// Default: 16
	MaxDepth int
	// PointerSize is the stack word width in bytes, 4 or 8.
	// Default: 4
	PointerSize int
}

func (o WalkOptions) withDefaults() WalkOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.PointerSize != 8 {
		o.PointerSize = 4
	}
	return o
}

// Walk scans captured stack memory upward from sp and returns words that
// look like Thumb return addresses: bit 0 set and the address inside a code
// range. The scan starts in the region covering sp and continues into any
// region that begins exactly where the previous one ends. It returns nil
// when no region covers sp.
func Walk(sp uint64, regions []coredump.MemoryRegion, code []symbols.Range, opts WalkOptions) []uint64 {
	opts = opts.withDefaults()

	stack := contiguousFrom(sp, regions)
	if stack == nil {
		return nil
	}

	var out []uint64
	for off := 0; off+opts.PointerSize <= len(stack) && len(out) < opts.MaxDepth; off += opts.PointerSize {
		var word uint64
		if opts.PointerSize == 8 {
			word = binary.LittleEndian.Uint64(stack[off:])
		} else {
			word = uint64(binary.LittleEndian.Uint32(stack[off:]))
		}
		if word&1 == 0 {
			continue
		}
		if inCode(word&^1, code) {
			out = append(out, word)
		}
	}
	return out
}

// contiguousFrom returns the bytes from sp to the end of the run of
// back-to-back regions that covers sp.
func contiguousFrom(sp uint64, regions []coredump.MemoryRegion) []byte {
	sorted := append([]coredump.MemoryRegion(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	start := -1
	for i, r := range sorted {
		if r.Contains(sp) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	first := sorted[start]
	out := append([]byte(nil), first.Data[sp-first.Start:]...)
	end := first.End()
	for _, r := range sorted[start+1:] {
		if r.Start != end {
			break
		}
		out = append(out, r.Data...)
		end = r.End()
	}
	return out
}

func inCode(addr uint64, code []symbols.Range) bool {
	for _, r := range code {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}
