package symbols

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ianlancetaylor/demangle"
)

// LoadError describes a firmware image that could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load symbols from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Entry is one symbol.
type Entry struct {
	// Name is the demangled name
	Name string `json:"name"`
	// RawName is the name as stored in the symbol table
	RawName string `json:"raw_name,omitempty"`
	Address uint64 `json:"address"`
	// Size is zero when the symbol has no recorded extent
	Size   uint64 `json:"size"`
	Global bool   `json:"global,omitempty"`
}

// Range is a half-open address range [Start, End).
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Contains reports whether addr lies in the range.
func (r Range) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// Resolution is the result of resolving one address.
type Resolution struct {
	// Query is the address that was resolved, before the Thumb bit was cleared
	Query   uint64 `json:"query"`
	Known   bool   `json:"known"`
	Name    string `json:"name,omitempty"`
	Address uint64 `json:"address,omitempty"`
	Offset  uint64 `json:"offset"`
}

// String renders "name+0xOFF", "name" at offset zero, or "Unknown".
func (r Resolution) String() string {
	if !r.Known {
		return "Unknown"
	}
	if r.Offset == 0 {
		return r.Name
	}
	return fmt.Sprintf("%s+0x%x", r.Name, r.Offset)
}

// Table is an immutable symbol index.
type Table struct {
	funcs  []Entry
	byName map[string]Entry
	code   []Range
}

// Load reads function symbols and executable sections from an ELF file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	t, err := LoadReader(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return t, nil
}

// LoadReader is Load for an already open image.
func LoadReader(r io.ReaderAt) (*Table, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol table: %w", err)
	}

	var (
		funcs []Entry
		named []Entry
	)
	for _, s := range syms {
		if s.Name == "" || s.Value == 0 {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		e := Entry{
			Name:    demangle.Filter(s.Name, demangle.NoClones),
			RawName: s.Name,
			Address: s.Value,
			Size:    s.Size,
			Global:  elf.ST_BIND(s.Info) == elf.STB_GLOBAL,
		}
		switch typ {
		case elf.STT_FUNC:
			e.Address &^= 1
			funcs = append(funcs, e)
		case elf.STT_OBJECT, elf.STT_NOTYPE:
			named = append(named, e)
		default:
			continue
		}
	}

	var code []Range
	for _, sec := range f.Sections {
		const exec = elf.SHF_ALLOC | elf.SHF_EXECINSTR
		if sec.Flags&exec == exec && sec.Size > 0 {
			code = append(code, Range{Start: sec.Addr, End: sec.Addr + sec.Size})
		}
	}

	t := FromEntries(funcs, code)
	for _, e := range named {
		t.addName(e)
	}
	return t, nil
}

// FromEntries builds a table from function entries and code ranges.
func FromEntries(entries []Entry, codeRanges []Range) *Table {
	funcs := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if e.RawName == "" {
			e.RawName = e.Name
		}
		e.Address &^= 1
		funcs = append(funcs, e)
	}

	// Among symbols at one address keep the sized one, then the global
	// one, then the first by name.
	sort.SliceStable(funcs, func(i, j int) bool {
		a, b := funcs[i], funcs[j]
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if (a.Size > 0) != (b.Size > 0) {
			return a.Size > 0
		}
		if a.Global != b.Global {
			return a.Global
		}
		return a.Name < b.Name
	})

	t := &Table{byName: make(map[string]Entry, len(funcs))}
	for _, e := range funcs {
		t.addName(e)
		if n := len(t.funcs); n > 0 && t.funcs[n-1].Address == e.Address {
			continue
		}
		t.funcs = append(t.funcs, e)
	}

	t.code = append([]Range(nil), codeRanges...)
	sort.Slice(t.code, func(i, j int) bool { return t.code[i].Start < t.code[j].Start })
	return t
}

func (t *Table) addName(e Entry) {
	for _, key := range []string{e.RawName, e.Name} {
		if prev, ok := t.byName[key]; ok && (prev.Global || !e.Global) {
			continue
		}
		t.byName[key] = e
	}
}

// Len returns the number of indexed functions.
func (t *Table) Len() int {
	return len(t.funcs)
}

// Entries returns a copy of the function index in address order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.funcs...)
}

// CodeRanges returns the executable address ranges.
func (t *Table) CodeRanges() []Range {
	return append([]Range(nil), t.code...)
}

// Lookup finds a symbol by raw or demangled name. Object symbols such as
// _SEGGER_RTT are included.
func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.byName[name]
	return e, ok
}

// Resolve maps addr to the function containing it. The nearest entry at
// or below addr wins when it covers addr; otherwise earlier sized entries
// are checked so an address past a nested symbol still resolves to the
// enclosing function.
func (t *Table) Resolve(addr uint64) Resolution {
	res := Resolution{Query: addr}
	addr &^= 1

	i := sort.Search(len(t.funcs), func(i int) bool { return t.funcs[i].Address > addr }) - 1
	for j := i; j >= 0; j-- {
		e := t.funcs[j]
		off := addr - e.Address
		// A zero-size entry only reaches the next symbol.
		if e.Size == 0 && j != i {
			continue
		}
		if e.Size > 0 && off >= e.Size {
			continue
		}
		res.Known = true
		res.Name = e.Name
		res.Address = e.Address
		res.Offset = off
		return res
	}
	return res
}
