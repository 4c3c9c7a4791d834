// Package elftest builds minimal 32-bit ARM ELF images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Symbol is one symbol table entry.
type Symbol struct {
	Name  string
	Value uint32
	Size  uint32
	Type  elf.SymType
	Bind  elf.SymBind
}

// Func returns a global function symbol.
func Func(name string, value, size uint32) Symbol {
	return Symbol{Name: name, Value: value, Size: size, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL}
}

// Object returns a global data symbol.
func Object(name string, value, size uint32) Symbol {
	return Symbol{Name: name, Value: value, Size: size, Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL}
}

// Image describes the file to build.
type Image struct {
	TextAddr uint32
	TextSize uint32
	DataAddr uint32
	DataSize uint32
	Symbols  []Symbol
	// NoSymtab omits the symbol table, as in a stripped image.
	NoSymtab bool
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

// Build returns the ELF file bytes.
//
// Sections: null, .text (alloc+exec), .data (alloc+write), then .symtab and
// .strtab unless NoSymtab, then .shstrtab.
func Build(img Image) []byte {
	le := binary.LittleEndian
	const (
		ehSize = 52
		shSize = 40
	)

	shstr := newStrtab()
	str := newStrtab()

	text := make([]byte, img.TextSize)
	data := make([]byte, img.DataSize)

	var symtab bytes.Buffer
	_ = binary.Write(&symtab, le, elf.Sym32{})
	for _, s := range img.Symbols {
		_ = binary.Write(&symtab, le, elf.Sym32{
			Name:  str.add(s.Name),
			Value: s.Value,
			Size:  s.Size,
			Info:  elf.ST_INFO(s.Bind, s.Type),
			Shndx: 1,
		})
	}

	type section struct {
		hdr  elf.Section32
		data []byte
	}
	sections := []section{
		{hdr: elf.Section32{}},
		{
			hdr: elf.Section32{
				Name: shstr.add(".text"), Type: uint32(elf.SHT_PROGBITS),
				Flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
				Addr:  img.TextAddr, Addralign: 4,
			},
			data: text,
		},
		{
			hdr: elf.Section32{
				Name: shstr.add(".data"), Type: uint32(elf.SHT_PROGBITS),
				Flags: uint32(elf.SHF_ALLOC | elf.SHF_WRITE),
				Addr:  img.DataAddr, Addralign: 4,
			},
			data: data,
		},
	}
	if !img.NoSymtab {
		symIdx := uint32(len(sections))
		sections = append(sections,
			section{
				hdr: elf.Section32{
					Name: shstr.add(".symtab"), Type: uint32(elf.SHT_SYMTAB),
					Link: symIdx + 1, Info: 1, Addralign: 4, Entsize: 16,
				},
				data: symtab.Bytes(),
			},
			section{
				hdr:  elf.Section32{Name: shstr.add(".strtab"), Type: uint32(elf.SHT_STRTAB), Addralign: 1},
				data: str.buf.Bytes(),
			},
		)
	}
	shstrIdx := len(sections)
	sections = append(sections, section{
		hdr: elf.Section32{Name: shstr.add(".shstrtab"), Type: uint32(elf.SHT_STRTAB), Addralign: 1},
	})
	sections[shstrIdx].data = shstr.buf.Bytes()

	var body bytes.Buffer
	off := uint32(ehSize)
	for i := 1; i < len(sections); i++ {
		for off%4 != 0 {
			body.WriteByte(0)
			off++
		}
		sections[i].hdr.Off = off
		sections[i].hdr.Size = uint32(len(sections[i].data))
		body.Write(sections[i].data)
		off += uint32(len(sections[i].data))
	}
	for off%4 != 0 {
		body.WriteByte(0)
		off++
	}

	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.TextAddr | 1,
		Shoff:     off,
		Ehsize:    ehSize,
		Shentsize: shSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(shstrIdx),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	_ = binary.Write(&out, le, &hdr)
	out.Write(body.Bytes())
	for _, s := range sections {
		_ = binary.Write(&out, le, &s.hdr)
	}
	return out.Bytes()
}

// WriteFile builds img into a file under t.TempDir and returns its path.
func WriteFile(t testing.TB, img Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firmware.elf")
	if err := os.WriteFile(path, Build(img), 0o644); err != nil {
		t.Fatalf("failed to write ELF fixture: %v", err)
	}
	return path
}
