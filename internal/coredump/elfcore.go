package coredump

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	elf32HeaderSize  = 52
	elf32ProgramSize = 32

	// ARM elf_prstatus: pr_reg starts at 72, 18 words, then pr_fpvalid.
	prstatusSize   = 148
	prstatusRegOff = 72
)

var noteName = []byte("CORE\x00\x00\x00\x00")

// WriteELF writes rec as a 32-bit ARM ELF core file: one PT_NOTE segment
// holding an NT_PRSTATUS note with the registers, and one PT_LOAD segment
// per captured memory region.
func WriteELF(w io.Writer, rec *Record) error {
	if rec.Arch == nil {
		return errors.New("coredump has no architecture block to write")
	}
	for _, m := range rec.Regions {
		if m.End() > 1<<32 {
			return fmt.Errorf("region 0x%x-0x%x does not fit an ELF32 core", m.Start, m.End())
		}
	}

	le := binary.LittleEndian
	numProgs := 1 + len(rec.Regions)
	phOff := uint32(elf32HeaderSize)
	noteOff := phOff + uint32(numProgs*elf32ProgramSize)
	noteSize := uint32(12 + len(noteName) + align4(prstatusSize))
	dataOff := noteOff + noteSize

	hdr := elf.Header32{
		Type:      uint16(elf.ET_CORE),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     phOff,
		Ehsize:    elf32HeaderSize,
		Phentsize: elf32ProgramSize,
		Phnum:     uint16(numProgs),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	if err := binary.Write(&buf, le, &hdr); err != nil {
		return fmt.Errorf("failed to encode ELF header: %w", err)
	}

	progs := []elf.Prog32{{
		Type:   uint32(elf.PT_NOTE),
		Off:    noteOff,
		Filesz: noteSize,
		Memsz:  noteSize,
		Align:  4,
	}}
	off := dataOff
	for _, m := range rec.Regions {
		size := uint32(len(m.Data))
		progs = append(progs, elf.Prog32{
			Type:   uint32(elf.PT_LOAD),
			Off:    off,
			Vaddr:  uint32(m.Start),
			Paddr:  uint32(m.Start),
			Filesz: size,
			Memsz:  size,
			Flags:  uint32(elf.PF_R | elf.PF_W),
			Align:  4,
		})
		off += size
	}
	if err := binary.Write(&buf, le, progs); err != nil {
		return fmt.Errorf("failed to encode program headers: %w", err)
	}

	buf.Write(le.AppendUint32(nil, 5))
	buf.Write(le.AppendUint32(nil, prstatusSize))
	buf.Write(le.AppendUint32(nil, uint32(elf.NT_PRSTATUS)))
	buf.Write(noteName)

	prstatus := make([]byte, align4(prstatusSize))
	for i, v := range rec.Arch.Registers.Raw() {
		le.PutUint32(prstatus[prstatusRegOff+i*4:], v)
	}
	buf.Write(prstatus)

	for _, m := range rec.Regions {
		buf.Write(m.Data)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write core file: %w", err)
	}
	return nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
