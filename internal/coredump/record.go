package coredump

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize = 12

	// TargetCortexM is the header target code for ARM Cortex-M.
	TargetCortexM uint16 = 3

	pointerBits32 uint8 = 5
	pointerBits64 uint8 = 6

	tagArch    = 'A'
	tagMemory  = 'M'
	tagThreads = 'T'
)

var magic = [2]byte{'Z', 'E'}

// Header is the fixed record prefix.
type Header struct {
	Version    uint16
	TargetCode uint16
	// PointerBits is the log2 of the pointer width in bits: 5 for 32-bit,
	// 6 for 64-bit targets.
	PointerBits uint8
	Flags       uint8
	ReasonCode  uint32
}

// PointerSize returns the pointer width in bytes.
func (h Header) PointerSize() int {
	return (1 << h.PointerBits) / 8
}

// ArchBlock is the decoded architecture block.
type ArchBlock struct {
	Version   uint16
	Registers RegisterSet
}

// MemoryRegion is one captured address range.
type MemoryRegion struct {
	Version uint16
	Start   uint64
	Data    []byte
}

// End returns the first address past the region.
func (m MemoryRegion) End() uint64 {
	return m.Start + uint64(len(m.Data))
}

// Contains reports whether addr lies inside the region.
func (m MemoryRegion) Contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End()
}

// ThreadBlock is thread metadata carried through unparsed.
type ThreadBlock struct {
	Version uint16
	Data    []byte
}

// Record is a decoded coredump.
type Record struct {
	Header  Header
	Reason  Reason
	Arch    *ArchBlock
	Regions []MemoryRegion
	Threads *ThreadBlock
}

// Registers returns the captured registers and whether an architecture
// block was present.
func (r *Record) Registers() (RegisterSet, bool) {
	if r.Arch == nil {
		return RegisterSet{}, false
	}
	return r.Arch.Registers, true
}

// MemoryBytes returns the total number of captured memory bytes.
func (r *Record) MemoryBytes() int {
	n := 0
	for _, m := range r.Regions {
		n += len(m.Data)
	}
	return n
}

type cursor struct {
	data []byte
	off  int
}

func (c *cursor) remaining() int { return len(c.data) - c.off }

func (c *cursor) u8() (uint8, bool) {
	if c.remaining() < 1 {
		return 0, false
	}
	v := c.data[c.off]
	c.off++
	return v, true
}

func (c *cursor) u16() (uint16, bool) {
	if c.remaining() < 2 {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(c.data[c.off:])
	c.off += 2
	return v, true
}

func (c *cursor) ptr(size int) (uint64, bool) {
	if c.remaining() < size {
		return 0, false
	}
	var v uint64
	if size == 4 {
		v = uint64(binary.LittleEndian.Uint32(c.data[c.off:]))
	} else {
		v = binary.LittleEndian.Uint64(c.data[c.off:])
	}
	c.off += size
	return v, true
}

func (c *cursor) bytes(n int) ([]byte, bool) {
	if n < 0 || c.remaining() < n {
		return nil, false
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return append([]byte(nil), b...), true
}

// Parse decodes a binary coredump record. On error no record is returned
// and the error is a *ParseError wrapping one of the package sentinels.
func Parse(data []byte) (*Record, error) {
	hdr, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	rec := &Record{Header: hdr, Reason: ReasonFromCode(hdr.ReasonCode)}
	c := &cursor{data: data, off: headerSize}
	for c.remaining() > 0 {
		start := c.off
		tag, _ := c.u8()
		switch tag {
		case tagArch:
			if rec.Arch != nil {
				return nil, parseErr("arch", start, ErrDuplicateBlock, "")
			}
			arch, err := parseArch(c, start)
			if err != nil {
				return nil, err
			}
			rec.Arch = arch
		case tagMemory:
			region, err := parseMemory(c, start, hdr.PointerSize())
			if err != nil {
				return nil, err
			}
			rec.Regions = append(rec.Regions, region)
		case tagThreads:
			threads, err := parseThreads(c, start)
			if err != nil {
				return nil, err
			}
			rec.Threads = threads
		default:
			return nil, parseErr("block", start, ErrUnknownBlock, "tag 0x%02x", tag)
		}
	}
	return rec, nil
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, parseErr("header", 0, ErrTruncated, "need %d bytes, have %d", headerSize, len(data))
	}
	if data[0] != magic[0] || data[1] != magic[1] {
		return Header{}, parseErr("header", 0, ErrBadMagic, "got %q", data[:2])
	}

	le := binary.LittleEndian
	hdr := Header{
		Version:     le.Uint16(data[2:]),
		TargetCode:  le.Uint16(data[4:]),
		PointerBits: data[6],
		Flags:       data[7],
		ReasonCode:  le.Uint32(data[8:]),
	}
	if hdr.Version != 1 && hdr.Version != 2 {
		return Header{}, parseErr("header", 2, ErrUnsupportedVersion, "header version %d", hdr.Version)
	}
	if hdr.TargetCode != TargetCortexM {
		return Header{}, parseErr("header", 4, ErrUnsupportedVersion, "target code %d", hdr.TargetCode)
	}
	if hdr.PointerBits != pointerBits32 && hdr.PointerBits != pointerBits64 {
		return Header{}, parseErr("header", 6, ErrUnsupportedVersion, "pointer size exponent %d", hdr.PointerBits)
	}
	return hdr, nil
}

func parseArch(c *cursor, start int) (*ArchBlock, error) {
	version, ok := c.u16()
	if !ok {
		return nil, parseErr("arch", start, ErrTruncated, "missing version")
	}
	count, ok := c.u16()
	if !ok {
		return nil, parseErr("arch", start, ErrTruncated, "missing byte count")
	}
	schema, ok := SchemaFor(version)
	if !ok {
		return nil, parseErr("arch", start, ErrUnsupportedVersion, "architecture block version %d", version)
	}
	if int(count) != schema.Size() {
		return nil, parseErr("arch", start, ErrUnsupportedVersion,
			"version %d expects %d register bytes, block has %d", version, schema.Size(), count)
	}
	raw, ok := c.bytes(int(count))
	if !ok {
		return nil, parseErr("arch", start, ErrTruncated, "need %d register bytes", count)
	}

	values := make([]uint32, len(schema.Order))
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	regs, err := NewRegisterSet(version, values...)
	if err != nil {
		return nil, parseErr("arch", start, ErrUnsupportedVersion, "%v", err)
	}
	return &ArchBlock{Version: version, Registers: regs}, nil
}

func parseMemory(c *cursor, start int, ptrSize int) (MemoryRegion, error) {
	version, ok := c.u16()
	if !ok {
		return MemoryRegion{}, parseErr("memory", start, ErrTruncated, "missing version")
	}
	begin, ok := c.ptr(ptrSize)
	if !ok {
		return MemoryRegion{}, parseErr("memory", start, ErrTruncated, "missing start address")
	}
	end, ok := c.ptr(ptrSize)
	if !ok {
		return MemoryRegion{}, parseErr("memory", start, ErrTruncated, "missing end address")
	}
	if end < begin {
		return MemoryRegion{}, parseErr("memory", start, ErrTruncated,
			"end 0x%x before start 0x%x", end, begin)
	}
	size := end - begin
	if size > uint64(c.remaining()) {
		return MemoryRegion{}, parseErr("memory", start, ErrTruncated,
			"region 0x%x-0x%x needs %d bytes, %d left", begin, end, size, c.remaining())
	}
	data, _ := c.bytes(int(size))
	return MemoryRegion{Version: version, Start: begin, Data: data}, nil
}

func parseThreads(c *cursor, start int) (*ThreadBlock, error) {
	version, ok := c.u16()
	if !ok {
		return nil, parseErr("threads", start, ErrTruncated, "missing version")
	}
	count, ok := c.u16()
	if !ok {
		return nil, parseErr("threads", start, ErrTruncated, "missing byte count")
	}
	data, ok := c.bytes(int(count))
	if !ok {
		return nil, parseErr("threads", start, ErrTruncated, "need %d bytes", count)
	}
	return &ThreadBlock{Version: version, Data: data}, nil
}

// String summarizes the record for logs.
func (r *Record) String() string {
	arch := "none"
	if r.Arch != nil {
		arch = fmt.Sprintf("v%d", r.Arch.Version)
	}
	return fmt.Sprintf("coredump v%d reason=%s arch=%s regions=%d bytes=%d",
		r.Header.Version, r.Reason, arch, len(r.Regions), r.MemoryBytes())
}
