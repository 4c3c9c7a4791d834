package coredump

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode serializes a record in the on-target format. Zero header fields
// take the values a Cortex-M target would emit: version 2, target code 3,
// 32-bit pointers.
func Encode(rec *Record) ([]byte, error) {
	hdr := rec.Header
	if hdr.Version == 0 {
		hdr.Version = 2
	}
	if hdr.TargetCode == 0 {
		hdr.TargetCode = TargetCortexM
	}
	if hdr.PointerBits == 0 {
		hdr.PointerBits = pointerBits32
	}
	if hdr.PointerBits != pointerBits32 && hdr.PointerBits != pointerBits64 {
		return nil, fmt.Errorf("%w: pointer size exponent %d", ErrUnsupportedVersion, hdr.PointerBits)
	}
	ptrSize := hdr.PointerSize()

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.Write(magic[:])
	buf.Write(le.AppendUint16(nil, hdr.Version))
	buf.Write(le.AppendUint16(nil, hdr.TargetCode))
	buf.WriteByte(hdr.PointerBits)
	buf.WriteByte(hdr.Flags)
	buf.Write(le.AppendUint32(nil, hdr.ReasonCode))

	if rec.Arch != nil {
		schema, ok := SchemaFor(rec.Arch.Registers.Version())
		if !ok {
			return nil, fmt.Errorf("%w: architecture block version %d",
				ErrUnsupportedVersion, rec.Arch.Registers.Version())
		}
		buf.WriteByte(tagArch)
		buf.Write(le.AppendUint16(nil, schema.Version))
		buf.Write(le.AppendUint16(nil, uint16(schema.Size())))
		for _, rv := range rec.Arch.Registers.Values() {
			buf.Write(le.AppendUint32(nil, rv.Value))
		}
	}

	for _, m := range rec.Regions {
		if ptrSize == 4 && m.End() > 0xffffffff {
			return nil, fmt.Errorf("region 0x%x-0x%x does not fit 32-bit pointers", m.Start, m.End())
		}
		version := m.Version
		if version == 0 {
			version = 1
		}
		buf.WriteByte(tagMemory)
		buf.Write(le.AppendUint16(nil, version))
		writePtr(&buf, ptrSize, m.Start)
		writePtr(&buf, ptrSize, m.End())
		buf.Write(m.Data)
	}

	if rec.Threads != nil {
		if len(rec.Threads.Data) > 0xffff {
			return nil, fmt.Errorf("thread metadata of %d bytes exceeds 65535", len(rec.Threads.Data))
		}
		buf.WriteByte(tagThreads)
		buf.Write(le.AppendUint16(nil, rec.Threads.Version))
		buf.Write(le.AppendUint16(nil, uint16(len(rec.Threads.Data))))
		buf.Write(rec.Threads.Data)
	}

	return buf.Bytes(), nil
}

func writePtr(buf *bytes.Buffer, size int, v uint64) {
	if size == 4 {
		buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
		return
	}
	buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// EncodeLog renders a binary dump as "#CD:" log lines, hexPerLine bytes per
// line (64 when hexPerLine <= 0).
func EncodeLog(data []byte, hexPerLine int) string {
	if hexPerLine <= 0 {
		hexPerLine = 64
	}

	var sb strings.Builder
	sb.WriteString(DefaultBeginMarker + "\n")
	for off := 0; off < len(data); off += hexPerLine {
		end := off + hexPerLine
		if end > len(data) {
			end = len(data)
		}
		sb.WriteString(DefaultLineMarker)
		sb.WriteString(hex.EncodeToString(data[off:end]))
		sb.WriteByte('\n')
	}
	sb.WriteString(DefaultEndMarker + "\n")
	return sb.String()
}
