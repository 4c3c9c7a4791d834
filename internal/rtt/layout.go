package rtt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	idSize         = 16
	headerSize     = idSize + 8
	descriptorSize = 24

	offName   = 0
	offBuffer = 4
	offSize   = 8
	offWrOff  = 12
	offRdOff  = 16
	offFlags  = 20

	modeMask = 3
)

// Magic is the control block ID as it appears in target memory.
var Magic = []byte("SEGGER RTT\x00\x00\x00\x00\x00\x00")

// Direction says which way a channel moves data.
type Direction int

const (
	// Up channels carry data from target to host.
	Up Direction = iota
	// Down channels carry data from host to target.
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Mode is the target behavior when a buffer is full.
type Mode uint32

const (
	ModeNoBlockSkip Mode = 0
	ModeNoBlockTrim Mode = 1
	ModeBlockIfFull Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeNoBlockSkip:
		return "no-block-skip"
	case ModeNoBlockTrim:
		return "no-block-trim"
	case ModeBlockIfFull:
		return "block-if-full"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// Channel is a snapshot of one channel descriptor.
type Channel struct {
	Index     int       `json:"index"`
	Direction Direction `json:"-"`
	Name      string    `json:"name,omitempty"`
	Size      uint32    `json:"size"`
	Mode      Mode      `json:"-"`

	// BufferAddress is the target address of the ring buffer.
	BufferAddress uint64 `json:"buffer_address"`
	// DescriptorAddress is the target address of the descriptor itself.
	DescriptorAddress uint64 `json:"descriptor_address"`
}

// Configured reports whether the target set this channel up.
func (c Channel) Configured() bool {
	return c.BufferAddress != 0 && c.Size != 0
}

type descriptor struct {
	namePtr uint32
	buffer  uint32
	size    uint32
	wrOff   uint32
	rdOff   uint32
	flags   uint32
}

func decodeDescriptor(b []byte) descriptor {
	le := binary.LittleEndian
	return descriptor{
		namePtr: le.Uint32(b[offName:]),
		buffer:  le.Uint32(b[offBuffer:]),
		size:    le.Uint32(b[offSize:]),
		wrOff:   le.Uint32(b[offWrOff:]),
		rdOff:   le.Uint32(b[offRdOff:]),
		flags:   le.Uint32(b[offFlags:]),
	}
}

// available returns the number of unread bytes in a ring of size bytes.
func available(wr, rd, size uint32) uint32 {
	if wr >= rd {
		return wr - rd
	}
	return size - rd + wr
}

// free returns the number of bytes a writer may add. One slot always stays
// empty so that wr == rd means "empty".
func free(wr, rd, size uint32) uint32 {
	return size - 1 - available(wr, rd, size)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
