package rtt

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no control block could be located within
	// the configured attempts.
	ErrNotFound = errors.New("rtt control block not found")
	// ErrProbeIO matches every *ProbeIOError.
	ErrProbeIO = errors.New("probe memory access failed")
	// ErrNotAttached is returned by channel operations before Attach succeeds.
	ErrNotAttached = errors.New("rtt not attached")
	// ErrChannelNotFound is returned for an index with no configured channel.
	ErrChannelNotFound = errors.New("rtt channel not found")
	// ErrCorruptDescriptor is returned when a descriptor holds an offset
	// outside its buffer.
	ErrCorruptDescriptor = errors.New("rtt channel descriptor corrupt")
)

// ProbeIOError describes a failed target memory transfer.
type ProbeIOError struct {
	// Op is "read" or "write"
	Op string
	// Address is the target address of the transfer
	Address uint64
	// Length is the number of bytes requested
	Length int
	// Underlying error from the memory interface
	Err error
}

func (e *ProbeIOError) Error() string {
	return fmt.Sprintf("probe %s of %d bytes at 0x%08x failed: %v", e.Op, e.Length, e.Address, e.Err)
}

func (e *ProbeIOError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProbeIO.
func (e *ProbeIOError) Is(target error) bool {
	return target == ErrProbeIO
}

// CorruptDescriptorError carries the offending descriptor values.
type CorruptDescriptorError struct {
	Channel   int
	Direction Direction
	Size      uint32
	WrOff     uint32
	RdOff     uint32
}

func (e *CorruptDescriptorError) Error() string {
	return fmt.Sprintf("%s channel %d: offsets wr=%d rd=%d outside buffer of %d bytes",
		e.Direction, e.Channel, e.WrOff, e.RdOff, e.Size)
}

// Is reports whether target is ErrCorruptDescriptor.
func (e *CorruptDescriptorError) Is(target error) bool {
	return target == ErrCorruptDescriptor
}
