// Package rtt implements the host side of SEGGER Real-Time Transfer over a
// debug probe's memory-access interface.
//
// The target firmware owns a control block in RAM:
//
//	offset  size  field
//	0       16    ID "SEGGER RTT" padded with NULs
//	16      4     MaxNumUpBuffers
//	20      4     MaxNumDownBuffers
//	24      24*n  up descriptors, then down descriptors
//
// Each descriptor is six 32-bit words: name pointer, buffer pointer, buffer
// size, write offset, read offset and flags. The low two bits of flags select
// what the target does when a down buffer is full.
//
// A Transport is an explicit handle. Callers create one per probe link, call
// Attach, then Read from up channels (target to host) and Write to down
// channels (host to target). All operations on one Transport are serialized
// by an internal mutex because the probe is a single shared resource.
//
// Ring-buffer updates follow the usual single-producer/single-consumer rule:
// data is copied with at most two linear memory transfers and the index word
// is written last, so a failed transfer never leaves an index pointing at
// bytes that were not moved.
package rtt
