// Package memory defines the memory-access capability crashprobe needs from a
// debug probe, plus Image, a sparse in-memory implementation.
//
// Everything above this package (the RTT transport, boot validation) talks to
// the target only through Interface. The CLI backs it with an OpenOCD
// connection; tests and offline replays back it with an Image.
package memory
