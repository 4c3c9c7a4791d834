// Package openocd is a client for the OpenOCD Tcl server (port 6666 by
// default). It implements memory.Interface with the read_memory and
// write_memory commands, which lets the RTT transport run against a live
// target while OpenOCD owns the probe session.
//
// Each command is sent as text terminated by 0x1a and the reply comes back
// terminated the same way. Transfers larger than Config.ChunkSize are split
// into several commands.
//
// Unlike a GDB attach, memory access through the Tcl port works on a
// running core, so RTT polling does not stop the firmware.
package openocd
