// Package coredump decodes the Zephyr "#CD:" coredump that a crashing
// Cortex-M target prints to its log.
//
// The target emits the dump as hex text between two marker lines:
//
//	[00:00:01.234,567] <err> coredump: #CD:BEGIN#
//	[00:00:01.234,570] <err> coredump: #CD:5a4502000300050000000000
//	...
//	[00:00:01.235,002] <err> coredump: #CD:END#
//
// Extract strips log decoration and reassembles the binary record. Parse
// decodes it into a Record: a 12-byte header followed by tagged blocks.
//
//	'A'  architecture block: the hardware exception frame registers
//	'M'  memory block: a captured address range, usually the faulting stack
//	'T'  thread metadata (kept opaque)
//
// Register layouts are closed schemas keyed by the architecture block
// version. An unknown version is rejected rather than guessed at.
//
// Encode and EncodeLog produce the same format for tests and simulators,
// and WriteELF turns a Record into an ELF core file that GDB can load
// alongside the firmware image.
package coredump
