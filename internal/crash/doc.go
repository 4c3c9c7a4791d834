// Package crash turns a decoded coredump and a symbol table into a crash
// report.
//
// The crash site comes straight from the hardware exception frame in the
// architecture block: PC is where the fault happened and LR is the caller
// at that moment. Anything deeper is recovered by Walk, which scans the
// captured stack for words that look like Thumb return addresses into code.
//
// The scan is a heuristic. There is no unwind information involved, so a
// stale return address left in an unused stack slot shows up as a frame
// just like a live one. Reports carry a note saying so.
package crash
