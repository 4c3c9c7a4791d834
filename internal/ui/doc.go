// Package ui renders crashprobe's terminal output with Lipgloss and Bubble Tea.
//
// Commands follow a run-once pattern: a Header describes the operation and
// its parameters, a Runner prints step lines while the probe work runs, and
// a Result box reports the outcome with troubleshooting hints on failure.
// Boot validation draws a WaitBar (a Bubbles progress bar over the timeout)
// and shows the captured RTT text in a CaptureBox. RenderReport is the styled
// form of a crash report.
//
// Logging is independent of this package. With CRASHPROBE_LOG_LEVEL unset
// zap is silent and only the styled output appears.
package ui
