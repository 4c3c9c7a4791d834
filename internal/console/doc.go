// Package console is an interactive Bubble Tea terminal for one RTT channel
// pair.
//
// The model polls an up channel on a tick and appends what arrives to a
// scrolling viewport. Lines typed into the input field go to the matching
// down channel when Enter is pressed. Reads and writes run as tea.Cmds so
// the UI never blocks on the probe.
//
//	err := console.Run(ctx, transport, console.Config{Up: 0, Down: 0})
//
// Keys: Enter sends, PgUp/PgDn scroll, Ctrl+L clears, Esc or Ctrl+C quits.
package console
