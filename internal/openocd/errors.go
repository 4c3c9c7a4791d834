package openocd

import "fmt"

// ConnectionError represents a failure to reach the OpenOCD Tcl server.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to OpenOCD at %s:%d: %v\n"+
		"Hint: Ensure OpenOCD is running with its Tcl server enabled (tcl_port %d).",
		e.Host, e.Port, e.Err, e.Port)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandError is returned when OpenOCD answers a command with something
// other than the expected result.
type CommandError struct {
	Command  string
	Response string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("openocd command %q failed: %s", e.Command, e.Response)
}
