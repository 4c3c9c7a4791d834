// Package logging provides structured logging for crashprobe.
//
// This package wraps a zap logger with convenience functions used by the CLI
// and by components that were not handed a logger of their own. Components
// that do real work (the RTT transport, the OpenOCD client) take an injected
// *zap.Logger; the CLI passes GetLogger() to them.
//
// # Log Levels
//
//   - Debug: every probe memory transaction with hex dumps, descriptor reads
//   - Info: attach results, channel discovery, analysis summaries
//   - Warn: retries, dropped RTT bytes, unresolved control block hints
//   - Error: failures surfaced to the user
//
// # Configuration
//
// Logging is silent unless a level is requested, so CLI output stays clean:
//
//	if err := logging.Initialize(logLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When the level is empty the CRASHPROBE_LOG_LEVEL environment variable is
// consulted. Valid values are "debug", "info", "warn" and "error".
//
// # Memory Transactions
//
//	logging.LogMemoryAccess("read", 0x20000400, data)
//
// logs the address, length, and a bounded hex/ASCII dump at debug level.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
