// Package pkg provides shared utilities for the softhcd host controller
// driver.
//
// This package contains common functionality used by the channel engine,
// the core variants, and the simulator tooling:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for channel, hardware, and lifecycle failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentPort, "port enabled", "speed", "full")
//
// # Errors
//
// Entry points return sentinel values, possibly wrapped:
//
//	if errors.Is(err, pkg.ErrBusy) {
//	    // wait for the previous URB to reach a terminal state
//	}
package pkg
