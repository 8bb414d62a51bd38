// Package pkg provides shared utilities for the softpsram bus controller.
//
// This package contains common functionality used across the controller,
// its hardware abstraction layer and the helpers layered above it:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for the controller's error taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentLink, "quad mode active", "capacity", 8<<20)
//
// # Errors
//
// Errors are sentinel values matched with [errors.Is]:
//
//	if errors.Is(err, pkg.ErrDeviceNotDetected) {
//	    // check wiring and power
//	}
package pkg
