package pkg

import "errors"

// Bring-up errors. All of them are permanent for the controller's lifetime.
var (
	// ErrNoSuitableDivisor indicates no candidate clock divisor keeps the bus
	// within the device's rated frequency range.
	ErrNoSuitableDivisor = errors.New("no suitable clock divisor")

	// ErrEngineInitFailed indicates the sequencer or DMA capability rejected a
	// claim or configuration.
	ErrEngineInitFailed = errors.New("sequencer engine init failed")

	// ErrDeviceNotDetected indicates the identification handshake returned an
	// unexpected known-good-die byte.
	ErrDeviceNotDetected = errors.New("psram device not detected")
)

// Operation errors.
var (
	// ErrNotInitialized indicates a transfer was attempted before a successful
	// Init.
	ErrNotInitialized = errors.New("controller not initialized")

	// ErrControllerFaulted indicates the controller entered the terminal
	// Faulted state during bring-up.
	ErrControllerFaulted = errors.New("controller faulted")

	// ErrAddressOutOfRange indicates the transfer does not fit inside the
	// device's address space.
	ErrAddressOutOfRange = errors.New("address out of range")

	// ErrPayloadTooLarge indicates the transfer exceeds the scratch buffer.
	// Transfers are never split by the controller.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Caller errors.
var (
	// ErrInvalidConfig indicates a rejected bus configuration.
	ErrInvalidConfig = errors.New("invalid bus configuration")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrVerifyMismatch indicates read-back data differs from what was written.
	ErrVerifyMismatch = errors.New("verify mismatch")
)

// IsBringUpError reports whether err is one of the permanent bring-up
// failures.
func IsBringUpError(err error) bool {
	return errors.Is(err, ErrNoSuitableDivisor) ||
		errors.Is(err, ErrEngineInitFailed) ||
		errors.Is(err, ErrDeviceNotDetected)
}

// IsCallerError reports whether err was raised before any hardware access
// because of the arguments of the call.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrAddressOutOfRange) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidParameter)
}
