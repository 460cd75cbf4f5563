package pkg

import "errors"

// Channel and request errors.
var (
	// ErrInvalidChannel indicates a channel index outside the core's range.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrNotConfigured indicates a channel that has not been configured.
	ErrNotConfigured = errors.New("channel not configured")

	// ErrBusy indicates a transfer is still armed on the channel.
	ErrBusy = errors.New("channel busy")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotSupported indicates the core variant lacks a feature.
	ErrNotSupported = errors.New("not supported")
)

// Hardware errors.
var (
	// ErrCoreFault indicates a core start/halt/init primitive failed.
	ErrCoreFault = errors.New("core fault")

	// ErrTimeout indicates a bounded wait on hardware expired.
	ErrTimeout = errors.New("hardware timeout")

	// ErrNoResources indicates exhausted channels or packet memory.
	ErrNoResources = errors.New("no resources available")

	// ErrNotHostMode indicates the dual-role controller is in device mode.
	ErrNotHostMode = errors.New("controller not in host mode")
)

// Driver lifecycle errors.
var (
	// ErrAlreadyRunning indicates the driver is already started.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the driver is not started.
	ErrNotRunning = errors.New("not running")

	// ErrNotInitialized indicates Init has not completed.
	ErrNotInitialized = errors.New("not initialized")
)
