package hcd

import "strings"

// ChannelState is the protocol state of a channel.
type ChannelState uint8

// Channel protocol states.
const (
	StateIdle       ChannelState = iota // Armed, no event yet
	StateXferDone                       // Transfer complete (XFRC)
	StateHalted                         // Halt confirmed
	StateNak                            // NAK received
	StateNyet                           // NYET received
	StateStall                          // STALL received
	StateXactErr                        // Transaction error
	StateBabble                         // Babble error
	StateToggleErr                      // Data toggle error
	StateAck                            // ACK awaiting follow-up (split or PING)
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateXferDone:
		return "XFRC"
	case StateHalted:
		return "HALTED"
	case StateNak:
		return "NAK"
	case StateNyet:
		return "NYET"
	case StateStall:
		return "STALL"
	case StateXactErr:
		return "XACTERR"
	case StateBabble:
		return "BBLERR"
	case StateToggleErr:
		return "DATATGLERR"
	case StateAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// URBState is the caller-visible state of the URB on a channel.
type URBState uint8

// URB states.
const (
	URBIdle     URBState = iota // In progress or never submitted
	URBDone                     // Completed
	URBNotReady                 // Not ready, caller may resubmit
	URBError                    // Failed after retries
	URBStall                    // Endpoint stalled
)

// String returns the URB state name.
func (s URBState) String() string {
	switch s {
	case URBIdle:
		return "IDLE"
	case URBDone:
		return "DONE"
	case URBNotReady:
		return "NOTREADY"
	case URBError:
		return "ERROR"
	case URBStall:
		return "STALL"
	default:
		return "UNKNOWN"
	}
}

// ParseURBState returns the URB state for a case-insensitive name.
func ParseURBState(s string) (URBState, bool) {
	for st := URBIdle; st <= URBStall; st++ {
		if strings.EqualFold(st.String(), s) {
			return st, true
		}
	}
	return URBIdle, false
}

// Terminal reports whether the URB state ends a transfer.
func (s URBState) Terminal() bool {
	return s == URBDone || s == URBError || s == URBStall
}

// PortState is the connection state of the host port.
type PortState uint8

// Port states.
const (
	PortDisconnected PortState = iota
	PortConnected
	PortReset
	PortSuspended
	PortResumed
	PortRunning
)

// String returns the port state name.
func (s PortState) String() string {
	switch s {
	case PortDisconnected:
		return "disconnected"
	case PortConnected:
		return "connected"
	case PortReset:
		return "reset"
	case PortSuspended:
		return "suspended"
	case PortResumed:
		return "resumed"
	case PortRunning:
		return "running"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a Driver.
type State uint8

// Driver states.
const (
	DriverReset  State = iota // Not initialized
	DriverReady               // Initialized, stopped
	DriverActive              // Started
	DriverFault               // Core failed during Init
)

// String returns the driver state name.
func (s State) String() string {
	switch s {
	case DriverReset:
		return "reset"
	case DriverReady:
		return "ready"
	case DriverActive:
		return "active"
	case DriverFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Retry policy. Exceeding a bound is the only path to URBError from a
// retryable event class.
const (
	otgErrorLimit = 2 // OTG transaction/toggle errors
	otgNyetLimit  = 2 // OTG interrupt complete-split NYETs
	drdErrorLimit = 3 // DRD transaction errors

	// rescheduleErrorCeiling is the error count below which an exhausted
	// complete-split asks for a fresh start-split.
	rescheduleErrorCeiling = 3
)

// haltSpinLimit bounds the wait for a halt confirmation in HaltChannel.
const haltSpinLimit = 1000
