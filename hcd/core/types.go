package core

import "strings"

// MaxChannels is the largest channel count any core variant exposes.
const MaxChannels = 16

// Variant identifies a core design.
type Variant uint8

// Core variants.
const (
	VariantOTG Variant = iota // OTG-style core
	VariantDRD                // Dedicated full-speed core
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantOTG:
		return "otg"
	case VariantDRD:
		return "drd"
	default:
		return "unknown"
	}
}

// Mode is the operating mode of a dual-role controller.
type Mode uint8

// Controller modes.
const (
	ModeDevice Mode = iota
	ModeHost
)

// Speed represents a USB bus speed.
type Speed uint8

// USB speed constants.
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a short speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PHY selects the transceiver attached to an OTG core.
type PHY uint8

// PHY options.
const (
	PHYEmbedded PHY = iota // On-chip full-speed PHY
	PHYULPI                // External ULPI high-speed PHY
)

// EndpointType is the transfer type of the endpoint a channel addresses.
// Values match the bmAttributes encoding.
type EndpointType uint8

// Endpoint types.
const (
	EndpointControl     EndpointType = 0
	EndpointIsochronous EndpointType = 1
	EndpointBulk        EndpointType = 2
	EndpointInterrupt   EndpointType = 3
)

// String returns the endpoint type name.
func (t EndpointType) String() string {
	switch t {
	case EndpointControl:
		return "control"
	case EndpointIsochronous:
		return "isochronous"
	case EndpointBulk:
		return "bulk"
	case EndpointInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Periodic reports whether the endpoint is scheduled per frame.
func (t EndpointType) Periodic() bool {
	return t == EndpointIsochronous || t == EndpointInterrupt
}

// Direction is the data direction of a channel.
type Direction uint8

// Directions.
const (
	DirOut Direction = iota // Host to device
	DirIn                   // Device to host
)

// String returns "in" or "out".
func (d Direction) String() string {
	if d == DirIn {
		return "in"
	}
	return "out"
}

// PID is the data PID programmed for the next transaction. Values follow
// the OTG transfer-size register encoding.
type PID uint8

// Data PIDs.
const (
	PIDData0 PID = 0
	PIDData2 PID = 1
	PIDData1 PID = 2
	PIDSetup PID = 3 // SETUP token, MDATA on periodic high-speed endpoints
)

// String returns the PID name.
func (p PID) String() string {
	switch p {
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDData2:
		return "DATA2"
	case PIDSetup:
		return "SETUP"
	default:
		return "unknown"
	}
}

// SplitPosition is the isochronous OUT start-split transaction position.
// The zero value means no large transfer is in progress.
type SplitPosition uint8

// Split positions.
const (
	SplitNone   SplitPosition = iota
	SplitBegin                // First 188-byte piece of a larger payload
	SplitMiddle               // Intermediate piece
	SplitEnd                  // Last piece
	SplitAll                  // Whole payload fits one split
)

// Event is a set of decoded per-channel hardware events.
type Event uint16

// Channel events. IN and OUT channels report from the same vocabulary; the
// subset a direction raises depends on the variant.
const (
	EventXferComplete Event = 1 << iota // Transfer completed
	EventHalted                         // Channel halted
	EventBusErr                         // AHB/DMA bus error
	EventStall                          // STALL response
	EventNak                            // NAK response
	EventAck                            // ACK response
	EventNyet                           // NYET response
	EventXactErr                        // Transaction error (CRC, timeout, bit stuff)
	EventBabble                         // Babble error
	EventFrameOverrun                   // Frame overrun
	EventToggleErr                      // Data toggle error
)

var eventNames = [...]string{
	"xfrc", "halted", "buserr", "stall", "nak", "ack",
	"nyet", "xacterr", "babble", "frmor", "dterr",
}

// Has reports whether every event in x is set in e.
func (e Event) Has(x Event) bool {
	return x != 0 && e&x == x
}

// String returns the event names joined by "|".
func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var b strings.Builder
	for i, name := range eventNames {
		if e&(1<<i) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
	}
	return b.String()
}

// ParseEvent returns the event with the given name.
func ParseEvent(name string) (Event, bool) {
	for i, n := range eventNames {
		if n == name {
			return Event(1 << i), true
		}
	}
	return 0, false
}

// IntFlags is a set of global interrupt causes.
type IntFlags uint32

// Global interrupt causes.
const (
	IntPort         IntFlags = 1 << iota // Port status change
	IntDisconnect                        // Device disconnected
	IntSOF                               // Start of frame
	IntChannel                           // One or more channels pending
	IntRxLevel                           // Receive FIFO not empty
	IntWakeup                            // Remote wakeup
	IntSuspend                           // Bus suspended
	IntError                             // Bus error
	IntOverrun                           // Packet memory overrun
	IntIncompleteIso                     // Incomplete periodic transfer
	IntPeriodicTxEmpty                   // Periodic TX FIFO empty
	IntModeMismatch                      // Mode mismatch
)

// Interrupts is a single snapshot of a core's pending interrupts.
type Interrupts struct {
	Flags    IntFlags
	Channels uint32 // Bitmap of logical channels with pending events
}

// Pending reports whether anything is pending.
func (i Interrupts) Pending() bool {
	return i.Flags != 0 || i.Channels != 0
}

// ChannelStatus is a decoded snapshot of one channel's interrupt state.
// Every field comes from the same register read.
type ChannelStatus struct {
	Dir    Direction
	Events Event

	// Count is the byte count of the packet that completed, for cores that
	// report per-packet completion.
	Count int

	// Slot is the double-buffer slot that completed and SoftwareSlot the slot
	// software currently owns, both inferred from the toggle snapshot.
	Slot           int
	SoftwareSlot   int
	DoubleBuffered bool
	Isochronous    bool

	// TxNak reports that the transmit status field reads NAK.
	TxNak bool

	// Residual is the transfer-size register remainder and Packets the
	// remaining packet count, for cores with hardware packet sequencing.
	Residual int
	Packets  int
}

// PortStatus is a snapshot of the host port.
type PortStatus struct {
	Attached           bool  // Line state shows a device
	ConnectDetected    bool  // Hardware latched a connect
	Enabled            bool  // Port enabled
	EnableChanged      bool  // Enable state changed
	OverCurrentChanged bool  // Over-current state changed
	LowSpeed           bool  // Low-speed device attached
	Speed              Speed // Negotiated speed when enabled
}

// EndpointStatus is the transmit or receive status of a packet-memory
// channel.
type EndpointStatus uint8

// Endpoint statuses.
const (
	StatusDisabled EndpointStatus = iota
	StatusStall
	StatusNak
	StatusValid
)

// RxKind classifies a receive FIFO entry.
type RxKind uint8

// Receive FIFO entry kinds.
const (
	RxInData     RxKind = 2 // IN data packet received
	RxInComplete RxKind = 3 // IN transfer completed
	RxToggleErr  RxKind = 5 // Data toggle error
	RxHalted     RxKind = 7 // Channel halted
)

// RxStatus is one popped receive FIFO status entry.
type RxStatus struct {
	Channel uint8
	Kind    RxKind
	Count   int
	PID     PID
}

// ParseVariant returns the variant with the given name.
func ParseVariant(s string) (Variant, bool) {
	for _, v := range []Variant{VariantOTG, VariantDRD} {
		if strings.EqualFold(v.String(), s) {
			return v, true
		}
	}
	return 0, false
}

// ParseSpeed returns the speed with the given name.
func ParseSpeed(s string) (Speed, bool) {
	for sp := SpeedLow; sp <= SpeedHigh; sp++ {
		if strings.EqualFold(sp.String(), s) {
			return sp, true
		}
	}
	return SpeedUnknown, false
}

// ParseEndpointType accepts the endpoint type names and "iso".
func ParseEndpointType(s string) (EndpointType, bool) {
	if strings.EqualFold(s, "iso") {
		return EndpointIsochronous, true
	}
	for t := EndpointControl; t <= EndpointInterrupt; t++ {
		if strings.EqualFold(t.String(), s) {
			return t, true
		}
	}
	return 0, false
}

// ParsePHY maps "ulpi" to PHYULPI and "" or "embedded" to PHYEmbedded.
func ParsePHY(s string) (PHY, bool) {
	switch strings.ToLower(s) {
	case "", "embedded":
		return PHYEmbedded, true
	case "ulpi":
		return PHYULPI, true
	}
	return 0, false
}
