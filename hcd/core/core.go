package core

// Core is the operation set every core variant provides.
//
// Methods never block except ResetPort, SuspendPort, and ResumePort
// sequencing and the bounded spin some cores use inside HaltChannel.
// Implementations are not safe for concurrent use; the engine serializes
// calls.
type Core interface {
	// Variant identifies the design.
	Variant() Variant

	// Features reports the behavior the engine must adapt to.
	Features() Features

	// NumChannels returns the number of hardware host channels.
	NumChannels() int

	// Lifecycle

	// Init brings the core up in host mode with interrupts masked.
	Init(cfg Config) error

	// Start enables interrupts and port power.
	Start() error

	// Stop disables interrupts, halts every channel, and removes port power.
	Stop() error

	// Mode returns the current controller mode.
	Mode() Mode

	// Channel operations

	// InitChannel programs endpoint characteristics and interrupt masks.
	InitChannel(ch *Channel) error

	// StartChannel arms the channel for the transfer described by ch.
	StartChannel(ch *Channel) error

	// HaltChannel requests that the channel stop.
	HaltChannel(ch *Channel) error

	// CloseChannel releases any resources bound to the channel.
	CloseChannel(ch *Channel) error

	// ReactivateChannel re-arms a halted channel with its current
	// programming.
	ReactivateChannel(ch *Channel) error

	// SetCompleteSplit sets or clears the complete-split bit.
	SetCompleteSplit(ch *Channel, on bool)

	// NextFrame schedules a periodic channel for the next frame.
	NextFrame(ch *Channel)

	// Interrupts

	// ReadInterrupts returns one snapshot of pending interrupts.
	ReadInterrupts() Interrupts

	// ClearInterrupts acknowledges global interrupt causes.
	ClearInterrupts(f IntFlags)

	// ChannelStatus decodes the pending events of channel n.
	ChannelStatus(n uint8) ChannelStatus

	// ClearChannel acknowledges events on channel n.
	ClearChannel(n uint8, ev Event)

	// MaskChannel masks or unmasks events on channel n.
	MaskChannel(n uint8, ev Event, masked bool)

	// Port

	// PortStatus returns the current port status.
	PortStatus() PortStatus

	// AckPort acknowledges the change bits in st.
	AckPort(st PortStatus)

	// ResetPort asserts or releases bus reset.
	ResetPort(assert bool) error

	// SuspendPort suspends the port.
	SuspendPort() error

	// ResumePort asserts or releases resume signaling.
	ResumePort(assert bool) error

	// Flush discards FIFO or packet memory contents after a disconnect.
	Flush() error

	// CurrentFrame returns the current (micro)frame number.
	CurrentFrame() uint32

	// PortSpeed returns the negotiated port speed.
	PortSpeed() Speed
}

// FIFOReader is implemented by cores that deliver IN data through a shared
// receive FIFO.
type FIFOReader interface {
	// PopReceive pops the next receive status entry.
	PopReceive() RxStatus

	// ReadPacket copies the packet announced by the last PopReceive into
	// dst and returns the number of bytes copied.
	ReadPacket(dst []byte) int
}

// PacketMemory is implemented by cores with per-channel packet buffers.
// Slot -1 addresses the single buffer of a channel that is not double
// buffered.
type PacketMemory interface {
	// BufferCount returns the byte count recorded for a slot.
	BufferCount(ch *Channel, slot int) int

	// ReadBuffer copies a slot's received bytes into dst.
	ReadBuffer(ch *Channel, slot int, dst []byte) int

	// FillBuffer writes src into a slot and records its count.
	FillBuffer(ch *Channel, slot int, src []byte) error

	// ReleaseBuffer hands the software-owned slot back to hardware.
	ReleaseBuffer(ch *Channel)

	// SetStatus sets the status field for the channel's direction.
	SetStatus(ch *Channel, st EndpointStatus)
}

// SingleSlot addresses the single buffer of a channel.
const SingleSlot = -1
