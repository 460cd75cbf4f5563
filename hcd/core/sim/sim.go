package sim

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Calls counts operations per channel.
type Calls struct {
	Init       int
	Start      int
	Halt       int
	Close      int
	Reactivate int
	NextFrame  int
	Release    int
}

type rxEntry struct {
	st   core.RxStatus
	data []byte
}

// Core is a software core. It is not safe for concurrent use.
type Core struct {
	variant  core.Variant
	channels int
	cfg      core.Config
	feat     core.Features
	mode     core.Mode
	running  bool

	flags   core.IntFlags
	pending [core.MaxChannels]core.ChannelStatus
	masks   [core.MaxChannels]core.Event
	csplit  [core.MaxChannels]bool
	packets [core.MaxChannels]int
	calls   [core.MaxChannels]Calls

	// Last programming seen by StartChannel.
	programmed [core.MaxChannels]core.Channel

	// Receive FIFO.
	rx  []rxEntry
	cur []byte

	// Packet memory: index 0 is the single buffer, 1 and 2 the slots.
	mem    [core.MaxChannels][3][]byte
	status [core.MaxChannels]core.EndpointStatus
	sent   [core.MaxChannels][][]byte

	port   core.PortStatus
	speed  core.Speed
	frame  uint32
	resets int
	flushs int

	// Halt confirmation can be suppressed to exercise the halt timeout.
	autoHalt bool

	startErr error
	flushErr error
}

var (
	_ core.Core         = (*Core)(nil)
	_ core.FIFOReader   = (*Core)(nil)
	_ core.PacketMemory = (*Core)(nil)
)

// New creates a simulator of variant v with core.MaxChannels channels.
func New(v core.Variant) *Core {
	return &Core{
		variant:  v,
		channels: core.MaxChannels,
		mode:     core.ModeHost,
		autoHalt: true,
	}
}

// SetChannels limits the number of channels the simulator reports.
func (c *Core) SetChannels(n int) {
	c.channels = n
}

// SetMode switches the reported controller mode.
func (c *Core) SetMode(m core.Mode) {
	c.mode = m
}

// SetAutoHalt enables or disables EventHalted on HaltChannel for handshake
// cores.
func (c *Core) SetAutoHalt(on bool) {
	c.autoHalt = on
}

// FailFlush makes every following Flush return err after discarding the
// FIFOs. A nil err restores normal operation.
func (c *Core) FailFlush(err error) {
	c.flushErr = err
}

// FailStart makes every following StartChannel return err. A nil err
// restores normal operation.
func (c *Core) FailStart(err error) {
	c.startErr = err
}

// Core interface

func (c *Core) Variant() core.Variant  { return c.variant }
func (c *Core) Features() core.Features { return c.feat }
func (c *Core) NumChannels() int        { return c.channels }
func (c *Core) Mode() core.Mode         { return c.mode }

func (c *Core) Init(cfg core.Config) error {
	if err := cfg.Validate(c.channels); err != nil {
		return err
	}
	c.cfg = cfg
	otg := c.variant == core.VariantOTG
	c.feat = core.Features{
		HaltHandshake:      otg,
		DMA:                otg && cfg.DMA,
		HighSpeed:          otg && cfg.Speed == core.SpeedHigh,
		LatchedPortChanges: otg,
	}
	pkg.LogDebug(pkg.ComponentSim, "core initialized",
		"variant", c.variant.String(), "channels", cfg.Channels, "dma", c.feat.DMA)
	return nil
}

func (c *Core) Start() error {
	c.running = true
	return nil
}

func (c *Core) Stop() error {
	c.running = false
	return nil
}

// Running reports whether Start was called without a later Stop.
func (c *Core) Running() bool {
	return c.running
}

func (c *Core) check(ch *core.Channel) error {
	if int(ch.Num) >= c.channels {
		return fmt.Errorf("%w: %d", pkg.ErrInvalidChannel, ch.Num)
	}
	return nil
}

func (c *Core) InitChannel(ch *core.Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	n := ch.Num
	c.calls[n].Init++
	c.pending[n] = core.ChannelStatus{}
	c.masks[n] = 0
	c.csplit[n] = false
	c.mem[n] = [3][]byte{}
	c.sent[n] = nil
	if c.variant == core.VariantDRD {
		switch ch.Type {
		case core.EndpointBulk:
			ch.DoubleBuffer = c.cfg.BulkDoubleBuffer
		case core.EndpointIsochronous:
			ch.DoubleBuffer = c.cfg.IsoDoubleBuffer
		}
		ch.Phy = n
	}
	return nil
}

func (c *Core) StartChannel(ch *core.Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	if c.startErr != nil {
		return c.startErr
	}
	n := ch.Num
	c.calls[n].Start++
	c.packets[n] = ch.Packets(ch.Size)
	c.csplit[n] = ch.CompleteSplit

	if c.variant == core.VariantDRD && ch.Dir == core.DirOut {
		if ch.DoubleBuffer && ch.Fill == 0 {
			// Prime both slots.
			for slot := 0; slot < 2 && ch.Fill < ch.Length; slot++ {
				end := min(ch.Fill+int(ch.MaxPacket), ch.Length)
				c.load(n, slot, ch.Buffer[ch.Fill:end])
				ch.Fill = end
			}
		} else if !ch.DoubleBuffer {
			end := min(ch.Offset+int(ch.MaxPacket), ch.Length)
			c.load(n, core.SingleSlot, ch.Buffer[ch.Offset:end])
			ch.Fill = end
		}
	}

	prog := *ch
	prog.Buffer = nil
	c.programmed[n] = prog
	return nil
}

func (c *Core) HaltChannel(ch *core.Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	c.calls[ch.Num].Halt++
	if c.feat.HaltHandshake && c.autoHalt {
		c.raise(ch.Num, core.ChannelStatus{Dir: ch.Dir, Events: core.EventHalted})
	}
	return nil
}

func (c *Core) CloseChannel(ch *core.Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	c.calls[ch.Num].Close++
	c.pending[ch.Num] = core.ChannelStatus{}
	return nil
}

func (c *Core) ReactivateChannel(ch *core.Channel) error {
	if err := c.check(ch); err != nil {
		return err
	}
	c.calls[ch.Num].Reactivate++
	return nil
}

func (c *Core) SetCompleteSplit(ch *core.Channel, on bool) {
	c.csplit[ch.Num] = on
}

func (c *Core) NextFrame(ch *core.Channel) {
	c.calls[ch.Num].NextFrame++
}

func (c *Core) ReadInterrupts() core.Interrupts {
	irq := core.Interrupts{Flags: c.flags}
	for n := 0; n < c.channels; n++ {
		if c.pending[n].Events != 0 {
			irq.Channels |= 1 << n
		}
	}
	if irq.Channels != 0 {
		irq.Flags |= core.IntChannel
	}
	if len(c.rx) > 0 {
		irq.Flags |= core.IntRxLevel
	}
	return irq
}

func (c *Core) ClearInterrupts(f core.IntFlags) {
	c.flags &^= f
}

func (c *Core) ChannelStatus(n uint8) core.ChannelStatus {
	if int(n) >= c.channels {
		return core.ChannelStatus{}
	}
	st := c.pending[n]
	st.Packets = c.packets[n]
	return st
}

func (c *Core) ClearChannel(n uint8, ev core.Event) {
	if int(n) < c.channels {
		c.pending[n].Events &^= ev
	}
}

func (c *Core) MaskChannel(n uint8, ev core.Event, masked bool) {
	if int(n) >= c.channels {
		return
	}
	if masked {
		c.masks[n] |= ev
	} else {
		c.masks[n] &^= ev
	}
}

func (c *Core) PortStatus() core.PortStatus {
	ps := c.port
	if ps.Enabled {
		ps.Speed = c.speed
	}
	return ps
}

func (c *Core) AckPort(st core.PortStatus) {
	if st.ConnectDetected {
		c.port.ConnectDetected = false
	}
	if st.EnableChanged {
		c.port.EnableChanged = false
	}
	if st.OverCurrentChanged {
		c.port.OverCurrentChanged = false
	}
}

func (c *Core) ResetPort(assert bool) error {
	if assert {
		c.resets++
		return nil
	}
	if c.port.Attached && c.variant == core.VariantOTG {
		c.port.Enabled = true
		c.port.EnableChanged = true
		c.flags |= core.IntPort
	}
	return nil
}

func (c *Core) SuspendPort() error {
	return nil
}

func (c *Core) ResumePort(bool) error {
	return nil
}

func (c *Core) Flush() error {
	c.flushs++
	c.rx = nil
	c.cur = nil
	for n := range c.mem {
		c.mem[n] = [3][]byte{}
	}
	return c.flushErr
}

func (c *Core) CurrentFrame() uint32 {
	return c.frame
}

func (c *Core) PortSpeed() core.Speed {
	if !c.port.Attached {
		return core.SpeedUnknown
	}
	return c.speed
}

// FIFOReader

func (c *Core) PopReceive() core.RxStatus {
	if len(c.rx) == 0 {
		return core.RxStatus{}
	}
	e := c.rx[0]
	c.rx = c.rx[1:]
	c.cur = e.data
	if e.st.Kind == core.RxInData && c.packets[e.st.Channel] > 0 {
		c.packets[e.st.Channel]--
	}
	return e.st
}

func (c *Core) ReadPacket(dst []byte) int {
	n := copy(dst, c.cur)
	c.cur = nil
	return n
}

// PacketMemory

func slotIndex(slot int) int {
	return slot + 1
}

func (c *Core) load(n uint8, slot int, src []byte) {
	buf := append([]byte(nil), src...)
	c.mem[n][slotIndex(slot)] = buf
	c.sent[n] = append(c.sent[n], buf)
}

func (c *Core) BufferCount(ch *core.Channel, slot int) int {
	return len(c.mem[ch.Num][slotIndex(slot)])
}

func (c *Core) ReadBuffer(ch *core.Channel, slot int, dst []byte) int {
	i := slotIndex(slot)
	n := copy(dst, c.mem[ch.Num][i])
	c.mem[ch.Num][i] = nil
	return n
}

func (c *Core) FillBuffer(ch *core.Channel, slot int, src []byte) error {
	if slot < core.SingleSlot || slot > 1 {
		return fmt.Errorf("%w: slot %d", pkg.ErrInvalidParameter, slot)
	}
	if len(src) == 0 {
		c.mem[ch.Num][slotIndex(slot)] = nil
		return nil
	}
	c.load(ch.Num, slot, src)
	return nil
}

func (c *Core) ReleaseBuffer(ch *core.Channel) {
	c.calls[ch.Num].Release++
}

func (c *Core) SetStatus(ch *core.Channel, st core.EndpointStatus) {
	c.status[ch.Num] = st
}
