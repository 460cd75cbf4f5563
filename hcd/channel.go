package hcd

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Channel is the per-channel record of the engine. Records live in a fixed
// array inside the Driver and are addressed by index.
type Channel struct {
	hw core.Channel

	state ChannelState
	urb   URBState

	toggleIn  uint8
	toggleOut uint8

	errCount  uint8
	nyetCount uint8

	// reschedule asks the caller to restart a split from the start-split
	// phase after the complete-split phase was abandoned.
	reschedule bool

	configured bool
	armed      bool

	// aborting marks a halt request the hardware has not confirmed. The
	// channel cannot take a new transfer until the confirmation arrives.
	aborting bool
}

// ChannelConfig describes the endpoint a channel addresses.
type ChannelConfig struct {
	EndpointAddress uint8 // Endpoint number with the 0x80 IN bit
	DeviceAddress   uint8
	Speed           core.Speed // Device speed
	Type            core.EndpointType
	MaxPacket       uint16
}

// ChannelInfo is a read-only snapshot of a channel.
type ChannelInfo struct {
	Num           uint8
	Dir           core.Direction
	Type          core.EndpointType
	State         ChannelState
	URB           URBState
	Count         int
	ToggleIn      uint8
	ToggleOut     uint8
	ErrCount      uint8
	NyetCount     uint8
	StartSplit    bool
	CompleteSplit bool
	Reschedule    bool
	DoPing        bool
	Aborting      bool
}

func (c *Channel) busy() bool {
	return c.aborting || (c.armed && c.urb == URBIdle)
}

func (c *Channel) isIn() bool {
	return c.hw.Dir == core.DirIn
}

// controlOrBulk reports whether the endpoint is re-armed in place after a
// retryable halt.
func (c *Channel) controlOrBulk() bool {
	return c.hw.Type == core.EndpointControl || c.hw.Type == core.EndpointBulk
}

func (c *Channel) toggles() bool {
	return c.hw.Type == core.EndpointBulk || c.hw.Type == core.EndpointInterrupt
}

func (c *Channel) flipIn()  { c.toggleIn ^= 1 }
func (c *Channel) flipOut() { c.toggleOut ^= 1 }

func pidOf(toggle uint8) core.PID {
	if toggle != 0 {
		return core.PIDData1
	}
	return core.PIDData0
}

func (c *Channel) info() ChannelInfo {
	return ChannelInfo{
		Num:           c.hw.Num,
		Dir:           c.hw.Dir,
		Type:          c.hw.Type,
		State:         c.state,
		URB:           c.urb,
		Count:         c.hw.Count,
		ToggleIn:      c.toggleIn,
		ToggleOut:     c.toggleOut,
		ErrCount:      c.errCount,
		NyetCount:     c.nyetCount,
		StartSplit:    c.hw.StartSplit,
		CompleteSplit: c.hw.CompleteSplit,
		Reschedule:    c.reschedule,
		DoPing:        c.hw.DoPing,
		Aborting:      c.aborting,
	}
}

// channel validates n and returns its record.
func (d *Driver) channel(n uint8) (*Channel, error) {
	if int(n) >= d.nch {
		return nil, fmt.Errorf("%w: %d (have %d)", pkg.ErrInvalidChannel, n, d.nch)
	}
	return &d.ch[n], nil
}

// ConfigureChannel binds channel n to an endpoint. Hub routing is cleared
// and the channel is left HALTED, ready for SubmitTransfer.
func (d *Driver) ConfigureChannel(n uint8, cfg ChannelConfig) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	if c.busy() {
		return fmt.Errorf("configure channel %d: %w", n, pkg.ErrBusy)
	}
	if cfg.MaxPacket == 0 {
		return fmt.Errorf("%w: channel %d max packet 0", pkg.ErrInvalidParameter, n)
	}

	if c.configured {
		// Release variant resources held by the previous binding.
		if err := d.core.CloseChannel(&c.hw); err != nil {
			pkg.LogWarn(pkg.ComponentChannel, "close before reconfigure", "ch", n, "err", err)
		}
	}

	hw := core.Channel{
		Num:       n,
		EPNum:     cfg.EndpointAddress & 0x0F,
		Dir:       core.DirOut,
		DevAddr:   cfg.DeviceAddress,
		Speed:     cfg.Speed,
		Type:      cfg.Type,
		MaxPacket: cfg.MaxPacket,
	}
	if cfg.EndpointAddress&0x80 != 0 {
		hw.Dir = core.DirIn
	}
	*c = Channel{hw: hw, state: StateHalted}

	if err := d.core.InitChannel(&c.hw); err != nil {
		return fmt.Errorf("%w: init channel %d: %w", pkg.ErrCoreFault, n, err)
	}
	c.configured = true

	pkg.LogDebug(pkg.ComponentChannel, "channel configured",
		"ch", n,
		"ep", fmt.Sprintf("0x%02x", cfg.EndpointAddress),
		"dev", cfg.DeviceAddress,
		"type", cfg.Type.String(),
		"mps", cfg.MaxPacket)
	return nil
}

// SetHubRouting records the high-speed hub a full/low-speed device sits
// behind. Split transactions are enabled when the device is slower than a
// high-speed port.
func (d *Driver) SetHubRouting(n uint8, hubAddr, hubPort uint8) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	hw := &c.hw
	if hw.Speed != core.SpeedHigh && d.core.PortSpeed() == core.SpeedHigh {
		hw.StartSplit = true
		if hw.Type == core.EndpointControl && hw.Dir == core.DirIn {
			c.toggleIn = 1
		}
	}
	hw.HubAddr = hubAddr
	hw.HubPort = hubPort
	pkg.LogDebug(pkg.ComponentSplit, "hub routing set",
		"ch", n, "hub", hubAddr, "port", hubPort, "split", hw.StartSplit)
	return nil
}

// ClearHubRouting removes hub routing and split state from channel n.
func (d *Driver) ClearHubRouting(n uint8) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	clearHub(c)
	return nil
}

func clearHub(c *Channel) {
	c.hw.StartSplit = false
	c.hw.CompleteSplit = false
	c.hw.HubAddr = 0
	c.hw.HubPort = 0
	c.reschedule = false
}

// HaltChannel aborts the transfer on channel n. Halting a HALTED channel is
// a no-op. On cores with a halt handshake the call spins, bounded, until the
// hardware confirms; without confirmation the channel stays busy until a
// later Halted event or CloseChannel.
func (d *Driver) HaltChannel(n uint8) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	if c.state == StateHalted && !c.aborting {
		return nil
	}
	if err := d.core.HaltChannel(&c.hw); err != nil {
		c.aborting = true
		return fmt.Errorf("%w: halt channel %d: %w", pkg.ErrCoreFault, n, err)
	}

	if !d.feat.HaltHandshake {
		d.aborted(c)
		return nil
	}
	for i := 0; i < haltSpinLimit; i++ {
		st := d.core.ChannelStatus(n)
		if st.Events.Has(core.EventHalted) {
			d.core.ClearChannel(n, st.Events)
			d.aborted(c)
			pkg.LogDebug(pkg.ComponentChannel, "channel aborted", "ch", n, "polls", i+1)
			return nil
		}
	}
	c.aborting = true
	pkg.LogWarn(pkg.ComponentChannel, "halt not confirmed", "ch", n)
	return fmt.Errorf("%w: halt channel %d", pkg.ErrTimeout, n)
}

// aborted settles a confirmed abort.
func (d *Driver) aborted(c *Channel) {
	c.armed = false
	c.aborting = false
	c.state = StateHalted
}

// CloseChannel halts channel n, releases its core resources, and marks it
// unconfigured.
func (d *Driver) CloseChannel(n uint8) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	if !c.configured {
		return nil
	}
	herr := d.HaltChannel(n)
	if err := d.core.CloseChannel(&c.hw); err != nil {
		return fmt.Errorf("%w: close channel %d: %w", pkg.ErrCoreFault, n, err)
	}
	c.state = StateHalted
	c.configured = false
	c.armed = false
	c.aborting = false
	return herr
}

// URBState returns the URB state of channel n, or URBIdle when n is out of
// range.
func (d *Driver) URBState(n uint8) URBState {
	if int(n) >= d.nch {
		return URBIdle
	}
	return d.ch[n].urb
}

// TransferCount returns the bytes transferred on channel n so far.
func (d *Driver) TransferCount(n uint8) int {
	if int(n) >= d.nch {
		return 0
	}
	return d.ch[n].hw.Count
}

// ChannelState returns the protocol state of channel n.
func (d *Driver) ChannelState(n uint8) ChannelState {
	if int(n) >= d.nch {
		return StateHalted
	}
	return d.ch[n].state
}

// Channel returns a snapshot of channel n.
func (d *Driver) Channel(n uint8) (ChannelInfo, error) {
	c, err := d.channel(n)
	if err != nil {
		return ChannelInfo{}, err
	}
	return c.info(), nil
}
