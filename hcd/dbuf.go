package hcd

import (
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Cores without a halt handshake report one event per packet and the engine
// sequences the transfer itself. Terminal outcomes retire the channel at
// once.
var (
	immediateIn = ruleSet{
		{
			{core.EventXactErr, packetError},
			{core.EventAck, inPacket},
			{core.EventNak, inPacketNak},
			{core.EventStall, packetStall},
		},
	}

	immediateOut = ruleSet{
		{
			{core.EventXactErr, packetError},
			{core.EventAck, outPacket},
			{core.EventNak, outPacketNak},
			{core.EventStall, packetStall},
		},
	}
)

func packetError(d *Driver, c *Channel, _ *core.ChannelStatus) {
	c.errCount++
	c.state = StateXactErr
	if c.errCount > d.errLimit {
		d.pmem.SetStatus(&c.hw, core.StatusDisabled)
		pkg.LogWarn(pkg.ComponentChannel, "retries exhausted", "ch", c.hw.Num, "dir", c.hw.Dir.String())
		d.retire(c, URBError)
		return
	}
	d.report(c, URBNotReady)
}

func packetStall(d *Driver, c *Channel, _ *core.ChannelStatus) {
	d.halt(c)
	c.state = StateStall
	d.retire(c, URBStall)
}

func inPacketNak(d *Driver, c *Channel, _ *core.ChannelStatus) {
	if c.urb == URBDone {
		return
	}
	c.errCount = 0
	c.state = StateNak
	if c.hw.Type == core.EndpointInterrupt {
		d.pmem.SetStatus(&c.hw, core.StatusDisabled)
	}
	d.report(c, URBNotReady)
}

func outPacketNak(d *Driver, c *Channel, _ *core.ChannelStatus) {
	c.errCount = 0
	c.state = StateNak
	// A double-buffered pipe keeps alternating on its own.
	if c.hw.DoubleBuffer {
		return
	}
	d.report(c, URBNotReady)
}

// inPacket consumes one received packet.
func inPacket(d *Driver, c *Channel, st *core.ChannelStatus) {
	switch {
	case st.Isochronous:
		d.isoIn(c, st)
		return
	case st.DoubleBuffered:
		d.doubleIn(c, st)
		return
	}

	hw := &c.hw
	n := st.Count
	if hw.Count+n > hw.Length {
		d.overflow(c, n)
		return
	}
	got := d.pmem.ReadBuffer(hw, core.SingleSlot, hw.Buffer[hw.Offset:hw.Offset+n])
	d.advance(c, got)
	c.state = StateAck
	c.errCount = 0
	if c.toggles() {
		c.flipIn()
	}

	if hw.Remaining == 0 || got < int(hw.MaxPacket) {
		c.state = StateXferDone
		d.retire(c, URBDone)
		return
	}
	d.rearm(c)
}

// outPacket accounts for one acknowledged packet and sends the next.
func outPacket(d *Driver, c *Channel, st *core.ChannelStatus) {
	switch {
	case st.Isochronous:
		d.isoOut(c, st)
		return
	case st.DoubleBuffered:
		d.doubleOut(c, st)
		return
	}

	hw := &c.hw
	n := min(st.Count, hw.Remaining)
	hw.Remaining -= n
	hw.Offset += n
	hw.Count += n
	c.state = StateAck
	c.errCount = 0
	if c.toggles() {
		c.flipOut()
		hw.PID = pidOf(c.toggleOut)
	}

	if hw.Remaining > 0 {
		if err := d.core.StartChannel(hw); err != nil {
			pkg.LogError(pkg.ComponentChannel, "next packet failed", "ch", hw.Num, "err", err)
			d.retire(c, URBError)
		}
		return
	}
	c.state = StateXferDone
	d.retire(c, URBDone)
}

// doubleOut handles the acknowledgement of one slot of a double-buffered
// bulk OUT pipe. The completed slot is refilled with the next unsent packet
// while hardware transmits the other one.
func (d *Driver) doubleOut(c *Channel, st *core.ChannelStatus) {
	hw := &c.hw
	n := min(d.pmem.BufferCount(hw, st.Slot), hw.Remaining)
	hw.Remaining -= n
	hw.Count += n
	c.errCount = 0
	c.flipOut()

	pkg.LogDebug(pkg.ComponentDBuf, "out slot acknowledged",
		"ch", hw.Num, "slot", st.Slot, "bytes", n, "remaining", hw.Remaining)

	if hw.Remaining == 0 {
		c.state = StateXferDone
		d.pmem.SetStatus(hw, core.StatusDisabled)
		d.retire(c, URBDone)
		return
	}

	if st.Slot == st.SoftwareSlot {
		d.pmem.ReleaseBuffer(hw)
	}
	if hw.Fill < hw.Length {
		end := min(hw.Fill+int(hw.MaxPacket), hw.Length)
		if err := d.pmem.FillBuffer(hw, st.Slot, hw.Buffer[hw.Fill:end]); err != nil {
			pkg.LogError(pkg.ComponentDBuf, "refill failed", "ch", hw.Num, "slot", st.Slot, "err", err)
			d.pmem.SetStatus(hw, core.StatusDisabled)
			d.retire(c, URBError)
			return
		}
		hw.Fill = end
	}
	c.state = StateAck
	d.pmem.SetStatus(hw, core.StatusValid)
}

// doubleIn drains one slot of a double-buffered bulk IN pipe.
func (d *Driver) doubleIn(c *Channel, st *core.ChannelStatus) {
	hw := &c.hw
	n := d.pmem.BufferCount(hw, st.Slot)
	if hw.Count+n > hw.Length {
		d.overflow(c, n)
		return
	}
	if hw.Remaining-n > 0 && st.Slot == st.SoftwareSlot {
		d.pmem.ReleaseBuffer(hw)
	}
	got := d.pmem.ReadBuffer(hw, st.Slot, hw.Buffer[hw.Offset:hw.Offset+n])
	d.advance(c, got)
	c.state = StateAck
	c.errCount = 0
	c.flipIn()

	pkg.LogDebug(pkg.ComponentDBuf, "in slot drained",
		"ch", hw.Num, "slot", st.Slot, "bytes", got, "remaining", hw.Remaining)

	if hw.Remaining == 0 || got < int(hw.MaxPacket) {
		c.state = StateXferDone
		d.pmem.SetStatus(hw, core.StatusDisabled)
		d.retire(c, URBDone)
		return
	}
	d.pmem.SetStatus(hw, core.StatusValid)
}

// isoIn takes the packet of one frame.
func (d *Driver) isoIn(c *Channel, st *core.ChannelStatus) {
	hw := &c.hw
	slot := core.SingleSlot
	if st.DoubleBuffered {
		slot = st.Slot
	}
	n := min(d.pmem.BufferCount(hw, slot), hw.Length-hw.Count)
	if n > 0 {
		got := d.pmem.ReadBuffer(hw, slot, hw.Buffer[hw.Offset:hw.Offset+n])
		d.advance(c, got)
	}
	c.state = StateXferDone
	d.retire(c, URBDone)
}

// isoOut completes the packet of one frame.
func (d *Driver) isoOut(c *Channel, st *core.ChannelStatus) {
	hw := &c.hw
	if st.DoubleBuffered {
		if err := d.pmem.FillBuffer(hw, st.Slot, nil); err != nil {
			pkg.LogWarn(pkg.ComponentDBuf, "clear slot", "ch", hw.Num, "err", err)
		}
		d.pmem.SetStatus(hw, core.StatusDisabled)
	}
	hw.Count = hw.Length
	hw.Remaining = 0
	c.state = StateXferDone
	d.retire(c, URBDone)
}

func (d *Driver) advance(c *Channel, n int) {
	c.hw.Offset += n
	c.hw.Count += n
	c.hw.Remaining = max(c.hw.Remaining-n, 0)
}

// overflow handles a device sending more than was requested.
func (d *Driver) overflow(c *Channel, n int) {
	pkg.LogWarn(pkg.ComponentChannel, "receive overflow",
		"ch", c.hw.Num, "bytes", n, "count", c.hw.Count, "len", c.hw.Length)
	c.state = StateBabble
	c.errCount++
	d.pmem.SetStatus(&c.hw, core.StatusDisabled)
	d.retire(c, URBError)
}
