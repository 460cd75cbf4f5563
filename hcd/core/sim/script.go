package sim

import (
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

func (c *Core) raise(n uint8, st core.ChannelStatus) {
	ev := c.pending[n].Events | st.Events
	c.pending[n] = st
	c.pending[n].Events = ev
}

// Raise sets events on channel n in direction dir.
func (c *Core) Raise(n uint8, dir core.Direction, ev core.Event) {
	if int(n) >= c.channels {
		return
	}
	st := c.pending[n]
	st.Dir = dir
	st.Events = ev
	c.raise(n, st)
	pkg.LogDebug(pkg.ComponentSim, "raise", "ch", n, "dir", dir.String(), "event", ev.String())
}

// RaiseStatus replaces the status of channel n with st, keeping events
// already pending.
func (c *Core) RaiseStatus(n uint8, st core.ChannelStatus) {
	if int(n) < c.channels {
		c.raise(n, st)
	}
}

// SetResidual sets the transfer-size remainder reported by ChannelStatus.
func (c *Core) SetResidual(n uint8, residual int) {
	if int(n) < c.channels {
		c.pending[n].Residual = residual
	}
}

// Receive queues one IN packet for channel n in the receive FIFO.
func (c *Core) Receive(n uint8, data []byte) {
	c.rx = append(c.rx, rxEntry{
		st:   core.RxStatus{Channel: n, Kind: core.RxInData, Count: len(data)},
		data: append([]byte(nil), data...),
	})
}

// ReceiveStatus queues a non-data receive FIFO entry.
func (c *Core) ReceiveStatus(n uint8, kind core.RxKind) {
	c.rx = append(c.rx, rxEntry{st: core.RxStatus{Channel: n, Kind: kind}})
}

// Deliver loads data into the single buffer of channel n and raises ACK
// with the packet count.
func (c *Core) Deliver(n uint8, data []byte) {
	c.mem[n][slotIndex(core.SingleSlot)] = append([]byte(nil), data...)
	c.RaiseStatus(n, core.ChannelStatus{
		Dir:    core.DirIn,
		Events: core.EventAck,
		Count:  len(data),
	})
}

// DeliverSlot loads data into a double-buffer slot of channel n and raises
// ACK for that slot. soft is the slot software owns after the toggle.
func (c *Core) DeliverSlot(n uint8, slot, soft int, data []byte) {
	c.mem[n][slotIndex(slot)] = append([]byte(nil), data...)
	c.RaiseStatus(n, core.ChannelStatus{
		Dir:            core.DirIn,
		Events:         core.EventAck,
		Count:          len(data),
		Slot:           slot,
		SoftwareSlot:   soft,
		DoubleBuffered: true,
		Isochronous:    c.programmed[n].Type == core.EndpointIsochronous,
	})
}

// AckOut raises ACK for the packet loaded in the single buffer of channel n.
func (c *Core) AckOut(n uint8) {
	c.RaiseStatus(n, core.ChannelStatus{
		Dir:         core.DirOut,
		Events:      core.EventAck,
		Count:       len(c.mem[n][slotIndex(core.SingleSlot)]),
		Isochronous: c.programmed[n].Type == core.EndpointIsochronous,
	})
}

// AckSlot raises ACK for a double-buffered OUT slot of channel n.
func (c *Core) AckSlot(n uint8, slot, soft int) {
	c.RaiseStatus(n, core.ChannelStatus{
		Dir:            core.DirOut,
		Events:         core.EventAck,
		Count:          len(c.mem[n][slotIndex(slot)]),
		Slot:           slot,
		SoftwareSlot:   soft,
		DoubleBuffered: true,
		Isochronous:    c.programmed[n].Type == core.EndpointIsochronous,
	})
}

// Connect attaches a device of speed s.
func (c *Core) Connect(s core.Speed) {
	c.speed = s
	c.port.Attached = true
	c.port.ConnectDetected = true
	c.port.LowSpeed = s == core.SpeedLow
	c.flags |= core.IntPort
	pkg.LogDebug(pkg.ComponentSim, "connect", "speed", s.String())
}

// Disconnect detaches the device.
func (c *Core) Disconnect() {
	c.port = core.PortStatus{EnableChanged: c.port.Enabled}
	if c.variant == core.VariantDRD {
		c.flags |= core.IntPort
	} else {
		c.flags |= core.IntDisconnect
	}
	pkg.LogDebug(pkg.ComponentSim, "disconnect")
}

// OverCurrent latches an over-current change.
func (c *Core) OverCurrent() {
	c.port.OverCurrentChanged = true
	c.flags |= core.IntPort
}

// SOF raises a start-of-frame and advances the frame number.
func (c *Core) SOF() {
	c.frame = (c.frame + 1) & 0x3FFF
	c.flags |= core.IntSOF
}

// Suspend raises a bus suspend.
func (c *Core) Suspend() {
	c.flags |= core.IntSuspend
}

// Wakeup raises a remote wakeup.
func (c *Core) Wakeup() {
	c.flags |= core.IntWakeup
}

// RaiseFlags sets arbitrary global causes.
func (c *Core) RaiseFlags(f core.IntFlags) {
	c.flags |= f
}

// Inspection

// Calls returns the operation counts of channel n.
func (c *Core) Calls(n uint8) Calls {
	return c.calls[n]
}

// Programmed returns the channel parameters of the last StartChannel on n.
func (c *Core) Programmed(n uint8) core.Channel {
	return c.programmed[n]
}

// CompleteSplit reports the complete-split bit of channel n.
func (c *Core) CompleteSplit(n uint8) bool {
	return c.csplit[n]
}

// Masked reports whether ev is masked on channel n.
func (c *Core) Masked(n uint8, ev core.Event) bool {
	return c.masks[n].Has(ev)
}

// Pending returns the events still pending on channel n.
func (c *Core) Pending(n uint8) core.Event {
	return c.pending[n].Events
}

// EndpointStatus returns the last packet-memory status set on channel n.
func (c *Core) EndpointStatus(n uint8) core.EndpointStatus {
	return c.status[n]
}

// Sent returns every packet loaded into packet memory for channel n.
func (c *Core) Sent(n uint8) [][]byte {
	return c.sent[n]
}

// Flags returns the global causes not yet acknowledged.
func (c *Core) Flags() core.IntFlags {
	return c.flags
}

// Resets returns the number of bus resets driven.
func (c *Core) Resets() int {
	return c.resets
}

// Flushes returns the number of Flush calls.
func (c *Core) Flushes() int {
	return c.flushs
}
