package hcd

import (
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Global causes the engine acknowledges without further action.
const ignoredFlags = core.IntIncompleteIso | core.IntPeriodicTxEmpty |
	core.IntModeMismatch | core.IntError | core.IntOverrun

// IRQHandler services one interrupt. It reads the core's pending causes once
// and handles them in a fixed order: disconnect, port change, SOF, wakeup,
// suspend, channels, receive FIFO.
//
// IRQHandler is not reentrant and must not run concurrently with the
// Driver's other entry points.
func (d *Driver) IRQHandler() {
	if d.state != DriverActive || d.core.Mode() != core.ModeHost {
		return
	}
	irq := d.core.ReadInterrupts()
	if !irq.Pending() {
		return
	}

	if irq.Flags&core.IntDisconnect != 0 {
		d.core.ClearInterrupts(core.IntDisconnect)
		if !d.core.PortStatus().Attached {
			d.detach()
		}
	}

	if irq.Flags&core.IntPort != 0 {
		d.portChanged()
		d.core.ClearInterrupts(core.IntPort)
	}

	if irq.Flags&core.IntSOF != 0 {
		d.core.ClearInterrupts(core.IntSOF)
		if !d.feat.LatchedPortChanges && d.port == PortReset {
			d.port = PortRunning
			pkg.LogInfo(pkg.ComponentPort, "port enabled", "speed", d.core.PortSpeed().String())
			d.notify.OnEnabled()
		}
		d.notify.OnSOF()
	}

	if irq.Flags&core.IntWakeup != 0 {
		d.core.ClearInterrupts(core.IntWakeup)
		if d.port == PortSuspended {
			if err := d.core.ResumePort(true); err != nil {
				pkg.LogWarn(pkg.ComponentPort, "wakeup resume", "err", err)
			}
			d.port = PortResumed
			pkg.LogInfo(pkg.ComponentPort, "remote wakeup")
			d.notify.OnResume()
		}
	}

	if irq.Flags&core.IntSuspend != 0 {
		d.core.ClearInterrupts(core.IntSuspend)
		d.port = PortSuspended
		if err := d.core.SuspendPort(); err != nil {
			pkg.LogWarn(pkg.ComponentPort, "suspend", "err", err)
		}
		pkg.LogInfo(pkg.ComponentPort, "bus suspended")
		d.notify.OnSuspend()
	}

	if irq.Flags&core.IntChannel != 0 || irq.Channels != 0 {
		d.serviceChannels(irq.Channels)
		d.core.ClearInterrupts(core.IntChannel)
	}

	if irq.Flags&core.IntRxLevel != 0 && d.fifo != nil {
		d.receive()
	}

	if f := irq.Flags & ignoredFlags; f != 0 {
		d.core.ClearInterrupts(f)
	}
}

// serviceChannels runs the transition tables for every pending channel.
func (d *Driver) serviceChannels(pending uint32) {
	for n := 0; n < d.nch; n++ {
		if pending&(1<<n) == 0 {
			continue
		}
		c := &d.ch[n]
		st := d.core.ChannelStatus(uint8(n))
		if st.Events == 0 {
			continue
		}
		if c.aborting && st.Events.Has(core.EventHalted) {
			d.core.ClearChannel(uint8(n), st.Events)
			d.aborted(c)
			pkg.LogDebug(pkg.ComponentChannel, "late halt confirmation", "ch", n)
			continue
		}
		if !d.feat.HaltHandshake {
			if st.Dir == core.DirIn {
				d.dispatch(immediateIn, c, &st)
			} else {
				d.dispatch(immediateOut, c, &st)
			}
			continue
		}
		if st.Dir == core.DirIn {
			d.dispatch(handshakeIn, c, &st)
		} else {
			d.dispatch(handshakeOut, c, &st)
		}
	}
}

// portChanged applies a port status change. Cores that latch changes report
// connect and enable transitions directly; the others only expose the line
// state, so a connect seen while connected means a disconnect was missed.
func (d *Driver) portChanged() {
	ps := d.core.PortStatus()

	if !d.feat.LatchedPortChanges {
		switch {
		case !ps.Attached:
			d.detach()
		case d.port == PortDisconnected:
			d.attach(ps)
		default:
			pkg.LogWarn(pkg.ComponentPort, "connect while connected", "state", d.port.String())
			d.detach()
		}
		return
	}

	if ps.ConnectDetected && ps.Attached {
		d.attach(ps)
	}
	if ps.EnableChanged {
		if ps.Enabled {
			d.port = PortRunning
			pkg.LogInfo(pkg.ComponentPort, "port enabled", "speed", ps.Speed.String())
			d.notify.OnEnabled()
		} else {
			pkg.LogInfo(pkg.ComponentPort, "port disabled")
			d.notify.OnDisabled()
		}
	}
	if ps.OverCurrentChanged {
		pkg.LogWarn(pkg.ComponentPort, "over-current change")
	}
	d.core.AckPort(ps)
}

func (d *Driver) attach(ps core.PortStatus) {
	d.port = PortConnected
	pkg.LogInfo(pkg.ComponentPort, "device connected", "low_speed", ps.LowSpeed)
	d.notify.OnConnect()
}

// detach flushes the core and abandons every armed transfer.
func (d *Driver) detach() {
	d.port = PortDisconnected
	if err := d.core.Flush(); err != nil {
		pkg.LogWarn(pkg.ComponentPort, "flush", "err", err)
	}
	for i := 0; i < d.nch; i++ {
		d.ch[i].armed = false
		d.ch[i].aborting = false
	}
	pkg.LogInfo(pkg.ComponentPort, "device disconnected")
	d.notify.OnDisconnect()
}
