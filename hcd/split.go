package hcd

import (
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Split transactions reach a full/low-speed device through the transaction
// translator of a high-speed hub. A transfer starts with a start-split; the
// ACK to it switches the channel to complete-split, which is reissued on
// every poll until data, NAK, or the NYET bound ends it.

// inAck moves an IN start-split into the complete-split phase.
func inAck(d *Driver, c *Channel, _ *core.ChannelStatus) {
	if !c.hw.StartSplit {
		return
	}
	c.hw.CompleteSplit = true
	c.state = StateAck
	d.halt(c)
}

// outAck handles the ACK to a PING or to an OUT start-split. Isochronous
// OUT splits never wait for a complete-split.
func outAck(d *Driver, c *Channel, _ *core.ChannelStatus) {
	if c.hw.DoPing {
		c.hw.DoPing = false
		c.state = StateAck
		d.halt(c)
	}
	if c.hw.StartSplit && !c.hw.CompleteSplit {
		if c.hw.Type != core.EndpointIsochronous {
			c.hw.CompleteSplit = true
		}
		c.state = StateAck
		d.halt(c)
		c.errCount = 0
	}
}

// completeSplitArm programs the complete-split after the start-split halt.
func completeSplitArm(d *Driver, c *Channel) {
	if !c.hw.CompleteSplit {
		return
	}
	n := c.hw.Num
	d.core.SetCompleteSplit(&c.hw, true)
	d.core.MaskChannel(n, core.EventNyet, false)
	d.core.MaskChannel(n, core.EventAck, true)
	if c.controlOrBulk() {
		d.rearm(c)
	}
	pkg.LogDebug(pkg.ComponentSplit, "complete-split pending", "ch", n)
	d.report(c, URBNotReady)
}

// completeSplitNyet applies the NYET policy on a complete-split halt.
// Interrupt endpoints give up after otgNyetLimit NYETs and may ask for a
// fresh start-split.
func completeSplitNyet(d *Driver, c *Channel) {
	if !c.hw.CompleteSplit {
		return
	}
	if c.hw.Type == core.EndpointInterrupt {
		c.nyetCount++
		if c.nyetCount > otgNyetLimit {
			c.nyetCount = 0
			if c.errCount < rescheduleErrorCeiling {
				c.reschedule = true
			}
			d.leaveCompleteSplit(c)
			pkg.LogWarn(pkg.ComponentSplit, "complete-split abandoned",
				"ch", c.hw.Num, "reschedule", c.reschedule)
			d.report(c, URBError)
			return
		}
		d.report(c, URBNotReady)
		return
	}
	if c.controlOrBulk() {
		d.rearm(c)
	}
	d.report(c, URBNotReady)
}

// outAcked resolves an OUT halt requested by an ACK: the PING was answered
// or the start-split was accepted.
func outAcked(d *Driver, c *Channel) {
	if c.hw.StartSplit && !c.hw.CompleteSplit && c.hw.Type == core.EndpointIsochronous {
		c.hw.Count = c.hw.Length
		d.report(c, URBDone)
		return
	}
	d.report(c, URBNotReady)
}

// leaveCompleteSplit returns the channel to start-split.
func (d *Driver) leaveCompleteSplit(c *Channel) {
	c.hw.CompleteSplit = false
	d.core.SetCompleteSplit(&c.hw, false)
}

// abortCompleteSplit handles a NAK to a complete-split: the transaction
// restarts from start-split and ACK is unmasked again.
func (d *Driver) abortCompleteSplit(c *Channel) {
	d.leaveCompleteSplit(c)
	d.core.MaskChannel(c.hw.Num, core.EventAck, false)
}

// Rescheduled reports whether channel n abandoned a complete-split and the
// caller should restart the transfer from start-split. Reading the flag
// clears it.
func (d *Driver) Rescheduled(n uint8) bool {
	if int(n) >= d.nch {
		return false
	}
	c := &d.ch[n]
	r := c.reschedule
	c.reschedule = false
	return r
}
