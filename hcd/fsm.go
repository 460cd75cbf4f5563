package hcd

import (
	"log/slog"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// handler applies one (state, event) transition to a channel.
type handler func(d *Driver, c *Channel, st *core.ChannelStatus)

// haltHandler resolves a halt confirmation. It receives the state that
// requested the halt.
type haltHandler func(d *Driver, c *Channel)

type rule struct {
	ev core.Event
	fn handler
}

// ruleSet is a list of priority groups. Each group runs at most its first
// matching rule; every group sees the same status snapshot.
type ruleSet [][]rule

// Cores with a halt handshake: an error or completion first requests a
// halt, and the URB outcome is decided when EventHalted arrives.
var (
	handshakeIn = ruleSet{
		{
			{core.EventBusErr, haltWith(StateXactErr)},
			{core.EventBabble, haltWith(StateBabble)},
			{core.EventStall, haltWith(StateStall)},
			{core.EventToggleErr, haltWith(StateToggleErr)},
			{core.EventXactErr, haltWith(StateXactErr)},
		},
		{
			{core.EventFrameOverrun, frameOverrun},
			{core.EventXferComplete, inComplete},
			{core.EventAck, inAck},
			{core.EventHalted, haltedBy(inHalted)},
			{core.EventNyet, inNyet},
			{core.EventNak, inNak},
		},
	}

	handshakeOut = ruleSet{
		{
			{core.EventBusErr, haltWith(StateXactErr)},
			{core.EventAck, outAck},
			{core.EventFrameOverrun, frameOverrun},
			{core.EventXferComplete, outComplete},
			{core.EventNyet, outNyet},
			{core.EventStall, haltWith(StateStall)},
			{core.EventNak, outNak},
			{core.EventXactErr, outXactErr},
			{core.EventToggleErr, haltWith(StateToggleErr)},
			{core.EventHalted, haltedBy(outHalted)},
		},
	}

	inHalted = map[ChannelState]haltHandler{
		StateXferDone:  finish(URBDone),
		StateStall:     finish(URBStall),
		StateXactErr:   inRetry,
		StateToggleErr: inRetry,
		StateNyet:      completeSplitNyet,
		StateAck:       completeSplitArm,
		StateNak:       notReady,
		StateBabble:    babble,
	}

	outHalted = map[ChannelState]haltHandler{
		StateXferDone:  outFinish,
		StateStall:     finish(URBStall),
		StateXactErr:   outRetry,
		StateToggleErr: outRetry,
		StateNyet:      finish(URBNotReady),
		StateAck:       outAcked,
		StateNak:       outNakHalted,
	}
)

// dispatch runs rs against the snapshot, acknowledging each event it
// consumes.
func (d *Driver) dispatch(rs ruleSet, c *Channel, st *core.ChannelStatus) {
	for _, group := range rs {
		for _, r := range group {
			if !st.Events.Has(r.ev) {
				continue
			}
			d.core.ClearChannel(c.hw.Num, r.ev)
			if pkg.LogEnabled(slog.LevelDebug) {
				pkg.LogDebug(pkg.ComponentChannel, "event",
					"ch", c.hw.Num,
					"dir", c.hw.Dir.String(),
					"event", r.ev.String(),
					"state", c.state.String())
			}
			r.fn(d, c, st)
			break
		}
	}
}

// haltedBy resolves a halt confirmation through table. A confirmation on a
// channel that is already HALTED, or one nobody requested, is dropped.
func haltedBy(table map[ChannelState]haltHandler) handler {
	return func(d *Driver, c *Channel, _ *core.ChannelStatus) {
		resolve, ok := table[c.state]
		if !ok {
			return
		}
		c.state = StateHalted
		resolve(d, c)
	}
}

func haltWith(s ChannelState) handler {
	return func(d *Driver, c *Channel, _ *core.ChannelStatus) {
		c.state = s
		d.halt(c)
	}
}

func frameOverrun(d *Driver, c *Channel, _ *core.ChannelStatus) {
	d.halt(c)
}

func finish(u URBState) haltHandler {
	return func(d *Driver, c *Channel) {
		d.report(c, u)
	}
}

func notReady(d *Driver, c *Channel) {
	if c.controlOrBulk() {
		d.rearm(c)
	}
	d.report(c, URBNotReady)
}

func babble(d *Driver, c *Channel) {
	c.errCount++
	d.report(c, URBError)
}

// IN transitions

func inComplete(d *Driver, c *Channel, st *core.ChannelStatus) {
	n := c.hw.Num
	d.core.ClearChannel(n, core.EventAck)
	if c.hw.CompleteSplit {
		d.leaveCompleteSplit(c)
	}
	if d.feat.DMA {
		c.hw.Count = c.hw.Size - st.Residual
	}
	c.state = StateXferDone
	c.errCount = 0

	if c.controlOrBulk() {
		d.halt(c)
		d.core.ClearChannel(n, core.EventNak)
	} else {
		d.core.NextFrame(&c.hw)
		d.report(c, URBDone)
	}

	if c.hw.Type == core.EndpointIsochronous {
		return
	}
	if d.feat.DMA {
		if packetParity(c.hw.Count, c.hw.MaxPacket) {
			c.flipIn()
		}
		return
	}
	// The receive path flipped for every full packet that re-armed the
	// channel; this flip accounts for the last one.
	c.flipIn()
}

func inNyet(d *Driver, c *Channel, _ *core.ChannelStatus) {
	c.state = StateNyet
	if !c.hw.StartSplit {
		c.errCount = 0
	}
	d.halt(c)
}

func inNak(d *Driver, c *Channel, _ *core.ChannelStatus) {
	switch {
	case c.hw.Type == core.EndpointInterrupt:
		c.errCount = 0
		c.state = StateNak
		d.halt(c)
	case c.controlOrBulk():
		c.errCount = 0
		if !d.feat.DMA || c.hw.CompleteSplit {
			c.state = StateNak
			d.halt(c)
		}
	}
	if c.hw.CompleteSplit {
		d.abortCompleteSplit(c)
	}
}

func inRetry(d *Driver, c *Channel) {
	c.errCount++
	if c.errCount > d.errLimit {
		c.errCount = 0
		if c.hw.StartSplit {
			c.reschedule = false
			d.leaveCompleteSplit(c)
		}
		pkg.LogWarn(pkg.ComponentChannel, "retries exhausted", "ch", c.hw.Num, "dir", "in")
		d.report(c, URBError)
		return
	}
	if c.controlOrBulk() {
		d.rearm(c)
	}
	d.report(c, URBNotReady)
}

// OUT transitions

func outComplete(d *Driver, c *Channel, st *core.ChannelStatus) {
	c.errCount = 0
	if st.Events.Has(core.EventNyet) {
		c.hw.DoPing = true
		d.core.ClearChannel(c.hw.Num, core.EventNyet)
	}
	if c.hw.CompleteSplit {
		d.leaveCompleteSplit(c)
	}
	c.state = StateXferDone
	d.halt(c)
}

func outNyet(d *Driver, c *Channel, _ *core.ChannelStatus) {
	c.state = StateNyet
	if !c.hw.StartSplit {
		c.hw.DoPing = true
	}
	c.errCount = 0
	d.halt(c)
}

func outNak(d *Driver, c *Channel, _ *core.ChannelStatus) {
	c.errCount = 0
	c.state = StateNak
	if c.hw.Speed == core.SpeedHigh && !c.hw.StartSplit {
		c.hw.DoPing = true
	}
	d.halt(c)
}

// outXactErr halts without DMA. With DMA the hardware has already stopped
// and the error is resolved in place.
func outXactErr(d *Driver, c *Channel, _ *core.ChannelStatus) {
	if !d.feat.DMA {
		c.state = StateXactErr
		d.halt(c)
		return
	}
	c.errCount++
	if c.errCount > d.errLimit {
		c.errCount = 0
		d.report(c, URBError)
		return
	}
	d.rearm(c)
	d.report(c, URBNotReady)
}

func outFinish(d *Driver, c *Channel) {
	c.hw.Count = c.hw.Length
	if c.hw.Type == core.EndpointBulk || c.hw.Type == core.EndpointInterrupt {
		if packetParity(c.hw.Length, c.hw.MaxPacket) {
			c.flipOut()
		}
	}
	d.report(c, URBDone)
}

func outRetry(d *Driver, c *Channel) {
	c.errCount++
	if c.errCount > d.errLimit {
		c.errCount = 0
		pkg.LogWarn(pkg.ComponentChannel, "retries exhausted", "ch", c.hw.Num, "dir", "out")
		d.report(c, URBError)
		return
	}
	d.rearm(c)
	d.report(c, URBNotReady)
}

func outNakHalted(d *Driver, c *Channel) {
	if c.hw.CompleteSplit {
		d.leaveCompleteSplit(c)
	}
	d.report(c, URBNotReady)
}

// helpers

// packetParity reports whether n bytes span an odd number of packets. Zero
// bytes span none.
func packetParity(n int, mps uint16) bool {
	if mps == 0 || n <= 0 {
		return false
	}
	return ((n+int(mps)-1)/int(mps))&1 == 1
}

func (d *Driver) halt(c *Channel) {
	if err := d.core.HaltChannel(&c.hw); err != nil {
		pkg.LogError(pkg.ComponentChannel, "halt failed", "ch", c.hw.Num, "err", err)
	}
}

func (d *Driver) rearm(c *Channel) {
	c.state = StateIdle
	if err := d.core.ReactivateChannel(&c.hw); err != nil {
		pkg.LogError(pkg.ComponentChannel, "re-arm failed", "ch", c.hw.Num, "err", err)
	}
}

// report records u and delivers it to the notifier.
func (d *Driver) report(c *Channel, u URBState) {
	c.urb = u
	if u.Terminal() {
		c.armed = false
	}
	pkg.LogDebug(pkg.ComponentChannel, "urb",
		"ch", c.hw.Num,
		"urb", u.String(),
		"count", c.hw.Count,
		"err", c.errCount)
	d.notify.OnURBStateChanged(c.hw.Num, u)
}

// retire reports a terminal outcome on cores without a halt handshake,
// where the channel is quiescent as soon as the event is seen.
func (d *Driver) retire(c *Channel, u URBState) {
	c.state = StateHalted
	d.report(c, u)
}
