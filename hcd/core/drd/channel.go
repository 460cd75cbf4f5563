package drd

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

var utype = [...]uint32{
	core.EndpointControl:     utypeControl,
	core.EndpointIsochronous: utypeIso,
	core.EndpointBulk:        utypeBulk,
	core.EndpointInterrupt:   utypeInterrupt,
}

func (c *Core) bound(ch *core.Channel) (*binding, error) {
	if int(ch.Num) >= core.MaxChannels {
		return nil, fmt.Errorf("%w: %d", pkg.ErrInvalidChannel, ch.Num)
	}
	b := &c.logical[ch.Num]
	if !b.open {
		return nil, fmt.Errorf("channel %d: %w", ch.Num, pkg.ErrNotConfigured)
	}
	return b, nil
}

// claimPhy binds ch to a physical channel. Logical channel 0 OUT owns
// physical channel 0 in both directions for the default control pipe. The
// others share a physical channel with a logical channel of the opposite
// direction only when both address the same endpoint number and type.
func (c *Core) claimPhy(ch *core.Channel) (uint8, error) {
	side := phySide{used: true, logical: ch.Num, typ: ch.Type, ep: ch.EPNum}
	if ch.Num == 0 && ch.Dir == core.DirOut {
		if c.phyOut[0].used {
			return 0, fmt.Errorf("%w: physical channel 0", pkg.ErrBusy)
		}
		c.phyOut[0] = side
		c.phyIn[0] = side
		return 0, nil
	}
	mine, other := &c.phyOut, &c.phyIn
	if ch.Dir == core.DirIn {
		mine, other = &c.phyIn, &c.phyOut
	}
	for phy := uint8(1); phy < physChannels; phy++ {
		if mine[phy].used {
			continue
		}
		o := other[phy]
		if !o.used || (o.typ == ch.Type && o.ep == ch.EPNum) {
			mine[phy] = side
			return phy, nil
		}
	}
	return 0, fmt.Errorf("%w: no free physical channel for ep %#02x", pkg.ErrNoResources, ch.EndpointAddress())
}

func (c *Core) releasePhy(b *binding) {
	if b.phy == 0 {
		c.phyIn[0] = phySide{}
		c.phyOut[0] = phySide{}
		return
	}
	if b.dir == core.DirIn {
		c.phyIn[b.phy] = phySide{}
	} else {
		c.phyOut[b.phy] = phySide{}
	}
}

// allocBuffers reserves packet memory for b and records the addresses in
// the descriptor table.
func (c *Core) allocBuffers(b *binding) error {
	if !b.double {
		addr, err := c.alloc.alloc(b.mps)
		if err != nil {
			return err
		}
		b.addr = addr
		which := uint32(bdTX)
		if b.dir == core.DirIn {
			which = bdRX
		}
		c.setBDAddr(b.phy, which, addr)
		return nil
	}
	addr0, err := c.alloc.alloc(b.mps)
	if err != nil {
		return err
	}
	addr1, err := c.alloc.alloc(b.mps)
	if err != nil {
		_ = c.alloc.free(addr0, b.mps)
		return err
	}
	b.addr0, b.addr1 = addr0, addr1
	b.addr = addr0
	if b.dir == core.DirIn {
		b.addr = addr1
	}
	c.setBDAddr(b.phy, bdTX, addr0)
	c.setBDAddr(b.phy, bdRX, addr1)
	return nil
}

func (c *Core) freeBuffers(b *binding) {
	addrs := []uint16{b.addr}
	if b.double {
		addrs = []uint16{b.addr0, b.addr1}
	}
	for _, a := range addrs {
		if err := c.alloc.free(a, b.mps); err != nil {
			pkg.LogWarn(pkg.ComponentCore, "free packet memory", "addr", a, "err", err)
		}
	}
}

// InitChannel binds ch to a physical channel, allocates its packet memory,
// and programs the endpoint register.
func (c *Core) InitChannel(ch *core.Channel) error {
	if int(ch.Num) >= core.MaxChannels {
		return fmt.Errorf("%w: %d", pkg.ErrInvalidChannel, ch.Num)
	}
	if ch.MaxPacket == 0 {
		return fmt.Errorf("%w: zero max packet size", pkg.ErrInvalidParameter)
	}
	if b := &c.logical[ch.Num]; b.open {
		c.unbind(b)
	}

	phy, err := c.claimPhy(ch)
	if err != nil {
		return err
	}
	b := &c.logical[ch.Num]
	*b = binding{
		open: true,
		phy:  phy,
		dir:  ch.Dir,
		typ:  ch.Type,
		ep:   ch.EPNum,
		mps:  int(ch.MaxPacket),
		double: (ch.Type == core.EndpointBulk && c.cfg.BulkDoubleBuffer) ||
			(ch.Type == core.EndpointIsochronous && c.cfg.IsoDoubleBuffer),
	}
	if err := c.allocBuffers(b); err != nil {
		c.releasePhy(b)
		*b = binding{}
		return err
	}

	ch.Phy = phy
	ch.DoubleBuffer = b.double
	ch.PMAAddr, ch.PMAAddr0, ch.PMAAddr1 = b.addr, b.addr0, b.addr1

	rw := uint32(ch.EPNum)&chepEA |
		utype[ch.Type&3]<<chepUTYPEP |
		uint32(ch.DevAddr)<<chepDEVP&chepDEVADDR
	if ch.Speed == core.SpeedLow && c.PortSpeed() == core.SpeedFull {
		rw |= chepLSEP
	}
	// KIND selects double buffering on bulk pipes and single buffering on
	// isochronous ones.
	switch ch.Type {
	case core.EndpointBulk:
		if b.double {
			rw |= chepKIND
		}
	case core.EndpointIsochronous:
		if !b.double {
			rw |= chepKIND
		}
	}
	v := c.bank.Load(chepReg(phy))
	var flip uint32
	if b.double {
		flip = v & (chepDTOGTX | chepDTOGRX)
	}
	c.chepWrite(phy, rw, flip, 0)

	pkg.LogDebug(pkg.ComponentCore, "channel bound",
		"ch", ch.Num, "phy", phy, "ep", ch.EndpointAddress(),
		"double", b.double, "pma", b.addr)
	return nil
}

func (c *Core) unbind(b *binding) {
	c.setStat(b.phy, b.dir, statDisabled)
	c.freeBuffers(b)
	c.releasePhy(b)
	*b = binding{}
}

// StartChannel arms one packet of the transfer. OUT data is copied into
// packet memory; double-buffered bulk OUT primes both buffers.
func (c *Core) StartChannel(ch *core.Channel) error {
	b, err := c.bound(ch)
	if err != nil {
		return err
	}
	if ch.Dir == core.DirIn {
		return c.startIn(ch, b)
	}
	return c.startOut(ch, b)
}

func (c *Core) startIn(ch *core.Channel, b *binding) error {
	n := min(ch.Length-ch.Count, b.mps)
	switch {
	case !b.double:
		if ch.Type != core.EndpointIsochronous {
			c.setToggle(b.phy, chepDTOGRX, ch.PID == core.PIDData1)
		}
		c.setRxCount(b.phy, bdRX, n)
	case ch.Type == core.EndpointBulk:
		if ch.Length > b.mps {
			c.setKind(b.phy, true)
			c.setRxCount(b.phy, bdTX, b.mps)
			c.setRxCount(b.phy, bdRX, b.mps)
		} else {
			c.setKind(b.phy, false)
			c.setRxCount(b.phy, bdRX, n)
		}
	default:
		c.setRxCount(b.phy, bdTX, n)
		c.setRxCount(b.phy, bdRX, n)
	}
	c.setStat(b.phy, core.DirIn, statValid)
	return nil
}

func (c *Core) startOut(ch *core.Channel, b *binding) error {
	packet := func(off int) []byte {
		return ch.Buffer[off:min(off+b.mps, ch.Length)]
	}

	switch {
	case !b.double || (ch.Type == core.EndpointBulk && ch.Length <= b.mps):
		if b.double {
			c.setKind(b.phy, false)
		}
		src := packet(ch.Offset)
		c.writePMA(b.addr, src)
		c.setTxCount(b.phy, bdTX, len(src))
		ch.Fill = ch.Offset + len(src)

		v := c.bank.Load(chepReg(b.phy))
		rw := v & chepRW &^ chepSETUP
		if ch.PID == core.PIDSetup {
			rw |= chepSETUP
		}
		c.chepWrite(b.phy, rw, 0, 0)
		if ch.Type != core.EndpointIsochronous {
			c.setToggle(b.phy, chepDTOGTX, ch.PID == core.PIDData1)
		}

	case ch.Type == core.EndpointBulk:
		c.setKind(b.phy, true)
		if ch.Fill == 0 {
			first := 0
			if c.bank.Load(chepReg(b.phy))&chepDTOGTX != 0 {
				first = 1
			}
			for _, slot := range []int{first, 1 - first} {
				if ch.Fill >= ch.Length {
					break
				}
				src := packet(ch.Fill)
				c.fillSlot(b, slot, src)
				ch.Fill += len(src)
			}
		}

	default:
		// Isochronous: the frame's packet goes to the buffer hardware sends
		// next.
		slot := 1
		if c.bank.Load(chepReg(b.phy))&chepDTOGTX != 0 {
			slot = 0
		}
		src := packet(0)
		c.fillSlot(b, slot, src)
		ch.Fill = len(src)
	}
	c.setStat(b.phy, core.DirOut, statValid)
	return nil
}

func (c *Core) setKind(phy uint8, on bool) {
	v := c.bank.Load(chepReg(phy))
	rw := v & chepRW &^ chepKIND
	if on {
		rw |= chepKIND
	}
	c.chepWrite(phy, rw, 0, 0)
}

// HaltChannel disables the channel's direction. The core has no halt
// confirmation.
func (c *Core) HaltChannel(ch *core.Channel) error {
	b, err := c.bound(ch)
	if err != nil {
		return err
	}
	c.setStat(b.phy, b.dir, statDisabled)
	return nil
}

// CloseChannel halts the channel and releases its physical channel and
// packet memory.
func (c *Core) CloseChannel(ch *core.Channel) error {
	b, err := c.bound(ch)
	if err != nil {
		return err
	}
	c.unbind(b)
	ch.Phy = 0
	ch.PMAAddr, ch.PMAAddr0, ch.PMAAddr1 = 0, 0, 0
	return nil
}

// ReactivateChannel re-arms the channel for its next packet.
func (c *Core) ReactivateChannel(ch *core.Channel) error {
	b, err := c.bound(ch)
	if err != nil {
		return err
	}
	c.setStat(b.phy, b.dir, statValid)
	return nil
}

// SetCompleteSplit records the state only; the core has no split support.
func (c *Core) SetCompleteSplit(ch *core.Channel, on bool) {
	ch.CompleteSplit = on
}

// NextFrame is a no-op; the core schedules periodic channels every frame.
func (c *Core) NextFrame(*core.Channel) {}

// ChannelStatus decodes the handshake of the last transaction on logical
// channel n from one CHEP read.
func (c *Core) ChannelStatus(n uint8) core.ChannelStatus {
	if int(n) >= core.MaxChannels || !c.logical[n].open {
		return core.ChannelStatus{}
	}
	b := &c.logical[n]
	v := c.bank.Load(chepReg(b.phy))

	st := core.ChannelStatus{
		Dir:            b.dir,
		Isochronous:    b.typ == core.EndpointIsochronous,
		DoubleBuffered: c.doubleBuffered(b, v),
		Slot:           core.SingleSlot,
		SoftwareSlot:   core.SingleSlot,
		TxNak:          (v&chepSTATTX)>>chepSTATTXP == statNak,
	}

	var vt, errBit, stat uint32
	var hwTog, swTog uint32
	if b.dir == core.DirIn {
		vt, errBit, stat = chepVTRX, chepERRRX, (v&chepSTATRX)>>chepSTATRXP
		hwTog, swTog = chepDTOGRX, chepDTOGTX
	} else {
		vt, errBit, stat = chepVTTX, chepERRTX, (v&chepSTATTX)>>chepSTATTXP
		hwTog, swTog = chepDTOGTX, chepDTOGRX
	}

	if st.DoubleBuffered {
		st.Slot, st.SoftwareSlot = 1, 1
		if v&hwTog != 0 {
			st.Slot = 0
		}
		if v&swTog != 0 {
			st.SoftwareSlot = 0
		}
	}

	switch {
	case v&errBit != 0:
		st.Events = core.EventXactErr
	case v&vt == 0:
	case st.Isochronous:
		st.Events = core.EventAck
	case b.dir == core.DirOut && v&chepNAK != 0:
		st.Events = core.EventNak
	case stat == statAckSingle, stat == statAckDouble:
		st.Events = core.EventAck
	case stat == statNak:
		st.Events = core.EventNak
	case stat == statStall:
		st.Events = core.EventStall
	}

	if st.Events != 0 {
		slot := st.Slot
		if !st.DoubleBuffered {
			slot = core.SingleSlot
		}
		st.Count = c.bufferCount(b, slot)
	}
	return st
}

func (c *Core) doubleBuffered(b *binding, v uint32) bool {
	switch b.typ {
	case core.EndpointBulk:
		return b.double && v&chepKIND != 0
	case core.EndpointIsochronous:
		return b.double
	}
	return false
}

// ClearChannel clears the completion flag of the channel's direction along
// with the error and NAK flags behind ev.
func (c *Core) ClearChannel(n uint8, ev core.Event) {
	if int(n) >= core.MaxChannels || !c.logical[n].open || ev == 0 {
		return
	}
	b := &c.logical[n]
	clr := uint32(chepVTTX | chepERRTX | chepNAK)
	if b.dir == core.DirIn {
		clr = chepVTRX | chepERRRX
	}
	if ev&core.EventXactErr == 0 {
		clr &^= chepERRTX | chepERRRX
	}
	v := c.bank.Load(chepReg(b.phy))
	c.chepWrite(b.phy, v&chepRW, 0, clr)
}

// MaskChannel is a no-op; the core has no per-event channel masks.
func (c *Core) MaskChannel(uint8, core.Event, bool) {}
