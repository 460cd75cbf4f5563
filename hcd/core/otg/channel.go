package otg

import (
	"fmt"
	"unsafe"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/hcd/core/regs"
	"github.com/ardnew/softhcd/pkg"
)

func (c *Core) valid(ch *core.Channel) error {
	if ch == nil || int(ch.Num) >= c.channels {
		return pkg.ErrInvalidChannel
	}
	return nil
}

// channelMask returns the HCINTMSK bits for the endpoint type and
// direction of ch.
func (c *Core) channelMask(ch *core.Channel) uint32 {
	in := ch.Dir == core.DirIn
	mask := uint32(hcintCHH)
	switch ch.Type {
	case core.EndpointControl, core.EndpointBulk:
		mask |= hcintXFRC | hcintSTALL | hcintTXERR | hcintDTERR | hcintAHBER | hcintNAK
		if in {
			mask |= hcintBBERR
		} else if c.cfg.Speed == core.SpeedHigh {
			mask |= hcintNYET | hcintACK
		}
	case core.EndpointInterrupt:
		mask |= hcintXFRC | hcintSTALL | hcintTXERR | hcintDTERR | hcintNAK | hcintAHBER | hcintFRMOR
		if in {
			mask |= hcintBBERR
		}
	case core.EndpointIsochronous:
		mask |= hcintXFRC | hcintACK | hcintAHBER | hcintFRMOR
		if in {
			mask |= hcintTXERR | hcintBBERR
		}
	}
	return mask
}

// InitChannel clears pending events, programs the interrupt mask and the
// endpoint characteristics, and unmasks the channel in HAINTMSK.
func (c *Core) InitChannel(ch *core.Channel) error {
	if err := c.valid(ch); err != nil {
		return err
	}
	b := c.bank
	n := ch.Num

	b.Store(chReg(n, chHCINT), hcintAll)
	b.Store(chReg(n, chHCINTMSK), c.channelMask(ch))
	regs.Set(b, regHAINTMSK, 1<<n)
	regs.Set(b, regGINTMSK, gintHCINT)
	b.Store(chReg(n, chHCSPLT), 0)

	mps := ch.MaxPacket
	if ch.Type == core.EndpointIsochronous && ch.Speed != core.SpeedHigh &&
		c.PortSpeed() == core.SpeedHigh && mps > isoSplitMPS {
		mps = isoSplitMPS
	}

	hcchar := regs.Put(ch.DevAddr, hccharDAD, hccharDADP) |
		regs.Put(ch.EPNum, hccharEPNUM, hccharEPNUMP) |
		regs.Put(uint8(ch.Type), hccharEPTYP, hccharEPTYPP) |
		uint32(mps)&hccharMPSIZ
	if ch.Dir == core.DirIn {
		hcchar |= hccharEPDIR
	}
	if ch.Speed == core.SpeedLow && c.PortSpeed() != core.SpeedLow {
		hcchar |= hccharLSDEV
	}
	if ch.Type.Periodic() {
		hcchar |= hccharODDFRM
	}
	b.Store(chReg(n, chHCCHAR), hcchar)
	return nil
}

// StartChannel programs the transfer size, packet count, PID, split
// control, and DMA address of ch, then enables it. Without DMA the OUT
// payload is written to the channel's transmit FIFO window.
func (c *Core) StartChannel(ch *core.Channel) error {
	if err := c.valid(ch); err != nil {
		return err
	}
	b := c.bank
	n := ch.Num
	mps := int(ch.MaxPacket)
	split := ch.StartSplit

	if c.dma && c.cfg.Speed == core.SpeedHigh && !split &&
		(ch.Type == core.EndpointControl || ch.Type == core.EndpointBulk) {
		regs.Clear(b, chReg(n, chHCINTMSK), hcintNYET|hcintACK|hcintNAK)
	}

	if !c.dma && ch.Speed == core.SpeedHigh && ch.DoPing && ch.Dir == core.DirOut {
		c.doPing(n)
		return nil
	}

	var pkts int
	switch {
	case split:
		pkts = 1
		switch {
		case ch.Dir == core.DirIn:
			ch.Size = mps
		case ch.Type == core.EndpointIsochronous:
			c.isoSplitPosition(ch)
		default:
			ch.Size = min(ch.Length-ch.Offset, mps)
		}
		if ch.Dir == core.DirOut && !ch.CompleteSplit {
			regs.Set(b, chReg(n, chHCINTMSK), hcintACK)
		}
	default:
		ch.Size = ch.Length
		pkts = ch.Packets(ch.Size)
		if pkts > maxPacketCount {
			pkts = maxPacketCount
			ch.Size = pkts * mps
		}
		if ch.Dir == core.DirIn {
			ch.Size = pkts * mps
		}
	}

	b.Store(chReg(n, chHCTSIZ),
		uint32(ch.Size)&hctsizXFRSIZ|
			regs.Put(uint32(pkts), hctsizPKTCNT, hctsizPKTCNTP)|
			regs.Put(uint8(ch.PID), hctsizDPID, hctsizDPIDP))

	if c.dma && len(ch.Buffer) > ch.Offset {
		b.Store(chReg(n, chHCDMA), busAddress(ch.Buffer[ch.Offset:]))
	}

	if ch.Type.Periodic() {
		c.setOddFrame(n)
	}
	b.Store(chReg(n, chHCSPLT), splitControl(ch))

	hcchar := b.Load(chReg(n, chHCCHAR))
	hcchar &^= hccharCHDIS | hccharEPDIR
	if ch.Dir == core.DirIn {
		hcchar |= hccharEPDIR
	}
	if ch.Type.Periodic() {
		hcchar = hcchar&^(0x3<<20) | hccharMC1
	}
	b.Store(chReg(n, chHCCHAR), hcchar|hccharCHENA)

	if c.dma || ch.Dir == core.DirIn || ch.CompleteSplit || ch.Size == 0 {
		return nil
	}
	return c.writePacket(n, ch.Buffer[ch.Offset:ch.Offset+min(ch.Size, len(ch.Buffer)-ch.Offset)])
}

// isoSplitPosition sizes an isochronous OUT start split. A payload longer
// than one split transaction is truncated to the first piece and the
// position advances across resubmissions.
func (c *Core) isoSplitPosition(ch *core.Channel) {
	more := ch.Length > isoSplitMPS
	continuing := ch.SplitPos == core.SplitBegin || ch.SplitPos == core.SplitMiddle
	switch {
	case more && continuing:
		ch.SplitPos = core.SplitMiddle
	case more:
		ch.SplitPos = core.SplitBegin
	case continuing:
		ch.SplitPos = core.SplitEnd
	default:
		ch.SplitPos = core.SplitAll
	}
	if more {
		ch.Length = isoSplitMPS
		ch.Remaining = isoSplitMPS
	}
	ch.Size = ch.Length
}

func splitControl(ch *core.Channel) uint32 {
	if !ch.StartSplit {
		return 0
	}
	v := uint32(hcspltSPLITEN) |
		regs.Put(ch.HubAddr, hcspltHUBADDR, hcspltHUBADDRP) |
		regs.Put(ch.HubPort, hcspltPRTADDR, 0)
	if ch.CompleteSplit {
		v |= hcspltCOMPLSPLT
	}
	pos := uint32(xactAll)
	switch ch.SplitPos {
	case core.SplitBegin:
		pos = xactBegin
	case core.SplitMiddle:
		pos = xactMiddle
	case core.SplitEnd:
		pos = xactEnd
	}
	return v | regs.Put(pos, hcspltXACTPOS, hcspltXACTPOSP)
}

func (c *Core) doPing(n uint8) {
	b := c.bank
	b.Store(chReg(n, chHCTSIZ), regs.Put(uint32(1), hctsizPKTCNT, hctsizPKTCNTP)|hctsizDOPING)
	hcchar := b.Load(chReg(n, chHCCHAR))
	b.Store(chReg(n, chHCCHAR), hcchar&^hccharCHDIS|hccharCHENA)
}

// setOddFrame schedules a periodic channel for the frame after the current
// one.
func (c *Core) setOddFrame(n uint8) {
	hcchar := c.bank.Load(chReg(n, chHCCHAR)) &^ hccharODDFRM
	if c.bank.Load(regHFNUM)&1 == 0 {
		hcchar |= hccharODDFRM
	}
	c.bank.Store(chReg(n, chHCCHAR), hcchar)
}

func busAddress(buf []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

// HaltChannel disables ch. With buffer DMA a periodic or idle non-split
// channel stops on its own and is left alone.
func (c *Core) HaltChannel(ch *core.Channel) error {
	if err := c.valid(ch); err != nil {
		return err
	}
	b := c.bank
	off := chReg(ch.Num, chHCCHAR)
	hcchar := b.Load(off)
	split := b.Load(chReg(ch.Num, chHCSPLT))&hcspltSPLITEN != 0

	if c.dma && !split && (hcchar&hccharCHENA == 0 || ch.Type.Periodic()) {
		return nil
	}

	sts := uint32(regHNPTXSTS)
	if ch.Type.Periodic() {
		sts = regHPTXSTS
	}

	b.Store(off, hcchar|hccharCHDIS)
	if c.dma || b.Load(sts)&txstsQueueSpace != 0 {
		b.Store(off, b.Load(off)|hccharCHENA)
		return nil
	}

	// No request queue space: disable and wait for the core to drop CHENA.
	b.Store(off, b.Load(off)&^hccharCHENA)
	b.Store(off, b.Load(off)|hccharCHENA)
	if !c.spinWhile(off, hccharCHENA) {
		pkg.LogWarn(pkg.ComponentCore, "halt queue full", "ch", ch.Num)
	}
	return nil
}

// CloseChannel masks ch in HAINTMSK and clears its interrupt state.
func (c *Core) CloseChannel(ch *core.Channel) error {
	if err := c.valid(ch); err != nil {
		return err
	}
	b := c.bank
	regs.Clear(b, regHAINTMSK, 1<<ch.Num)
	b.Store(chReg(ch.Num, chHCINTMSK), 0)
	b.Store(chReg(ch.Num, chHCINT), hcintAll)
	return nil
}

func (c *Core) ReactivateChannel(ch *core.Channel) error {
	if err := c.valid(ch); err != nil {
		return fmt.Errorf("reactivate: %w", err)
	}
	off := chReg(ch.Num, chHCCHAR)
	c.bank.Store(off, c.bank.Load(off)&^hccharCHDIS|hccharCHENA)
	return nil
}

func (c *Core) SetCompleteSplit(ch *core.Channel, on bool) {
	ch.CompleteSplit = on
	off := chReg(ch.Num, chHCSPLT)
	if on {
		regs.Set(c.bank, off, hcspltCOMPLSPLT)
	} else {
		regs.Clear(c.bank, off, hcspltCOMPLSPLT)
	}
}

func (c *Core) NextFrame(ch *core.Channel) {
	regs.Set(c.bank, chReg(ch.Num, chHCCHAR), hccharODDFRM)
}

// Channel interrupts

func (c *Core) ChannelStatus(n uint8) core.ChannelStatus {
	if int(n) >= c.channels {
		return core.ChannelStatus{}
	}
	b := c.bank
	st := core.ChannelStatus{
		Events: core.Event(b.Load(chReg(n, chHCINT)) & b.Load(chReg(n, chHCINTMSK)) & hcintAll),
	}
	if b.Load(chReg(n, chHCCHAR))&hccharEPDIR != 0 {
		st.Dir = core.DirIn
	}
	tsiz := b.Load(chReg(n, chHCTSIZ))
	st.Residual = int(tsiz & hctsizXFRSIZ)
	st.Packets = int(regs.Get[uint16](tsiz, hctsizPKTCNT, hctsizPKTCNTP))
	st.Isochronous = regs.Get[uint8](b.Load(chReg(n, chHCCHAR)), hccharEPTYP, hccharEPTYPP) ==
		uint8(core.EndpointIsochronous)
	return st
}

func (c *Core) ClearChannel(n uint8, ev core.Event) {
	if int(n) < c.channels {
		c.bank.Store(chReg(n, chHCINT), uint32(ev)&hcintAll)
	}
}

func (c *Core) MaskChannel(n uint8, ev core.Event, masked bool) {
	if int(n) >= c.channels {
		return
	}
	off := chReg(n, chHCINTMSK)
	if masked {
		regs.Clear(c.bank, off, uint32(ev))
	} else {
		regs.Set(c.bank, off, uint32(ev))
	}
}
