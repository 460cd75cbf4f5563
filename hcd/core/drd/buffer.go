package drd

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Buffer descriptors

func (c *Core) setBDAddr(phy uint8, which uint32, addr uint16) {
	off := bdReg(phy, which)
	c.pma.Store(off, c.pma.Load(off)&^bdADDR|uint32(addr)&^7)
}

func (c *Core) setTxCount(phy uint8, which uint32, n int) {
	off := bdReg(phy, which)
	c.pma.Store(off, c.pma.Load(off)&^(bdCountClr|bdRXMask)|uint32(n)&bdCOUNT<<bdCOUNTP)
}

// setRxCount sizes a receive buffer for n bytes: 2-byte blocks up to 62
// bytes, 32-byte blocks above. The received count is cleared.
func (c *Core) setRxCount(phy uint8, which uint32, n int) {
	var blk uint32
	if n > 62 {
		nb := (n + 31) / 32
		blk = uint32(nb-1)<<bdNUMBLKP | bdBLSIZE
	} else {
		blk = uint32((n+1)/2) << bdNUMBLKP
	}
	off := bdReg(phy, which)
	c.pma.Store(off, c.pma.Load(off)&bdADDR|blk)
}

func (c *Core) count(phy uint8, which uint32) int {
	return int(c.pma.Load(bdReg(phy, which)) >> bdCOUNTP & bdCOUNT)
}

// slotBD returns the descriptor and buffer address of slot. Slot 0 uses the
// TX descriptor and slot 1 the RX descriptor; a single buffer uses the one
// of the channel's direction.
func (b *binding) slotBD(slot int) (uint32, uint16) {
	switch {
	case slot == 0 && b.double:
		return bdTX, b.addr0
	case slot == 1 && b.double:
		return bdRX, b.addr1
	case b.dir == core.DirIn:
		return bdRX, b.addr
	default:
		return bdTX, b.addr
	}
}

func (c *Core) bufferCount(b *binding, slot int) int {
	which, _ := b.slotBD(slot)
	return c.count(b.phy, which)
}

// Packet memory access

// writePMA copies src into packet memory at addr, packing bytes into
// little-endian words.
func (c *Core) writePMA(addr uint16, src []byte) {
	off := uint32(addr)
	for i := 0; i < len(src); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(src); j++ {
			w |= uint32(src[i+j]) << (8 * j)
		}
		c.pma.Store(off, w)
		off += 4
	}
}

func (c *Core) readPMA(addr uint16, dst []byte) {
	off := uint32(addr)
	for i := 0; i < len(dst); i += 4 {
		w := c.pma.Load(off)
		for j := 0; j < 4 && i+j < len(dst); j++ {
			dst[i+j] = byte(w >> (8 * j))
		}
		off += 4
	}
}

func (c *Core) fillSlot(b *binding, slot int, src []byte) {
	which, addr := b.slotBD(slot)
	if len(src) > 0 {
		c.writePMA(addr, src)
	}
	c.setTxCount(b.phy, which, len(src))
}

// PacketMemory

func (c *Core) BufferCount(ch *core.Channel, slot int) int {
	b, err := c.bound(ch)
	if err != nil {
		return 0
	}
	return c.bufferCount(b, slot)
}

// ReadBuffer copies at most len(dst) received bytes of slot into dst.
func (c *Core) ReadBuffer(ch *core.Channel, slot int, dst []byte) int {
	b, err := c.bound(ch)
	if err != nil {
		return 0
	}
	which, addr := b.slotBD(slot)
	n := min(c.count(b.phy, which), len(dst))
	c.readPMA(addr, dst[:n])
	return n
}

// FillBuffer writes src into slot and records its length. A nil src only
// zeroes the count.
func (c *Core) FillBuffer(ch *core.Channel, slot int, src []byte) error {
	b, err := c.bound(ch)
	if err != nil {
		return err
	}
	if len(src) > b.mps {
		return fmt.Errorf("%w: %d bytes exceed max packet %d", pkg.ErrInvalidParameter, len(src), b.mps)
	}
	c.fillSlot(b, slot, src)
	return nil
}

// ReleaseBuffer flips the software buffer toggle, handing the slot software
// owns back to hardware.
func (c *Core) ReleaseBuffer(ch *core.Channel) {
	b, err := c.bound(ch)
	if err != nil {
		return
	}
	sw := uint32(chepDTOGRX)
	if b.dir == core.DirIn {
		sw = chepDTOGTX
	}
	v := c.bank.Load(chepReg(b.phy))
	c.chepWrite(b.phy, v&chepRW, sw, 0)
}

func (c *Core) SetStatus(ch *core.Channel, st core.EndpointStatus) {
	b, err := c.bound(ch)
	if err != nil {
		return
	}
	c.setStat(b.phy, b.dir, uint32(st))
}
