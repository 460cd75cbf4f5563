package drd

import (
	"github.com/ardnew/softhcd/hcd/core/regs"
)

// hw models the control registers: CHEP toggle and write-zero-to-clear
// fields, ISTR flags, and the suspend handshake. pma is plain packet
// memory.
type hw struct {
	*regs.Memory
	pma *regs.Memory

	// Suspend never reports ready when set.
	stuck bool
}

func newHW() *hw {
	h := &hw{Memory: regs.NewMemory(), pma: regs.NewMemory()}

	for phy := uint8(0); phy < physChannels; phy++ {
		h.OnStore(chepReg(phy), func(_, old, v uint32) uint32 {
			return v&chepRW | (old^v&chepToggle)&chepToggle | old&v&chepW0C
		})
	}
	h.OnStore(regISTR, func(_, old, v uint32) uint32 {
		return old&^istrW0C | old&v&istrW0C
	})
	h.OnLoad(regISTR, func(_, v uint32) uint32 {
		for phy := uint8(0); phy < physChannels; phy++ {
			if h.Peek(chepReg(phy))&(chepVTTX|chepVTRX|chepERRTX|chepERRRX) != 0 {
				return v | istrCTR
			}
		}
		return v
	})
	h.OnLoad(regCNTR, func(_, v uint32) uint32 {
		v &^= cntrSUSPRDY
		if v&cntrSUSPEN != 0 && !h.stuck {
			v |= cntrSUSPRDY
		}
		return v
	})
	return h
}

// complete reports a finished transaction on phy: the status field of dir
// reads stat and the completion flag is set.
func (h *hw) complete(phy uint8, in bool, stat uint32) {
	off := chepReg(phy)
	v := h.Peek(off)
	if in {
		v = v&^chepSTATRX | stat<<chepSTATRXP | chepVTRX
	} else {
		v = v&^chepSTATTX | stat<<chepSTATTXP | chepVTTX
	}
	h.Poke(off, v)
}

// toggles sets the hardware view of both data toggles.
func (h *hw) toggles(phy uint8, tx, rx bool) {
	off := chepReg(phy)
	v := h.Peek(off) &^ (chepDTOGTX | chepDTOGRX)
	if tx {
		v |= chepDTOGTX
	}
	if rx {
		v |= chepDTOGRX
	}
	h.Poke(off, v)
}

// receive writes data into packet memory at addr and records its count in
// the descriptor.
func (h *hw) receive(phy uint8, which uint32, addr uint16, data []byte) {
	for i := 0; i < len(data); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			w |= uint32(data[i+j]) << (8 * j)
		}
		h.pma.Poke(uint32(addr)+uint32(i), w)
	}
	off := bdReg(phy, which)
	h.pma.Poke(off, h.pma.Peek(off)&^bdCountClr|uint32(len(data))<<bdCOUNTP)
}

// sent returns n bytes of packet memory at addr.
func (h *hw) sent(addr uint16, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		w := h.pma.Peek(uint32(addr) + uint32(i&^3))
		out[i] = byte(w >> (8 * (i & 3)))
	}
	return out
}

func (h *hw) bdCount(phy uint8, which uint32) int {
	return int(h.pma.Peek(bdReg(phy, which)) >> bdCOUNTP & bdCOUNT)
}

func (h *hw) bdAddr(phy uint8, which uint32) uint16 {
	return uint16(h.pma.Peek(bdReg(phy, which)) & bdADDR)
}

func (h *hw) stat(phy uint8, in bool) uint32 {
	v := h.Peek(chepReg(phy))
	if in {
		return v & chepSTATRX >> chepSTATRXP
	}
	return v & chepSTATTX >> chepSTATTXP
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
