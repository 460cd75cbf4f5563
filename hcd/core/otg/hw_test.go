package otg

import (
	"github.com/ardnew/softhcd/hcd/core/regs"
)

// hw models the register side effects the core depends on: flush bits that
// self-clear, write-one-to-clear status, channel halts, and the receive
// FIFO.
type hw struct {
	*regs.Memory
	rx    []uint32
	words []uint32
	tx    map[uint8][]uint32
}

func newHW() *hw {
	h := &hw{Memory: regs.NewMemory(), tx: make(map[uint8][]uint32)}

	h.OnLoad(regGRSTCTL, func(_, v uint32) uint32 {
		return v&^(grstctlTXFFLSH|grstctlRXFFLSH) | grstctlAHBIDL
	})
	h.OnStore(regGINTSTS, func(_, old, v uint32) uint32 {
		return old &^ (v & gintW1C)
	})
	h.OnLoad(regGINTSTS, func(_, v uint32) uint32 {
		if h.haint() != 0 {
			v |= gintHCINT
		}
		if len(h.rx) > 0 {
			v |= gintRXFLVL
		}
		return v
	})
	h.OnLoad(regHAINT, func(_, _ uint32) uint32 { return h.haint() })
	h.OnStore(regHAINT, func(_, _, _ uint32) uint32 { return 0 })
	h.W1C(regHPRT, hprtW1C)

	h.OnLoad(regGRXSTSP, func(_, _ uint32) uint32 {
		if len(h.rx) == 0 {
			return 0
		}
		v := h.rx[0]
		h.rx = h.rx[1:]
		return v
	})
	h.OnLoad(fifoReg(0), func(_, _ uint32) uint32 {
		if len(h.words) == 0 {
			return 0
		}
		w := h.words[0]
		h.words = h.words[1:]
		return w
	})

	for n := uint8(0); n < 8; n++ {
		n := n
		h.W1C(chReg(n, chHCINT), hcintAll)
		// A disable request takes effect when CHENA is written again.
		h.OnStore(chReg(n, chHCCHAR), func(_, old, v uint32) uint32 {
			if old&hccharCHDIS != 0 && v&(hccharCHDIS|hccharCHENA) == hccharCHDIS|hccharCHENA {
				h.Raise(chReg(n, chHCINT), hcintCHH)
				return v &^ (hccharCHDIS | hccharCHENA)
			}
			return v
		})
		h.OnStore(fifoReg(n), func(_, _, v uint32) uint32 {
			h.tx[n] = append(h.tx[n], v)
			return 0
		})
	}
	return h
}

func (h *hw) haint() uint32 {
	var bits uint32
	for n := uint8(0); n < 16; n++ {
		if h.Peek(chReg(n, chHCINT))&h.Peek(chReg(n, chHCINTMSK)) != 0 {
			bits |= 1 << n
		}
	}
	return bits
}

// receive queues one IN data entry for channel n.
func (h *hw) receive(n uint8, data []byte) {
	h.rx = append(h.rx, uint32(n)|
		uint32(len(data))<<grxstsBCNTP|
		2<<grxstsPKTP)
	for i := 0; i < len(data); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			w |= uint32(data[i+j]) << (8 * j)
		}
		h.words = append(h.words, w)
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
