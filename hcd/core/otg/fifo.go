package otg

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/hcd/core/regs"
	"github.com/ardnew/softhcd/pkg"
)

// PopReceive pops GRXSTSP.
func (c *Core) PopReceive() core.RxStatus {
	v := c.bank.Load(regGRXSTSP)
	rx := core.RxStatus{
		Channel: uint8(v & grxstsCHNUM),
		Kind:    core.RxKind(regs.Get[uint8](v, grxstsPKTSTS, grxstsPKTP)),
		Count:   int(regs.Get[uint16](v, grxstsBCNT, grxstsBCNTP)),
		PID:     core.PID(regs.Get[uint8](v, grxstsDPID, grxstsDPIDP)),
	}
	c.rxCount = rx.Count
	return rx
}

// ReadPacket pops the packet announced by the last PopReceive. The FIFO is
// drained by whole words even when dst is short or nil.
func (c *Core) ReadPacket(dst []byte) int {
	count := c.rxCount
	c.rxCount = 0
	var n int
	for i := 0; i < (count+3)/4; i++ {
		w := c.bank.Load(fifoReg(0))
		for j := 0; j < 4 && i*4+j < count; j++ {
			if n < len(dst) {
				dst[n] = byte(w >> (8 * j))
				n++
			}
		}
	}
	return n
}

// writePacket pushes p into channel n's transmit FIFO window.
func (c *Core) writePacket(n uint8, p []byte) error {
	words := (len(p) + 3) / 4
	if words > 0xFFFF {
		return fmt.Errorf("%w: %d-byte packet", pkg.ErrInvalidParameter, len(p))
	}
	for i := 0; i < words; i++ {
		var w uint32
		for j := 0; j < 4 && i*4+j < len(p); j++ {
			w |= uint32(p[i*4+j]) << (8 * j)
		}
		c.bank.Store(fifoReg(n), w)
	}
	return nil
}
