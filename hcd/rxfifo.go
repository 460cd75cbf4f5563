package hcd

import (
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// receive pops one receive FIFO entry. IN data is copied to the channel
// buffer; a full packet with more packets outstanding re-arms the channel
// and flips the IN toggle.
func (d *Driver) receive() {
	rx := d.fifo.PopReceive()
	if rx.Kind != core.RxInData || rx.Count == 0 {
		return
	}
	if int(rx.Channel) >= d.nch {
		d.fifo.ReadPacket(nil)
		return
	}
	c := &d.ch[rx.Channel]
	hw := &c.hw
	if hw.Buffer == nil {
		d.fifo.ReadPacket(nil)
		return
	}

	if hw.Count+rx.Count > hw.Length {
		d.fifo.ReadPacket(nil)
		pkg.LogWarn(pkg.ComponentChannel, "receive overflow",
			"ch", hw.Num, "bytes", rx.Count, "count", hw.Count, "len", hw.Length)
		c.state = StateBabble
		d.halt(c)
		return
	}

	n := d.fifo.ReadPacket(hw.Buffer[hw.Offset : hw.Offset+rx.Count])
	hw.Offset += n
	hw.Count += n
	hw.Remaining = max(hw.Remaining-n, 0)

	if n == int(hw.MaxPacket) && d.core.ChannelStatus(hw.Num).Packets > 0 {
		d.rearm(c)
		c.flipIn()
	}
}
