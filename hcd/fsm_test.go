package hcd

import (
	"bytes"
	"testing"

	"github.com/ardnew/softhcd/hcd/core"
)

// =============================================================================
// Handshake Core: IN Transfers
// =============================================================================

func TestOTG_BulkInThroughReceiveFIFO(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	buf := submit(t, d, 1, 200)

	data := pattern(200)
	counts := []int{64, 128, 192, 200}
	for i, off := 0, 0; off < len(data); i, off = i+1, off+64 {
		c.Receive(1, data[off:min(off+64, len(data))])
		d.IRQHandler()
		if got := d.TransferCount(1); got != counts[i] {
			t.Fatalf("TransferCount() after packet %d = %d, want %d", i+1, got, counts[i])
		}
	}
	if got := c.Calls(1).Reactivate; got != 3 {
		t.Errorf("re-arms = %d, want 3", got)
	}
	if len(r.urbs[1]) != 0 {
		t.Fatalf("urbs before completion = %v, want none", r.urbs[1])
	}

	c.Raise(1, core.DirIn, core.EventXferComplete)
	d.IRQHandler()
	d.IRQHandler()

	if !equalURBs(r.urbs[1], []URBState{URBDone}) {
		t.Errorf("urbs = %v, want [DONE]", r.urbs[1])
	}
	if !bytes.Equal(buf, data) {
		t.Error("received data mismatch")
	}
	if d.ChannelState(1) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(1))
	}
	// Four packets leave the toggle where it started.
	if info, _ := d.Channel(1); info.ToggleIn != 0 {
		t.Errorf("ToggleIn = %d, want 0", info.ToggleIn)
	}
}

func TestOTG_ReceiveOverflow(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 16)

	c.Receive(0, pattern(64))
	d.IRQHandler()
	if d.TransferCount(0) != 0 {
		t.Errorf("TransferCount() = %d, want 0", d.TransferCount(0))
	}
	d.IRQHandler()
	if !equalURBs(r.urbs[0], []URBState{URBError}) {
		t.Errorf("urbs = %v, want [ERROR]", r.urbs[0])
	}
}

func TestOTG_DMATransferCount(t *testing.T) {
	tests := []struct {
		name     string
		residual int
		count    int
		toggle   uint8
	}{
		{"short second packet", 30, 70, 0},
		{"single packet", 36, 64, 1},
		{"full transfer", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fullSpeed()
			cfg.DMA = true
			d, c, r := newTestDriver(t, core.VariantOTG, cfg)
			if !d.DMAEnabled() {
				t.Fatal("DMAEnabled() = false")
			}
			configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
			submit(t, d, 0, 100)

			c.SetResidual(0, tt.residual)
			c.Raise(0, core.DirIn, core.EventXferComplete)
			d.IRQHandler()
			d.IRQHandler()

			if !equalURBs(r.urbs[0], []URBState{URBDone}) {
				t.Fatalf("urbs = %v, want [DONE]", r.urbs[0])
			}
			if got := d.TransferCount(0); got != tt.count {
				t.Errorf("TransferCount() = %d, want %d", got, tt.count)
			}
			if info, _ := d.Channel(0); info.ToggleIn != tt.toggle {
				t.Errorf("ToggleIn = %d, want %d", info.ToggleIn, tt.toggle)
			}
		})
	}
}

func TestOTG_InterruptInCompletion(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 4, 0x83, core.EndpointInterrupt, 8, core.SpeedLow)
	submit(t, d, 4, 8)

	c.Receive(4, pattern(8))
	d.IRQHandler()
	c.Raise(4, core.DirIn, core.EventXferComplete)
	d.IRQHandler()

	// Periodic endpoints complete without a halt.
	if !equalURBs(r.urbs[4], []URBState{URBDone}) {
		t.Errorf("urbs = %v, want [DONE]", r.urbs[4])
	}
	calls := c.Calls(4)
	if calls.Halt != 0 || calls.NextFrame != 1 {
		t.Errorf("calls = %+v, want 0 halts and 1 next frame", calls)
	}
	if info, _ := d.Channel(4); info.ToggleIn != 1 {
		t.Errorf("ToggleIn = %d, want 1", info.ToggleIn)
	}
}

func TestOTG_TransactionErrorRetry(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 1, 64)

	for i := 0; i < 3; i++ {
		c.Raise(1, core.DirIn, core.EventXactErr)
		d.IRQHandler()
		d.IRQHandler()
	}

	want := []URBState{URBNotReady, URBNotReady, URBError}
	if !equalURBs(r.urbs[1], want) {
		t.Errorf("urbs = %v, want %v", r.urbs[1], want)
	}
	if d.ChannelState(1) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(1))
	}
	if got := c.Calls(1).Reactivate; got != 2 {
		t.Errorf("re-arms = %d, want 2", got)
	}
}

func TestOTG_TransactionErrorResetByData(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 1, 64)

	for i := 0; i < 2; i++ {
		c.Raise(1, core.DirIn, core.EventXactErr)
		d.IRQHandler()
		d.IRQHandler()
	}
	c.Receive(1, pattern(64))
	d.IRQHandler()
	c.Raise(1, core.DirIn, core.EventXferComplete)
	d.IRQHandler()
	d.IRQHandler()

	want := []URBState{URBNotReady, URBNotReady, URBDone}
	if !equalURBs(r.urbs[1], want) {
		t.Errorf("urbs = %v, want %v", r.urbs[1], want)
	}
	if info, _ := d.Channel(1); info.ErrCount != 0 {
		t.Errorf("ErrCount = %d, want 0", info.ErrCount)
	}
}

func TestOTG_Stall(t *testing.T) {
	tests := []struct {
		name string
		ep   uint8
		dir  core.Direction
	}{
		{"in", 0x81, core.DirIn},
		{"out", 0x01, core.DirOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
			configure(t, d, 0, tt.ep, core.EndpointBulk, 64, core.SpeedFull)
			submit(t, d, 0, 64)

			c.Raise(0, tt.dir, core.EventStall)
			d.IRQHandler()
			d.IRQHandler()

			if !equalURBs(r.urbs[0], []URBState{URBStall}) {
				t.Errorf("urbs = %v, want [STALL]", r.urbs[0])
			}
			if got := c.Calls(0).Reactivate; got != 0 {
				t.Errorf("re-arms = %d, want 0", got)
			}
		})
	}
}

func TestOTG_StallAfterErrors(t *testing.T) {
	tests := []struct {
		name   string
		errors int
		want   []URBState
	}{
		{"one error", 1, []URBState{URBNotReady, URBStall}},
		{"two errors", 2, []URBState{URBNotReady, URBNotReady, URBStall}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
			configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
			submit(t, d, 1, 64)

			for i := 0; i < tt.errors; i++ {
				c.Raise(1, core.DirIn, core.EventXactErr)
				d.IRQHandler()
				d.IRQHandler()
			}
			if info, _ := d.Channel(1); int(info.ErrCount) != tt.errors {
				t.Fatalf("ErrCount = %d, want %d", info.ErrCount, tt.errors)
			}

			c.Raise(1, core.DirIn, core.EventStall)
			d.IRQHandler()
			d.IRQHandler()

			if !equalURBs(r.urbs[1], tt.want) {
				t.Errorf("urbs = %v, want %v", r.urbs[1], tt.want)
			}
			if got := c.Calls(1).Reactivate; got != tt.errors {
				t.Errorf("re-arms = %d, want %d", got, tt.errors)
			}
			if d.ChannelState(1) != StateHalted {
				t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(1))
			}
		})
	}
}

func TestOTG_Babble(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	c.Raise(0, core.DirIn, core.EventBabble)
	d.IRQHandler()
	d.IRQHandler()

	if !equalURBs(r.urbs[0], []URBState{URBError}) {
		t.Errorf("urbs = %v, want [ERROR]", r.urbs[0])
	}
}

func TestOTG_FrameOverrun(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x83, core.EndpointInterrupt, 8, core.SpeedFull)
	submit(t, d, 0, 8)

	c.Raise(0, core.DirIn, core.EventFrameOverrun)
	d.IRQHandler()
	if c.Calls(0).Halt != 1 {
		t.Errorf("Halt calls = %d, want 1", c.Calls(0).Halt)
	}
	// The halt was not requested by a table state, so it resolves silently.
	d.IRQHandler()
	if len(r.urbs[0]) != 0 {
		t.Errorf("urbs = %v, want none", r.urbs[0])
	}
}

// =============================================================================
// Handshake Core: OUT Transfers
// =============================================================================

func TestOTG_BulkOutToggleParity(t *testing.T) {
	tests := []struct {
		length int
		toggle uint8
	}{
		{64, 1},
		{128, 0},
		{192, 1},
		{100, 0},
		{0, 0},
	}

	for _, tt := range tests {
		d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
		configure(t, d, 0, 0x02, core.EndpointBulk, 64, core.SpeedFull)
		submit(t, d, 0, tt.length)

		c.Raise(0, core.DirOut, core.EventXferComplete)
		d.IRQHandler()
		d.IRQHandler()

		if !equalURBs(r.urbs[0], []URBState{URBDone}) {
			t.Errorf("len %d: urbs = %v, want [DONE]", tt.length, r.urbs[0])
		}
		if got := d.TransferCount(0); got != tt.length {
			t.Errorf("len %d: TransferCount() = %d", tt.length, got)
		}
		if info, _ := d.Channel(0); info.ToggleOut != tt.toggle {
			t.Errorf("len %d: ToggleOut = %d, want %d", tt.length, info.ToggleOut, tt.toggle)
		}
	}
}

func TestOTG_OutNyetRequestsPing(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
	configure(t, d, 0, 0x01, core.EndpointBulk, 512, core.SpeedHigh)
	submit(t, d, 0, 512)

	c.Raise(0, core.DirOut, core.EventNyet)
	d.IRQHandler()
	d.IRQHandler()

	if !equalURBs(r.urbs[0], []URBState{URBNotReady}) {
		t.Errorf("urbs = %v, want [NOTREADY]", r.urbs[0])
	}
	if info, _ := d.Channel(0); !info.DoPing {
		t.Error("DoPing not set after NYET")
	}
}

func TestOTG_OutTransactionErrorRetry(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x01, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	for i := 0; i < 3; i++ {
		c.Raise(0, core.DirOut, core.EventXactErr)
		d.IRQHandler()
		d.IRQHandler()
	}

	want := []URBState{URBNotReady, URBNotReady, URBError}
	if !equalURBs(r.urbs[0], want) {
		t.Errorf("urbs = %v, want %v", r.urbs[0], want)
	}
}

func TestOTG_OutTransactionErrorDMA(t *testing.T) {
	cfg := fullSpeed()
	cfg.DMA = true
	d, c, r := newTestDriver(t, core.VariantOTG, cfg)
	configure(t, d, 0, 0x01, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	for i := 0; i < 3; i++ {
		c.Raise(0, core.DirOut, core.EventXactErr)
		d.IRQHandler()
	}

	want := []URBState{URBNotReady, URBNotReady, URBError}
	if !equalURBs(r.urbs[0], want) {
		t.Errorf("urbs = %v, want %v", r.urbs[0], want)
	}
	if c.Calls(0).Halt != 0 {
		t.Errorf("Halt calls = %d, want 0", c.Calls(0).Halt)
	}
}

// =============================================================================
// Halt Resolution Tests
// =============================================================================

func TestOTG_UnrequestedHaltDropped(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)

	// HALTED after configuration.
	c.Raise(0, core.DirIn, core.EventHalted)
	d.IRQHandler()
	if len(r.urbs[0]) != 0 {
		t.Errorf("urbs = %v, want none", r.urbs[0])
	}
	if c.Pending(0) != 0 {
		t.Errorf("Pending() = %v, want consumed", c.Pending(0))
	}

	// A second confirmation after completion is dropped too.
	submit(t, d, 0, 8)
	c.Receive(0, pattern(8))
	d.IRQHandler()
	c.Raise(0, core.DirIn, core.EventXferComplete)
	d.IRQHandler()
	d.IRQHandler()
	c.Raise(0, core.DirIn, core.EventHalted)
	d.IRQHandler()

	if !equalURBs(r.urbs[0], []URBState{URBDone}) {
		t.Errorf("urbs = %v, want [DONE]", r.urbs[0])
	}
}

func TestPacketParity(t *testing.T) {
	tests := []struct {
		n    int
		mps  uint16
		want bool
	}{
		{0, 64, false},
		{1, 64, true},
		{64, 64, true},
		{65, 64, false},
		{128, 64, false},
		{129, 64, true},
		{10, 0, false},
	}

	for _, tt := range tests {
		if got := packetParity(tt.n, tt.mps); got != tt.want {
			t.Errorf("packetParity(%d, %d) = %v, want %v", tt.n, tt.mps, got, tt.want)
		}
	}
}
