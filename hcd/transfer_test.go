package hcd

import (
	"errors"
	"testing"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// =============================================================================
// Intake Validation Tests
// =============================================================================

func TestSubmitTransfer_Validation(t *testing.T) {
	d, _, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x00, core.EndpointControl, 64, core.SpeedFull)
	configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)

	tests := []struct {
		name string
		ch   uint8
		req  TransferRequest
		want error
	}{
		{"out of range", 8, TransferRequest{}, pkg.ErrInvalidChannel},
		{"not configured", 2, TransferRequest{}, pkg.ErrNotConfigured},
		{"length exceeds buffer", 1, TransferRequest{Buffer: make([]byte, 4), Length: 8}, pkg.ErrInvalidParameter},
		{"negative length", 1, TransferRequest{Buffer: make([]byte, 4), Length: -1}, pkg.ErrInvalidParameter},
		{"setup on bulk", 1, TransferRequest{Token: TokenSetup, Buffer: make([]byte, 8), Length: 8}, pkg.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SubmitTransfer(tt.ch, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("SubmitTransfer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitTransfer_Busy(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 3, 0x82, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 3, 64)

	err := d.SubmitTransfer(3, TransferRequest{Buffer: make([]byte, 64), Length: 64})
	if !errors.Is(err, pkg.ErrBusy) {
		t.Fatalf("second SubmitTransfer() error = %v, want ErrBusy", err)
	}
	if got := c.Calls(3).Start; got != 1 {
		t.Errorf("StartChannel calls = %d, want 1", got)
	}
	if err := d.ConfigureChannel(3, ChannelConfig{EndpointAddress: 0x82, MaxPacket: 64}); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("ConfigureChannel() while busy error = %v, want ErrBusy", err)
	}

	// A NOTREADY outcome frees the channel for resubmission.
	c.Raise(3, core.DirIn, core.EventNak)
	d.IRQHandler()
	d.IRQHandler()
	if d.URBState(3) != URBNotReady {
		t.Fatalf("URBState() = %v, want NOTREADY", d.URBState(3))
	}
	if err := d.SubmitTransfer(3, TransferRequest{Buffer: make([]byte, 64), Length: 64}); err != nil {
		t.Errorf("SubmitTransfer() after NOTREADY error = %v", err)
	}
}

func TestSubmitTransfer_CoreFailure(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)

	c.FailStart(errors.New("bus fault"))
	err := d.SubmitTransfer(0, TransferRequest{Buffer: make([]byte, 8), Length: 8})
	if !errors.Is(err, pkg.ErrCoreFault) {
		t.Fatalf("SubmitTransfer() error = %v, want ErrCoreFault", err)
	}
	if d.ChannelState(0) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(0))
	}

	c.FailStart(nil)
	if err := d.SubmitTransfer(0, TransferRequest{Buffer: make([]byte, 8), Length: 8}); err != nil {
		t.Errorf("SubmitTransfer() after recovery error = %v", err)
	}
}

// =============================================================================
// PID Selection Tests
// =============================================================================

func TestSubmitTransfer_PID(t *testing.T) {
	tests := []struct {
		name   string
		ep     uint8
		typ    core.EndpointType
		token  Token
		length int
		want   core.PID
	}{
		{"setup", 0x00, core.EndpointControl, TokenSetup, 8, core.PIDSetup},
		{"control out status stage", 0x00, core.EndpointControl, TokenData, 0, core.PIDData1},
		{"control out data", 0x00, core.EndpointControl, TokenData, 8, core.PIDData0},
		{"control in", 0x80, core.EndpointControl, TokenData, 18, core.PIDData1},
		{"bulk out", 0x01, core.EndpointBulk, TokenData, 64, core.PIDData0},
		{"bulk in", 0x81, core.EndpointBulk, TokenData, 64, core.PIDData0},
		{"interrupt in", 0x83, core.EndpointInterrupt, TokenData, 8, core.PIDData0},
		{"interrupt out", 0x03, core.EndpointInterrupt, TokenData, 8, core.PIDData0},
		{"isochronous", 0x84, core.EndpointIsochronous, TokenData, 188, core.PIDData0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
			configure(t, d, 0, tt.ep, tt.typ, 64, core.SpeedFull)

			req := TransferRequest{Token: tt.token, Buffer: make([]byte, tt.length), Length: tt.length}
			if err := d.SubmitTransfer(0, req); err != nil {
				t.Fatalf("SubmitTransfer() error = %v", err)
			}
			if got := c.Programmed(0).PID; got != tt.want {
				t.Errorf("PID = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubmitTransfer_ToggleFollowsCompletion(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x02, core.EndpointBulk, 64, core.SpeedFull)

	// One packet: the OUT toggle flips once.
	submit(t, d, 0, 64)
	c.Raise(0, core.DirOut, core.EventXferComplete)
	d.IRQHandler()
	d.IRQHandler()
	if !equalURBs(r.urbs[0], []URBState{URBDone}) {
		t.Fatalf("urbs = %v, want [DONE]", r.urbs[0])
	}

	submit(t, d, 0, 64)
	if got := c.Programmed(0).PID; got != core.PIDData1 {
		t.Errorf("PID after one packet = %v, want DATA1", got)
	}
}

func TestSubmitTransfer_SplitControlIn(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
	c.Connect(core.SpeedHigh)
	configure(t, d, 0, 0x80, core.EndpointControl, 64, core.SpeedFull)
	if err := d.SetHubRouting(0, 2, 1); err != nil {
		t.Fatalf("SetHubRouting() error = %v", err)
	}
	submit(t, d, 0, 18)

	prog := c.Programmed(0)
	if !prog.StartSplit {
		t.Error("StartSplit not set behind high-speed hub")
	}
	if prog.PID != core.PIDData1 {
		t.Errorf("PID = %v, want DATA1", prog.PID)
	}
	if prog.HubAddr != 2 || prog.HubPort != 1 {
		t.Errorf("hub = %d/%d, want 2/1", prog.HubAddr, prog.HubPort)
	}
}

func TestSubmitTransfer_Ping(t *testing.T) {
	tests := []struct {
		name  string
		speed core.Speed
		ping  bool
		want  bool
	}{
		{"high speed requested", core.SpeedHigh, true, true},
		{"high speed not requested", core.SpeedHigh, false, false},
		{"full speed requested", core.SpeedFull, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, _ := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
			configure(t, d, 0, 0x01, core.EndpointBulk, 512, tt.speed)
			req := TransferRequest{Buffer: make([]byte, 512), Length: 512, Ping: tt.ping}
			if err := d.SubmitTransfer(0, req); err != nil {
				t.Fatal(err)
			}
			if got := c.Programmed(0).DoPing; got != tt.want {
				t.Errorf("DoPing = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubmitTransfer_PingAfterNak(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
	configure(t, d, 0, 0x01, core.EndpointBulk, 512, core.SpeedHigh)
	submit(t, d, 0, 512)

	c.Raise(0, core.DirOut, core.EventNak)
	d.IRQHandler()
	d.IRQHandler()
	if !equalURBs(r.urbs[0], []URBState{URBNotReady}) {
		t.Fatalf("urbs = %v, want [NOTREADY]", r.urbs[0])
	}

	submit(t, d, 0, 512)
	if !c.Programmed(0).DoPing {
		t.Error("PING not carried into resubmission after NAK")
	}
}

// =============================================================================
// Channel Configuration Tests
// =============================================================================

func TestConfigureChannel(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())

	if err := d.ConfigureChannel(8, ChannelConfig{MaxPacket: 64}); !errors.Is(err, pkg.ErrInvalidChannel) {
		t.Errorf("ConfigureChannel(8) error = %v, want ErrInvalidChannel", err)
	}
	if err := d.ConfigureChannel(0, ChannelConfig{}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("ConfigureChannel() with mps 0 error = %v, want ErrInvalidParameter", err)
	}

	configure(t, d, 5, 0x83, core.EndpointInterrupt, 8, core.SpeedLow)
	info, err := d.Channel(5)
	if err != nil {
		t.Fatal(err)
	}
	if info.Dir != core.DirIn || info.Type != core.EndpointInterrupt {
		t.Errorf("info = %+v, want interrupt IN", info)
	}
	if info.State != StateHalted {
		t.Errorf("State = %v, want HALTED", info.State)
	}

	// Reconfiguring releases the previous binding.
	configure(t, d, 5, 0x01, core.EndpointBulk, 64, core.SpeedFull)
	calls := c.Calls(5)
	if calls.Close != 1 || calls.Init != 2 {
		t.Errorf("calls = %+v, want 1 close and 2 inits", calls)
	}
}

func TestClearHubRouting(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
	c.Connect(core.SpeedHigh)
	configure(t, d, 1, 0x81, core.EndpointInterrupt, 8, core.SpeedLow)
	if err := d.SetHubRouting(1, 4, 2); err != nil {
		t.Fatal(err)
	}
	if info, _ := d.Channel(1); !info.StartSplit {
		t.Fatal("StartSplit not set")
	}
	if err := d.ClearHubRouting(1); err != nil {
		t.Fatal(err)
	}
	if info, _ := d.Channel(1); info.StartSplit || info.CompleteSplit {
		t.Errorf("split state = %+v, want cleared", info)
	}
}

func TestSetHubRouting_HighSpeedDevice(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, core.Config{Channels: 8, Speed: core.SpeedHigh})
	c.Connect(core.SpeedHigh)
	configure(t, d, 1, 0x81, core.EndpointBulk, 512, core.SpeedHigh)
	if err := d.SetHubRouting(1, 4, 2); err != nil {
		t.Fatal(err)
	}
	if info, _ := d.Channel(1); info.StartSplit {
		t.Error("StartSplit set for a high-speed device")
	}
}

// =============================================================================
// Halt Tests
// =============================================================================

func TestHaltChannel(t *testing.T) {
	d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 2, 0x81, core.EndpointBulk, 64, core.SpeedFull)

	// Halting an idle channel does not touch the hardware.
	if err := d.HaltChannel(2); err != nil {
		t.Fatalf("HaltChannel() error = %v", err)
	}
	if c.Calls(2).Halt != 0 {
		t.Errorf("Halt calls = %d, want 0", c.Calls(2).Halt)
	}

	submit(t, d, 2, 64)
	if err := d.HaltChannel(2); err != nil {
		t.Fatalf("HaltChannel() error = %v", err)
	}
	if d.ChannelState(2) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(2))
	}
	if c.Pending(2) != 0 {
		t.Errorf("Pending() = %v, want none", c.Pending(2))
	}
	if len(r.urbs[2]) != 0 {
		t.Errorf("urbs = %v, want none", r.urbs[2])
	}
	if err := d.SubmitTransfer(2, TransferRequest{Buffer: make([]byte, 8), Length: 8}); err != nil {
		t.Errorf("SubmitTransfer() after halt error = %v", err)
	}
}

func TestHaltChannel_Timeout(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	c.SetAutoHalt(false)
	if err := d.HaltChannel(0); !errors.Is(err, pkg.ErrTimeout) {
		t.Fatalf("HaltChannel() error = %v, want ErrTimeout", err)
	}
	if info, _ := d.Channel(0); !info.Aborting {
		t.Error("Aborting = false after unconfirmed halt")
	}

	// The hardware never confirmed the halt, so the channel stays busy.
	err := d.SubmitTransfer(0, TransferRequest{Buffer: make([]byte, 64), Length: 64})
	if !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("SubmitTransfer() after timeout error = %v, want ErrBusy", err)
	}
	if got := c.Calls(0).Start; got != 1 {
		t.Errorf("StartChannel calls = %d, want 1", got)
	}

	// A late confirmation releases it.
	c.Raise(0, core.DirIn, core.EventHalted)
	d.IRQHandler()
	if d.ChannelState(0) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(0))
	}
	if c.Pending(0) != 0 {
		t.Errorf("Pending() = %v, want none", c.Pending(0))
	}
	if err := d.SubmitTransfer(0, TransferRequest{Buffer: make([]byte, 64), Length: 64}); err != nil {
		t.Errorf("SubmitTransfer() after confirmation error = %v", err)
	}
}

func TestHaltChannel_TimeoutThenClose(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	c.SetAutoHalt(false)
	if err := d.HaltChannel(0); !errors.Is(err, pkg.ErrTimeout) {
		t.Fatalf("HaltChannel() error = %v, want ErrTimeout", err)
	}
	c.SetAutoHalt(true)

	// A second abort retries the hardware halt.
	if err := d.HaltChannel(0); err != nil {
		t.Fatalf("second HaltChannel() error = %v", err)
	}
	if got := c.Calls(0).Halt; got != 2 {
		t.Errorf("Halt calls = %d, want 2", got)
	}
	if err := d.CloseChannel(0); err != nil {
		t.Errorf("CloseChannel() error = %v", err)
	}
}

func TestHaltChannel_AfterRetryRearm(t *testing.T) {
	tests := []struct {
		name string
		ev   core.Event
	}{
		{"nak", core.EventNak},
		{"transaction error", core.EventXactErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, r := newTestDriver(t, core.VariantOTG, fullSpeed())
			configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
			submit(t, d, 1, 64)

			c.Raise(1, core.DirIn, tt.ev)
			d.IRQHandler()
			d.IRQHandler()

			if !equalURBs(r.urbs[1], []URBState{URBNotReady}) {
				t.Fatalf("urbs = %v, want [NOTREADY]", r.urbs[1])
			}
			if got := c.Calls(1).Reactivate; got != 1 {
				t.Fatalf("re-arms = %d, want 1", got)
			}
			// Re-armed in place, so the channel is running again.
			if d.ChannelState(1) != StateIdle {
				t.Errorf("ChannelState() after re-arm = %v, want IDLE", d.ChannelState(1))
			}

			halts := c.Calls(1).Halt
			if err := d.HaltChannel(1); err != nil {
				t.Fatalf("HaltChannel() error = %v", err)
			}
			if got := c.Calls(1).Halt; got != halts+1 {
				t.Errorf("Halt calls = %d, want %d", got, halts+1)
			}
			if d.ChannelState(1) != StateHalted {
				t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(1))
			}
			if len(r.urbs[1]) != 1 {
				t.Errorf("urbs = %v, want no notification for the abort", r.urbs[1])
			}
		})
	}
}

func TestHaltChannel_DRD(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantDRD, fullSpeed())
	configure(t, d, 0, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 0, 64)

	if err := d.HaltChannel(0); err != nil {
		t.Fatalf("HaltChannel() error = %v", err)
	}
	if d.ChannelState(0) != StateHalted {
		t.Errorf("ChannelState() = %v, want HALTED", d.ChannelState(0))
	}
	if c.Calls(0).Halt != 1 {
		t.Errorf("Halt calls = %d, want 1", c.Calls(0).Halt)
	}
}

func TestCloseChannel(t *testing.T) {
	d, c, _ := newTestDriver(t, core.VariantOTG, fullSpeed())
	configure(t, d, 1, 0x81, core.EndpointBulk, 64, core.SpeedFull)
	submit(t, d, 1, 64)

	if err := d.CloseChannel(1); err != nil {
		t.Fatalf("CloseChannel() error = %v", err)
	}
	if c.Calls(1).Close != 1 {
		t.Errorf("Close calls = %d, want 1", c.Calls(1).Close)
	}
	err := d.SubmitTransfer(1, TransferRequest{Buffer: make([]byte, 8), Length: 8})
	if !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("SubmitTransfer() after close error = %v, want ErrNotConfigured", err)
	}
	if err := d.CloseChannel(1); err != nil {
		t.Errorf("second CloseChannel() error = %v", err)
	}
}
