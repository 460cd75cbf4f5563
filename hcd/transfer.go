package hcd

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Token selects the token phase of a request.
type Token uint8

// Tokens.
const (
	TokenData  Token = iota // DATA stage or non-control transfer
	TokenSetup              // SETUP stage of a control transfer
)

// TransferRequest describes one URB.
type TransferRequest struct {
	Token  Token
	Buffer []byte
	Length int

	// Ping requests a PING before OUT data on a high-speed device.
	Ping bool
}

// SubmitTransfer arms channel n with req. It returns once the hardware is
// armed; completion arrives through the Notifier.
func (d *Driver) SubmitTransfer(n uint8, req TransferRequest) error {
	c, err := d.channel(n)
	if err != nil {
		return err
	}
	if !c.configured {
		return fmt.Errorf("submit channel %d: %w", n, pkg.ErrNotConfigured)
	}
	if c.busy() {
		return fmt.Errorf("submit channel %d: %w", n, pkg.ErrBusy)
	}
	if req.Length < 0 || req.Length > len(req.Buffer) {
		return fmt.Errorf("%w: length %d with %d-byte buffer", pkg.ErrInvalidParameter, req.Length, len(req.Buffer))
	}
	if req.Token == TokenSetup && (c.hw.Type != core.EndpointControl || c.hw.Dir != core.DirOut) {
		return fmt.Errorf("%w: SETUP on %s %s channel %d",
			pkg.ErrInvalidParameter, c.hw.Type, c.hw.Dir, n)
	}

	hw := &c.hw
	hw.PID = d.selectPID(c, req)
	hw.Buffer = req.Buffer[:req.Length]
	hw.Length = req.Length
	hw.Size = req.Length
	hw.Remaining = req.Length
	hw.Offset = 0
	hw.Count = 0
	hw.Fill = 0

	c.urb = URBIdle
	c.state = StateIdle
	c.armed = true

	if err := d.core.StartChannel(hw); err != nil {
		c.armed = false
		c.state = StateHalted
		return fmt.Errorf("%w: start channel %d: %w", pkg.ErrCoreFault, n, err)
	}

	pkg.LogDebug(pkg.ComponentChannel, "transfer armed",
		"ch", n,
		"dir", hw.Dir.String(),
		"type", hw.Type.String(),
		"len", req.Length,
		"pid", hw.PID.String(),
		"split", hw.StartSplit)
	return nil
}

// selectPID returns the data PID for req and updates toggle and PING state.
func (d *Driver) selectPID(c *Channel, req TransferRequest) core.PID {
	hw := &c.hw
	if req.Token == TokenSetup {
		hw.DoPing = req.Ping
		return core.PIDSetup
	}

	switch hw.Type {
	case core.EndpointControl:
		if hw.Dir == core.DirOut {
			// Zero-length OUT is the status stage, always DATA1.
			if req.Length == 0 {
				c.toggleOut = 1
			}
			d.requestPing(c, req)
			return pidOf(c.toggleOut)
		}
		if hw.StartSplit {
			return pidOf(c.toggleIn)
		}
		return core.PIDData1

	case core.EndpointBulk:
		if hw.Dir == core.DirOut {
			d.requestPing(c, req)
			return pidOf(c.toggleOut)
		}
		return pidOf(c.toggleIn)

	case core.EndpointInterrupt:
		if hw.Dir == core.DirOut {
			return pidOf(c.toggleOut)
		}
		return pidOf(c.toggleIn)

	case core.EndpointIsochronous:
		return core.PIDData0
	}
	return core.PIDData1
}

// requestPing keeps a pending PING from a previous NAK/NYET and adds the
// caller's request. PING only exists for high-speed devices without split.
func (d *Driver) requestPing(c *Channel, req TransferRequest) {
	if c.hw.Speed != core.SpeedHigh || c.hw.StartSplit {
		c.hw.DoPing = false
		return
	}
	c.hw.DoPing = c.hw.DoPing || req.Ping
}
