package hcd

import (
	"fmt"
	"time"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
)

// Port reset and resume timing.
const (
	resetAssertTime  = 100 * time.Millisecond
	resetRecoverTime = 30 * time.Millisecond
	resumeAssertTime = 30 * time.Millisecond
)

// Driver is the core driver handle. It owns the channel array, the core,
// and the host port.
type Driver struct {
	core core.Core
	fifo core.FIFOReader
	pmem core.PacketMemory
	feat core.Features
	cfg  core.Config

	nch int
	ch  [core.MaxChannels]Channel

	port  PortState
	state State

	notify Notifier
	sleep  func(time.Duration)

	errLimit uint8
}

// Option configures a Driver.
type Option func(*Driver)

// WithNotifier sets the sink for URB and port events.
func WithNotifier(n Notifier) Option {
	return func(d *Driver) {
		if n != nil {
			d.notify = n
		}
	}
}

// WithSleeper replaces time.Sleep for the port reset and resume delays.
func WithSleeper(fn func(time.Duration)) Option {
	return func(d *Driver) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// New creates a driver for c. The driver does nothing until Init.
func New(c core.Core, opts ...Option) *Driver {
	d := &Driver{
		core:   c,
		notify: NopNotifier{},
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init brings up the core with cfg and resets every channel record.
func (d *Driver) Init(cfg core.Config) error {
	if d.state == DriverActive {
		return pkg.ErrAlreadyRunning
	}
	if err := cfg.Validate(d.core.NumChannels()); err != nil {
		return err
	}
	if err := d.core.Init(cfg); err != nil {
		d.state = DriverFault
		return fmt.Errorf("%w: init %s core: %w", pkg.ErrCoreFault, d.core.Variant(), err)
	}

	d.cfg = cfg
	d.feat = d.core.Features()
	d.nch = cfg.Channels
	d.fifo, _ = d.core.(core.FIFOReader)
	d.pmem, _ = d.core.(core.PacketMemory)
	if !d.feat.HaltHandshake && d.pmem == nil {
		d.state = DriverFault
		return fmt.Errorf("%w: %s core without packet memory", pkg.ErrNotSupported, d.core.Variant())
	}

	d.errLimit = otgErrorLimit
	if d.core.Variant() == core.VariantDRD {
		d.errLimit = drdErrorLimit
	}

	for i := range d.ch {
		d.ch[i] = Channel{hw: core.Channel{Num: uint8(i)}, state: StateHalted}
	}
	d.port = PortDisconnected
	d.state = DriverReady

	pkg.LogInfo(pkg.ComponentHCD, "driver initialized",
		"variant", d.core.Variant().String(),
		"channels", d.nch,
		"dma", d.feat.DMA)
	return nil
}

// Start enables the core's interrupts and port power.
func (d *Driver) Start() error {
	switch d.state {
	case DriverActive:
		return pkg.ErrAlreadyRunning
	case DriverReady:
	default:
		return pkg.ErrNotInitialized
	}
	if err := d.core.Start(); err != nil {
		return fmt.Errorf("%w: start: %w", pkg.ErrCoreFault, err)
	}
	d.state = DriverActive
	pkg.LogInfo(pkg.ComponentHCD, "driver started")
	return nil
}

// Stop disables the core. Channel records are kept.
func (d *Driver) Stop() error {
	if d.state != DriverActive {
		return nil
	}
	if err := d.core.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %w", pkg.ErrCoreFault, err)
	}
	for i := 0; i < d.nch; i++ {
		d.ch[i].armed = false
		d.ch[i].aborting = false
	}
	d.state = DriverReady
	pkg.LogInfo(pkg.ComponentHCD, "driver stopped")
	return nil
}

// State returns the driver lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// NumChannels returns the number of channels configured by Init.
func (d *Driver) NumChannels() int {
	return d.nch
}

// Variant returns the variant of the underlying core.
func (d *Driver) Variant() core.Variant {
	return d.core.Variant()
}

// DMAEnabled reports whether the core moves data by DMA.
func (d *Driver) DMAEnabled() bool {
	return d.feat.DMA
}

// PortState returns the host port state.
func (d *Driver) PortState() PortState {
	return d.port
}

// PortSpeed returns the negotiated port speed.
func (d *Driver) PortSpeed() core.Speed {
	return d.core.PortSpeed()
}

// CurrentFrame returns the current frame number.
func (d *Driver) CurrentFrame() uint32 {
	return d.core.CurrentFrame()
}

// ResetPort drives bus reset on the port. A connected port moves to
// PortReset; the first SOF or enable change afterwards completes it.
func (d *Driver) ResetPort() error {
	if d.state != DriverActive {
		return pkg.ErrNotRunning
	}
	if err := d.core.ResetPort(true); err != nil {
		return fmt.Errorf("%w: assert reset: %w", pkg.ErrCoreFault, err)
	}
	d.sleep(resetAssertTime)
	if err := d.core.ResetPort(false); err != nil {
		return fmt.Errorf("%w: release reset: %w", pkg.ErrCoreFault, err)
	}
	d.sleep(resetRecoverTime)

	if d.port == PortConnected {
		d.port = PortReset
	}
	pkg.LogInfo(pkg.ComponentPort, "port reset", "state", d.port.String())
	return nil
}

// SuspendPort suspends the bus.
func (d *Driver) SuspendPort() error {
	if d.state != DriverActive {
		return pkg.ErrNotRunning
	}
	if err := d.core.SuspendPort(); err != nil {
		return fmt.Errorf("%w: suspend: %w", pkg.ErrCoreFault, err)
	}
	d.port = PortSuspended
	pkg.LogInfo(pkg.ComponentPort, "port suspended")
	return nil
}

// ResumePort drives resume signaling and returns the port to PortResumed.
func (d *Driver) ResumePort() error {
	if d.state != DriverActive {
		return pkg.ErrNotRunning
	}
	if err := d.core.ResumePort(true); err != nil {
		return fmt.Errorf("%w: assert resume: %w", pkg.ErrCoreFault, err)
	}
	d.sleep(resumeAssertTime)
	if err := d.core.ResumePort(false); err != nil {
		return fmt.Errorf("%w: release resume: %w", pkg.ErrCoreFault, err)
	}
	d.port = PortResumed
	pkg.LogInfo(pkg.ComponentPort, "port resumed")
	return nil
}
