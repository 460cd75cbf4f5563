package otg

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/hcd/core/regs"
	"github.com/ardnew/softhcd/pkg"
)

// flushSpinLimit bounds the wait for a FIFO flush or AHB idle.
const flushSpinLimit = 200000

// Core is an OTG host core behind a register bank.
type Core struct {
	bank     regs.Bank
	channels int
	cfg      core.Config
	dma      bool

	// Byte count of the receive FIFO entry popped last.
	rxCount int
}

var (
	_ core.Core       = (*Core)(nil)
	_ core.FIFOReader = (*Core)(nil)
)

// New returns a core with the given number of host channels.
func New(bank regs.Bank, channels int) *Core {
	return &Core{bank: bank, channels: min(channels, core.MaxChannels)}
}

func (c *Core) Variant() core.Variant { return core.VariantOTG }

func (c *Core) Features() core.Features {
	return core.Features{
		HaltHandshake:      true,
		DMA:                c.dma,
		HighSpeed:          c.cfg.Speed == core.SpeedHigh,
		LatchedPortChanges: true,
	}
}

func (c *Core) NumChannels() int { return c.channels }

// Init forces host mode, flushes the FIFOs, clears every channel, sizes the
// FIFOs, and unmasks the host interrupts. Global interrupts stay disabled
// until Start.
func (c *Core) Init(cfg core.Config) error {
	if err := cfg.Validate(c.channels); err != nil {
		return err
	}
	c.cfg = cfg
	c.dma = cfg.DMA
	b := c.bank

	regs.Clear(b, regGAHBCFG, gahbcfgGINT)
	regs.Modify(b, regGUSBCFG, gusbcfgFDMOD, gusbcfgFHMOD)
	if cfg.PHY == core.PHYULPI {
		regs.Clear(b, regGUSBCFG, gusbcfgPHYSEL)
	} else {
		regs.Set(b, regGUSBCFG, gusbcfgPHYSEL)
	}
	if c.dma {
		regs.Set(b, regGAHBCFG, gahbcfgDMAEN)
	} else {
		regs.Clear(b, regGAHBCFG, gahbcfgDMAEN)
	}

	// Restart the PHY clock.
	b.Store(regPCGCCTL, 0)

	if cfg.Speed == core.SpeedFull && cfg.PHY == core.PHYULPI {
		regs.Set(b, regHCFG, hcfgFSLSS)
	} else {
		regs.Clear(b, regHCFG, hcfgFSLSS)
	}

	var ferr error
	if err := c.flushTx(txFIFOAll); err != nil {
		ferr = err
	}
	if err := c.flushRx(); err != nil {
		ferr = err
	}

	for n := uint8(0); int(n) < cfg.Channels; n++ {
		b.Store(chReg(n, chHCINT), hcintAll)
		b.Store(chReg(n, chHCINTMSK), 0)
	}

	b.Store(regGINTMSK, 0)
	b.Store(regGINTSTS, gintClearAll)

	if cfg.Speed == core.SpeedHigh {
		b.Store(regGRXFSIZ, 0x200)
		b.Store(regHNPTXFSIZ, 0x100<<16|0x200)
		b.Store(regHPTXFSIZ, 0xE0<<16|0x300)
	} else {
		b.Store(regGRXFSIZ, 0x80)
		b.Store(regHNPTXFSIZ, 0x60<<16|0x80)
		b.Store(regHPTXFSIZ, 0x40<<16|0xE0)
	}

	mask := uint32(gintHPRTINT | gintHCINT | gintDISCINT | gintIPXFR | gintWKUPINT | gintUSBSUSP)
	if !c.dma {
		mask |= gintRXFLVL
	}
	if cfg.SOF {
		mask |= gintSOF
	}
	b.Store(regGINTMSK, mask)

	pkg.LogDebug(pkg.ComponentCore, "otg core initialized",
		"channels", cfg.Channels, "speed", cfg.Speed.String(), "dma", c.dma)
	if ferr != nil {
		return fmt.Errorf("flush: %w", ferr)
	}
	return nil
}

// Start powers the port and enables global interrupts.
func (c *Core) Start() error {
	c.portPower(true)
	regs.Set(c.bank, regGAHBCFG, gahbcfgGINT)
	return nil
}

// Stop disables interrupts, flushes the FIFOs, halts every channel, and
// removes port power.
func (c *Core) Stop() error {
	b := c.bank
	regs.Clear(b, regGAHBCFG, gahbcfgGINT)

	var err error
	if ferr := c.flushTx(txFIFOAll); ferr != nil {
		err = ferr
	}
	if ferr := c.flushRx(); ferr != nil {
		err = ferr
	}

	for n := uint8(0); int(n) < c.channels; n++ {
		off := chReg(n, chHCCHAR)
		v := b.Load(off)
		b.Store(off, (v|hccharCHDIS)&^(hccharCHENA|hccharEPDIR))
	}
	for n := uint8(0); int(n) < c.channels; n++ {
		off := chReg(n, chHCCHAR)
		v := b.Load(off)
		b.Store(off, (v|hccharCHDIS|hccharCHENA)&^hccharEPDIR)
		c.spinWhile(off, hccharCHENA)
	}

	b.Store(regHAINT, 0xFFFFFFFF)
	b.Store(regGINTSTS, gintClearAll)
	c.portPower(false)
	return err
}

func (c *Core) Mode() core.Mode {
	if c.bank.Load(regGINTSTS)&gintCMOD != 0 {
		return core.ModeHost
	}
	return core.ModeDevice
}

// Interrupts

var intMap = [...]struct {
	flag core.IntFlags
	bit  uint32
}{
	{core.IntPort, gintHPRTINT},
	{core.IntDisconnect, gintDISCINT},
	{core.IntSOF, gintSOF},
	{core.IntChannel, gintHCINT},
	{core.IntRxLevel, gintRXFLVL},
	{core.IntWakeup, gintWKUPINT},
	{core.IntSuspend, gintUSBSUSP},
	{core.IntIncompleteIso, gintIPXFR},
	{core.IntPeriodicTxEmpty, gintPTXFE},
	{core.IntModeMismatch, gintMMIS},
}

// Global causes cleared by writing one to GINTSTS. The others are cleared
// at their source.
const gintW1C = gintDISCINT | gintSOF | gintWKUPINT | gintUSBSUSP | gintIPXFR | gintMMIS

func (c *Core) ReadInterrupts() core.Interrupts {
	sts := c.bank.Load(regGINTSTS) & c.bank.Load(regGINTMSK)
	var irq core.Interrupts
	for _, m := range intMap {
		if sts&m.bit != 0 {
			irq.Flags |= m.flag
		}
	}
	if irq.Flags&core.IntChannel != 0 {
		irq.Channels = c.bank.Load(regHAINT) & c.bank.Load(regHAINTMSK) & 0xFFFF
	}
	return irq
}

func (c *Core) ClearInterrupts(f core.IntFlags) {
	var v uint32
	for _, m := range intMap {
		if f&m.flag != 0 {
			v |= m.bit
		}
	}
	if v &= gintW1C; v != 0 {
		c.bank.Store(regGINTSTS, v)
	}
}

// Port

func (c *Core) PortStatus() core.PortStatus {
	hprt := c.bank.Load(regHPRT)
	ps := core.PortStatus{
		Attached:           hprt&hprtPCSTS != 0,
		ConnectDetected:    hprt&hprtPCDET != 0,
		Enabled:            hprt&hprtPENA != 0,
		EnableChanged:      hprt&hprtPENCHNG != 0,
		OverCurrentChanged: hprt&hprtPOCCHNG != 0,
	}
	ps.Speed = decodeSpeed(hprt)
	ps.LowSpeed = ps.Speed == core.SpeedLow
	return ps
}

func decodeSpeed(hprt uint32) core.Speed {
	switch regs.Get[uint8](hprt, hprtPSPD, hprtPSPDP) {
	case portSpeedHigh:
		return core.SpeedHigh
	case portSpeedFull:
		return core.SpeedFull
	case portSpeedLow:
		return core.SpeedLow
	}
	return core.SpeedUnknown
}

// AckPort clears the latched change bits in st. When the port has just been
// enabled on the embedded PHY, the FS/LS PHY clock and frame interval are
// set for the attached device.
func (c *Core) AckPort(st core.PortStatus) {
	hprt := c.bank.Load(regHPRT)
	v := hprt &^ hprtW1C
	if st.ConnectDetected {
		v |= hprtPCDET
	}
	if st.EnableChanged {
		v |= hprtPENCHNG
		if st.Enabled {
			c.portClock(hprt)
		}
	}
	if st.OverCurrentChanged {
		v |= hprtPOCCHNG
	}
	c.bank.Store(regHPRT, v)
}

func (c *Core) portClock(hprt uint32) {
	b := c.bank
	if c.cfg.PHY == core.PHYEmbedded {
		clk, fi := uint32(clock48MHz), uint32(frameInterval48MHz)
		if decodeSpeed(hprt) == core.SpeedLow {
			clk, fi = clock6MHz, frameInterval6MHz
		}
		regs.Modify(b, regHCFG, hcfgFSLSPCS, clk)
		b.Store(regHFIR, fi)
		return
	}
	if c.cfg.Speed == core.SpeedFull {
		b.Store(regHFIR, frameInterval60MHz)
	}
}

func (c *Core) ResetPort(assert bool) error {
	v := c.bank.Load(regHPRT) &^ hprtW1C
	if assert {
		v |= hprtPRST
	} else {
		v &^= hprtPRST
	}
	c.bank.Store(regHPRT, v)
	return nil
}

func (c *Core) SuspendPort() error {
	c.bank.Store(regHPRT, c.bank.Load(regHPRT)&^hprtW1C|hprtPSUSP)
	return nil
}

func (c *Core) ResumePort(assert bool) error {
	v := c.bank.Load(regHPRT) &^ hprtW1C
	if assert {
		v |= hprtPRES
	} else {
		v &^= hprtPRES | hprtPSUSP
	}
	c.bank.Store(regHPRT, v)
	return nil
}

func (c *Core) portPower(on bool) {
	hprt := c.bank.Load(regHPRT) &^ hprtW1C
	switch {
	case on && hprt&hprtPPWR == 0:
		c.bank.Store(regHPRT, hprt|hprtPPWR)
	case !on && hprt&hprtPPWR != 0:
		c.bank.Store(regHPRT, hprt&^hprtPPWR)
	}
}

func (c *Core) Flush() error {
	if err := c.flushTx(txFIFOAll); err != nil {
		return err
	}
	return c.flushRx()
}

func (c *Core) CurrentFrame() uint32 {
	return c.bank.Load(regHFNUM) & 0xFFFF
}

func (c *Core) PortSpeed() core.Speed {
	hprt := c.bank.Load(regHPRT)
	if hprt&hprtPCSTS == 0 {
		return core.SpeedUnknown
	}
	return decodeSpeed(hprt)
}

// FIFO maintenance

func (c *Core) flushTx(num uint32) error {
	if !c.spinUntil(regGRSTCTL, grstctlAHBIDL) {
		return fmt.Errorf("%w: AHB idle", pkg.ErrTimeout)
	}
	c.bank.Store(regGRSTCTL, grstctlTXFFLSH|(num<<6)&grstctlTXFNUM)
	if !c.spinWhile(regGRSTCTL, grstctlTXFFLSH) {
		return fmt.Errorf("%w: tx fifo flush", pkg.ErrTimeout)
	}
	return nil
}

func (c *Core) flushRx() error {
	if !c.spinUntil(regGRSTCTL, grstctlAHBIDL) {
		return fmt.Errorf("%w: AHB idle", pkg.ErrTimeout)
	}
	c.bank.Store(regGRSTCTL, grstctlRXFFLSH)
	if !c.spinWhile(regGRSTCTL, grstctlRXFFLSH) {
		return fmt.Errorf("%w: rx fifo flush", pkg.ErrTimeout)
	}
	return nil
}

// spinWhile polls off until mask clears. It reports false on timeout.
func (c *Core) spinWhile(off, mask uint32) bool {
	limit := spinLimit
	if off == regGRSTCTL {
		limit = flushSpinLimit
	}
	for i := 0; i < limit; i++ {
		if c.bank.Load(off)&mask == 0 {
			return true
		}
	}
	return false
}

func (c *Core) spinUntil(off, mask uint32) bool {
	for i := 0; i < flushSpinLimit; i++ {
		if c.bank.Load(off)&mask != 0 {
			return true
		}
	}
	return false
}
