package drd

import (
	"fmt"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/hcd/core/regs"
	"github.com/ardnew/softhcd/pkg"
)

// binding records the physical channel and buffers of an open logical
// channel.
type binding struct {
	open bool
	phy  uint8
	dir  core.Direction
	typ  core.EndpointType
	ep   uint8
	mps  int

	double bool
	addr   uint16
	addr0  uint16
	addr1  uint16
}

// phySide is one direction of a physical channel.
type phySide struct {
	used    bool
	logical uint8
	typ     core.EndpointType
	ep      uint8
}

// Core is a dedicated full-speed host core. bank holds the control
// registers and pma the packet memory.
type Core struct {
	bank regs.Bank
	pma  regs.Bank
	cfg  core.Config

	alloc   *pmaAllocator
	logical [core.MaxChannels]binding
	phyIn   [physChannels]phySide
	phyOut  [physChannels]phySide
}

var (
	_ core.Core         = (*Core)(nil)
	_ core.PacketMemory = (*Core)(nil)
)

// New returns a core over the given register and packet memory banks.
func New(bank, pma regs.Bank) *Core {
	return &Core{bank: bank, pma: pma, alloc: newPMAAllocator(defaultPMA)}
}

func (c *Core) Variant() core.Variant { return core.VariantDRD }

// Features reports a core without halt confirmation or latched port
// changes.
func (c *Core) Features() core.Features { return core.Features{} }

// NumChannels returns the number of logical channels. Each physical
// channel serves one IN and one OUT logical channel.
func (c *Core) NumChannels() int { return core.MaxChannels }

// Init resets the core into host mode with interrupts masked and clears
// packet memory bookkeeping.
func (c *Core) Init(cfg core.Config) error {
	if err := cfg.Validate(core.MaxChannels); err != nil {
		return err
	}
	if cfg.Speed != core.SpeedFull {
		return fmt.Errorf("%w: %s core speed %s", pkg.ErrNotSupported, c.Variant(), cfg.Speed)
	}
	if cfg.DMA {
		return fmt.Errorf("%w: %s core has no DMA", pkg.ErrNotSupported, c.Variant())
	}
	size := cfg.PMASize
	if size == 0 {
		size = defaultPMA
	}
	if size < pmaReserved*pmaBlock+pmaBlock {
		return fmt.Errorf("%w: packet memory %d bytes", pkg.ErrInvalidParameter, size)
	}
	cfg.PMASize = size
	c.cfg = cfg
	b := c.bank

	regs.Modify(b, regCNTR, cntrHOST, cntrUSBRST)
	b.Store(regISTR, 0)

	regs.Set(b, regCNTR, cntrHOST)
	regs.Clear(b, regCNTR, cntrIntMask)
	b.Store(regISTR, 0)
	regs.Set(b, regBCDR, bcdrDPPD)

	c.alloc = newPMAAllocator(size)
	c.unbindAll()

	pkg.LogDebug(pkg.ComponentCore, "drd core initialized",
		"channels", cfg.Channels, "pma", size,
		"bulk_db", cfg.BulkDoubleBuffer, "iso_db", cfg.IsoDoubleBuffer)
	return nil
}

// Start leaves power-down, releases reset, and unmasks interrupts.
func (c *Core) Start() error {
	b := c.bank
	regs.Clear(b, regCNTR, cntrPDWN)
	// Analog startup time.
	for i := 0; i < pdwnExitSpins; i++ {
		_ = b.Load(regCNTR)
	}
	regs.Clear(b, regCNTR, cntrUSBRST)
	b.Store(regISTR, 0)
	regs.Set(b, regCNTR, cntrIntMask)
	return nil
}

// Stop masks interrupts, powers the transceiver down, and drops every
// channel binding.
func (c *Core) Stop() error {
	b := c.bank
	regs.Clear(b, regCNTR, cntrIntMask)
	b.Store(regISTR, 0)
	regs.Set(b, regCNTR, cntrPDWN|cntrUSBRST)
	c.unbindAll()
	return nil
}

func (c *Core) unbindAll() {
	c.logical = [core.MaxChannels]binding{}
	c.phyIn = [physChannels]phySide{}
	c.phyOut = [physChannels]phySide{}
	c.alloc.reset()
}

func (c *Core) Mode() core.Mode {
	if c.bank.Load(regCNTR)&cntrHOST != 0 {
		return core.ModeHost
	}
	return core.ModeDevice
}

// Interrupts

var intMap = [...]struct {
	flag core.IntFlags
	bit  uint32
}{
	{core.IntPort, istrDCON},
	{core.IntSOF, istrSOF},
	{core.IntWakeup, istrWKUP},
	{core.IntSuspend, istrSUSP},
	{core.IntError, istrERR},
	{core.IntOverrun, istrPMAOVR},
}

// ReadInterrupts decodes ISTR and, when a transfer completed, scans the
// physical channels for the logical channels they serve.
func (c *Core) ReadInterrupts() core.Interrupts {
	sts := c.bank.Load(regISTR)
	mask := c.bank.Load(regCNTR)
	var irq core.Interrupts
	for _, m := range intMap {
		// Each ISTR flag shares its bit position with its CNTR mask.
		if sts&m.bit != 0 && mask&m.bit != 0 {
			irq.Flags |= m.flag
		}
	}
	if sts&istrCTR == 0 || mask&cntrCTRM == 0 {
		return irq
	}
	for phy := uint8(0); phy < physChannels; phy++ {
		v := c.bank.Load(chepReg(phy))
		if v&(chepVTRX|chepERRRX) != 0 && c.phyIn[phy].used {
			irq.Channels |= 1 << c.phyIn[phy].logical
		}
		if v&(chepVTTX|chepERRTX) != 0 && c.phyOut[phy].used {
			irq.Channels |= 1 << c.phyOut[phy].logical
		}
	}
	if irq.Channels != 0 {
		irq.Flags |= core.IntChannel
	}
	return irq
}

// ClearInterrupts clears the ISTR flags behind f. Transfer completion is
// cleared per channel.
func (c *Core) ClearInterrupts(f core.IntFlags) {
	var bits uint32
	for _, m := range intMap {
		if f&m.flag != 0 {
			bits |= m.bit
		}
	}
	if bits == 0 {
		return
	}
	c.bank.Store(regISTR, istrW0C&^bits)
}

// Port

// PortStatus derives attachment from the bus line state. An SE0 on both
// data lines means nothing is attached.
func (c *Core) PortStatus() core.PortStatus {
	fnr := c.bank.Load(regFNR)
	istr := c.bank.Load(regISTR)
	ls := istr&istrLSDCON != 0
	st := core.PortStatus{
		Attached: fnr&fnrRXDP != 0 || ls,
		LowSpeed: ls,
	}
	if st.Attached {
		st.Speed = core.SpeedFull
		if ls {
			st.Speed = core.SpeedLow
		}
	}
	return st
}

// AckPort has nothing to acknowledge; connect changes clear with ISTR.
func (c *Core) AckPort(core.PortStatus) {}

func (c *Core) ResetPort(assert bool) error {
	if assert {
		regs.Set(c.bank, regCNTR, cntrUSBRST)
	} else {
		regs.Clear(c.bank, regCNTR, cntrUSBRST)
	}
	return nil
}

// SuspendPort stops SOF generation and waits for the core to confirm.
func (c *Core) SuspendPort() error {
	regs.Set(c.bank, regCNTR, cntrSUSPEN)
	for i := 0; i < suspendSpins; i++ {
		if c.bank.Load(regCNTR)&cntrSUSPRDY != 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: suspend ready", pkg.ErrTimeout)
}

func (c *Core) ResumePort(assert bool) error {
	if assert {
		regs.Set(c.bank, regCNTR, cntrL2RES)
		return nil
	}
	regs.Clear(c.bank, regCNTR, cntrL2RES|cntrSUSPEN)
	return nil
}

// Flush disables every bound physical channel and drops pending
// completions. Bindings and packet memory stay allocated.
func (c *Core) Flush() error {
	for phy := uint8(0); phy < physChannels; phy++ {
		if !c.phyIn[phy].used && !c.phyOut[phy].used {
			continue
		}
		v := c.bank.Load(chepReg(phy))
		flip := (v & chepSTATTX) | (v & chepSTATRX)
		c.chepWrite(phy, v&chepRW, flip, chepW0C)
	}
	return nil
}

func (c *Core) CurrentFrame() uint32 {
	return c.bank.Load(regFNR) & fnrFN
}

func (c *Core) PortSpeed() core.Speed {
	return c.PortStatus().Speed
}

// chepWrite stores a CHEP value: rw is the new read-write field content,
// flip the toggle bits to invert, and clr the write-zero-to-clear flags to
// clear.
func (c *Core) chepWrite(phy uint8, rw, flip, clr uint32) {
	c.bank.Store(chepReg(phy), rw&chepRW|flip&chepToggle|chepW0C&^clr)
}

// setStat programs the TX or RX status field of phy.
func (c *Core) setStat(phy uint8, dir core.Direction, stat uint32) {
	v := c.bank.Load(chepReg(phy))
	field, shift := uint32(chepSTATTX), uint(chepSTATTXP)
	if dir == core.DirIn {
		field, shift = chepSTATRX, chepSTATRXP
	}
	c.chepWrite(phy, v&chepRW, (v^stat<<shift)&field, 0)
}

// setToggle sets the TX or RX data toggle of phy to one or zero.
func (c *Core) setToggle(phy uint8, bit uint32, one bool) {
	v := c.bank.Load(chepReg(phy))
	want := uint32(0)
	if one {
		want = bit
	}
	c.chepWrite(phy, v&chepRW, (v^want)&bit, 0)
}
