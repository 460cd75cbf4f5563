//go:build tinygo

package regs

import (
	"runtime/volatile"
	"unsafe"
)

// MMIO is a memory-mapped register window.
type MMIO struct {
	base uintptr
}

var _ Bank = MMIO{}

// NewMMIO returns the window at base.
func NewMMIO(base uintptr) MMIO {
	return MMIO{base: base}
}

func (m MMIO) reg(off uint32) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(m.base + uintptr(off)))
}

// Load reads the register at off.
func (m MMIO) Load(off uint32) uint32 {
	return m.reg(off).Get()
}

// Store writes the register at off.
func (m MMIO) Store(off, v uint32) {
	m.reg(off).Set(v)
}
