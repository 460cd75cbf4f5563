// Package regs provides 32-bit register bank access for core variants.
//
// A [Bank] is addressed by byte offset from the peripheral base. On
// hardware the bank is a memory-mapped window ([MMIO], TinyGo only); in
// tests and on the host it is a [Memory] with per-register hooks that model
// hardware side effects such as write-one-to-clear status bits and FIFO
// pops.
package regs

import "golang.org/x/exp/constraints"

// Bank is a window of 32-bit registers.
type Bank interface {
	Load(off uint32) uint32
	Store(off uint32, v uint32)
}

// Set ORs mask into the register at off.
func Set(b Bank, off, mask uint32) {
	b.Store(off, b.Load(off)|mask)
}

// Clear clears mask in the register at off.
func Clear(b Bank, off, mask uint32) {
	b.Store(off, b.Load(off)&^mask)
}

// Modify clears clr and sets set in one read-modify-write.
func Modify(b Bank, off, clr, set uint32) {
	b.Store(off, b.Load(off)&^clr|set)
}

// Has reports whether every bit of mask is set at off.
func Has(b Bank, off, mask uint32) bool {
	return b.Load(off)&mask == mask
}

// Get extracts the field mask<<shift from v.
func Get[T constraints.Unsigned](v, mask uint32, shift uint) T {
	return T((v >> shift) & mask)
}

// Put places x in the field mask<<shift.
func Put[T constraints.Unsigned](x T, mask uint32, shift uint) uint32 {
	return (uint32(x) & mask) << shift
}

// SetField replaces the field mask<<shift of the register at off with x.
func SetField[T constraints.Unsigned](b Bank, off uint32, x T, mask uint32, shift uint) {
	Modify(b, off, mask<<shift, Put(x, mask, shift))
}
