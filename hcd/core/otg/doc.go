// Package otg implements the OTG-style host core.
//
// The core exposes up to 16 host channels through per-channel register
// blocks, a shared receive FIFO for IN data, per-channel transmit FIFO
// windows for OUT data, and optional buffer DMA. Every halt request is
// confirmed by the channel-halted interrupt, so the engine resolves
// transfer outcomes on that confirmation.
//
// Registers are reached through a [regs.Bank]: on hardware an MMIO window,
// in tests a [regs.Memory] with write-one-to-clear hooks.
package otg
