// Package core defines the Core Variant abstraction consumed by the host
// channel engine in [github.com/ardnew/softhcd/hcd].
//
// A core is one low-level transceiver driver. Two structurally different
// designs implement the same [Core] contract:
//   - [github.com/ardnew/softhcd/hcd/core/otg]: the OTG-style core with
//     per-channel transfer-size registers, a shared receive FIFO, optional
//     DMA, and split-transaction support behind a high-speed hub
//   - [github.com/ardnew/softhcd/hcd/core/drd]: the dedicated full-speed core
//     with packet memory (PMA), a logical/physical channel map, and
//     double-buffered bulk and isochronous pipes
//
// The engine never touches registers. It programs channels through [Core],
// reads one [Interrupts] snapshot per interrupt assertion, and consumes
// decoded [Event] sets through [Core.ChannelStatus].
//
// # Optional Capabilities
//
// Features that only one design has are exposed through additional
// interfaces the engine discovers with a type assertion:
//   - [FIFOReader]: the OTG receive FIFO (non-DMA IN data)
//   - [PacketMemory]: the DRD packet buffers and endpoint status fields
//
// A scriptable software core for tests is available in
// [github.com/ardnew/softhcd/hcd/core/sim].
package core
