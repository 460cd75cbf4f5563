// Package drd implements the dedicated full-speed host core.
//
// The core has eight physical channel/endpoint registers (CHEP) shared by
// up to sixteen logical channels, one IN and one OUT logical channel per
// physical register. Packet data lives in a packet memory area (PMA) that
// the core carves into per-channel buffers, with a buffer descriptor table
// at its base. Bulk and isochronous pipes may use two PMA buffers that
// hardware and software alternate on.
//
// Transfers are sequenced one packet at a time by the engine; the core
// reports the handshake of every transaction and has no halt confirmation.
package drd
