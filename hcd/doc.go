// Package hcd implements a host-mode USB channel transfer engine.
//
// The engine sequences one URB (USB Request Block) per hardware channel
// through the USB handshake on a transceiver core. It is written against
// the [core.Core] interface only, so the same state machine drives both the
// OTG-style core and the dedicated full-speed core.
//
// # Architecture
//
// The engine is organized into these parts:
//
//   - Driver owns the channel array, the core, and the host port
//   - Channel holds per-channel protocol state, toggles, and retry counters
//   - SubmitTransfer validates a request, picks the data PID, and arms a channel
//   - IRQHandler reads one interrupt snapshot and dispatches port, channel,
//     and receive FIFO events
//   - Transition tables map (direction, event) and (halting state) pairs to
//     handlers for the protocol state machine
//   - The split scheduler drives start-split and complete-split phases for
//     full/low-speed devices behind a high-speed hub
//   - The double-buffer manager refills packet-memory slots on cores that
//     support it
//
// # Concurrency
//
// A Driver is not safe for concurrent use. SubmitTransfer and IRQHandler are
// the two entry points and both run to completion without blocking. The
// caller must not submit a new transfer on a channel until it has observed a
// state other than URBIdle for the previous one.
//
// # Notifications
//
// Every URB state the engine produces is delivered once through the
// [Notifier] supplied with [WithNotifier]. Retries below the error bound
// never reach the caller.
//
// # Example
//
//	drv := hcd.New(otg.New(bank), hcd.WithNotifier(sink))
//	if err := drv.Init(cfg); err != nil {
//	    return err
//	}
//	drv.Start()
//
//	drv.ConfigureChannel(1, hcd.ChannelConfig{
//	    EndpointAddress: 0x81,
//	    DeviceAddress:   2,
//	    Speed:           core.SpeedFull,
//	    Type:            core.EndpointBulk,
//	    MaxPacket:       64,
//	})
//	drv.SubmitTransfer(1, hcd.TransferRequest{Buffer: buf, Length: len(buf)})
//
//	// from the interrupt vector:
//	drv.IRQHandler()
package hcd
