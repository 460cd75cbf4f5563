// Package sim provides a scriptable software core for the host channel
// engine.
//
// A [Core] behaves like either core variant without hardware. Tests and
// scenario scripts raise channel events, queue receive FIFO packets, load
// packet memory, and change the port line state; the engine then services
// them through its normal interrupt path.
//
// # Variants
//
// Created with [core.VariantOTG], the simulator reports a halt handshake and
// latched port changes, and delivers IN data through a receive FIFO: every
// HaltChannel call raises [core.EventHalted] on the channel. Created with
// [core.VariantDRD], it reports neither, and moves data through per-channel
// packet buffers with optional double buffering.
//
// # Usage
//
//	c := sim.New(core.VariantOTG)
//	d := hcd.New(c)
//	d.Init(core.Config{Channels: 8, Speed: core.SpeedFull})
//	d.Start()
//
//	c.Connect(core.SpeedFull)
//	d.IRQHandler()
//
// The simulator records every operation the engine performs in [Calls] so
// tests can assert on the hardware traffic as well as the notifications.
package sim
