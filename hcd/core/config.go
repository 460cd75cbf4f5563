package core

import (
	"fmt"

	"github.com/ardnew/softhcd/pkg"
)

// Config describes how a core is brought up.
type Config struct {
	Channels         int   // Host channels to use
	Speed            Speed // Core speed (full or high)
	PHY              PHY
	DMA              bool
	SOF              bool // Enable start-of-frame interrupts
	BulkDoubleBuffer bool // Packet-memory cores: double-buffer bulk pipes
	IsoDoubleBuffer  bool // Packet-memory cores: double-buffer isochronous pipes
	PMASize          int  // Packet-memory cores: PMA bytes
}

// Validate checks cfg against a core with the given channel limit.
func (cfg Config) Validate(maxChannels int) error {
	if cfg.Channels <= 0 || cfg.Channels > maxChannels || cfg.Channels > MaxChannels {
		return fmt.Errorf("%w: %d channels (max %d)", pkg.ErrInvalidParameter, cfg.Channels, maxChannels)
	}
	switch cfg.Speed {
	case SpeedFull, SpeedHigh:
	default:
		return fmt.Errorf("%w: core speed %s", pkg.ErrInvalidParameter, cfg.Speed)
	}
	return nil
}

// Features describes behavior the engine adapts to.
type Features struct {
	// HaltHandshake reports that the hardware confirms every halt request
	// with EventHalted before the channel may be reprogrammed.
	HaltHandshake bool

	// DMA reports that the core moves data without the receive FIFO.
	DMA bool

	// HighSpeed reports a high-speed capable port, where split transactions
	// and PING apply.
	HighSpeed bool

	// LatchedPortChanges reports that connect and enable changes are latched
	// by hardware rather than inferred from line state.
	LatchedPortChanges bool
}
