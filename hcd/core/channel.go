package core

// Channel holds the hardware-facing parameters of one host channel. The
// engine owns the storage and passes it to the core for every operation.
type Channel struct {
	Num       uint8 // Logical index
	Phy       uint8 // Physical channel (packet-memory cores)
	Dir       Direction
	Type      EndpointType
	EPNum     uint8
	DevAddr   uint8
	Speed     Speed // Device speed
	MaxPacket uint16
	PID       PID

	Buffer    []byte
	Offset    int // Next byte of Buffer to move
	Length    int // Requested length
	Size      int // Programmed transfer size
	Count     int // Bytes transferred so far
	Remaining int // Bytes not yet acknowledged

	DoPing        bool
	StartSplit    bool
	CompleteSplit bool
	HubAddr       uint8
	HubPort       uint8
	SplitPos      SplitPosition

	DoubleBuffer bool
	PMAAddr      uint16 // Single-buffer address
	PMAAddr0     uint16 // Double-buffer slot 0
	PMAAddr1     uint16 // Double-buffer slot 1
	Fill         int    // Bytes of Buffer written into packet memory
}

// EndpointAddress returns the endpoint address with the direction bit.
func (c *Channel) EndpointAddress() uint8 {
	if c.Dir == DirIn {
		return c.EPNum | 0x80
	}
	return c.EPNum
}

// Packets returns the number of max-packet-size packets needed for n bytes.
// A zero-length transfer still takes one packet.
func (c *Channel) Packets(n int) int {
	if c.MaxPacket == 0 {
		return 1
	}
	mps := int(c.MaxPacket)
	if n <= 0 {
		return 1
	}
	return (n + mps - 1) / mps
}

// Reset clears everything except the channel number.
func (c *Channel) Reset() {
	*c = Channel{Num: c.Num}
}
