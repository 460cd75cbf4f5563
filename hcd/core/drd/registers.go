package drd

// Register offsets.
const (
	regCNTR = 0x40
	regISTR = 0x44
	regFNR  = 0x48
	regBCDR = 0x58
)

func chepReg(phy uint8) uint32 {
	return uint32(phy) * 4
}

// CNTR
const (
	cntrUSBRST  = 1 << 0
	cntrPDWN    = 1 << 1
	cntrSUSPRDY = 1 << 2
	cntrSUSPEN  = 1 << 3
	cntrL2RES   = 1 << 4
	cntrL1REQM  = 1 << 7
	cntrESOFM   = 1 << 8
	cntrSOFM    = 1 << 9
	cntrDCONM   = 1 << 10
	cntrSUSPM   = 1 << 11
	cntrWKUPM   = 1 << 12
	cntrERRM    = 1 << 13
	cntrPMAOVRM = 1 << 14
	cntrCTRM    = 1 << 15
	cntrHOST    = 1 << 31

	cntrIntMask = cntrCTRM | cntrPMAOVRM | cntrERRM | cntrWKUPM | cntrSUSPM |
		cntrDCONM | cntrSOFM | cntrESOFM | cntrL1REQM
)

// ISTR
const (
	istrIDN     = 0xF
	istrDIR     = 1 << 4
	istrL1REQ   = 1 << 7
	istrESOF    = 1 << 8
	istrSOF     = 1 << 9
	istrDCON    = 1 << 10
	istrSUSP    = 1 << 11
	istrWKUP    = 1 << 12
	istrERR     = 1 << 13
	istrPMAOVR  = 1 << 14
	istrCTR     = 1 << 15
	istrDCONSTS = 1 << 29
	istrLSDCON  = 1 << 30

	// Flags cleared by writing zero.
	istrW0C = istrL1REQ | istrESOF | istrSOF | istrDCON | istrSUSP |
		istrWKUP | istrERR | istrPMAOVR
)

// FNR
const (
	fnrFN   = 0x7FF
	fnrRXDM = 1 << 14
	fnrRXDP = 1 << 15
)

// BCDR
const bcdrDPPD = 1 << 15

// CHEP
const (
	chepEA      = 0xF
	chepSTATTX  = 0x3 << 4
	chepSTATTXP = 4
	chepDTOGTX  = 1 << 6
	chepVTTX    = 1 << 7
	chepKIND    = 1 << 8
	chepUTYPE   = 0x3 << 9
	chepUTYPEP  = 9
	chepSETUP   = 1 << 11
	chepSTATRX  = 0x3 << 12
	chepSTATRXP = 12
	chepDTOGRX  = 1 << 14
	chepVTRX    = 1 << 15
	chepDEVADDR = 0x7F << 16
	chepDEVP    = 16
	chepNAK     = 1 << 23
	chepLSEP    = 1 << 24
	chepERRTX   = 1 << 25
	chepERRRX   = 1 << 26

	// Read-write fields.
	chepRW = chepEA | chepKIND | chepUTYPE | chepSETUP | chepDEVADDR | chepLSEP
	// Fields that toggle when written with one.
	chepToggle = chepSTATTX | chepDTOGTX | chepSTATRX | chepDTOGRX
	// Flags cleared by writing zero.
	chepW0C = chepVTTX | chepVTRX | chepNAK | chepERRTX | chepERRRX
)

// Transfer type encoding of UTYPE.
const (
	utypeBulk      = 0
	utypeControl   = 1
	utypeIso       = 2
	utypeInterrupt = 3
)

// STATTX/STATRX values. Written, they program the channel; read after a
// transaction, they report its handshake.
const (
	statDisabled = 0
	statStall    = 1
	statNak      = 2
	statValid    = 3

	statAckSingle = 0
	statAckDouble = 3
)

// Buffer descriptor table entries, one TX and one RX word per physical
// channel at the base of packet memory.
const (
	bdStride   = 8
	bdTX       = 0
	bdRX       = 4
	bdADDR     = 0xFFFF
	bdCOUNT    = 0x3FF
	bdCOUNTP   = 16
	bdNUMBLK   = 0x1F
	bdNUMBLKP  = 26
	bdBLSIZE   = 1 << 31
	bdRXMask   = bdNUMBLK<<bdNUMBLKP | bdBLSIZE
	bdCountClr = bdCOUNT << bdCOUNTP
)

func bdReg(phy uint8, which uint32) uint32 {
	return uint32(phy)*bdStride + which
}

// Limits.
const (
	physChannels  = 8
	defaultPMA    = 2048
	pdwnExitSpins = 0x100
	suspendSpins  = 0xF000
)
