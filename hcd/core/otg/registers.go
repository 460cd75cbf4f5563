package otg

// Global register offsets.
const (
	regGOTGCTL   = 0x000
	regGAHBCFG   = 0x008
	regGUSBCFG   = 0x00C
	regGRSTCTL   = 0x010
	regGINTSTS   = 0x014
	regGINTMSK   = 0x018
	regGRXSTSP   = 0x020
	regGRXFSIZ   = 0x024
	regHNPTXFSIZ = 0x028
	regHNPTXSTS  = 0x02C
	regGCCFG     = 0x038
	regHPTXFSIZ  = 0x100
	regPCGCCTL   = 0xE00
)

// Host register offsets.
const (
	regHCFG     = 0x400
	regHFIR     = 0x404
	regHFNUM    = 0x408
	regHPTXSTS  = 0x410
	regHAINT    = 0x414
	regHAINTMSK = 0x418
	regHPRT     = 0x440
)

// Host channel registers, relative to the channel block.
const (
	chBase     = 0x500
	chStride   = 0x20
	chHCCHAR   = 0x00
	chHCSPLT   = 0x04
	chHCINT    = 0x08
	chHCINTMSK = 0x0C
	chHCTSIZ   = 0x10
	chHCDMA    = 0x14
)

func chReg(n uint8, r uint32) uint32 {
	return chBase + uint32(n)*chStride + r
}

// fifoReg returns the data FIFO window of channel n. Reads from any window
// pop the shared receive FIFO.
func fifoReg(n uint8) uint32 {
	return 0x1000 * (uint32(n) + 1)
}

// GAHBCFG
const (
	gahbcfgGINT  = 1 << 0
	gahbcfgDMAEN = 1 << 5
)

// GUSBCFG
const (
	gusbcfgPHYSEL = 1 << 6
	gusbcfgFHMOD  = 1 << 29
	gusbcfgFDMOD  = 1 << 30
)

// GRSTCTL
const (
	grstctlRXFFLSH = 1 << 4
	grstctlTXFFLSH = 1 << 5
	grstctlTXFNUM  = 0x1F << 6
	grstctlAHBIDL  = 1 << 31

	txFIFOAll = 0x10
)

// GINTSTS and GINTMSK
const (
	gintCMOD     = 1 << 0
	gintMMIS     = 1 << 1
	gintSOF      = 1 << 3
	gintRXFLVL   = 1 << 4
	gintUSBSUSP  = 1 << 11
	gintIPXFR    = 1 << 21
	gintHPRTINT  = 1 << 24
	gintHCINT    = 1 << 25
	gintPTXFE    = 1 << 26
	gintDISCINT  = 1 << 29
	gintWKUPINT  = 1 << 31
	gintClearAll = 0xFFFFFFFF
)

// GRXSTSP fields.
const (
	grxstsCHNUM  = 0xF
	grxstsBCNT   = 0x7FF
	grxstsBCNTP  = 4
	grxstsDPID   = 0x3
	grxstsDPIDP  = 15
	grxstsPKTSTS = 0xF
	grxstsPKTP   = 17
)

// HCFG
const (
	hcfgFSLSPCS = 0x3
	hcfgFSLSS   = 1 << 2

	clock48MHz = 0x1
	clock6MHz  = 0x2

	frameInterval48MHz = 48000
	frameInterval6MHz  = 6000
	frameInterval60MHz = 60000
)

// HPRT
const (
	hprtPCSTS   = 1 << 0
	hprtPCDET   = 1 << 1
	hprtPENA    = 1 << 2
	hprtPENCHNG = 1 << 3
	hprtPOCA    = 1 << 4
	hprtPOCCHNG = 1 << 5
	hprtPRES    = 1 << 6
	hprtPSUSP   = 1 << 7
	hprtPRST    = 1 << 8
	hprtPPWR    = 1 << 12
	hprtPSPD    = 0x3
	hprtPSPDP   = 17

	// Writing 1 to these clears or disables; read-modify-write must mask
	// them.
	hprtW1C = hprtPENA | hprtPCDET | hprtPENCHNG | hprtPOCCHNG

	portSpeedHigh = 0
	portSpeedFull = 1
	portSpeedLow  = 2
)

// HCCHAR
const (
	hccharMPSIZ  = 0x7FF
	hccharEPNUM  = 0xF
	hccharEPNUMP = 11
	hccharEPDIR  = 1 << 15
	hccharLSDEV  = 1 << 17
	hccharEPTYP  = 0x3
	hccharEPTYPP = 18
	hccharMC1    = 1 << 20
	hccharDAD    = 0x7F
	hccharDADP   = 22
	hccharODDFRM = 1 << 29
	hccharCHDIS  = 1 << 30
	hccharCHENA  = 1 << 31
)

// HCSPLT
const (
	hcspltPRTADDR   = 0x7F
	hcspltHUBADDR   = 0x7F
	hcspltHUBADDRP  = 7
	hcspltXACTPOS   = 0x3
	hcspltXACTPOSP  = 14
	hcspltCOMPLSPLT = 1 << 16
	hcspltSPLITEN   = 1 << 31

	xactMiddle = 0x0
	xactEnd    = 0x1
	xactBegin  = 0x2
	xactAll    = 0x3
)

// HCINT and HCINTMSK bits follow the order of core.Event.
const (
	hcintXFRC  = 1 << 0
	hcintCHH   = 1 << 1
	hcintAHBER = 1 << 2
	hcintSTALL = 1 << 3
	hcintNAK   = 1 << 4
	hcintACK   = 1 << 5
	hcintNYET  = 1 << 6
	hcintTXERR = 1 << 7
	hcintBBERR = 1 << 8
	hcintFRMOR = 1 << 9
	hcintDTERR = 1 << 10
	hcintAll   = 0x7FF
)

// HCTSIZ
const (
	hctsizXFRSIZ  = 0x7FFFF
	hctsizPKTCNT  = 0x3FF
	hctsizPKTCNTP = 19
	hctsizDPID    = 0x3
	hctsizDPIDP   = 29
	hctsizDOPING  = 1 << 31
)

// Queue space fields of HNPTXSTS and HPTXSTS.
const (
	txstsQueueSpace = 0xFF << 16
)

// Limits.
const (
	maxPacketCount = 256
	isoSplitMPS    = 188
	spinLimit      = 1000
)
