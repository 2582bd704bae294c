package model

// MCSIndex is a modulation-and-coding-scheme table index.
type MCSIndex uint8

// MaxMCSIndex is the highest index of the 64QAM MCS table.
const MaxMCSIndex MCSIndex = 28

// SubcarriersPerRB is the number of subcarriers spanned by one resource block.
const SubcarriersPerRB = 12

type mcsEntry struct {
	modulation uint // bits per symbol (Qm)
	codeRate   uint // target code rate x 1024 (R)
}

// 64QAM MCS table, TS 38.214 Table 5.1.3.1-1.
var mcsTable = [MaxMCSIndex + 1]mcsEntry{
	{2, 120}, {2, 157}, {2, 193}, {2, 251}, {2, 308}, {2, 379}, {2, 449},
	{2, 526}, {2, 602}, {2, 679}, {4, 340}, {4, 378}, {4, 434}, {4, 490},
	{4, 553}, {4, 616}, {4, 658}, {6, 438}, {6, 466}, {6, 517}, {6, 567},
	{6, 616}, {6, 666}, {6, 719}, {6, 772}, {6, 822}, {6, 873}, {6, 910},
	{6, 948},
}

// TBSBytes returns the transport block size in bytes achievable with the
// given MCS over nRB resource blocks and nSymbols OFDM symbols.
func TBSBytes(mcs MCSIndex, nRB, nSymbols int) int {
	if mcs > MaxMCSIndex || nRB <= 0 || nSymbols <= 0 {
		return 0
	}
	e := mcsTable[mcs]
	bits := uint(nRB) * uint(nSymbols) * SubcarriersPerRB * e.modulation * e.codeRate
	return int(bits / (1024 * 8))
}

// MinRBsForPayload returns the smallest number of resource blocks over
// nSymbols symbols whose transport block fits payloadBytes at the given MCS,
// or 0 when the payload cannot fit in any positive RB count (degenerate
// inputs only; callers bound the RB count against the eligible interval).
func MinRBsForPayload(mcs MCSIndex, payloadBytes, nSymbols int) int {
	if mcs > MaxMCSIndex || nSymbols <= 0 || payloadBytes <= 0 {
		return 0
	}
	e := mcsTable[mcs]
	perRB := uint(nSymbols) * SubcarriersPerRB * e.modulation * e.codeRate
	need := uint(payloadBytes) * 1024 * 8
	nRB := int((need + perRB - 1) / perRB)
	// Integer truncation in TBSBytes can leave the estimate one RB short.
	for TBSBytes(mcs, nRB, nSymbols) < payloadBytes {
		nRB++
	}
	return nRB
}
