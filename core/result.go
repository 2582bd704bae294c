package core

import "github.com/signalsfoundry/ran-scheduler/model"

// DCIFormat identifies the downlink control information format of a grant.
type DCIFormat uint8

const (
	// DCIFormat1_0 is the fallback DL format, decodable in common search
	// spaces by UEs without a dedicated configuration.
	DCIFormat1_0 DCIFormat = iota
	// DCIFormat1_1 is the UE-dedicated DL format.
	DCIFormat1_1
	// DCIFormat0_0 is the fallback UL format.
	DCIFormat0_0
	// DCIFormat0_1 is the UE-dedicated UL format.
	DCIFormat0_1
)

// CEType identifies a MAC control element carried in a transport block.
type CEType uint8

const (
	CEContentionResolutionID CEType = iota
	CETimingAdvanceCommand
)

// SubPDU is one MAC subPDU inside a transport block: either a control
// element or a slice of a logical channel's SDU stream.
type SubPDU struct {
	IsCE  bool
	CE    CEType
	LCID  model.LCID
	Bytes int
}

// DLTBInfo lists the subPDUs packed into one downlink transport block.
type DLTBInfo struct {
	SubPDUs []SubPDU
}

// TotalBytes returns the packed payload bytes including subheaders.
func (tb *DLTBInfo) TotalBytes() int {
	total := 0
	for _, p := range tb.SubPDUs {
		total += p.Bytes
	}
	return total
}

// PDCCHInfo is one downlink control-channel allocation.
type PDCCHInfo struct {
	RNTI          model.RNTI
	SearchSpaceID uint8
	DCI           DCIFormat
}

// CodewordInfo describes one codeword of a PDSCH grant.
type CodewordInfo struct {
	TBSBytes int
	MCS      model.MCSIndex
	RV       uint8
}

// PDSCHGrant is one downlink data allocation bound to a UE.
type PDSCHGrant struct {
	RNTI       model.RNTI
	UEIndex    model.UEIndex
	HARQID     model.HARQProcessID
	RBs        model.Interval
	Symbols    model.Interval
	Codewords  []CodewordInfo
	TB         DLTBInfo
	IsFallback bool
	IsRetx     bool
}

// PUCCHGrant is one uplink acknowledgment-channel allocation.
type PUCCHGrant struct {
	RNTI    model.RNTI
	UEIndex model.UEIndex
	HARQID  model.HARQProcessID
	RBs     model.Interval
	Symbols model.Interval
	// K1 is the PDSCH-to-ACK slot offset this PUCCH answers.
	K1 uint
}

// PUSCHGrant is one uplink data allocation.
type PUSCHGrant struct {
	RNTI     model.RNTI
	UEIndex  model.UEIndex
	HARQID   model.HARQProcessID
	RBs      model.Interval
	Symbols  model.Interval
	TBSBytes int
	MCS      model.MCSIndex
	IsRetx   bool
}

// DLSchedResult collects the downlink side of one slot's decisions.
type DLSchedResult struct {
	PDCCHs   []PDCCHInfo
	UEGrants []PDSCHGrant
}

// ULSchedResult collects the uplink side of one slot's decisions.
type ULSchedResult struct {
	PUCCHs []PUCCHGrant
	PUSCHs []PUSCHGrant
}

// SlotResult is the per-slot scheduling outcome handed to the lower layers.
type SlotResult struct {
	Slot model.Slot
	DL   DLSchedResult
	UL   ULSchedResult
}

func (r *SlotResult) reset(s model.Slot) {
	r.Slot = s
	r.DL.PDCCHs = r.DL.PDCCHs[:0]
	r.DL.UEGrants = r.DL.UEGrants[:0]
	r.UL.PUCCHs = r.UL.PUCCHs[:0]
	r.UL.PUSCHs = r.UL.PUSCHs[:0]
}
