package model

// UEIndex is a small dense index identifying a connected UE inside the cell
// scheduler. Indexes are reused after the UE is released.
type UEIndex uint16

// InvalidUEIndex marks the absence of a UE.
const InvalidUEIndex UEIndex = 0xffff

// MaxNofUEs bounds the UE arena owned by the scheduler.
const MaxNofUEs = 64

// RNTI is the radio network temporary identifier used to address a UE on the
// PDCCH.
type RNTI uint16

// CellIndex identifies a serving cell of the base station.
type CellIndex uint8

const (
	// InvalidCellIndex marks the absence of a cell.
	InvalidCellIndex CellIndex = 0xff
	// MaxNofCellsPerUE bounds the serving-cell list of one UE.
	MaxNofCellsPerUE = 4
)

// LCID is a logical channel identifier.
type LCID uint8

const (
	LCIDSRB0 LCID = 0
	LCIDSRB1 LCID = 1
	LCIDSRB2 LCID = 2
	// LCIDMinDRB is the first LCID usable by data radio bearers.
	LCIDMinDRB LCID = 4
	// MaxNofLCIDs bounds the logical channel table of one UE.
	MaxNofLCIDs = 32
	// InvalidLCID marks the absence of a logical channel.
	InvalidLCID LCID = 64
)

// IsSRB reports whether the LCID belongs to a signalling radio bearer.
func (l LCID) IsSRB() bool { return l <= LCIDSRB2 }

// LCGID is a logical channel group identifier, used for UL buffer status
// aggregation. SRBs use LCG 0 by default.
type LCGID uint8

// MaxNofLCGs bounds the logical channel group table of one UE.
const MaxNofLCGs = 8

// HARQProcessID identifies one HARQ process within a UE-cell pool.
type HARQProcessID uint8

// InvalidHARQProcessID marks the absence of a HARQ process.
const InvalidHARQProcessID HARQProcessID = 0xff
