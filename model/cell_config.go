package model

import "fmt"

// DuplexMode selects how DL and UL share the carrier.
type DuplexMode uint8

const (
	DuplexFDD DuplexMode = iota
	DuplexTDD
)

func (m DuplexMode) String() string {
	switch m {
	case DuplexFDD:
		return "FDD"
	case DuplexTDD:
		return "TDD"
	default:
		return fmt.Sprintf("DuplexMode(%d)", uint8(m))
	}
}

// TDDPattern describes a DL/UL slot pattern repeating every PeriodSlots slots:
// DLSlots fully-downlink slots, then an optional partial slot with DLSymbols
// downlink symbols and ULSymbols uplink symbols, then ULSlots fully-uplink
// slots at the tail of the period.
type TDDPattern struct {
	PeriodSlots uint
	DLSlots     uint
	DLSymbols   uint
	ULSlots     uint
	ULSymbols   uint
}

// CORESETConfig is a control-resource-set: the frequency range and symbol
// duration in which PDCCH candidates are monitored.
type CORESETConfig struct {
	ID              uint8
	RBs             Interval
	DurationSymbols uint
}

// SearchSpaceConfig binds a search space to a CORESET. Common search spaces
// are decodable by UEs without a dedicated configuration.
type SearchSpaceConfig struct {
	ID        uint8
	CORESETID uint8
	Common    bool
}

// BWPConfig is a bandwidth part: a configured sub-band of the carrier.
type BWPConfig struct {
	SCS Numerology
	RBs Interval
}

// CellConfig is the static per-cell configuration consumed by the scheduler.
// It is read-only once the cell is running.
type CellConfig struct {
	CellIndex CellIndex
	SCS       Numerology

	// CRBs is the full carrier resource-block range.
	CRBs Interval

	// InitDLBWP is the initial DL bandwidth part, decodable by all UEs.
	InitDLBWP BWPConfig
	// InitULBWP is the initial UL bandwidth part.
	InitULBWP BWPConfig

	// Coreset0 is CORESET#0 when configured on this carrier.
	Coreset0 *CORESETConfig
	// CommonCoreset is the additional common CORESET, if any.
	CommonCoreset *CORESETConfig

	SearchSpaces []SearchSpaceConfig

	// PDSCHSymbols / PUSCHSymbols are the OFDM symbol ranges used for data
	// allocations.
	PDSCHSymbols Interval
	PUSCHSymbols Interval

	// K0 lists the supported PDCCH-to-PDSCH slot offsets, in preference order.
	K0 []uint
	// K1Candidates lists the supported PDSCH-to-ACK slot offsets for DCI 1_0.
	K1Candidates []uint
	// K2 is the PDCCH-to-PUSCH slot offset.
	K2 uint

	Duplex DuplexMode
	// TDD must be set when Duplex is DuplexTDD.
	TDD *TDDPattern

	// CSIRSPeriodSlots > 0 enables a periodic CSI-RS occupying the slots where
	// Count % CSIRSPeriodSlots == CSIRSOffsetSlots. The fallback scheduler
	// avoids those slots.
	CSIRSPeriodSlots uint
	CSIRSOffsetSlots uint
}

// Validate performs the configuration sanity checks that the scheduler relies
// on. A failure here is a defect in the calling layer.
func (c *CellConfig) Validate() error {
	if c.CRBs.Empty() {
		return fmt.Errorf("cell %d: empty carrier RB range", c.CellIndex)
	}
	if c.PDSCHSymbols.Empty() || c.PUSCHSymbols.Empty() {
		return fmt.Errorf("cell %d: empty PDSCH/PUSCH symbol range", c.CellIndex)
	}
	if len(c.K0) == 0 || len(c.K1Candidates) == 0 {
		return fmt.Errorf("cell %d: missing k0/k1 time-domain offsets", c.CellIndex)
	}
	if c.Duplex == DuplexTDD && c.TDD == nil {
		return fmt.Errorf("cell %d: TDD duplex mode without TDD pattern", c.CellIndex)
	}
	if c.TDD != nil && c.TDD.PeriodSlots == 0 {
		return fmt.Errorf("cell %d: TDD pattern with zero period", c.CellIndex)
	}
	hasCommon := false
	for _, ss := range c.SearchSpaces {
		if ss.Common {
			hasCommon = true
		}
		if c.FindCoreset(ss.CORESETID) == nil {
			return fmt.Errorf("cell %d: search space %d references unknown CORESET %d",
				c.CellIndex, ss.ID, ss.CORESETID)
		}
	}
	if !hasCommon {
		return fmt.Errorf("cell %d: no common search space configured", c.CellIndex)
	}
	return nil
}

// FindSearchSpace returns the search space with the given ID, or nil.
func (c *CellConfig) FindSearchSpace(id uint8) *SearchSpaceConfig {
	for i := range c.SearchSpaces {
		if c.SearchSpaces[i].ID == id {
			return &c.SearchSpaces[i]
		}
	}
	return nil
}

// FindCoreset resolves a CORESET ID against CORESET#0 and the common CORESET.
func (c *CellConfig) FindCoreset(id uint8) *CORESETConfig {
	if c.Coreset0 != nil && c.Coreset0.ID == id {
		return c.Coreset0
	}
	if c.CommonCoreset != nil && c.CommonCoreset.ID == id {
		return c.CommonCoreset
	}
	return nil
}

// IsDLEnabled reports whether the slot carries at least one downlink symbol.
func (c *CellConfig) IsDLEnabled(s Slot) bool {
	if c.Duplex == DuplexFDD || c.TDD == nil {
		return true
	}
	idx := s.Count() % c.TDD.PeriodSlots
	if idx < c.TDD.DLSlots {
		return true
	}
	return idx == c.TDD.DLSlots && c.TDD.DLSymbols > 0
}

// IsFullyDLEnabled reports whether every symbol of the slot is downlink.
func (c *CellConfig) IsFullyDLEnabled(s Slot) bool {
	if c.Duplex == DuplexFDD || c.TDD == nil {
		return true
	}
	return s.Count()%c.TDD.PeriodSlots < c.TDD.DLSlots
}

// IsULEnabled reports whether the slot carries at least one uplink symbol.
func (c *CellConfig) IsULEnabled(s Slot) bool {
	if c.Duplex == DuplexFDD || c.TDD == nil {
		return true
	}
	idx := s.Count() % c.TDD.PeriodSlots
	if idx >= c.TDD.PeriodSlots-c.TDD.ULSlots {
		return true
	}
	return idx == c.TDD.DLSlots && c.TDD.ULSymbols > 0
}

// IsCSIRSSlot reports whether the slot carries the periodic CSI-RS.
func (c *CellConfig) IsCSIRSSlot(s Slot) bool {
	if c.CSIRSPeriodSlots == 0 {
		return false
	}
	return s.Count()%c.CSIRSPeriodSlots == c.CSIRSOffsetSlots%c.CSIRSPeriodSlots
}

// DLSymbolsInSlot returns the usable PDSCH symbol range in the given slot,
// accounting for partial TDD slots.
func (c *CellConfig) DLSymbolsInSlot(s Slot) Interval {
	syms := c.PDSCHSymbols
	if c.Duplex == DuplexTDD && c.TDD != nil && !c.IsFullyDLEnabled(s) {
		if !c.IsDLEnabled(s) {
			return Interval{}
		}
		syms = syms.Intersect(Interval{Start: 0, Stop: int(c.TDD.DLSymbols)})
	}
	return syms
}
