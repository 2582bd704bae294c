package model

// LogicalChannelConfig configures one logical channel of a UE.
type LogicalChannelConfig struct {
	LCID LCID
	// LCG is the logical channel group used for UL buffer-status
	// aggregation. SRBs use LCG 0.
	LCG LCGID
}

// DRXConfig configures discontinuous reception. All durations are in slots
// of the serving cell's numerology.
type DRXConfig struct {
	OnDurationSlots      uint
	CycleSlots           uint
	InactivityTimerSlots uint
}

// TAConfig configures the timing-advance manager.
type TAConfig struct {
	// MeasurementWindowSlots is the averaging window for UL timing offsets.
	MeasurementWindowSlots uint
	// CommandOffsetThreshold triggers a TA command CE once the averaged
	// offset magnitude reaches it (in timing-advance units).
	CommandOffsetThreshold float64
	// ProhibitSlots suppresses back-to-back TA commands.
	ProhibitSlots uint
}

// UECellConfig binds a UE to one serving cell.
type UECellConfig struct {
	CellIndex CellIndex
	Cell      *CellConfig
	// DedicatedDLBWP overrides the cell's initial DL BWP once the UE has a
	// dedicated configuration. Nil means the initial BWP stays active.
	DedicatedDLBWP *BWPConfig
}

// UEConfig is the dedicated configuration of one UE. Cells[0] is the primary
// cell. A UE always has at least one cell.
type UEConfig struct {
	UEIndex         UEIndex
	RNTI            RNTI
	Cells           []UECellConfig
	LogicalChannels []LogicalChannelConfig
	DRX             *DRXConfig
	TA              *TAConfig
}

// ContainsCell reports whether the config lists the given serving cell.
func (c *UEConfig) ContainsCell(idx CellIndex) bool {
	for _, cell := range c.Cells {
		if cell.CellIndex == idx {
			return true
		}
	}
	return false
}
