package core

import (
	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// UECell is the per-(UE, serving cell) scheduling state: the HARQ pools, the
// fallback flag, and the markers of the last forward-scheduled allocations.
type UECell struct {
	UEIndex   model.UEIndex
	RNTI      model.RNTI
	CellIndex model.CellIndex

	cfg            *model.CellConfig
	dedicatedDLBWP *model.BWPConfig

	HARQ *HARQEntity

	fallback bool

	// lastPDSCHSlot / lastPUSCHSlot remember the most recent (possibly
	// forward-scheduled) allocation so consecutive grants stay ordered.
	// They are cleared once the gap to the current slot exceeds the
	// scheduling lookahead, which keeps them unambiguous across the slot
	// counter wraparound.
	lastPDSCHSlot model.Slot
	lastPUSCHSlot model.Slot

	log logging.Logger
}

// NewUECell builds the per-cell state for a UE.
func NewUECell(ue model.UEIndex, rnti model.RNTI, cellCfg model.UECellConfig, sched SchedulerConfig, th HARQTimeoutHandler, metrics MetricsNotifier, log logging.Logger) *UECell {
	if log == nil {
		log = logging.Noop()
	}
	return &UECell{
		UEIndex:        ue,
		RNTI:           rnti,
		CellIndex:      cellCfg.CellIndex,
		cfg:            cellCfg.Cell,
		dedicatedDLBWP: cellCfg.DedicatedDLBWP,
		HARQ:           NewHARQEntity(ue, rnti, sched.HARQTimeoutSlots, th, metrics, log),
		log:            log,
	}
}

// CellConfig returns the static configuration of the serving cell.
func (c *UECell) CellConfig() *model.CellConfig { return c.cfg }

// ActiveDLBWP returns the bandwidth part the UE currently decodes: the
// dedicated one when configured and out of fallback, else the initial BWP.
func (c *UECell) ActiveDLBWP() model.BWPConfig {
	if c.dedicatedDLBWP != nil && !c.fallback {
		return *c.dedicatedDLBWP
	}
	return c.cfg.InitDLBWP
}

// SetFallbackState flips the fallback flag. HARQ and logical-channel state
// carry over unchanged when the UE leaves fallback.
func (c *UECell) SetFallbackState(fallback bool) { c.fallback = fallback }

// InFallback reports whether the UE still lacks a dedicated configuration on
// this cell.
func (c *UECell) InFallback() bool { return c.fallback }

// LastPDSCHSlot returns the last allocated DL slot marker (may be invalid).
func (c *UECell) LastPDSCHSlot() model.Slot { return c.lastPDSCHSlot }

// LastPUSCHSlot returns the last allocated UL slot marker (may be invalid).
func (c *UECell) LastPUSCHSlot() model.Slot { return c.lastPUSCHSlot }

// SetLastPDSCHSlot records a (possibly forward) DL allocation.
func (c *UECell) SetLastPDSCHSlot(s model.Slot) { c.lastPDSCHSlot = s }

// SetLastPUSCHSlot records a (possibly forward) UL allocation.
func (c *UECell) SetLastPUSCHSlot(s model.Slot) { c.lastPUSCHSlot = s }

// SlotIndication advances the per-cell bookkeeping: stale allocation markers
// are dropped once outside the lookahead window, and the HARQ deadline sweep
// runs.
func (c *UECell) SlotIndication(s model.Slot) {
	if c.lastPDSCHSlot.Valid() && s.Sub(c.lastPDSCHSlot) > MaxK0Lookahead {
		c.lastPDSCHSlot = model.Slot{}
	}
	if c.lastPUSCHSlot.Valid() && s.Sub(c.lastPUSCHSlot) > MaxK2Lookahead {
		c.lastPUSCHSlot = model.Slot{}
	}
	c.HARQ.SlotIndication(s)
}

// HandleReconfiguration applies an updated per-cell configuration.
func (c *UECell) HandleReconfiguration(cellCfg model.UECellConfig) {
	c.cfg = cellCfg.Cell
	c.dedicatedDLBWP = cellCfg.DedicatedDLBWP
}

// Deactivate cancels pending retransmissions; in-flight processes drain via
// ACK or deadline.
func (c *UECell) Deactivate() {
	c.HARQ.CancelPendingRetxs()
}

// Release frees all HARQ state. The cell must not be scheduled afterwards.
func (c *UECell) Release() {
	c.HARQ.Reset()
	c.lastPDSCHSlot = model.Slot{}
	c.lastPUSCHSlot = model.Slot{}
}
