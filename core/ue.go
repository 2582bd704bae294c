package core

import (
	"fmt"

	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// UECreationCommand carries everything needed to instantiate a UE.
type UECreationCommand struct {
	Config           model.UEConfig
	StartsInFallback bool
	TimeoutHandler   HARQTimeoutHandler
}

// UE aggregates the scheduling state of one connected terminal: its logical
// channel managers, the TA/DRX controllers, and one UECell per serving cell
// (index 0 is the primary cell). The UE scheduler owns all UEs exclusively;
// nothing here is safe for concurrent use.
type UE struct {
	UEIndex model.UEIndex
	RNTI    model.RNTI

	DLChannels *DLLogicalChannelManager
	ULChannels *ULLogicalChannelManager

	ta  *TimingAdvanceManager
	drx *DRXController

	cells []*UECell

	schedCfg SchedulerConfig
	timeout  HARQTimeoutHandler
	metrics  MetricsNotifier
	log      logging.Logger
}

// NewUE creates a UE from its initial configuration. A configuration without
// at least a primary cell is a defect in the calling layer.
func NewUE(cmd UECreationCommand, sched SchedulerConfig, metrics MetricsNotifier, log logging.Logger) (*UE, error) {
	if len(cmd.Config.Cells) == 0 {
		return nil, fmt.Errorf("ue %d: creation requires at least a primary cell", cmd.Config.UEIndex)
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	u := &UE{
		UEIndex:    cmd.Config.UEIndex,
		RNTI:       cmd.Config.RNTI,
		DLChannels: NewDLLogicalChannelManager(),
		ULChannels: NewULLogicalChannelManager(),
		schedCfg:   sched,
		timeout:    cmd.TimeoutHandler,
		metrics:    metrics,
		log:        log.With(logging.Uint("ue", uint(cmd.Config.UEIndex))),
	}
	u.ta = NewTimingAdvanceManager(cmd.Config.TA, u.DLChannels)
	u.drx = NewDRXController(cmd.Config.DRX)

	if err := u.HandleReconfiguration(cmd.Config); err != nil {
		return nil, err
	}
	for _, cell := range u.cells {
		cell.SetFallbackState(cmd.StartsInFallback)
	}
	if cmd.StartsInFallback {
		// Msg4 must carry the contention-resolution identity.
		u.DLChannels.PendConResID()
	}
	return u, nil
}

// PCell returns the primary serving cell.
func (u *UE) PCell() *UECell { return u.cells[0] }

// Cells returns the serving cells in UE-cell index order.
func (u *UE) Cells() []*UECell { return u.cells }

// FindCell returns the UECell serving the given cell index, or nil.
func (u *UE) FindCell(idx model.CellIndex) *UECell {
	for _, c := range u.cells {
		if c.CellIndex == idx {
			return c
		}
	}
	return nil
}

// InFallback reports whether the primary cell is still in fallback.
func (u *UE) InFallback() bool { return u.cells[0].InFallback() }

// DRX exposes the DRX controller for the dedicated scheduler.
func (u *UE) DRX() *DRXController { return u.drx }

// TA exposes the timing-advance manager for UL measurement ingestion.
func (u *UE) TA() *TimingAdvanceManager { return u.ta }

// SlotIndication advances the per-slot bookkeeping of every serving cell and
// the TA/DRX controllers.
func (u *UE) SlotIndication(s model.Slot) {
	for _, cell := range u.cells {
		cell.SlotIndication(s)
	}
	u.ta.SlotIndication(s)
	u.drx.SlotIndication(s)
}

// HandleReconfiguration applies a dedicated configuration in place. Cells may
// be added, modified, or removed; a removed cell is deactivated and its HARQ
// state released before the call returns, so the next slot pass never sees
// it. Removing the primary cell is rejected. Applying a full configuration
// also moves the UE out of fallback; HARQ and logical-channel state carry
// over unchanged.
func (u *UE) HandleReconfiguration(cfg model.UEConfig) error {
	if len(cfg.Cells) == 0 {
		return fmt.Errorf("ue %d: reconfiguration requires at least the primary cell", u.UEIndex)
	}
	if len(cfg.Cells) > model.MaxNofCellsPerUE {
		return fmt.Errorf("ue %d: %d cells exceeds the per-UE limit %d", u.UEIndex, len(cfg.Cells), model.MaxNofCellsPerUE)
	}
	if len(u.cells) > 0 && cfg.Cells[0].CellIndex != u.cells[0].CellIndex {
		return fmt.Errorf("ue %d: primary cell cannot be removed or swapped", u.UEIndex)
	}

	u.DLChannels.Configure(cfg.LogicalChannels)
	u.ULChannels.Configure(cfg.LogicalChannels)
	if cfg.DRX != nil {
		u.drx.Reconfigure(cfg.DRX)
	}
	if cfg.TA != nil {
		u.ta.Reconfigure(cfg.TA)
	}

	// Release cells dropped by the new configuration.
	kept := u.cells[:0]
	for _, cell := range u.cells {
		if cfg.ContainsCell(cell.CellIndex) {
			kept = append(kept, cell)
			continue
		}
		cell.Deactivate()
		cell.Release()
	}
	u.cells = kept

	// Add or reconfigure the cells of the new list, in UE-cell index order.
	ordered := make([]*UECell, 0, len(cfg.Cells))
	for _, cellCfg := range cfg.Cells {
		if existing := u.FindCell(cellCfg.CellIndex); existing != nil {
			existing.HandleReconfiguration(cellCfg)
			ordered = append(ordered, existing)
			continue
		}
		ordered = append(ordered, NewUECell(u.UEIndex, u.RNTI, cellCfg, u.schedCfg, u.timeout, u.metrics, u.log))
	}
	u.cells = ordered

	if len(cfg.LogicalChannels) > 0 {
		// A full dedicated configuration ends the fallback phase.
		for _, cell := range u.cells {
			cell.SetFallbackState(false)
		}
	}
	return nil
}

// Deactivate quiesces the UE ahead of release: channels stop accepting
// indications and pending retransmissions are cancelled. Must be called
// between slot passes, never mid-pass.
func (u *UE) Deactivate() {
	u.DLChannels.Deactivate()
	u.ULChannels.Deactivate()
	for _, cell := range u.cells {
		cell.Deactivate()
	}
}

// ReleaseResources frees all HARQ state once upper layers confirm release.
func (u *UE) ReleaseResources() {
	for _, cell := range u.cells {
		cell.Release()
	}
}

// PendingDLNewTxBytes returns the DL transport-block demand, scoped to one
// channel when lcid is valid. The aggregate includes queued MAC CEs, so a
// timing-advance command alone is enough to trigger a grant.
func (u *UE) PendingDLNewTxBytes(lcid model.LCID) int {
	if lcid != model.InvalidLCID {
		return u.DLChannels.PendingBytesLCID(lcid)
	}
	return u.DLChannels.PendingCEBytes() + u.DLChannels.PendingBytes()
}

// PendingFallbackBytes returns the demand of the fallback transport block:
// the contention-resolution CE plus the SRB0 payload (whole, it cannot be
// segmented), or SRB1 when SRB0 is empty.
func (u *UE) PendingFallbackBytes() int {
	total := 0
	if u.DLChannels.HasPendingConRes() {
		total += conResCETotalBytes
	}
	if u.DLChannels.HasPendingBytesLCID(model.LCIDSRB0) {
		return total + u.DLChannels.PendingBytesLCID(model.LCIDSRB0)
	}
	return total + u.DLChannels.PendingBytesLCID(model.LCIDSRB1)
}

// PendingULNewTxBytes estimates the UL demand: the last buffer status minus
// bytes already in flight on UL HARQ processes, falling back to a fixed SR
// grant when only a scheduling request is pending.
func (u *UE) PendingULNewTxBytes() int {
	pending := u.ULChannels.PendingBytes()
	for _, cell := range u.cells {
		if pending == 0 {
			break
		}
		pending -= min(pending, cell.HARQ.TotalULBytesWaitingAck())
	}
	if pending > 0 {
		return pending
	}
	if u.ULChannels.HasPendingSR() {
		return SRGrantBytes
	}
	return 0
}

// BuildDLTransportBlock packs CEs and then channel data in LCID order
// (signalling before data bearers) into a transport block of the given byte
// budget. Returns the bytes used.
func (u *UE) BuildDLTransportBlock(tb *DLTBInfo, budget int) int {
	used := u.DLChannels.AllocateConResCE(tb, budget)
	used += u.DLChannels.AllocateTACmdCE(tb, budget-used)
	for lcid := model.LCID(0); lcid < model.MaxNofLCIDs; lcid++ {
		used += u.DLChannels.AllocateMACSDUs(tb, budget-used, lcid)
	}
	return used
}

// BuildDLFallbackTransportBlock packs the fallback transport block: the
// contention-resolution CE first, then SRB0 if and only if it fits whole
// (SRB0 cannot be segmented), otherwise SRB1.
func (u *UE) BuildDLFallbackTransportBlock(tb *DLTBInfo, budget int) int {
	used := u.DLChannels.AllocateConResCE(tb, budget)
	if u.DLChannels.HasPendingBytesLCID(model.LCIDSRB0) &&
		budget-used >= u.DLChannels.PendingBytesLCID(model.LCIDSRB0) {
		used += u.DLChannels.AllocateMACSDUs(tb, budget-used, model.LCIDSRB0)
		return used
	}
	used += u.DLChannels.AllocateMACSDUs(tb, budget-used, model.LCIDSRB1)
	return used
}
