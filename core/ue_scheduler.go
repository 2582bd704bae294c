package core

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

const tracerName = "github.com/signalsfoundry/ran-scheduler/core"

// UEScheduler is the per-cell scheduling entry point. It owns the resource
// grid, the connected-UE set, and the fallback scheduler, and produces one
// SlotResult per slot indication.
//
// All methods must be called from the cell's single scheduling goroutine.
// Event producers (FAPI adapters, upper-layer procedures) hand their events
// to that goroutine; the scheduler itself never locks.
type UEScheduler struct {
	cellCfg *model.CellConfig
	sched   SchedulerConfig

	grid     *CellResourceGrid
	ues      *UERepository
	fallback *FallbackScheduler

	dedicatedSSID uint8

	metrics MetricsNotifier
	log     logging.Logger
	tracer  trace.Tracer
}

// NewUEScheduler builds the scheduler for one cell. The cell configuration
// must have passed Validate.
func NewUEScheduler(cellCfg *model.CellConfig, sched SchedulerConfig, metrics MetricsNotifier, log logging.Logger) (*UEScheduler, error) {
	if err := cellCfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	log = logging.WithCell(log, uint(cellCfg.CellIndex))

	grid := NewCellResourceGrid(cellCfg, log)
	ues := NewUERepository()
	s := &UEScheduler{
		cellCfg:  cellCfg,
		sched:    sched,
		grid:     grid,
		ues:      ues,
		fallback: NewFallbackScheduler(cellCfg, sched, grid, ues, metrics, log),
		metrics:  metrics,
		log:      logging.WithComponent(log, "ue-sched"),
		tracer:   otel.Tracer(tracerName),
	}
	// Dedicated grants go out on the last configured search space, falling
	// back to the common one for cells without a dedicated search space.
	s.dedicatedSSID = s.fallback.commonSSID
	for _, ss := range cellCfg.SearchSpaces {
		if !ss.Common {
			s.dedicatedSSID = ss.ID
		}
	}
	return s, nil
}

// UEs exposes the connected-UE set for inspection.
func (s *UEScheduler) UEs() *UERepository { return s.ues }

// Grid exposes the resource grid for inspection and tests.
func (s *UEScheduler) Grid() *CellResourceGrid { return s.grid }

// HandleUECreation admits a UE into the cell.
func (s *UEScheduler) HandleUECreation(ctx context.Context, cmd UECreationCommand) error {
	ctx, span := s.tracer.Start(ctx, "Scheduler/UECreation",
		trace.WithAttributes(
			attribute.Int("ue_index", int(cmd.Config.UEIndex)),
			attribute.Int("rnti", int(cmd.Config.RNTI)),
			attribute.Bool("fallback", cmd.StartsInFallback)))
	defer span.End()

	u, err := NewUE(cmd, s.sched, s.metrics, s.log)
	if err == nil {
		err = s.ues.AddUE(u)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("ue creation: %w", err)
	}
	s.log.Info(ctx, "ue created",
		logging.Uint("ue", uint(u.UEIndex)),
		logging.Uint("rnti", uint(u.RNTI)),
		logging.Bool("fallback", cmd.StartsInFallback))
	return nil
}

// HandleUEReconfiguration applies a new dedicated configuration to a UE.
func (s *UEScheduler) HandleUEReconfiguration(ctx context.Context, cfg model.UEConfig) error {
	ctx, span := s.tracer.Start(ctx, "Scheduler/UEReconfiguration",
		trace.WithAttributes(attribute.Int("ue_index", int(cfg.UEIndex))))
	defer span.End()

	u := s.ues.Find(cfg.UEIndex)
	if u == nil {
		span.RecordError(ErrUENotFound)
		return fmt.Errorf("ue %d reconfiguration: %w", cfg.UEIndex, ErrUENotFound)
	}
	if err := u.HandleReconfiguration(cfg); err != nil {
		span.RecordError(err)
		return err
	}
	s.log.Info(ctx, "ue reconfigured", logging.Uint("ue", uint(u.UEIndex)))
	return nil
}

// HandleUERemoval deactivates a UE and frees its resources and index.
func (s *UEScheduler) HandleUERemoval(ctx context.Context, idx model.UEIndex) error {
	ctx, span := s.tracer.Start(ctx, "Scheduler/UERemoval",
		trace.WithAttributes(attribute.Int("ue_index", int(idx))))
	defer span.End()

	u := s.ues.Find(idx)
	if u == nil {
		span.RecordError(ErrUENotFound)
		return fmt.Errorf("ue %d removal: %w", idx, ErrUENotFound)
	}
	u.Deactivate()
	u.ReleaseResources()
	if err := s.ues.Remove(idx); err != nil {
		span.RecordError(err)
		return err
	}
	s.log.Info(ctx, "ue removed", logging.Uint("ue", uint(idx)))
	return nil
}

// HandleDLBufferStateIndication records new downlink data for a UE's logical
// channel. Fallback UEs are additionally queued for the fallback scheduler.
func (s *UEScheduler) HandleDLBufferStateIndication(idx model.UEIndex, lcid model.LCID, bytes int) {
	u := s.ues.Find(idx)
	if u == nil {
		return
	}
	u.DLChannels.HandleBufferStateIndication(lcid, bytes)
	if u.InFallback() && lcid.IsSRB() {
		s.fallback.HandleDLBufferStateIndication(idx)
	}
}

// HandleULBSR records an uplink buffer status report.
func (s *UEScheduler) HandleULBSR(idx model.UEIndex, lcg model.LCGID, bytes int) {
	if u := s.ues.Find(idx); u != nil {
		u.ULChannels.HandleBSR(lcg, bytes)
	}
}

// HandleSRIndication records a scheduling request.
func (s *UEScheduler) HandleSRIndication(idx model.UEIndex) {
	if u := s.ues.Find(idx); u != nil {
		u.ULChannels.HandleSRIndication()
	}
}

// HandleULTimingMeasurement feeds an uplink timing-offset sample.
func (s *UEScheduler) HandleULTimingMeasurement(idx model.UEIndex, offset float64) {
	if u := s.ues.Find(idx); u != nil {
		u.TA().HandleULTimingMeasurement(offset)
	}
}

// HandleACKInfo applies a downlink HARQ acknowledgment. Reports for unknown
// UEs or processes not waiting for an ACK are logged and dropped; a stale
// report must never corrupt a reused process.
func (s *UEScheduler) HandleACKInfo(idx model.UEIndex, cell model.CellIndex, harqID model.HARQProcessID, ack bool) {
	u := s.ues.Find(idx)
	if u == nil {
		return
	}
	uc := u.FindCell(cell)
	if uc == nil {
		return
	}
	if err := uc.HARQ.DLAckInfo(harqID, 0, ack); err != nil {
		s.log.Debug(context.Background(), "dl ack dropped",
			logging.Uint("ue", uint(idx)), logging.Err(err))
	}
}

// HandleCRCInfo applies an uplink CRC outcome.
func (s *UEScheduler) HandleCRCInfo(idx model.UEIndex, cell model.CellIndex, harqID model.HARQProcessID, ok bool) {
	u := s.ues.Find(idx)
	if u == nil {
		return
	}
	uc := u.FindCell(cell)
	if uc == nil {
		return
	}
	if err := uc.HARQ.ULCrcInfo(harqID, ok); err != nil {
		s.log.Debug(context.Background(), "ul crc dropped",
			logging.Uint("ue", uint(idx)), logging.Err(err))
	}
}

// RunSlot advances the scheduler to the given slot and returns that slot's
// decisions. Slots must be indicated consecutively.
func (s *UEScheduler) RunSlot(now model.Slot) *SlotResult {
	s.grid.SlotIndication(now)
	s.ues.ForEach(func(u *UE) { u.SlotIndication(now) })

	s.fallback.RunSlot(now)
	s.runDL(now)
	s.runUL(now)

	res := &s.grid.At(now).Result
	s.metrics.OnSlotComplete(SlotStats{
		ActiveUEs:        s.ues.Len(),
		FallbackQueueLen: s.fallback.QueueLen(),
		DLGrants:         len(res.DL.UEGrants),
		ULGrants:         len(res.UL.PUSCHs),
	})
	return res
}

// runDL serves dedicated downlink traffic in the current slot: pending
// retransmissions first, then new transmissions, DRX permitting.
func (s *UEScheduler) runDL(now model.Slot) {
	syms := s.cellCfg.DLSymbolsInSlot(now)
	if syms.Empty() {
		return
	}
	entry := s.grid.At(now)

	s.ues.ForEach(func(u *UE) {
		cell := u.PCell()
		if cell.InFallback() || !u.DRX().IsActiveTime(now) {
			return
		}
		for p := cell.HARQ.FindPendingRetxDLOfKind(false); p != nil; p = cell.HARQ.FindPendingRetxDLOfKind(false) {
			if !s.allocDedicatedRetx(now, entry, syms, u, cell, p) {
				break
			}
		}
		if u.PendingDLNewTxBytes(model.InvalidLCID) > 0 {
			s.allocDedicatedNewTx(now, entry, syms, u, cell)
		}
	})
}

func (s *UEScheduler) allocDedicatedNewTx(now model.Slot, entry *SlotGrid, syms model.Interval, u *UE, cell *UECell) bool {
	if cell.HARQ.NofFreeDLProcesses() == 0 {
		s.metrics.OnAllocFailure(CauseHARQExhausted)
		return false
	}
	ackSlot, k1, pucchRBs, found := s.findAckSlot(now)
	if !found {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return false
	}
	alloc, err := AllocateDLGrant(entry, GrantRequest{
		Demand:    u.PendingDLNewTxBytes(model.InvalidLCID),
		MaxMCS:    s.sched.MaxDLMCS,
		CRBLimits: cell.ActiveDLBWP().RBs,
		Symbols:   syms,
	})
	if err != nil {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return false
	}
	harq := cell.HARQ.AllocDLProcess(now, ackSlot, alloc.TBSBytes, alloc.MCS, s.sched.MaxHARQRetx, false)

	var tb DLTBInfo
	u.BuildDLTransportBlock(&tb, alloc.TBSBytes)
	s.commitDL(u, cell, harq.ID, alloc, syms, tb, false, now, ackSlot, k1, pucchRBs, rvSequence[0])
	u.DRX().OnNewTxGrant()
	s.metrics.OnDLGrant(GrantNewTx)
	return true
}

func (s *UEScheduler) allocDedicatedRetx(now model.Slot, entry *SlotGrid, syms model.Interval, u *UE, cell *UECell, p *DLHARQProcess) bool {
	ackSlot, k1, pucchRBs, found := s.findAckSlot(now)
	if !found {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return false
	}
	alloc, err := AllocateDLRetx(entry, p.MCS, p.TBSBytes, cell.ActiveDLBWP().RBs, syms)
	if err != nil {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return false
	}
	cell.HARQ.RetxDL(p, now, ackSlot)
	s.commitDL(u, cell, p.ID, alloc, syms, DLTBInfo{}, true, now, ackSlot, k1, pucchRBs, rvSequence[p.RetxCount%len(rvSequence)])
	s.metrics.OnDLGrant(GrantRetx)
	return true
}

// findAckSlot mirrors the fallback scheduler's k1 search for dedicated grants.
func (s *UEScheduler) findAckSlot(pdschSlot model.Slot) (model.Slot, uint, model.Interval, bool) {
	return s.fallback.findAckSlot(pdschSlot)
}

// commitDL records the PDCCH, the PDSCH grant, and the PUCCH reservation for
// one dedicated downlink allocation.
func (s *UEScheduler) commitDL(u *UE, cell *UECell, harqID model.HARQProcessID, alloc GrantAlloc, syms model.Interval, tb DLTBInfo, isRetx bool, pdschSlot, ackSlot model.Slot, k1 uint, pucchRBs model.Interval, rv uint8) {
	entry := s.grid.At(pdschSlot)
	entry.Result.DL.PDCCHs = append(entry.Result.DL.PDCCHs, PDCCHInfo{
		RNTI:          u.RNTI,
		SearchSpaceID: s.dedicatedSSID,
		DCI:           DCIFormat1_1,
	})
	entry.Result.DL.UEGrants = append(entry.Result.DL.UEGrants, PDSCHGrant{
		RNTI:      u.RNTI,
		UEIndex:   u.UEIndex,
		HARQID:    harqID,
		RBs:       alloc.RBs,
		Symbols:   syms,
		Codewords: []CodewordInfo{{TBSBytes: alloc.TBSBytes, MCS: alloc.MCS, RV: rv}},
		TB:        tb,
		IsRetx:    isRetx,
	})

	ackEntry := s.grid.At(ackSlot)
	if err := ackEntry.Reserve(DirUL, pucchRBs, s.cellCfg.PUSCHSymbols); err != nil {
		s.log.Error(context.Background(), "pucch reservation conflict", logging.Err(err))
	}
	ackEntry.Result.UL.PUCCHs = append(ackEntry.Result.UL.PUCCHs, PUCCHGrant{
		RNTI:    u.RNTI,
		UEIndex: u.UEIndex,
		HARQID:  harqID,
		RBs:     pucchRBs,
		Symbols: s.cellCfg.PUSCHSymbols,
		K1:      k1,
	})
	cell.SetLastPDSCHSlot(pdschSlot)
}

// runUL serves uplink traffic. The grant's PDCCH goes out in the current slot
// and the PUSCH lands k2 slots later, which must be uplink capable.
func (s *UEScheduler) runUL(now model.Slot) {
	if s.cellCfg.DLSymbolsInSlot(now).Empty() {
		// No PDCCH opportunity, hence no UL grant from this slot.
		return
	}
	puschSlot := now.Add(int(s.cellCfg.K2))
	if !s.cellCfg.IsULEnabled(puschSlot) {
		return
	}
	entry := s.grid.At(puschSlot)
	syms := s.cellCfg.PUSCHSymbols

	s.ues.ForEach(func(u *UE) {
		cell := u.PCell()
		if last := cell.LastPUSCHSlot(); last.Valid() && puschSlot.Sub(last) <= 0 {
			return
		}
		if p := cell.HARQ.FindPendingRetxUL(); p != nil {
			s.allocULRetx(now, entry, syms, puschSlot, u, cell, p)
			return
		}
		demand := u.PendingULNewTxBytes()
		if demand == 0 {
			return
		}
		s.allocULNewTx(now, entry, syms, puschSlot, u, cell, demand)
	})
}

func (s *UEScheduler) allocULNewTx(now model.Slot, entry *SlotGrid, syms model.Interval, puschSlot model.Slot, u *UE, cell *UECell, demand int) {
	alloc, err := AllocateULGrant(entry, GrantRequest{
		Demand:    demand,
		MaxMCS:    s.sched.MaxULMCS,
		CRBLimits: s.cellCfg.InitULBWP.RBs,
		Symbols:   syms,
	})
	if err != nil {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return
	}
	harq := cell.HARQ.AllocULProcess(puschSlot, alloc.TBSBytes, alloc.MCS, s.sched.MaxHARQRetx)
	if harq == nil {
		s.metrics.OnAllocFailure(CauseHARQExhausted)
		return
	}
	u.ULChannels.OnULGrant(alloc.TBSBytes)
	s.commitUL(u, cell, harq.ID, alloc, syms, now, puschSlot, false)
}

func (s *UEScheduler) allocULRetx(now model.Slot, entry *SlotGrid, syms model.Interval, puschSlot model.Slot, u *UE, cell *UECell, p *ULHARQProcess) {
	nRB := model.MinRBsForPayload(p.MCS, p.TBSBytes, syms.Len())
	limits := s.cellCfg.InitULBWP.RBs
	if nRB == 0 || nRB > limits.Len() {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return
	}
	rbs, ok := entry.FindFreeRBs(DirUL, limits, syms, nRB)
	if !ok {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return
	}
	if err := entry.Reserve(DirUL, rbs, syms); err != nil {
		s.metrics.OnAllocFailure(CauseGridConflict)
		return
	}
	cell.HARQ.RetxUL(p, puschSlot)
	s.commitUL(u, cell, p.ID, GrantAlloc{RBs: rbs, MCS: p.MCS, TBSBytes: p.TBSBytes}, syms, now, puschSlot, true)
}

// commitUL records the UL grant's PDCCH in the current slot and the PUSCH in
// the target slot.
func (s *UEScheduler) commitUL(u *UE, cell *UECell, harqID model.HARQProcessID, alloc GrantAlloc, syms model.Interval, now, puschSlot model.Slot, isRetx bool) {
	ssID, dci := s.dedicatedSSID, DCIFormat0_1
	if cell.InFallback() {
		ssID, dci = s.fallback.commonSSID, DCIFormat0_0
	}
	cur := s.grid.At(now)
	cur.Result.DL.PDCCHs = append(cur.Result.DL.PDCCHs, PDCCHInfo{
		RNTI:          u.RNTI,
		SearchSpaceID: ssID,
		DCI:           dci,
	})
	entry := s.grid.At(puschSlot)
	entry.Result.UL.PUSCHs = append(entry.Result.UL.PUSCHs, PUSCHGrant{
		RNTI:     u.RNTI,
		UEIndex:  u.UEIndex,
		HARQID:   harqID,
		RBs:      alloc.RBs,
		Symbols:  syms,
		TBSBytes: alloc.TBSBytes,
		MCS:      alloc.MCS,
		IsRetx:   isRetx,
	})
	cell.SetLastPUSCHSlot(puschSlot)
	s.metrics.OnULGrant()
}
