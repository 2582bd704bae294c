package core

import (
	"context"

	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// Redundancy versions by transmission number, first transmission at index 0.
var rvSequence = [4]uint8{0, 2, 3, 1}

// FallbackScheduler serves UEs that have no dedicated configuration yet:
// Msg4 with the contention-resolution CE and SRB0 (or SRB1) data, signalled
// through the common search space with the compact DCI format. UEs are served
// in the order their data arrived.
//
// The scheduler may place the PDCCH+PDSCH in a slot ahead of the current one
// when the current slot cannot carry them (uplink slot, CSI-RS, grid full).
// The lookahead is bounded so that the ACK slot always falls inside the
// resource-grid window.
type FallbackScheduler struct {
	cellCfg *model.CellConfig
	sched   SchedulerConfig
	grid    *CellResourceGrid
	ues     *UERepository
	metrics MetricsNotifier
	log     logging.Logger

	commonSSID uint8
	maxK1      uint

	queue  []model.UEIndex
	queued [model.MaxNofUEs]bool
}

// NewFallbackScheduler wires the scheduler to one cell's grid and UE set.
func NewFallbackScheduler(cfg *model.CellConfig, sched SchedulerConfig, grid *CellResourceGrid, ues *UERepository, metrics MetricsNotifier, log logging.Logger) *FallbackScheduler {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	s := &FallbackScheduler{
		cellCfg: cfg,
		sched:   sched,
		grid:    grid,
		ues:     ues,
		metrics: metrics,
		log:     logging.WithComponent(log, "fallback-sched"),
	}
	for _, ss := range cfg.SearchSpaces {
		if ss.Common {
			s.commonSSID = ss.ID
			break
		}
	}
	for _, k1 := range cfg.K1Candidates {
		s.maxK1 = max(s.maxK1, k1)
	}
	return s
}

// HandleDLBufferStateIndication enqueues a fallback UE with new pending data.
func (s *FallbackScheduler) HandleDLBufferStateIndication(idx model.UEIndex) {
	if int(idx) >= model.MaxNofUEs || s.queued[idx] {
		return
	}
	s.queued[idx] = true
	s.queue = append(s.queue, idx)
}

// QueueLen returns the number of UEs awaiting a fallback allocation.
func (s *FallbackScheduler) QueueLen() int { return len(s.queue) }

// RunSlot serves pending fallback retransmissions, then the new-data queue in
// arrival order. A UE blocked by grid saturation stays at the head and blocks
// the UEs behind it, preserving delivery order. A UE whose demand can never
// fit the eligible interval at the Msg4 MCS ceiling is skipped instead: no
// amount of waiting frees enough capacity, so it must not starve the queue.
func (s *FallbackScheduler) RunSlot(now model.Slot) {
	s.ues.ForEach(func(u *UE) {
		for {
			p := u.PCell().HARQ.FindPendingRetxDLOfKind(true)
			if p == nil || !s.allocateRetx(now, u, p) {
				return
			}
		}
	})

	for i := 0; i < len(s.queue); {
		u := s.ues.Find(s.queue[i])
		if u == nil || !u.InFallback() || u.PendingFallbackBytes() == 0 {
			s.removeAt(i)
			continue
		}
		if !s.demandCanFit(u) {
			s.metrics.OnAllocFailure(CauseInsufficientCapacity)
			i++
			continue
		}
		if !s.allocateNewTx(now, u) {
			return
		}
		s.removeAt(i)
	}
}

func (s *FallbackScheduler) removeAt(i int) {
	s.queued[s.queue[i]] = false
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
}

// demandCanFit reports whether the UE's fallback demand fits the eligible CRB
// interval at any MCS up to the Msg4 ceiling, assuming an empty grid over the
// full PDSCH symbol range. Failing this test is structural, independent of
// grid occupancy.
func (s *FallbackScheduler) demandCanFit(u *UE) bool {
	demand := u.PendingFallbackBytes()
	limits := FallbackCRBLimits(s.cellCfg, u.PCell().ActiveDLBWP())
	nSym := s.cellCfg.PDSCHSymbols.Len()
	for mcs := model.MCSIndex(0); mcs <= s.sched.MaxMsg4MCS && mcs <= model.MaxMCSIndex; mcs++ {
		nRB := model.MinRBsForPayload(mcs, demand, nSym)
		if nRB > 0 && nRB <= limits.Len() {
			return true
		}
	}
	return false
}

// maxAheadSlots keeps pdschSlot + k1 within the grid window.
func (s *FallbackScheduler) maxAheadSlots() int {
	return GridSize - 1 - int(s.maxK1)
}

// findTxSlot walks the lookahead window for the first slot that can carry the
// PDSCH and has an uplink-capable ACK slot with a free PUCCH resource. The
// check function performs the grid allocation for a candidate slot.
func (s *FallbackScheduler) findTxSlot(now model.Slot, cell *UECell, alloc func(entry *SlotGrid, syms model.Interval) bool) (pdsch, ack model.Slot, k1 uint, pucchRBs model.Interval, ok bool) {
	cfg := s.cellCfg
	for delta := 0; delta <= s.maxAheadSlots(); delta++ {
		slot := now.Add(delta)
		syms := cfg.DLSymbolsInSlot(slot)
		if syms.Empty() || cfg.IsCSIRSSlot(slot) {
			continue
		}
		if last := cell.LastPDSCHSlot(); last.Valid() && slot.Sub(last) <= 0 {
			continue
		}
		ackSlot, chosenK1, rbs, found := s.findAckSlot(slot)
		if !found {
			continue
		}
		if !alloc(s.grid.At(slot), syms) {
			continue
		}
		return slot, ackSlot, chosenK1, rbs, true
	}
	return model.Slot{}, model.Slot{}, 0, model.Interval{}, false
}

// findAckSlot picks the first k1 candidate landing on an uplink-capable slot
// with a free PUCCH resource block.
func (s *FallbackScheduler) findAckSlot(pdschSlot model.Slot) (model.Slot, uint, model.Interval, bool) {
	cfg := s.cellCfg
	for _, k1 := range cfg.K1Candidates {
		ackSlot := pdschSlot.Add(int(k1))
		if !cfg.IsULEnabled(ackSlot) {
			continue
		}
		rbs, ok := s.grid.At(ackSlot).FindFreeRBs(DirUL, cfg.InitULBWP.RBs, cfg.PUSCHSymbols, 1)
		if !ok {
			continue
		}
		return ackSlot, k1, rbs, true
	}
	return model.Slot{}, 0, model.Interval{}, false
}

func (s *FallbackScheduler) allocateNewTx(now model.Slot, u *UE) bool {
	cell := u.PCell()
	if cell.HARQ.NofFreeDLProcesses() == 0 {
		s.metrics.OnAllocFailure(CauseHARQExhausted)
		return false
	}
	demand := u.PendingFallbackBytes()
	limits := FallbackCRBLimits(s.cellCfg, cell.ActiveDLBWP())

	var alloc GrantAlloc
	var allocSyms model.Interval
	pdschSlot, ackSlot, k1, pucchRBs, ok := s.findTxSlot(now, cell, func(entry *SlotGrid, syms model.Interval) bool {
		a, err := AllocateDLGrant(entry, GrantRequest{
			Demand:    demand,
			MaxMCS:    s.sched.MaxMsg4MCS,
			CRBLimits: limits,
			Symbols:   syms,
		})
		if err != nil {
			return false
		}
		alloc, allocSyms = a, syms
		return true
	})
	if !ok {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		s.log.Debug(context.Background(), "fallback demand not schedulable in window",
			logging.Uint("ue", uint(u.UEIndex)),
			logging.Int("demand_bytes", demand),
			logging.String("slot", now.String()))
		return false
	}

	harq := cell.HARQ.AllocDLProcess(pdschSlot, ackSlot, alloc.TBSBytes, alloc.MCS, s.sched.MaxHARQRetx, true)

	var tb DLTBInfo
	u.BuildDLFallbackTransportBlock(&tb, alloc.TBSBytes)

	s.commit(u, cell, harq.ID, alloc, allocSyms, tb, false, pdschSlot, ackSlot, k1, pucchRBs, rvSequence[0])
	s.metrics.OnDLGrant(GrantFallback)
	return true
}

func (s *FallbackScheduler) allocateRetx(now model.Slot, u *UE, p *DLHARQProcess) bool {
	cell := u.PCell()
	limits := FallbackCRBLimits(s.cellCfg, cell.ActiveDLBWP())

	var alloc GrantAlloc
	var allocSyms model.Interval
	pdschSlot, ackSlot, k1, pucchRBs, ok := s.findTxSlot(now, cell, func(entry *SlotGrid, syms model.Interval) bool {
		a, err := AllocateDLRetx(entry, p.MCS, p.TBSBytes, limits, syms)
		if err != nil {
			return false
		}
		alloc, allocSyms = a, syms
		return true
	})
	if !ok {
		s.metrics.OnAllocFailure(CauseInsufficientCapacity)
		return false
	}

	cell.HARQ.RetxDL(p, pdschSlot, ackSlot)
	s.commit(u, cell, p.ID, alloc, allocSyms, DLTBInfo{}, true, pdschSlot, ackSlot, k1, pucchRBs, rvSequence[p.RetxCount%len(rvSequence)])
	s.metrics.OnDLGrant(GrantRetx)
	return true
}

// commit writes the PDCCH+PDSCH into the transmission slot's result, reserves
// and records the PUCCH in the ACK slot, and advances the ordering marker.
func (s *FallbackScheduler) commit(u *UE, cell *UECell, harqID model.HARQProcessID, alloc GrantAlloc, syms model.Interval, tb DLTBInfo, isRetx bool, pdschSlot, ackSlot model.Slot, k1 uint, pucchRBs model.Interval, rv uint8) {
	entry := s.grid.At(pdschSlot)
	entry.Result.DL.PDCCHs = append(entry.Result.DL.PDCCHs, PDCCHInfo{
		RNTI:          u.RNTI,
		SearchSpaceID: s.commonSSID,
		DCI:           DCIFormat1_0,
	})
	entry.Result.DL.UEGrants = append(entry.Result.DL.UEGrants, PDSCHGrant{
		RNTI:       u.RNTI,
		UEIndex:    u.UEIndex,
		HARQID:     harqID,
		RBs:        alloc.RBs,
		Symbols:    syms,
		Codewords:  []CodewordInfo{{TBSBytes: alloc.TBSBytes, MCS: alloc.MCS, RV: rv}},
		TB:         tb,
		IsFallback: true,
		IsRetx:     isRetx,
	})

	ackEntry := s.grid.At(ackSlot)
	if err := ackEntry.Reserve(DirUL, pucchRBs, s.cellCfg.PUSCHSymbols); err != nil {
		// The PUCCH RBs were found free moments ago in this same pass.
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
