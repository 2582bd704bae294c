package core

import (
	"context"
	"testing"

	"github.com/signalsfoundry/ran-scheduler/model"
)

func TestDedicatedDLGrantAfterReconfiguration(t *testing.T) {
	cell := testCellFDD()
	sched, metrics := newTestScheduler(t, cell, DefaultSchedulerConfig())
	addFallbackUE(t, sched, 1, 0x4601)
	reconfigureDedicated(t, sched, cell, 1, 0x4601)

	sched.HandleDLBufferStateIndication(1, model.LCIDMinDRB, 1000)

	slot := model.NewSlot(0, 0, 0)
	res := sched.RunSlot(slot)
	if len(res.DL.UEGrants) != 1 {
		t.Fatalf("dl grants = %d, want 1", len(res.DL.UEGrants))
	}
	grant := res.DL.UEGrants[0]
	if grant.IsFallback {
		t.Fatalf("dedicated grant flagged as fallback")
	}
	if grant.RBs.Stop > 106 {
		t.Fatalf("grant %s outside the active bwp", grant.RBs)
	}
	var pdcch *PDCCHInfo
	for i := range res.DL.PDCCHs {
		if res.DL.PDCCHs[i].RNTI == 0x4601 {
			pdcch = &res.DL.PDCCHs[i]
		}
	}
	if pdcch == nil || pdcch.DCI != DCIFormat1_1 || pdcch.SearchSpaceID != 2 {
		t.Fatalf("expected a dedicated-search-space 1_1 pdcch, got %+v", pdcch)
	}
	if metrics.dl[GrantNewTx] != 1 {
		t.Fatalf("newtx grants = %d, want 1", metrics.dl[GrantNewTx])
	}

	var drbBytes int
	for _, p := range grant.TB.SubPDUs {
		if !p.IsCE && p.LCID == model.LCIDMinDRB {
			drbBytes += p.Bytes
		}
	}
	if drbBytes != 1000+sduSubheaderLong {
		t.Fatalf("drb subpdu bytes = %d, want %d", drbBytes, 1000+sduSubheaderLong)
	}
}

func TestULGrantLandsK2SlotsAhead(t *testing.T) {
	cell := testCellFDD()
	sched, metrics := newTestScheduler(t, cell, DefaultSchedulerConfig())
	addFallbackUE(t, sched, 1, 0x4601)
	reconfigureDedicated(t, sched, cell, 1, 0x4601)
	sched.HandleULBSR(1, 1, 800)

	slot := model.NewSlot(0, 0, 0)
	res := sched.RunSlot(slot)
	if len(res.UL.PUSCHs) != 0 {
		t.Fatalf("pusch in the pdcch slot itself")
	}
	var sawULPDCCH bool
	for _, p := range res.DL.PDCCHs {
		if p.DCI == DCIFormat0_1 {
			sawULPDCCH = true
		}
	}
	if !sawULPDCCH {
		t.Fatalf("ul grant pdcch missing from the scheduling slot")
	}

	var pusch *PUSCHGrant
	runSlotsTo := int(cell.K2)
	s := slot.Add(1)
	runSlots(sched, &s, runSlotsTo, func(cur model.Slot, r *SlotResult) {
		if !cur.Equal(slot.Add(int(cell.K2))) {
			if len(r.UL.PUSCHs) != 0 {
				t.Fatalf("pusch at %s, expected only at k2 offset", cur)
			}
			return
		}
		for i := range r.UL.PUSCHs {
			if r.UL.PUSCHs[i].RNTI == 0x4601 {
				pusch = &r.UL.PUSCHs[i]
			}
		}
	})
	if pusch == nil {
		t.Fatalf("pusch missing at k2 offset")
	}
	if pusch.TBSBytes < 800 {
		t.Fatalf("pusch tbs = %d, want >= 800", pusch.TBSBytes)
	}
	if metrics.ul != 1 {
		t.Fatalf("ul grants = %d, want 1", metrics.ul)
	}
	if sched.UEs().Find(1).PendingULNewTxBytes() != 0 {
		t.Fatalf("bsr not drained by the grant")
	}
}

func TestSRTriggersFixedSizeGrant(t *testing.T) {
	cell := testCellFDD()
	sched, metrics := newTestScheduler(t, cell, DefaultSchedulerConfig())
	addFallbackUE(t, sched, 1, 0x4601)
	reconfigureDedicated(t, sched, cell, 1, 0x4601)
	sched.HandleSRIndication(1)

	slot := model.NewSlot(0, 0, 0)
	var pusch *PUSCHGrant
	runSlots(sched, &slot, int(cell.K2)+1, func(cur model.Slot, r *SlotResult) {
		for i := range r.UL.PUSCHs {
			pusch = &r.UL.PUSCHs[i]
		}
	})
	if pusch == nil {
		t.Fatalf("sr not answered with a grant")
	}
	if pusch.TBSBytes < SRGrantBytes {
		t.Fatalf("sr grant tbs = %d, want >= %d", pusch.TBSBytes, SRGrantBytes)
	}
	if metrics.ul != 1 {
		t.Fatalf("ul grants = %d, want exactly 1 (sr cleared by the grant)", metrics.ul)
	}
}

func TestStaleAckIsIgnored(t *testing.T) {
	cell := testCellFDD()
	sched, _ := newTestScheduler(t, cell, DefaultSchedulerConfig())
	addFallbackUE(t, sched, 1, 0x4601)

	// No transmission happened: the report refers to an empty process.
	sched.HandleACKInfo(1, cell.CellIndex, 5, true)
	sched.HandleCRCInfo(1, cell.CellIndex, 5, true)
	// Unknown UE and unknown cell are equally harmless.
	sched.HandleACKInfo(42, cell.CellIndex, 0, true)
	sched.HandleACKInfo(1, 3, 0, true)

	u := sched.UEs().Find(1)
	if u.PCell().HARQ.NofFreeDLProcesses() != NofHARQProcesses {
		t.Fatalf("stale report changed harq state")
	}
}

func TestDRXGatesNewTransmissions(t *testing.T) {
	cell := testCellFDD()
	sched, _ := newTestScheduler(t, cell, DefaultSchedulerConfig())

	err := sched.HandleUECreation(context.Background(), UECreationCommand{
		Config: model.UEConfig{
			UEIndex: 1,
			RNTI:    0x4601,
			Cells:   []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
			LogicalChannels: []model.LogicalChannelConfig{
				{LCID: model.LCIDSRB1, LCG: 0},
				{LCID: model.LCIDMinDRB, LCG: 1},
			},
			DRX: &model.DRXConfig{OnDurationSlots: 2, CycleSlots: 8, InactivityTimerSlots: 4},
		},
	})
	if err != nil {
		t.Fatalf("creation: %v", err)
	}

	// Data arrives outside the on-duration window: the UE is asleep until the
	// next cycle starts at slot 8.
	slot := model.NewSlot(0, 0, 0)
	runSlots(sched, &slot, 2, nil)
	sched.HandleDLBufferStateIndication(1, model.LCIDMinDRB, 200)

	var grantSlot model.Slot
	runSlots(sched, &slot, 10, func(s model.Slot, res *SlotResult) {
		if len(res.DL.UEGrants) > 0 && !grantSlot.Valid() {
			grantSlot = s
		}
	})
	if want := model.NewSlot(0, 0, 8); !grantSlot.Equal(want) {
		t.Fatalf("grant slot = %s, want on-duration start %s", grantSlot, want)
	}
}

func TestHARQTimeoutForceReleasesProcess(t *testing.T) {
	cell := testCellFDD()
	cfg := DefaultSchedulerConfig()
	cfg.HARQTimeoutSlots = 32
	sched, metrics := newTestScheduler(t, cell, cfg)
	addFallbackUE(t, sched, 1, 0x4601)
	reconfigureDedicated(t, sched, cell, 1, 0x4601)
	sched.HandleDLBufferStateIndication(1, model.LCIDSRB1, 100)

	// Never acknowledge anything and let the deadline sweep reclaim the
	// process.
	slot := model.NewSlot(0, 0, 0)
	runSlots(sched, &slot, 64, nil)

	if metrics.timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", metrics.timeouts)
	}
	u := sched.UEs().Find(1)
	if u.PCell().HARQ.NofFreeDLProcesses() != NofHARQProcesses {
		t.Fatalf("timed-out process not reclaimed")
	}
}

func TestRemovalDropsQueuedFallbackUE(t *testing.T) {
	cell := testCellFDD()
	sched, metrics := newTestScheduler(t, cell, DefaultSchedulerConfig())
	addFallbackUE(t, sched, 1, 0x4601)
	sched.HandleDLBufferStateIndication(1, model.LCIDSRB0, 101)

	if err := sched.HandleUERemoval(context.Background(), 1); err != nil {
		t.Fatalf("removal: %v", err)
	}

	slot := model.NewSlot(0, 0, 0)
	res := sched.RunSlot(slot)
	if len(res.DL.UEGrants) != 0 {
		t.Fatalf("grant for a removed ue")
	}
	if metrics.lastStats.FallbackQueueLen != 0 {
		t.Fatalf("removed ue still queued")
	}
	if metrics.lastStats.ActiveUEs != 0 {
		t.Fatalf("active ues = %d, want 0", metrics.lastStats.ActiveUEs)
	}
}

func TestSchedulerRejectsInvalidCell(t *testing.T) {
	cell := testCellFDD()
	cell.SearchSpaces = nil
	if _, err := NewUEScheduler(cell, DefaultSchedulerConfig(), nil, nil); err == nil {
		t.Fatalf("cell without a common search space must be rejected")
	}
}

func TestTACommandAloneTriggersDLGrant(t *testing.T) {
	cell := testCellFDD()
	sched, metrics := newTestScheduler(t, cell, DefaultSchedulerConfig())

	err := sched.HandleUECreation(context.Background(), UECreationCommand{
		Config: model.UEConfig{
			UEIndex:         1,
			RNTI:            0x4601,
			Cells:           []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
			LogicalChannels: []model.LogicalChannelConfig{{LCID: model.LCIDSRB1, LCG: 0}},
			TA:              &model.TAConfig{MeasurementWindowSlots: 4, CommandOffsetThreshold: 1.0, ProhibitSlots: 16},
		},
	})
	if err != nil {
		t.Fatalf("creation: %v", err)
	}
	sched.HandleULTimingMeasurement(1, 2.5)

	// No SDU data anywhere: the queued command must be enough on its own.
	var tb DLTBInfo
	var haveTB bool
	slot := model.NewSlot(0, 0, 0)
	runSlots(sched, &slot, 10, func(_ model.Slot, res *SlotResult) {
		for i := range res.DL.UEGrants {
			for _, p := range res.DL.UEGrants[i].TB.SubPDUs {
				if p.IsCE && p.CE == CETimingAdvanceCommand && !haveTB {
					tb = res.DL.UEGrants[i].TB
					haveTB = true
				}
			}
		}
	})
	if !haveTB {
		t.Fatalf("ta command never delivered without other dl data")
	}
	for _, p := range tb.SubPDUs {
		if !p.IsCE {
			t.Fatalf("grant carried an sdu, only the ce was pending")
		}
	}
	if metrics.dl[GrantNewTx] != 1 {
		t.Fatalf("newtx grants = %d, want exactly 1", metrics.dl[GrantNewTx])
	}
}
