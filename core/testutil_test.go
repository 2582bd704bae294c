package core

import (
	"context"
	"testing"

	"github.com/signalsfoundry/ran-scheduler/model"
)

// testCellFDD returns the 106-PRB FDD carrier used across the package tests:
// CORESET#0 on PRBs [0,36) with 2 symbols, PDSCH on symbols [2,14).
func testCellFDD() *model.CellConfig {
	return &model.CellConfig{
		CellIndex: 0,
		SCS:       0,
		CRBs:      model.Interval{Start: 0, Stop: 106},
		InitDLBWP: model.BWPConfig{SCS: 0, RBs: model.Interval{Start: 0, Stop: 106}},
		InitULBWP: model.BWPConfig{SCS: 0, RBs: model.Interval{Start: 0, Stop: 106}},
		Coreset0:  &model.CORESETConfig{ID: 0, RBs: model.Interval{Start: 0, Stop: 36}, DurationSymbols: 2},
		SearchSpaces: []model.SearchSpaceConfig{
			{ID: 1, CORESETID: 0, Common: true},
			{ID: 2, CORESETID: 0, Common: false},
		},
		PDSCHSymbols: model.Interval{Start: 2, Stop: 14},
		PUSCHSymbols: model.Interval{Start: 0, Stop: 14},
		K0:           []uint{0},
		K1Candidates: []uint{4, 5, 6, 7, 8},
		K2:           4,
		Duplex:       model.DuplexFDD,
	}
}

// testCellTDD applies the DDDDDD|S|UUU pattern: six full DL slots, a partial
// slot with 8 DL symbols, and three full UL slots per 10-slot period.
func testCellTDD() *model.CellConfig {
	cfg := testCellFDD()
	cfg.Duplex = model.DuplexTDD
	cfg.TDD = &model.TDDPattern{PeriodSlots: 10, DLSlots: 6, DLSymbols: 8, ULSlots: 3}
	return cfg
}

// recordingMetrics counts scheduler events for assertions.
type recordingMetrics struct {
	dl        map[GrantKind]int
	ul        int
	fails     map[AllocFailureCause]int
	timeouts  int
	failures  int
	lastStats SlotStats
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dl: map[GrantKind]int{}, fails: map[AllocFailureCause]int{}}
}

func (m *recordingMetrics) OnDLGrant(kind GrantKind) { m.dl[kind]++ }
func (m *recordingMetrics) OnULGrant()               { m.ul++ }
func (m *recordingMetrics) OnAllocFailure(cause AllocFailureCause) {
	m.fails[cause]++
}
func (m *recordingMetrics) OnHARQTimeout(model.UEIndex) { m.timeouts++ }
func (m *recordingMetrics) OnHARQFailure(model.UEIndex) { m.failures++ }
func (m *recordingMetrics) OnSlotComplete(stats SlotStats) {
	m.lastStats = stats
}

func newTestScheduler(t *testing.T, cell *model.CellConfig, sched SchedulerConfig) (*UEScheduler, *recordingMetrics) {
	t.Helper()
	metrics := newRecordingMetrics()
	s, err := NewUEScheduler(cell, sched, metrics, nil)
	if err != nil {
		t.Fatalf("NewUEScheduler: %v", err)
	}
	return s, metrics
}

// addFallbackUE attaches a UE in fallback with SRB1 configured.
func addFallbackUE(t *testing.T, s *UEScheduler, idx model.UEIndex, rnti model.RNTI) {
	t.Helper()
	cell := s.cellCfg
	err := s.HandleUECreation(context.Background(), UECreationCommand{
		Config: model.UEConfig{
			UEIndex:         idx,
			RNTI:            rnti,
			Cells:           []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
			LogicalChannels: []model.LogicalChannelConfig{{LCID: model.LCIDSRB1, LCG: 0}},
		},
		StartsInFallback: true,
	})
	if err != nil {
		t.Fatalf("HandleUECreation(%d): %v", idx, err)
	}
}

// reconfigureDedicated moves a UE out of fallback with SRB1 plus one DRB.
func reconfigureDedicated(t *testing.T, s *UEScheduler, cell *model.CellConfig, idx model.UEIndex, rnti model.RNTI) {
	t.Helper()
	err := s.HandleUEReconfiguration(context.Background(), model.UEConfig{
		UEIndex: idx,
		RNTI:    rnti,
		Cells:   []model.UECellConfig{{CellIndex: cell.CellIndex, Cell: cell}},
		LogicalChannels: []model.LogicalChannelConfig{
			{LCID: model.LCIDSRB1, LCG: 0},
			{LCID: model.LCIDMinDRB, LCG: 1},
		},
	})
	if err != nil {
		t.Fatalf("HandleUEReconfiguration(%d): %v", idx, err)
	}
}

// runSlots advances the scheduler n slots from *slot, invoking visit on each
// slot's result, and leaves *slot at the next unindicated slot.
func runSlots(s *UEScheduler, slot *model.Slot, n int, visit func(model.Slot, *SlotResult)) {
	for i := 0; i < n; i++ {
		res := s.RunSlot(*slot)
		if visit != nil {
			visit(*slot, res)
		}
		*slot = slot.Add(1)
	}
}
