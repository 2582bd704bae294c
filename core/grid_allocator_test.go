package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/ran-scheduler/model"
)

func TestFallbackCRBLimitsClipsToCoreset0(t *testing.T) {
	cfg := testCellFDD()
	limits := FallbackCRBLimits(cfg, cfg.InitDLBWP)
	want := model.Interval{Start: 0, Stop: 36}
	if limits != want {
		t.Fatalf("limits = %s, want %s", limits, want)
	}
}

func TestFallbackCRBLimitsWithoutCoreset0(t *testing.T) {
	cfg := testCellFDD()
	cfg.CommonCoreset = &model.CORESETConfig{ID: 1, RBs: model.Interval{Start: 10, Stop: 30}, DurationSymbols: 2}
	cfg.SearchSpaces = []model.SearchSpaceConfig{{ID: 1, CORESETID: 1, Common: true}}
	cfg.Coreset0 = nil

	limits := FallbackCRBLimits(cfg, cfg.InitDLBWP)
	// Starts at the common CORESET, capped by the initial BWP width.
	want := model.Interval{Start: 10, Stop: 106}
	if limits != want {
		t.Fatalf("limits = %s, want %s", limits, want)
	}
}

func TestFallbackCRBLimitsDedicatedBWP(t *testing.T) {
	cfg := testCellFDD()
	active := model.BWPConfig{SCS: 0, RBs: model.Interval{Start: 0, Stop: 52}}
	limits := FallbackCRBLimits(cfg, active)
	if want := (model.Interval{Start: 0, Stop: 36}); limits != want {
		t.Fatalf("limits = %s, want %s", limits, want)
	}
}

func newTestGridEntry(t *testing.T) *SlotGrid {
	t.Helper()
	g := NewCellResourceGrid(testCellFDD(), nil)
	g.SlotIndication(model.NewSlot(0, 0, 0))
	return g.Entry(0)
}

func TestAllocateDLGrantPicksLowestFittingMCS(t *testing.T) {
	entry := newTestGridEntry(t)
	syms := model.Interval{Start: 2, Stop: 14}
	limits := model.Interval{Start: 0, Stop: 36}

	alloc, err := AllocateDLGrant(entry, GrantRequest{
		Demand: 110, MaxMCS: 2, CRBLimits: limits, Symbols: syms,
	})
	if err != nil {
		t.Fatalf("AllocateDLGrant: %v", err)
	}
	if alloc.MCS != 0 {
		t.Fatalf("mcs = %d, want 0 (lowest that fits)", alloc.MCS)
	}
	if alloc.TBSBytes < 110 {
		t.Fatalf("tbs = %d, want >= demand 110", alloc.TBSBytes)
	}
	if alloc.RBs.Len() != model.MinRBsForPayload(0, 110, syms.Len()) {
		t.Fatalf("rbs = %s, want minimal count %d", alloc.RBs, model.MinRBsForPayload(0, 110, syms.Len()))
	}
	if entry.IsFree(DirDL, alloc.RBs, syms) {
		t.Fatalf("grant not reserved on the grid")
	}
}

func TestAllocateDLGrantRaisesMCSUnderLoad(t *testing.T) {
	entry := newTestGridEntry(t)
	syms := model.Interval{Start: 2, Stop: 14}
	limits := model.Interval{Start: 0, Stop: 36}

	// Leave only 20 free RBs; 110 bytes need 24 RBs at MCS0 but fit in 20 at
	// a higher MCS.
	if err := entry.Reserve(DirDL, model.Interval{Start: 20, Stop: 36}, syms); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	alloc, err := AllocateDLGrant(entry, GrantRequest{
		Demand: 110, MaxMCS: 6, CRBLimits: limits, Symbols: syms,
	})
	if err != nil {
		t.Fatalf("AllocateDLGrant: %v", err)
	}
	if alloc.MCS == 0 {
		t.Fatalf("mcs stayed 0 although 24 RBs are unavailable")
	}
	if alloc.RBs.Len() > 20 {
		t.Fatalf("allocation %s exceeds the free region", alloc.RBs)
	}
}

func TestAllocateDLGrantInsufficientCapacity(t *testing.T) {
	entry := newTestGridEntry(t)
	syms := model.Interval{Start: 2, Stop: 14}
	limits := model.Interval{Start: 0, Stop: 36}

	// 360 bytes exceed the 36-RB capacity of every MCS up to 0.
	_, err := AllocateDLGrant(entry, GrantRequest{
		Demand: 360, MaxMCS: 0, CRBLimits: limits, Symbols: syms,
	})
	if !errors.Is(err, ErrInsufficientResources) {
		t.Fatalf("got %v, want ErrInsufficientResources", err)
	}
	// Nothing may be reserved after a failure.
	if !entry.IsFree(DirDL, limits, syms) {
		t.Fatalf("failed allocation left reservations behind")
	}
}

func TestAllocateDLRetxKeepsTBS(t *testing.T) {
	entry := newTestGridEntry(t)
	syms := model.Interval{Start: 2, Stop: 14}
	limits := model.Interval{Start: 0, Stop: 36}

	first, err := AllocateDLGrant(entry, GrantRequest{Demand: 110, MaxMCS: 2, CRBLimits: limits, Symbols: syms})
	if err != nil {
		t.Fatalf("newtx alloc: %v", err)
	}
	retx, err := AllocateDLRetx(entry, first.MCS, first.TBSBytes, limits, syms)
	if err != nil {
		t.Fatalf("retx alloc: %v", err)
	}
	if retx.TBSBytes != first.TBSBytes || retx.MCS != first.MCS {
		t.Fatalf("retx tbs/mcs = %d/%d, want %d/%d", retx.TBSBytes, retx.MCS, first.TBSBytes, first.MCS)
	}
	if retx.RBs.Overlaps(first.RBs) {
		t.Fatalf("retx %s overlaps the original reservation %s", retx.RBs, first.RBs)
	}
}

func TestAllocateULGrant(t *testing.T) {
	entry := newTestGridEntry(t)
	syms := model.Interval{Start: 0, Stop: 14}
	limits := model.Interval{Start: 0, Stop: 106}

	alloc, err := AllocateULGrant(entry, GrantRequest{Demand: 512, MaxMCS: 10, CRBLimits: limits, Symbols: syms})
	if err != nil {
		t.Fatalf("AllocateULGrant: %v", err)
	}
	if alloc.TBSBytes < 512 {
		t.Fatalf("ul tbs = %d, want >= 512", alloc.TBSBytes)
	}
	if entry.IsFree(DirUL, alloc.RBs, syms) {
		t.Fatalf("ul grant not reserved")
	}
	if !entry.IsFree(DirDL, alloc.RBs, syms) {
		t.Fatalf("ul grant leaked into the dl bitmap")
	}
}
