package model

import "testing"

func tddCell() *CellConfig {
	return &CellConfig{
		CellIndex:    0,
		SCS:          1,
		CRBs:         Interval{Start: 0, Stop: 106},
		InitDLBWP:    BWPConfig{SCS: 1, RBs: Interval{Start: 0, Stop: 106}},
		InitULBWP:    BWPConfig{SCS: 1, RBs: Interval{Start: 0, Stop: 106}},
		Coreset0:     &CORESETConfig{ID: 0, RBs: Interval{Start: 0, Stop: 36}, DurationSymbols: 2},
		SearchSpaces: []SearchSpaceConfig{{ID: 0, CORESETID: 0, Common: true}},
		PDSCHSymbols: Interval{Start: 2, Stop: 14},
		PUSCHSymbols: Interval{Start: 0, Stop: 14},
		K0:           []uint{0},
		K1Candidates: []uint{4, 5, 6, 7, 8},
		K2:           4,
		Duplex:       DuplexTDD,
		TDD:          &TDDPattern{PeriodSlots: 10, DLSlots: 6, DLSymbols: 8, ULSlots: 3},
	}
}

func TestTDDSlotFormatOracle(t *testing.T) {
	cfg := tddCell()
	for idx := uint(0); idx < 10; idx++ {
		s := NewSlotFromCount(cfg.SCS, idx)
		wantDL := idx <= 6 // slots 0..5 full DL, slot 6 partial DL
		wantFullDL := idx < 6
		wantUL := idx >= 7
		if got := cfg.IsDLEnabled(s); got != wantDL {
			t.Fatalf("slot %d: IsDLEnabled=%v, want %v", idx, got, wantDL)
		}
		if got := cfg.IsFullyDLEnabled(s); got != wantFullDL {
			t.Fatalf("slot %d: IsFullyDLEnabled=%v, want %v", idx, got, wantFullDL)
		}
		if got := cfg.IsULEnabled(s); got != wantUL {
			t.Fatalf("slot %d: IsULEnabled=%v, want %v", idx, got, wantUL)
		}
	}
}

func TestTDDPartialSlotSymbols(t *testing.T) {
	cfg := tddCell()
	partial := NewSlotFromCount(cfg.SCS, 6)
	syms := cfg.DLSymbolsInSlot(partial)
	if syms.Start != 2 || syms.Stop != 8 {
		t.Fatalf("expected partial slot PDSCH symbols [2..8), got %s", syms)
	}
	full := NewSlotFromCount(cfg.SCS, 3)
	if got := cfg.DLSymbolsInSlot(full); got != cfg.PDSCHSymbols {
		t.Fatalf("expected full slot PDSCH symbols %s, got %s", cfg.PDSCHSymbols, got)
	}
	ul := NewSlotFromCount(cfg.SCS, 8)
	if got := cfg.DLSymbolsInSlot(ul); !got.Empty() {
		t.Fatalf("expected no DL symbols in UL slot, got %s", got)
	}
}

func TestFDDOracleAlwaysOn(t *testing.T) {
	cfg := tddCell()
	cfg.Duplex = DuplexFDD
	cfg.TDD = nil
	for idx := uint(0); idx < 20; idx++ {
		s := NewSlotFromCount(cfg.SCS, idx)
		if !cfg.IsDLEnabled(s) || !cfg.IsULEnabled(s) || !cfg.IsFullyDLEnabled(s) {
			t.Fatalf("FDD slot %d must be DL and UL capable", idx)
		}
	}
}

func TestCSIRSSlots(t *testing.T) {
	cfg := tddCell()
	cfg.CSIRSPeriodSlots = 20
	cfg.CSIRSOffsetSlots = 4
	if !cfg.IsCSIRSSlot(NewSlotFromCount(cfg.SCS, 24)) {
		t.Fatalf("slot 24 should carry CSI-RS with period 20 offset 4")
	}
	if cfg.IsCSIRSSlot(NewSlotFromCount(cfg.SCS, 25)) {
		t.Fatalf("slot 25 should not carry CSI-RS")
	}
}

func TestCellConfigValidate(t *testing.T) {
	cfg := tddCell()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := tddCell()
	bad.SearchSpaces = []SearchSpaceConfig{{ID: 1, CORESETID: 0, Common: false}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("config without common search space must be rejected")
	}

	bad = tddCell()
	bad.TDD = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("TDD mode without pattern must be rejected")
	}
}
