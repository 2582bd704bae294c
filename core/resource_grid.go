package core

import (
	"fmt"

	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// Direction distinguishes downlink from uplink resources.
type Direction uint8

const (
	DirDL Direction = iota
	DirUL
)

func (d Direction) String() string {
	if d == DirDL {
		return "DL"
	}
	return "UL"
}

const (
	maxGridRBs     = 275
	maxGridSymbols = 14
	rbWords        = (maxGridRBs + 63) / 64
)

// rbSymbolBitmap tracks RB occupancy per OFDM symbol of one slot.
type rbSymbolBitmap struct {
	bits [maxGridSymbols][rbWords]uint64
}

func (b *rbSymbolBitmap) clear() {
	*b = rbSymbolBitmap{}
}

func (b *rbSymbolBitmap) anySet(rbs, syms model.Interval) bool {
	for sym := syms.Start; sym < syms.Stop; sym++ {
		for rb := rbs.Start; rb < rbs.Stop; rb++ {
			if b.bits[sym][rb/64]&(1<<uint(rb%64)) != 0 {
				return true
			}
		}
	}
	return false
}

func (b *rbSymbolBitmap) set(rbs, syms model.Interval) {
	for sym := syms.Start; sym < syms.Stop; sym++ {
		for rb := rbs.Start; rb < rbs.Stop; rb++ {
			b.bits[sym][rb/64] |= 1 << uint(rb%64)
		}
	}
}

// SlotGrid is the reservation state and scheduling result of one slot of one
// cell. Entries are recycled in place as the grid window rotates.
type SlotGrid struct {
	slot   model.Slot
	dl     rbSymbolBitmap
	ul     rbSymbolBitmap
	Result SlotResult
}

// Slot returns the slot this entry currently represents.
func (g *SlotGrid) Slot() model.Slot { return g.slot }

func (g *SlotGrid) bitmap(dir Direction) *rbSymbolBitmap {
	if dir == DirDL {
		return &g.dl
	}
	return &g.ul
}

// IsFree reports whether the RB x symbol region is unreserved.
func (g *SlotGrid) IsFree(dir Direction, rbs, syms model.Interval) bool {
	return !g.bitmap(dir).anySet(rbs, syms)
}

// Reserve marks the RB x symbol region as used, or returns ErrGridConflict
// if any requested resource block is already reserved in that symbol range.
// On conflict nothing is reserved.
func (g *SlotGrid) Reserve(dir Direction, rbs, syms model.Interval) error {
	if rbs.Stop > maxGridRBs || syms.Stop > maxGridSymbols || rbs.Start < 0 || syms.Start < 0 {
		return fmt.Errorf("reserve %s rbs=%s syms=%s slot=%s: out of grid bounds", dir, rbs, syms, g.slot)
	}
	bm := g.bitmap(dir)
	if bm.anySet(rbs, syms) {
		return fmt.Errorf("reserve %s rbs=%s syms=%s slot=%s: %w", dir, rbs, syms, g.slot, ErrGridConflict)
	}
	bm.set(rbs, syms)
	return nil
}

// FindFreeRBs scans the limit interval for the first contiguous run of nRB
// free resource blocks across the whole symbol range. It never returns a run
// spanning reserved blocks.
func (g *SlotGrid) FindFreeRBs(dir Direction, limits, syms model.Interval, nRB int) (model.Interval, bool) {
	if nRB <= 0 || limits.Len() < nRB {
		return model.Interval{}, false
	}
	bm := g.bitmap(dir)
	run := 0
	for rb := limits.Start; rb < limits.Stop; rb++ {
		free := true
		for sym := syms.Start; sym < syms.Stop; sym++ {
			if bm.bits[sym][rb/64]&(1<<uint(rb%64)) != 0 {
				free = false
				break
			}
		}
		if !free {
			run = 0
			continue
		}
		run++
		if run == nRB {
			return model.Interval{Start: rb + 1 - nRB, Stop: rb + 1}, true
		}
	}
	return model.Interval{}, false
}

func (g *SlotGrid) reset(s model.Slot) {
	g.slot = s
	g.dl.clear()
	g.ul.clear()
	g.Result.reset(s)
}

// CellResourceGrid is the rolling window of per-slot resource availability
// for one cell. It is owned by the cell's scheduling thread; no concurrent
// mutation is allowed.
type CellResourceGrid struct {
	cfg  *model.CellConfig
	log  logging.Logger
	last model.Slot
	ring [GridSize]SlotGrid
}

// NewCellResourceGrid builds an empty grid for the cell.
func NewCellResourceGrid(cfg *model.CellConfig, log logging.Logger) *CellResourceGrid {
	if log == nil {
		log = logging.Noop()
	}
	return &CellResourceGrid{cfg: cfg, log: log}
}

// CurrentSlot returns the slot of the latest indication.
func (g *CellResourceGrid) CurrentSlot() model.Slot { return g.last }

// SlotIndication advances the window to slot s. The first call initializes
// the full window [s, s+GridSize); every later call must advance by exactly
// one slot. A repeated or out-of-order indication corrupts the rolling window
// irrecoverably, so it panics rather than continuing with bad state.
func (g *CellResourceGrid) SlotIndication(s model.Slot) {
	if !s.Valid() {
		panic("resource grid: slot indication with invalid slot")
	}
	if !g.last.Valid() {
		for k := 0; k < GridSize; k++ {
			g.ring[int(s.Add(k).Count())%GridSize].reset(s.Add(k))
		}
		g.last = s
		return
	}
	if d := s.Sub(g.last); d != 1 {
		panic(fmt.Sprintf("resource grid: out-of-order slot indication %s after %s (delta %d)", s, g.last, d))
	}
	g.last = s
	// The entry that held slot s-1 is recycled for the new far edge of the
	// window, keeping all forward reservations in [s, s+GridSize-1) intact.
	edge := s.Add(GridSize - 1)
	g.ring[int(edge.Count())%GridSize].reset(edge)
}

// Entry returns the grid entry offset slots ahead of the current slot.
// Offsets outside [0, GridSize) are a programming error.
func (g *CellResourceGrid) Entry(offset int) *SlotGrid {
	if offset < 0 || offset >= GridSize {
		panic(fmt.Sprintf("resource grid: entry offset %d outside window [0, %d)", offset, GridSize))
	}
	return &g.ring[int(g.last.Add(offset).Count())%GridSize]
}

// At returns the entry for an absolute slot inside the current window.
func (g *CellResourceGrid) At(s model.Slot) *SlotGrid {
	return g.Entry(s.Sub(g.last))
}
