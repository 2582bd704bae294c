package core

import (
	"fmt"

	"github.com/signalsfoundry/ran-scheduler/model"
)

// FallbackCRBLimits returns the CRB range addressable by a fallback DL grant.
// Fallback grants are signalled through the common search space with the
// compact DCI format, whose frequency allocation field starts at the CORESET
// lowest RB and cannot address more RBs than CORESET#0 spans (or the initial
// DL BWP when CORESET#0 is absent).
func FallbackCRBLimits(cfg *model.CellConfig, activeBWP model.BWPConfig) model.Interval {
	coreset := cfg.Coreset0
	if coreset == nil {
		coreset = cfg.CommonCoreset
	}
	if coreset == nil {
		return activeBWP.RBs
	}
	crbs := model.Interval{Start: coreset.RBs.Start, Stop: activeBWP.RBs.Stop}
	limit := cfg.InitDLBWP.RBs.Len()
	if cfg.Coreset0 != nil {
		limit = cfg.Coreset0.RBs.Len()
	}
	return crbs.Resize(min(crbs.Len(), limit))
}

// GrantRequest describes one data-grant allocation attempt. The same shape
// serves both link directions.
type GrantRequest struct {
	// Demand is the transport-block payload in bytes, subheaders included.
	Demand int
	// MaxMCS caps the selectable MCS.
	MaxMCS model.MCSIndex
	// CRBLimits bounds the frequency search.
	CRBLimits model.Interval
	// Symbols is the OFDM symbol range of the allocation.
	Symbols model.Interval
}

// GrantAlloc is a successful allocation.
type GrantAlloc struct {
	RBs      model.Interval
	MCS      model.MCSIndex
	TBSBytes int
}

// AllocateDLGrant reserves PDSCH resources for the request in the given slot.
// It picks the lowest MCS not above the cap whose minimal RB count fits a
// free contiguous run within the limits, keeping grants as robust as the
// demand allows. On failure nothing is reserved.
func AllocateDLGrant(grid *SlotGrid, req GrantRequest) (GrantAlloc, error) {
	if req.Demand <= 0 || req.Symbols.Empty() || req.CRBLimits.Empty() {
		return GrantAlloc{}, fmt.Errorf("dl grant demand=%d: %w", req.Demand, ErrInsufficientResources)
	}
	for mcs := model.MCSIndex(0); mcs <= req.MaxMCS && mcs <= model.MaxMCSIndex; mcs++ {
		nRB := model.MinRBsForPayload(mcs, req.Demand, req.Symbols.Len())
		if nRB == 0 || nRB > req.CRBLimits.Len() {
			continue
		}
		rbs, ok := grid.FindFreeRBs(DirDL, req.CRBLimits, req.Symbols, nRB)
		if !ok {
			continue
		}
		if err := grid.Reserve(DirDL, rbs, req.Symbols); err != nil {
			return GrantAlloc{}, err
		}
		return GrantAlloc{RBs: rbs, MCS: mcs, TBSBytes: model.TBSBytes(mcs, nRB, req.Symbols.Len())}, nil
	}
	return GrantAlloc{}, fmt.Errorf("dl grant demand=%d max_mcs=%d: %w", req.Demand, req.MaxMCS, ErrInsufficientResources)
}

// AllocateDLRetx reserves PDSCH resources for a retransmission, which must
// reuse the original transport block size and MCS. The RB count is therefore
// fixed; only the frequency position may move.
func AllocateDLRetx(grid *SlotGrid, mcs model.MCSIndex, tbsBytes int, limits, syms model.Interval) (GrantAlloc, error) {
	if syms.Empty() || limits.Empty() {
		return GrantAlloc{}, fmt.Errorf("dl retx tbs=%d: %w", tbsBytes, ErrInsufficientResources)
	}
	nRB := model.MinRBsForPayload(mcs, tbsBytes, syms.Len())
	if nRB == 0 || nRB > limits.Len() {
		return GrantAlloc{}, fmt.Errorf("dl retx tbs=%d mcs=%d: %w", tbsBytes, mcs, ErrInsufficientResources)
	}
	rbs, ok := grid.FindFreeRBs(DirDL, limits, syms, nRB)
	if !ok {
		return GrantAlloc{}, fmt.Errorf("dl retx tbs=%d mcs=%d: %w", tbsBytes, mcs, ErrInsufficientResources)
	}
	if err := grid.Reserve(DirDL, rbs, syms); err != nil {
		return GrantAlloc{}, err
	}
	return GrantAlloc{RBs: rbs, MCS: mcs, TBSBytes: tbsBytes}, nil
}

// AllocateULGrant reserves PUSCH resources, mirroring AllocateDLGrant for the
// uplink direction.
func AllocateULGrant(grid *SlotGrid, req GrantRequest) (GrantAlloc, error) {
	if req.Demand <= 0 || req.Symbols.Empty() || req.CRBLimits.Empty() {
		return GrantAlloc{}, fmt.Errorf("ul grant demand=%d: %w", req.Demand, ErrInsufficientResources)
	}
	for mcs := model.MCSIndex(0); mcs <= req.MaxMCS && mcs <= model.MaxMCSIndex; mcs++ {
		nRB := model.MinRBsForPayload(mcs, req.Demand, req.Symbols.Len())
		if nRB == 0 || nRB > req.CRBLimits.Len() {
			continue
		}
		rbs, ok := grid.FindFreeRBs(DirUL, req.CRBLimits, req.Symbols, nRB)
		if !ok {
			continue
		}
		if err := grid.Reserve(DirUL, rbs, req.Symbols); err != nil {
			return GrantAlloc{}, err
		}
		return GrantAlloc{RBs: rbs, MCS: mcs, TBSBytes: model.TBSBytes(mcs, nRB, req.Symbols.Len())}, nil
	}
	return GrantAlloc{}, fmt.Errorf("ul grant demand=%d max_mcs=%d: %w", req.Demand, req.MaxMCS, ErrInsufficientResources)
}
