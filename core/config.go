package core

import (
	"errors"

	"github.com/signalsfoundry/ran-scheduler/model"
)

// Scheduler-wide bounds. Sized so that every per-slot search is allocation
// free and bounded (fixed arenas, see UERepository and HARQEntity).
const (
	// GridSize is the length of the rolling resource-grid window, in slots.
	GridSize = 40
	// MaxK0Lookahead bounds how far ahead of the current slot a PDSCH may
	// have been allocated before its marker is considered stale.
	MaxK0Lookahead = 32
	// MaxK2Lookahead is the UL counterpart of MaxK0Lookahead.
	MaxK2Lookahead = 32
	// NofHARQProcesses is the fixed HARQ pool size per direction per UE-cell.
	NofHARQProcesses = 16
	// SRGrantBytes is the UL grant size used to answer a scheduling request
	// when no buffer status has been reported yet.
	SRGrantBytes = 512
)

// MAC subheader and control-element sizes used for transport-block packing.
const (
	conResCEBytes       = 6
	ceSubheaderBytes    = 1
	taCmdCEBytes        = 1
	conResCETotalBytes  = conResCEBytes + ceSubheaderBytes
	taCmdCETotalBytes   = taCmdCEBytes + ceSubheaderBytes
	sduSubheaderShort   = 2
	sduSubheaderLong    = 3
	sduLongLengthCutoff = 256
)

// macSDURequiredBytes returns the transport-block bytes needed to carry an
// SDU of the given payload, including its subheader.
func macSDURequiredBytes(payload int) int {
	if payload >= sduLongLengthCutoff {
		return payload + sduSubheaderLong
	}
	return payload + sduSubheaderShort
}

// SchedulerConfig carries the operator-tunable scheduling parameters shared
// by all UEs of a cell.
type SchedulerConfig struct {
	// MaxDLMCS / MaxULMCS cap the MCS selected for dedicated grants.
	MaxDLMCS model.MCSIndex
	MaxULMCS model.MCSIndex
	// MaxMsg4MCS caps the MCS usable for fallback (SRB0) transmissions, which
	// must remain decodable by UEs without a dedicated configuration.
	MaxMsg4MCS model.MCSIndex
	// MaxHARQRetx is the retransmission budget per HARQ process.
	MaxHARQRetx int
	// HARQTimeoutSlots force-releases a process stuck waiting for an ACK.
	HARQTimeoutSlots int
}

// DefaultSchedulerConfig mirrors the defaults used by the simulation driver.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxDLMCS:         10,
		MaxULMCS:         10,
		MaxMsg4MCS:       6,
		MaxHARQRetx:      4,
		HARQTimeoutSlots: 256,
	}
}

// Sentinel errors for recoverable scheduling conditions.
var (
	// ErrGridConflict is returned when a reservation overlaps an existing one.
	ErrGridConflict = errors.New("resource grid conflict")
	// ErrInsufficientResources is returned when no feasible allocation exists
	// for a demand; nothing is reserved in that case.
	ErrInsufficientResources = errors.New("insufficient resources")
	// ErrHARQPoolExhausted is returned when no HARQ process is free.
	ErrHARQPoolExhausted = errors.New("harq pool exhausted")
	// ErrUEExists / ErrUENotFound guard the UE arena.
	ErrUEExists   = errors.New("ue index already in use")
	ErrUENotFound = errors.New("ue not found")
)

// GrantKind labels downlink grants for accounting.
type GrantKind string

const (
	GrantFallback GrantKind = "fallback"
	GrantNewTx    GrantKind = "newtx"
	GrantRetx     GrantKind = "retx"
)

// AllocFailureCause labels recoverable allocation failures for accounting.
type AllocFailureCause string

const (
	CauseGridConflict         AllocFailureCause = "grid_conflict"
	CauseInsufficientCapacity AllocFailureCause = "insufficient_capacity"
	CauseHARQExhausted        AllocFailureCause = "harq_exhausted"
)

// SlotStats summarises one completed scheduling pass.
type SlotStats struct {
	ActiveUEs        int
	FallbackQueueLen int
	DLGrants         int
	ULGrants         int
}

// MetricsNotifier receives scheduling events. Implementations must be cheap:
// they are invoked from the per-slot hot path.
type MetricsNotifier interface {
	OnDLGrant(kind GrantKind)
	OnULGrant()
	OnAllocFailure(cause AllocFailureCause)
	OnHARQTimeout(ue model.UEIndex)
	OnHARQFailure(ue model.UEIndex)
	OnSlotComplete(stats SlotStats)
}

// NoopMetrics discards all scheduling events.
type NoopMetrics struct{}

func (NoopMetrics) OnDLGrant(GrantKind)              {}
func (NoopMetrics) OnULGrant()                       {}
func (NoopMetrics) OnAllocFailure(AllocFailureCause) {}
func (NoopMetrics) OnHARQTimeout(model.UEIndex)      {}
func (NoopMetrics) OnHARQFailure(model.UEIndex)      {}
func (NoopMetrics) OnSlotComplete(SlotStats)         {}

// HARQTimeoutHandler is notified when a HARQ process is force-released after
// waiting too long for an acknowledgment. The failure is surfaced so upper
// layers can react; it is never silently dropped.
type HARQTimeoutHandler interface {
	HandleHARQTimeout(ue model.UEIndex, dl bool)
}

// NoopHARQTimeoutHandler ignores timeout reports.
type NoopHARQTimeoutHandler struct{}

func (NoopHARQTimeoutHandler) HandleHARQTimeout(model.UEIndex, bool) {}
