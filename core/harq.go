package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/ran-scheduler/internal/logging"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// HARQState is the lifecycle state of one HARQ process.
type HARQState uint8

const (
	// HARQEmpty: the process is free for a new transmission.
	HARQEmpty HARQState = iota
	// HARQWaitingACK: a transmission went out and the ACK is outstanding.
	HARQWaitingACK
	// HARQPendingRetx: the last transmission was NACKed and a
	// retransmission has not been allocated yet.
	HARQPendingRetx
)

func (s HARQState) String() string {
	switch s {
	case HARQEmpty:
		return "empty"
	case HARQWaitingACK:
		return "waiting_ack"
	case HARQPendingRetx:
		return "pending_retx"
	default:
		return fmt.Sprintf("HARQState(%d)", uint8(s))
	}
}

// DLHARQProcess is one downlink retransmission state machine. A process is
// uniquely identified by its ID plus the slot at which it awaits the ACK.
type DLHARQProcess struct {
	ID        model.HARQProcessID
	State     HARQState
	SlotTx    model.Slot
	SlotAck   model.Slot
	TBSBytes  int
	MCS       model.MCSIndex
	RetxCount int
	MaxRetx   int
	// Fallback marks processes carrying SRB0/ConRes traffic; their
	// retransmissions keep the fallback CRB limits.
	Fallback bool
}

// ULHARQProcess is the uplink counterpart; "ACK" is the PUSCH CRC outcome.
type ULHARQProcess struct {
	ID        model.HARQProcessID
	State     HARQState
	SlotTx    model.Slot
	TBSBytes  int
	MCS       model.MCSIndex
	RetxCount int
	MaxRetx   int
}

// HARQEntity owns the fixed DL and UL process pools of one UE-cell. All
// transitions happen on the owning cell's scheduling thread.
type HARQEntity struct {
	ueIndex model.UEIndex
	rnti    model.RNTI
	log     logging.Logger
	timeout HARQTimeoutHandler
	metrics MetricsNotifier

	// timeoutSlots is the WAITING_ACK deadline; a process past it is
	// force-released so a lost ACK can never leak a process forever.
	timeoutSlots int

	dl [NofHARQProcesses]DLHARQProcess
	ul [NofHARQProcesses]ULHARQProcess
}

// NewHARQEntity builds the pools with all processes empty.
func NewHARQEntity(ue model.UEIndex, rnti model.RNTI, timeoutSlots int, th HARQTimeoutHandler, metrics MetricsNotifier, log logging.Logger) *HARQEntity {
	if th == nil {
		th = NoopHARQTimeoutHandler{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logging.Noop()
	}
	h := &HARQEntity{
		ueIndex:      ue,
		rnti:         rnti,
		log:          log,
		timeout:      th,
		metrics:      metrics,
		timeoutSlots: timeoutSlots,
	}
	for i := range h.dl {
		h.dl[i].ID = model.HARQProcessID(i)
	}
	for i := range h.ul {
		h.ul[i].ID = model.HARQProcessID(i)
	}
	return h
}

// AllocDLProcess claims an empty DL process for a new transmission, or nil
// when the pool is exhausted.
func (h *HARQEntity) AllocDLProcess(slotTx, slotAck model.Slot, tbsBytes int, mcs model.MCSIndex, maxRetx int, fallback bool) *DLHARQProcess {
	for i := range h.dl {
		p := &h.dl[i]
		if p.State != HARQEmpty {
			continue
		}
		p.State = HARQWaitingACK
		p.SlotTx = slotTx
		p.SlotAck = slotAck
		p.TBSBytes = tbsBytes
		p.MCS = mcs
		p.RetxCount = 0
		p.MaxRetx = maxRetx
		p.Fallback = fallback
		return p
	}
	return nil
}

// AllocULProcess claims an empty UL process for a new transmission.
func (h *HARQEntity) AllocULProcess(slotTx model.Slot, tbsBytes int, mcs model.MCSIndex, maxRetx int) *ULHARQProcess {
	for i := range h.ul {
		p := &h.ul[i]
		if p.State != HARQEmpty {
			continue
		}
		p.State = HARQWaitingACK
		p.SlotTx = slotTx
		p.TBSBytes = tbsBytes
		p.MCS = mcs
		p.RetxCount = 0
		p.MaxRetx = maxRetx
		return p
	}
	return nil
}

// FindPendingRetxDL returns a DL process awaiting retransmission, or nil.
func (h *HARQEntity) FindPendingRetxDL() *DLHARQProcess {
	for i := range h.dl {
		if h.dl[i].State == HARQPendingRetx {
			return &h.dl[i]
		}
	}
	return nil
}

// FindPendingRetxDLOfKind scopes the search to fallback or dedicated
// processes. A fallback transport block keeps its fallback CRB limits on
// retransmission even after the UE received a dedicated configuration.
func (h *HARQEntity) FindPendingRetxDLOfKind(fallback bool) *DLHARQProcess {
	for i := range h.dl {
		if h.dl[i].State == HARQPendingRetx && h.dl[i].Fallback == fallback {
			return &h.dl[i]
		}
	}
	return nil
}

// FindPendingRetxUL returns a UL process awaiting retransmission, or nil.
func (h *HARQEntity) FindPendingRetxUL() *ULHARQProcess {
	for i := range h.ul {
		if h.ul[i].State == HARQPendingRetx {
			return &h.ul[i]
		}
	}
	return nil
}

// FindDLWaitingAckSlot returns a DL process whose ACK is expected at the
// given slot and whose codeword index is covered by cwMask. Used by tests and
// the ACK demultiplexer.
func (h *HARQEntity) FindDLWaitingAckSlot(s model.Slot, cwMask uint8) *DLHARQProcess {
	if cwMask&0x1 == 0 {
		return nil
	}
	for i := range h.dl {
		p := &h.dl[i]
		if p.State == HARQWaitingACK && p.SlotAck.Equal(s) {
			return p
		}
	}
	return nil
}

// RetxDL re-arms a PENDING_RETX process for the allocated retransmission.
func (h *HARQEntity) RetxDL(p *DLHARQProcess, slotTx, slotAck model.Slot) {
	p.State = HARQWaitingACK
	p.SlotTx = slotTx
	p.SlotAck = slotAck
	p.RetxCount++
}

// RetxUL re-arms a PENDING_RETX uplink process.
func (h *HARQEntity) RetxUL(p *ULHARQProcess, slotTx model.Slot) {
	p.State = HARQWaitingACK
	p.SlotTx = slotTx
	p.RetxCount++
}

// DLAckInfo applies an acknowledgment outcome to a DL process. An ACK frees
// the process; a NACK schedules a retransmission unless the budget is spent,
// in which case the process is freed and the delivery failure reported.
// A report for a process not waiting for an ACK (e.g. a stale report for a
// reused process ID) is ignored and an error is returned for logging.
func (h *HARQEntity) DLAckInfo(id model.HARQProcessID, codeword int, ack bool) error {
	if int(id) >= len(h.dl) || codeword != 0 {
		return fmt.Errorf("dl harq ack: bad process id %d / codeword %d", id, codeword)
	}
	p := &h.dl[id]
	if p.State != HARQWaitingACK {
		return fmt.Errorf("dl harq ack: process %d in state %s, report ignored", id, p.State)
	}
	if ack {
		p.State = HARQEmpty
		return nil
	}
	if p.RetxCount >= p.MaxRetx {
		p.State = HARQEmpty
		h.metrics.OnHARQFailure(h.ueIndex)
		h.log.Warn(context.Background(), "dl harq retransmissions exhausted",
			logging.Uint("ue", uint(h.ueIndex)),
			logging.Uint("harq", uint(id)),
			logging.Int("retx", p.RetxCount))
		return nil
	}
	p.State = HARQPendingRetx
	return nil
}

// ULCrcInfo applies the PUSCH CRC outcome to a UL process.
func (h *HARQEntity) ULCrcInfo(id model.HARQProcessID, ok bool) error {
	if int(id) >= len(h.ul) {
		return fmt.Errorf("ul harq crc: bad process id %d", id)
	}
	p := &h.ul[id]
	if p.State != HARQWaitingACK {
		return fmt.Errorf("ul harq crc: process %d in state %s, report ignored", id, p.State)
	}
	if ok {
		p.State = HARQEmpty
		return nil
	}
	if p.RetxCount >= p.MaxRetx {
		p.State = HARQEmpty
		h.metrics.OnHARQFailure(h.ueIndex)
		h.log.Warn(context.Background(), "ul harq retransmissions exhausted",
			logging.Uint("ue", uint(h.ueIndex)),
			logging.Uint("harq", uint(id)),
			logging.Int("retx", p.RetxCount))
		return nil
	}
	p.State = HARQPendingRetx
	return nil
}

// SlotIndication sweeps both pools for processes stuck past the ACK deadline
// and force-releases them, surfacing the failure to the timeout handler.
func (h *HARQEntity) SlotIndication(s model.Slot) {
	for i := range h.dl {
		p := &h.dl[i]
		if p.State == HARQWaitingACK && s.Sub(p.SlotAck) > h.timeoutSlots {
			p.State = HARQEmpty
			h.metrics.OnHARQTimeout(h.ueIndex)
			h.timeout.HandleHARQTimeout(h.ueIndex, true)
			h.log.Warn(context.Background(), "dl harq ack timeout, process released",
				logging.Uint("ue", uint(h.ueIndex)),
				logging.Uint("harq", uint(p.ID)),
				logging.String("ack_slot", p.SlotAck.String()))
		}
	}
	for i := range h.ul {
		p := &h.ul[i]
		if p.State == HARQWaitingACK && s.Sub(p.SlotTx) > h.timeoutSlots {
			p.State = HARQEmpty
			h.metrics.OnHARQTimeout(h.ueIndex)
			h.timeout.HandleHARQTimeout(h.ueIndex, false)
			h.log.Warn(context.Background(), "ul harq crc timeout, process released",
				logging.Uint("ue", uint(h.ueIndex)),
				logging.Uint("harq", uint(p.ID)))
		}
	}
}

// CancelPendingRetxs drops all pending retransmissions. Used when the UE is
// deactivated; in-flight WAITING_ACK processes drain via ACK or timeout.
func (h *HARQEntity) CancelPendingRetxs() {
	for i := range h.dl {
		if h.dl[i].State == HARQPendingRetx {
			h.dl[i].State = HARQEmpty
		}
	}
	for i := range h.ul {
		if h.ul[i].State == HARQPendingRetx {
			h.ul[i].State = HARQEmpty
		}
	}
}

// Reset frees every process unconditionally. Used on UE release.
func (h *HARQEntity) Reset() {
	for i := range h.dl {
		h.dl[i].State = HARQEmpty
	}
	for i := range h.ul {
		h.ul[i].State = HARQEmpty
	}
}

// TotalULBytesWaitingAck sums the bytes already in flight on UL processes;
// the UE-level pending-byte estimate subtracts them.
func (h *HARQEntity) TotalULBytesWaitingAck() int {
	total := 0
	for i := range h.ul {
		if h.ul[i].State == HARQWaitingACK {
			total += h.ul[i].TBSBytes
		}
	}
	return total
}

// NofFreeDLProcesses is exposed for inspection and tests.
func (h *HARQEntity) NofFreeDLProcesses() int {
	n := 0
	for i := range h.dl {
		if h.dl[i].State == HARQEmpty {
			n++
		}
	}
	return n
}
