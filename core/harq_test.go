package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/ran-scheduler/model"
)

func newTestHARQ(metrics MetricsNotifier, th HARQTimeoutHandler) *HARQEntity {
	return NewHARQEntity(1, 0x4601, 256, th, metrics, nil)
}

func TestHARQAllocAndAckLifecycle(t *testing.T) {
	h := newTestHARQ(nil, nil)
	tx := model.NewSlot(0, 0, 0)
	ack := tx.Add(4)

	p := h.AllocDLProcess(tx, ack, 151, 0, 4, true)
	require.NotNil(t, p)
	assert.Equal(t, HARQWaitingACK, p.State)
	assert.Equal(t, NofHARQProcesses-1, h.NofFreeDLProcesses())

	require.NoError(t, h.DLAckInfo(p.ID, 0, true))
	assert.Equal(t, HARQEmpty, p.State)
	assert.Equal(t, NofHARQProcesses, h.NofFreeDLProcesses())
}

func TestHARQNackSchedulesRetx(t *testing.T) {
	h := newTestHARQ(nil, nil)
	tx := model.NewSlot(0, 0, 0)
	p := h.AllocDLProcess(tx, tx.Add(4), 151, 0, 4, false)
	require.NotNil(t, p)

	require.NoError(t, h.DLAckInfo(p.ID, 0, false))
	assert.Equal(t, HARQPendingRetx, p.State)
	assert.Same(t, p, h.FindPendingRetxDL())

	h.RetxDL(p, tx.Add(1), tx.Add(5))
	assert.Equal(t, HARQWaitingACK, p.State)
	assert.Equal(t, 1, p.RetxCount)
	assert.Nil(t, h.FindPendingRetxDL())
}

func TestHARQNackBeyondBudgetDropsTB(t *testing.T) {
	metrics := newRecordingMetrics()
	h := newTestHARQ(metrics, nil)
	tx := model.NewSlot(0, 0, 0)
	p := h.AllocDLProcess(tx, tx.Add(4), 151, 0, 1, false)
	require.NotNil(t, p)

	require.NoError(t, h.DLAckInfo(p.ID, 0, false))
	h.RetxDL(p, tx.Add(1), tx.Add(5))
	require.NoError(t, h.DLAckInfo(p.ID, 0, false))

	assert.Equal(t, HARQEmpty, p.State, "budget of 1 retx spent, process must be freed")
	assert.Equal(t, 1, metrics.failures)
}

func TestHARQStaleAckIgnored(t *testing.T) {
	h := newTestHARQ(nil, nil)
	err := h.DLAckInfo(3, 0, true)
	assert.Error(t, err, "ack for an empty process must be reported, not applied")
	assert.Equal(t, NofHARQProcesses, h.NofFreeDLProcesses())

	assert.Error(t, h.DLAckInfo(model.HARQProcessID(NofHARQProcesses), 0, true))
	assert.Error(t, h.DLAckInfo(0, 1, true), "second codeword is not in use")
}

type recordingTimeoutHandler struct {
	calls []bool
}

func (r *recordingTimeoutHandler) HandleHARQTimeout(_ model.UEIndex, dl bool) {
	r.calls = append(r.calls, dl)
}

func TestHARQTimeoutSweep(t *testing.T) {
	metrics := newRecordingMetrics()
	th := &recordingTimeoutHandler{}
	h := newTestHARQ(metrics, th)

	tx := model.NewSlot(0, 0, 0)
	dl := h.AllocDLProcess(tx, tx.Add(4), 151, 0, 4, false)
	ul := h.AllocULProcess(tx.Add(4), 512, 5, 4)
	require.NotNil(t, dl)
	require.NotNil(t, ul)

	h.SlotIndication(tx.Add(260))
	assert.Equal(t, HARQWaitingACK, dl.State, "deadline not reached yet")

	h.SlotIndication(tx.Add(261))
	assert.Equal(t, HARQEmpty, dl.State)
	assert.Equal(t, HARQEmpty, ul.State)
	assert.Equal(t, 2, metrics.timeouts)
	assert.Equal(t, []bool{true, false}, th.calls)
}

func TestHARQPoolExhaustion(t *testing.T) {
	h := newTestHARQ(nil, nil)
	tx := model.NewSlot(0, 0, 0)
	for i := 0; i < NofHARQProcesses; i++ {
		require.NotNil(t, h.AllocDLProcess(tx, tx.Add(4), 151, 0, 4, false))
	}
	assert.Nil(t, h.AllocDLProcess(tx, tx.Add(4), 151, 0, 4, false))
	assert.Equal(t, 0, h.NofFreeDLProcesses())
}

func TestHARQULBytesWaitingAck(t *testing.T) {
	h := newTestHARQ(nil, nil)
	tx := model.NewSlot(0, 0, 0)
	h.AllocULProcess(tx, 512, 5, 4)
	h.AllocULProcess(tx.Add(1), 300, 5, 4)
	assert.Equal(t, 812, h.TotalULBytesWaitingAck())

	require.NoError(t, h.ULCrcInfo(0, true))
	assert.Equal(t, 300, h.TotalULBytesWaitingAck())
}

func TestHARQCancelPendingRetxs(t *testing.T) {
	h := newTestHARQ(nil, nil)
	tx := model.NewSlot(0, 0, 0)
	p := h.AllocDLProcess(tx, tx.Add(4), 151, 0, 4, true)
	require.NoError(t, h.DLAckInfo(p.ID, 0, false))
	require.Equal(t, HARQPendingRetx, p.State)

	h.CancelPendingRetxs()
	assert.Equal(t, HARQEmpty, p.State)
	assert.Nil(t, h.FindPendingRetxDLOfKind(true))
}
