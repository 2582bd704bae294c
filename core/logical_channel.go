package core

import "github.com/signalsfoundry/ran-scheduler/model"

type dlChannel struct {
	configured bool
	pending    int
}

// DLLogicalChannelManager tracks pending downlink bytes per logical channel
// of one UE and packs them into transport blocks. Buffer-state indications
// are absolute snapshots from the upper layer, not deltas.
type DLLogicalChannelManager struct {
	active   bool
	channels [model.MaxNofLCIDs]dlChannel

	// Pending MAC control elements, served before any SDU.
	pendingConRes bool
	pendingTACmd  bool
}

// NewDLLogicalChannelManager returns a manager with only SRB0 configured.
// SRB0 carries no dedicated configuration and is always present.
func NewDLLogicalChannelManager() *DLLogicalChannelManager {
	m := &DLLogicalChannelManager{active: true}
	m.channels[model.LCIDSRB0].configured = true
	return m
}

// Configure replaces the active channel set. Channels not in the new set are
// disabled and their pending state dropped. SRB0 stays configured regardless.
func (m *DLLogicalChannelManager) Configure(cfgs []model.LogicalChannelConfig) {
	keep := [model.MaxNofLCIDs]bool{}
	keep[model.LCIDSRB0] = true
	for _, cfg := range cfgs {
		if cfg.LCID < model.MaxNofLCIDs {
			keep[cfg.LCID] = true
		}
	}
	for lcid := range m.channels {
		m.channels[lcid].configured = keep[lcid]
		if !keep[lcid] {
			m.channels[lcid].pending = 0
		}
	}
}

// HandleBufferStateIndication sets the channel's pending byte count to the
// reported absolute value.
func (m *DLLogicalChannelManager) HandleBufferStateIndication(lcid model.LCID, totalBytes int) {
	if !m.active || lcid >= model.MaxNofLCIDs || !m.channels[lcid].configured || totalBytes < 0 {
		return
	}
	m.channels[lcid].pending = totalBytes
}

// PendConResID queues the contention-resolution identity CE.
func (m *DLLogicalChannelManager) PendConResID() {
	if m.active {
		m.pendingConRes = true
	}
}

// PendTACmd queues a timing-advance command CE.
func (m *DLLogicalChannelManager) PendTACmd() {
	if m.active {
		m.pendingTACmd = true
	}
}

// HasPendingConRes reports whether the contention-resolution CE is queued.
func (m *DLLogicalChannelManager) HasPendingConRes() bool { return m.pendingConRes }

// PendingCEBytes returns the transport-block bytes needed by the queued
// control elements, subheaders included.
func (m *DLLogicalChannelManager) PendingCEBytes() int {
	total := 0
	if m.pendingConRes {
		total += conResCETotalBytes
	}
	if m.pendingTACmd {
		total += taCmdCETotalBytes
	}
	return total
}

// HasPendingBytes reports whether any configured channel has data queued.
func (m *DLLogicalChannelManager) HasPendingBytes() bool {
	for lcid := range m.channels {
		if m.channels[lcid].pending > 0 {
			return true
		}
	}
	return false
}

// HasPendingBytesLCID reports whether one channel has data queued.
func (m *DLLogicalChannelManager) HasPendingBytesLCID(lcid model.LCID) bool {
	return lcid < model.MaxNofLCIDs && m.channels[lcid].pending > 0
}

// PendingBytes aggregates the transport-block demand of all channels,
// including per-SDU subheaders.
func (m *DLLogicalChannelManager) PendingBytes() int {
	total := 0
	for lcid := range m.channels {
		if p := m.channels[lcid].pending; p > 0 {
			total += macSDURequiredBytes(p)
		}
	}
	return total
}

// PendingBytesLCID returns one channel's demand including its subheader.
func (m *DLLogicalChannelManager) PendingBytesLCID(lcid model.LCID) int {
	if lcid >= model.MaxNofLCIDs || m.channels[lcid].pending == 0 {
		return 0
	}
	return macSDURequiredBytes(m.channels[lcid].pending)
}

// AllocateConResCE packs the contention-resolution CE if queued and fitting.
// Returns the bytes consumed from the budget.
func (m *DLLogicalChannelManager) AllocateConResCE(tb *DLTBInfo, budget int) int {
	if !m.pendingConRes || budget < conResCETotalBytes {
		return 0
	}
	m.pendingConRes = false
	tb.SubPDUs = append(tb.SubPDUs, SubPDU{IsCE: true, CE: CEContentionResolutionID, Bytes: conResCETotalBytes})
	return conResCETotalBytes
}

// AllocateTACmdCE packs a timing-advance command CE if queued and fitting.
func (m *DLLogicalChannelManager) AllocateTACmdCE(tb *DLTBInfo, budget int) int {
	if !m.pendingTACmd || budget < taCmdCETotalBytes {
		return 0
	}
	m.pendingTACmd = false
	tb.SubPDUs = append(tb.SubPDUs, SubPDU{IsCE: true, CE: CETimingAdvanceCommand, Bytes: taCmdCETotalBytes})
	return taCmdCETotalBytes
}

// AllocateMACSDUs consumes pending bytes of one channel into the transport
// block, bounded by the remaining budget. Returns the bytes consumed
// including the subheader; zero when nothing fits.
func (m *DLLogicalChannelManager) AllocateMACSDUs(tb *DLTBInfo, budget int, lcid model.LCID) int {
	if lcid >= model.MaxNofLCIDs {
		return 0
	}
	ch := &m.channels[lcid]
	if ch.pending == 0 {
		return 0
	}
	subheader := sduSubheaderShort
	if ch.pending >= sduLongLengthCutoff {
		subheader = sduSubheaderLong
	}
	take := min(ch.pending, budget-subheader)
	if take <= 0 {
		return 0
	}
	// A short chunk of a long SDU stream still only needs the short header.
	if take < sduLongLengthCutoff {
		subheader = sduSubheaderShort
	}
	ch.pending -= take
	tb.SubPDUs = append(tb.SubPDUs, SubPDU{LCID: lcid, Bytes: take + subheader})
	return take + subheader
}

// Deactivate zeroes all pending state and stops accepting indications.
func (m *DLLogicalChannelManager) Deactivate() {
	m.active = false
	m.pendingConRes = false
	m.pendingTACmd = false
	for lcid := range m.channels {
		m.channels[lcid].pending = 0
	}
}

type ulGroup struct {
	configured bool
	pending    int
}

// ULLogicalChannelManager tracks pending uplink bytes per logical channel
// group, as reported by buffer status reports, plus the scheduling-request
// flag.
type ULLogicalChannelManager struct {
	active bool
	groups [model.MaxNofLCGs]ulGroup
	sr     bool
}

// NewULLogicalChannelManager returns a manager with only LCG 0 configured,
// the group the SRBs report under.
func NewULLogicalChannelManager() *ULLogicalChannelManager {
	m := &ULLogicalChannelManager{active: true}
	m.groups[0].configured = true
	return m
}

// Configure replaces the active group set based on the channel list. LCG 0
// stays configured regardless.
func (m *ULLogicalChannelManager) Configure(cfgs []model.LogicalChannelConfig) {
	keep := [model.MaxNofLCGs]bool{}
	keep[0] = true
	for _, cfg := range cfgs {
		if cfg.LCG < model.MaxNofLCGs {
			keep[cfg.LCG] = true
		}
	}
	for lcg := range m.groups {
		m.groups[lcg].configured = keep[lcg]
		if !keep[lcg] {
			m.groups[lcg].pending = 0
		}
	}
}

// HandleBSR sets a group's pending byte count to the reported absolute value.
func (m *ULLogicalChannelManager) HandleBSR(lcg model.LCGID, totalBytes int) {
	if !m.active || lcg >= model.MaxNofLCGs || !m.groups[lcg].configured || totalBytes < 0 {
		return
	}
	m.groups[lcg].pending = totalBytes
}

// HandleSRIndication records a scheduling request from the UE.
func (m *ULLogicalChannelManager) HandleSRIndication() {
	if m.active {
		m.sr = true
	}
}

// HasPendingSR reports whether a scheduling request is outstanding.
func (m *ULLogicalChannelManager) HasPendingSR() bool { return m.sr }

// PendingBytes aggregates pending bytes across all groups.
func (m *ULLogicalChannelManager) PendingBytes() int {
	total := 0
	for lcg := range m.groups {
		total += m.groups[lcg].pending
	}
	return total
}

// PendingBytesLCG scopes the pending count to one group.
func (m *ULLogicalChannelManager) PendingBytesLCG(lcg model.LCGID) int {
	if lcg >= model.MaxNofLCGs {
		return 0
	}
	return m.groups[lcg].pending
}

// OnULGrant accounts an uplink grant against the pending counters, serving
// lower-numbered groups first (SRBs live in LCG 0), and clears the SR flag.
func (m *ULLogicalChannelManager) OnULGrant(grantBytes int) {
	m.sr = false
	for lcg := range m.groups {
		if grantBytes == 0 {
			return
		}
		taken := min(m.groups[lcg].pending, grantBytes)
		m.groups[lcg].pending -= taken
		grantBytes -= taken
	}
}

// Deactivate zeroes all pending state and stops accepting reports.
func (m *ULLogicalChannelManager) Deactivate() {
	m.active = false
	m.sr = false
	for lcg := range m.groups {
		m.groups[lcg].pending = 0
	}
}
