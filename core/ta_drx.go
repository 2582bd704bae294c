package core

import "github.com/signalsfoundry/ran-scheduler/model"

// Defaults used when a UE has no explicit TA configuration.
var defaultTAConfig = model.TAConfig{
	MeasurementWindowSlots: 64,
	CommandOffsetThreshold: 1.0,
	ProhibitSlots:          64,
}

// TimingAdvanceManager averages uplink timing-offset measurements and queues
// a timing-advance command CE into the DL channel manager when the averaged
// offset drifts past the configured threshold.
type TimingAdvanceManager struct {
	cfg  model.TAConfig
	dlLC *DLLogicalChannelManager

	offsetSum float64
	nofMeas   int
	elapsed   uint
	prohibit  uint
}

// NewTimingAdvanceManager builds a manager feeding CEs into dlLC.
func NewTimingAdvanceManager(cfg *model.TAConfig, dlLC *DLLogicalChannelManager) *TimingAdvanceManager {
	m := &TimingAdvanceManager{cfg: defaultTAConfig, dlLC: dlLC}
	if cfg != nil {
		m.cfg = *cfg
	}
	return m
}

// Reconfigure replaces the TA parameters, keeping the measurement window.
func (m *TimingAdvanceManager) Reconfigure(cfg *model.TAConfig) {
	if cfg != nil {
		m.cfg = *cfg
	}
}

// HandleULTimingMeasurement feeds one uplink timing-offset sample, in
// timing-advance units, as estimated by the lower layer.
func (m *TimingAdvanceManager) HandleULTimingMeasurement(offset float64) {
	m.offsetSum += offset
	m.nofMeas++
}

// SlotIndication advances the averaging window and queues a TA command CE
// when the drift threshold is crossed and the prohibit timer is idle.
func (m *TimingAdvanceManager) SlotIndication(model.Slot) {
	if m.prohibit > 0 {
		m.prohibit--
	}
	m.elapsed++
	if m.elapsed < m.cfg.MeasurementWindowSlots {
		return
	}
	m.elapsed = 0
	if m.nofMeas == 0 {
		return
	}
	avg := m.offsetSum / float64(m.nofMeas)
	m.offsetSum, m.nofMeas = 0, 0
	if m.prohibit == 0 && (avg >= m.cfg.CommandOffsetThreshold || avg <= -m.cfg.CommandOffsetThreshold) {
		m.dlLC.PendTACmd()
		m.prohibit = m.cfg.ProhibitSlots
	}
}

// DRXController tracks the UE's discontinuous-reception active time. A nil
// configuration means the UE is always reachable.
type DRXController struct {
	cfg        *model.DRXConfig
	inactivity uint
}

// NewDRXController builds a controller; cfg may be nil.
func NewDRXController(cfg *model.DRXConfig) *DRXController {
	return &DRXController{cfg: cfg}
}

// Reconfigure replaces the DRX parameters; the inactivity timer keeps
// running so an in-flight burst is not cut short by a reconfiguration.
func (d *DRXController) Reconfigure(cfg *model.DRXConfig) {
	d.cfg = cfg
}

// SlotIndication advances the inactivity timer.
func (d *DRXController) SlotIndication(model.Slot) {
	if d.inactivity > 0 {
		d.inactivity--
	}
}

// IsActiveTime reports whether the UE is monitoring the PDCCH in this slot.
func (d *DRXController) IsActiveTime(s model.Slot) bool {
	if d.cfg == nil || d.cfg.CycleSlots == 0 {
		return true
	}
	if d.inactivity > 0 {
		return true
	}
	return s.Count()%d.cfg.CycleSlots < d.cfg.OnDurationSlots
}

// OnNewTxGrant restarts the inactivity timer after a new-transmission grant.
func (d *DRXController) OnNewTxGrant() {
	if d.cfg != nil {
		d.inactivity = d.cfg.InactivityTimerSlots
	}
}
