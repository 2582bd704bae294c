package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/ran-scheduler/core"
	"github.com/signalsfoundry/ran-scheduler/model"
)

// SchedulerCollector bundles the Prometheus metrics of one cell scheduler. It
// implements core.MetricsNotifier, so it can be handed to the scheduler
// directly.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	DLGrants     *prometheus.CounterVec
	ULGrants     prometheus.Counter
	AllocFails   *prometheus.CounterVec
	HARQTimeouts prometheus.Counter
	HARQFailures prometheus.Counter

	ActiveUEs     prometheus.Gauge
	FallbackQueue prometheus.Gauge

	SlotDLGrants prometheus.Histogram
}

// NewSchedulerCollector registers the scheduler metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registration is idempotent: an already-registered compatible collector is
// reused instead of failing.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	dlGrants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_dl_grants_total",
		Help: "Total downlink grants, labeled by kind (fallback, newtx, retx).",
	}, []string{"kind"})
	dlGrants, err := registerCounterVec(reg, dlGrants, "sched_dl_grants_total")
	if err != nil {
		return nil, err
	}

	ulGrants, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sched_ul_grants_total",
		Help: "Total uplink grants.",
	}), "sched_ul_grants_total")
	if err != nil {
		return nil, err
	}

	allocFails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_alloc_failures_total",
		Help: "Recoverable allocation failures, labeled by cause.",
	}, []string{"cause"})
	allocFails, err = registerCounterVec(reg, allocFails, "sched_alloc_failures_total")
	if err != nil {
		return nil, err
	}

	harqTimeouts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sched_harq_timeouts_total",
		Help: "HARQ processes force-released after waiting too long for an acknowledgment.",
	}), "sched_harq_timeouts_total")
	if err != nil {
		return nil, err
	}
	harqFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sched_harq_failures_total",
		Help: "Transport blocks dropped after exhausting the retransmission budget.",
	}), "sched_harq_failures_total")
	if err != nil {
		return nil, err
	}

	activeUEs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sched_active_ues",
		Help: "Current number of connected UEs.",
	}), "sched_active_ues")
	if err != nil {
		return nil, err
	}
	fallbackQueue, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sched_fallback_queue_len",
		Help: "UEs waiting for a fallback (SRB0) allocation.",
	}), "sched_fallback_queue_len")
	if err != nil {
		return nil, err
	}

	slotDLGrants, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sched_slot_dl_grants",
		Help:    "Downlink grants emitted per slot.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	}), "sched_slot_dl_grants")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:      gatherer,
		DLGrants:      dlGrants,
		ULGrants:      ulGrants,
		AllocFails:    allocFails,
		HARQTimeouts:  harqTimeouts,
		HARQFailures:  harqFailures,
		ActiveUEs:     activeUEs,
		FallbackQueue: fallbackQueue,
		SlotDLGrants:  slotDLGrants,
	}, nil
}

// OnDLGrant implements core.MetricsNotifier.
func (c *SchedulerCollector) OnDLGrant(kind core.GrantKind) {
	c.DLGrants.WithLabelValues(string(kind)).Inc()
}

// OnULGrant implements core.MetricsNotifier.
func (c *SchedulerCollector) OnULGrant() { c.ULGrants.Inc() }

// OnAllocFailure implements core.MetricsNotifier.
func (c *SchedulerCollector) OnAllocFailure(cause core.AllocFailureCause) {
	c.AllocFails.WithLabelValues(string(cause)).Inc()
}

// OnHARQTimeout implements core.MetricsNotifier.
func (c *SchedulerCollector) OnHARQTimeout(model.UEIndex) { c.HARQTimeouts.Inc() }

// OnHARQFailure implements core.MetricsNotifier.
func (c *SchedulerCollector) OnHARQFailure(model.UEIndex) { c.HARQFailures.Inc() }

// OnSlotComplete implements core.MetricsNotifier.
func (c *SchedulerCollector) OnSlotComplete(stats core.SlotStats) {
	c.ActiveUEs.Set(float64(stats.ActiveUEs))
	c.FallbackQueue.Set(float64(stats.FallbackQueueLen))
	c.SlotDLGrants.Observe(float64(stats.DLGrants))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SchedulerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
