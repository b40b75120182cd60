package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the console runtime.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with critical paths such as the poll cycle.
type Collector interface {
	ObservePollCycle(result string, duration time.Duration)
	IncCoalescedCommit(field string)
	IncActionFailure(label string)
	SetEntityCounts(total, included int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObservePollCycle(string, time.Duration) {}
func (noopCollector) IncCoalescedCommit(string)              {}
func (noopCollector) IncActionFailure(string)                {}
func (noopCollector) SetEntityCounts(int, int)               {}

// PrometheusCollector exposes console telemetry via Prometheus.
type PrometheusCollector struct {
	pollCycles    *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	commits       *prometheus.CounterVec
	actionFailed  *prometheus.CounterVec
	entityTotal   prometheus.Gauge
	entityInclude prometheus.Gauge
}

var (
	pollCycleCounter        *prometheus.CounterVec
	pollCycleCounterLock    sync.Mutex
	pollDurationHist        prometheus.Histogram
	pollDurationHistLock    sync.Mutex
	commitCounter           *prometheus.CounterVec
	commitCounterLock       sync.Mutex
	actionFailureCounter    *prometheus.CounterVec
	actionFailureCounterLoc sync.Mutex
	entityTotalGauge        prometheus.Gauge
	entityIncludedGauge     prometheus.Gauge
	entityGaugeLock         sync.Mutex
)

func registerCounterVec(reg prometheus.Registerer, cached **prometheus.CounterVec, lock *sync.Mutex, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	lock.Lock()
	defer lock.Unlock()
	if *cached != nil {
		return *cached, nil
	}
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	*cached = counter
	return counter, nil
}

// NewPrometheusCollector registers the console metrics with the provided
// registerer. Repeated registration reuses the already registered metrics.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cycles, err := registerCounterVec(reg, &pollCycleCounter, &pollCycleCounterLock, prometheus.CounterOpts{
		Name: "hausdeck_poll_cycles_total",
		Help: "Number of snapshot poll cycles by result.",
	}, []string{"result"})
	if err != nil {
		return nil, err
	}

	commits, err := registerCounterVec(reg, &commitCounter, &commitCounterLock, prometheus.CounterOpts{
		Name: "hausdeck_coalesced_commits_total",
		Help: "Number of coalesced edit commits by field.",
	}, []string{"field"})
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, &actionFailureCounter, &actionFailureCounterLoc, prometheus.CounterOpts{
		Name: "hausdeck_action_failures_total",
		Help: "Number of failed user actions by label.",
	}, []string{"label"})
	if err != nil {
		return nil, err
	}

	pollDurationHistLock.Lock()
	if pollDurationHist == nil {
		hist := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hausdeck_poll_cycle_duration_seconds",
			Help:    "Duration of snapshot poll cycles.",
			Buckets: prometheus.DefBuckets,
		})
		if err := reg.Register(hist); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
					hist = existing
				} else {
					pollDurationHistLock.Unlock()
					return nil, err
				}
			} else {
				pollDurationHistLock.Unlock()
				return nil, err
			}
		}
		pollDurationHist = hist
	}
	duration := pollDurationHist
	pollDurationHistLock.Unlock()

	entityGaugeLock.Lock()
	if entityTotalGauge == nil {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hausdeck_entities",
			Help: "Number of entities in the last snapshot.",
		})
		if err := reg.Register(gauge); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
					gauge = existing
				} else {
					entityGaugeLock.Unlock()
					return nil, err
				}
			} else {
				entityGaugeLock.Unlock()
				return nil, err
			}
		}
		entityTotalGauge = gauge
	}
	if entityIncludedGauge == nil {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hausdeck_entities_included",
			Help: "Number of entities included in the Hue selection.",
		})
		if err := reg.Register(gauge); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
					gauge = existing
				} else {
					entityGaugeLock.Unlock()
					return nil, err
				}
			} else {
				entityGaugeLock.Unlock()
				return nil, err
			}
		}
		entityIncludedGauge = gauge
	}
	total := entityTotalGauge
	included := entityIncludedGauge
	entityGaugeLock.Unlock()

	return &PrometheusCollector{
		pollCycles:    cycles,
		pollDuration:  duration,
		commits:       commits,
		actionFailed:  failures,
		entityTotal:   total,
		entityInclude: included,
	}, nil
}

// ObservePollCycle records one completed poll cycle.
func (p *PrometheusCollector) ObservePollCycle(result string, duration time.Duration) {
	if p == nil {
		return
	}
	if p.pollCycles != nil {
		p.pollCycles.WithLabelValues(result).Inc()
	}
	if p.pollDuration != nil {
		p.pollDuration.Observe(duration.Seconds())
	}
}

// IncCoalescedCommit counts one coalesced edit write.
func (p *PrometheusCollector) IncCoalescedCommit(field string) {
	if p == nil || p.commits == nil {
		return
	}
	p.commits.WithLabelValues(field).Inc()
}

// IncActionFailure counts one failed user action.
func (p *PrometheusCollector) IncActionFailure(label string) {
	if p == nil || p.actionFailed == nil {
		return
	}
	p.actionFailed.WithLabelValues(label).Inc()
}

// SetEntityCounts updates the entity gauges from the latest snapshot.
func (p *PrometheusCollector) SetEntityCounts(total, included int) {
	if p == nil {
		return
	}
	if p.entityTotal != nil {
		p.entityTotal.Set(float64(total))
	}
	if p.entityInclude != nil {
		p.entityInclude.Set(float64(included))
	}
}
