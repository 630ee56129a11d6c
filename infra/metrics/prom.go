package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/openfms/agvd/core/metrics"
)

// PromSink records fleet events in Prometheus metrics.
type PromSink struct {
	taskEvents  *prometheus.CounterVec
	lockEvents  *prometheus.CounterVec
	agvsOnline  prometheus.Gauge
	locksActive prometheus.Gauge
	sweep       prometheus.Histogram
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	taskEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvd_task_events_total",
		Help: "Total number of task lifecycle events",
	}, []string{"event", "agv_code"})
	lockEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agvd_lock_decisions_total",
		Help: "Total number of path lock decisions",
	}, []string{"decision"})
	agvsOnline := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agvd_agvs_online",
		Help: "Number of vehicles currently reporting status",
	})
	locksActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agvd_path_locks_active",
		Help: "Number of approved path locks currently held",
	})
	sweep := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agvd_health_sweep_duration_seconds",
		Help:    "Duration of fleet health sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	if err := reg.Register(taskEvents); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			taskEvents = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(lockEvents); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			lockEvents = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(agvsOnline); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			agvsOnline = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(locksActive); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			locksActive = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(sweep); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sweep = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		taskEvents:  taskEvents,
		lockEvents:  lockEvents,
		agvsOnline:  agvsOnline,
		locksActive: locksActive,
		sweep:       sweep,
	}, nil
}

// RecordTaskEvent increments the counter for one lifecycle transition.
func (s *PromSink) RecordTaskEvent(ev coremetrics.TaskEventRecord) error {
	s.taskEvents.WithLabelValues(ev.Event, ev.AgvCode).Inc()
	return nil
}

// RecordLockDecision counts approvals and rejections.
func (s *PromSink) RecordLockDecision(ev coremetrics.LockEvent) error {
	decision := "rejected"
	if ev.Approved {
		decision = "approved"
	}
	s.lockEvents.WithLabelValues(decision).Inc()
	return nil
}

// RecordSweep observes the sweep duration.
func (s *PromSink) RecordSweep(ev coremetrics.SweepEvent) error {
	s.sweep.Observe(ev.Duration.Seconds())
	return nil
}

// RecordFleetGauges sets the online vehicle and active lock gauges.
func (s *PromSink) RecordFleetGauges(online, activeLocks int) error {
	s.agvsOnline.Set(float64(online))
	s.locksActive.Set(float64(activeLocks))
	return nil
}
