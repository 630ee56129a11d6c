package metrics

import (
	"context"
	"time"

	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/infra/logger"
)

const gaugeInterval = 15 * time.Second

// GaugeFunc reports the current fleet counts for the gauges.
type GaugeFunc func(ctx context.Context) (online, activeLocks int, err error)

// Recorder drains task lifecycle events off the bus into a sink, and
// periodically refreshes the fleet gauges.
type Recorder struct {
	bus    *task.Bus
	sink   coremetrics.Sink
	gauges GaugeFunc
	log    logger.Logger
}

// NewRecorder wires a bus to a sink. gauges may be nil.
func NewRecorder(bus *task.Bus, sink coremetrics.Sink, gauges GaugeFunc, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Recorder{bus: bus, sink: sink, gauges: gauges, log: log}
}

// Start launches the recording loop. It returns once the goroutine is
// running; the loop stops when ctx is cancelled or the bus closes.
func (r *Recorder) Start(ctx context.Context) {
	events := r.bus.SubscribeBuffered(64)
	go r.run(ctx, events)
}

func (r *Recorder) run(ctx context.Context, events <-chan task.TaskEvent) {
	var tick <-chan time.Time
	if r.gauges != nil {
		t := time.NewTicker(gaugeInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			r.bus.Unsubscribe(events)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.record(ev)
		case <-tick:
			r.refreshGauges(ctx)
		}
	}
}

func (r *Recorder) record(ev task.TaskEvent) {
	rec := coremetrics.TaskEventRecord{
		TaskID:   ev.Task.ID.String(),
		AgvCode:  ev.AgvCode,
		Event:    ev.Kind,
		Status:   ev.Task.Status,
		Progress: ev.Task.Progress,
		Time:     ev.At,
	}
	if err := r.sink.RecordTaskEvent(rec); err != nil {
		r.log.Warnf("record task event: %v", err)
	}
}

func (r *Recorder) refreshGauges(ctx context.Context) {
	rec, ok := r.sink.(coremetrics.FleetGaugeRecorder)
	if !ok {
		return
	}
	online, locks, err := r.gauges(ctx)
	if err != nil {
		r.log.Warnf("fleet gauges: %v", err)
		return
	}
	if err := rec.RecordFleetGauges(online, locks); err != nil {
		r.log.Warnf("record fleet gauges: %v", err)
	}
}
