package metrics

import coremetrics "github.com/openfms/agvd/core/metrics"

// MultiSink fanouts fleet events to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTaskEvent forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordTaskEvent(ev coremetrics.TaskEventRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordTaskEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordVehicleState forwards vehicle snapshots.
func (m *MultiSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.VehicleStateRecorder); ok {
			if err := rec.RecordVehicleState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLockDecision forwards lock decisions.
func (m *MultiSink) RecordLockDecision(ev coremetrics.LockEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.LockRecorder); ok {
			if err := rec.RecordLockDecision(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSweep forwards sweep outcomes.
func (m *MultiSink) RecordSweep(ev coremetrics.SweepEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SweepRecorder); ok {
			if err := rec.RecordSweep(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetGauges forwards fleet counts when supported by the sink.
func (m *MultiSink) RecordFleetGauges(online, activeLocks int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetGaugeRecorder); ok {
			if err := rec.RecordFleetGauges(online, activeLocks); err != nil {
				return err
			}
		}
	}
	return nil
}
