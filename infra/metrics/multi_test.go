package metrics

import (
	"testing"

	coremetrics "github.com/openfms/agvd/core/metrics"
)

type recordSink struct {
	events int
	gauges int
}

func (r *recordSink) RecordTaskEvent(coremetrics.TaskEventRecord) error {
	r.events++
	return nil
}

func (r *recordSink) RecordFleetGauges(int, int) error {
	r.gauges++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordTaskEvent(coremetrics.TaskEventRecord{}); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := m.RecordFleetGauges(3, 1); err != nil {
		t.Fatalf("record gauges: %v", err)
	}
	if s1.events != 1 || s2.events != 1 || s1.gauges != 1 || s2.gauges != 1 {
		t.Fatalf("events not forwarded")
	}
}

func TestMultiSinkSkipsUnsupported(t *testing.T) {
	// recordSink supports neither state, lock nor sweep recording; the
	// fanout must not error on it.
	m := NewMultiSink(&recordSink{})
	if err := m.RecordVehicleState(coremetrics.VehicleStateEvent{}); err != nil {
		t.Fatalf("record state: %v", err)
	}
	if err := m.RecordLockDecision(coremetrics.LockEvent{}); err != nil {
		t.Fatalf("record lock: %v", err)
	}
	if err := m.RecordSweep(coremetrics.SweepEvent{}); err != nil {
		t.Fatalf("record sweep: %v", err)
	}
}
