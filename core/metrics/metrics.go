// Package metrics defines the observability events the dispatch server
// emits and the sink interfaces infra adapters implement.
package metrics

import (
	"time"

	"github.com/openfms/agvd/core/model"
)

// TaskEventRecord represents one task lifecycle transition to be recorded.
type TaskEventRecord struct {
	TaskID   string
	AgvCode  string
	Event    string
	Status   model.TaskStatus
	Progress float64
	Time     time.Time
}

// Sink records task lifecycle events for observability purposes.
type Sink interface {
	RecordTaskEvent(ev TaskEventRecord) error
}

// VehicleStateEvent is a snapshot of a vehicle taken from a status report.
type VehicleStateEvent struct {
	AgvCode     string
	Connected   bool
	Battery     int
	Speed       float64
	PositionX   float64
	PositionY   float64
	StationCode string
	Time        time.Time
}

// VehicleStateRecorder records vehicle state snapshots.
type VehicleStateRecorder interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// LockEvent captures one traffic lock decision.
type LockEvent struct {
	AgvCode     string
	ChannelName string
	Approved    bool
	Reason      string
	Time        time.Time
}

// LockRecorder records lock decisions.
type LockRecorder interface {
	RecordLockDecision(ev LockEvent) error
}

// SweepEvent captures the outcome of one health sweep run.
type SweepEvent struct {
	StaleAgvs      int
	CancelledTasks int
	ReapedLocks    int
	Duration       time.Duration
	Failed         bool
	Time           time.Time
}

// SweepRecorder records health sweep runs.
type SweepRecorder interface {
	RecordSweep(ev SweepEvent) error
}

// FleetGaugeRecorder records point-in-time fleet counts.
type FleetGaugeRecorder interface {
	RecordFleetGauges(online, activeLocks int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTaskEvent(TaskEventRecord) error      { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error { return nil }
func (NopSink) RecordLockDecision(LockEvent) error         { return nil }
func (NopSink) RecordSweep(SweepEvent) error               { return nil }
func (NopSink) RecordFleetGauges(int, int) error           { return nil }
