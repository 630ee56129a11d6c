package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the business intent of a task. The numbering
// matches the wire protocol and must not be reordered.
type TaskType int

const (
	TaskCallForLoading  TaskType = 10
	TaskSendToUnloading TaskType = 20
	TaskReturnToWaiting TaskType = 30
	TaskSendToCharge    TaskType = 40
)

func (t TaskType) String() string {
	switch t {
	case TaskCallForLoading:
		return "call_for_loading"
	case TaskSendToUnloading:
		return "send_to_unloading"
	case TaskReturnToWaiting:
		return "return_to_waiting"
	case TaskSendToCharge:
		return "send_to_charge"
	default:
		return "unknown"
	}
}

// TargetStationType returns the station type a task of this type must
// end at.
func (t TaskType) TargetStationType() StationType {
	switch t {
	case TaskCallForLoading:
		return StationPickup
	case TaskSendToUnloading:
		return StationDropoff
	case TaskReturnToWaiting:
		return StationStandby
	case TaskSendToCharge:
		return StationCharge
	default:
		return 0
	}
}

// TaskStatus is the lifecycle state of a task. Manual dispatch assigns
// the vehicle at creation time, so tasks enter at Assigned; Pending is
// kept for a future auto-dispatch mode.
type TaskStatus int

const (
	TaskPending   TaskStatus = 0
	TaskAssigned  TaskStatus = 10
	TaskExecuting TaskStatus = 20
	TaskCompleted TaskStatus = 30
	TaskCancelled TaskStatus = 40
	TaskFailed    TaskStatus = 50
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskAssigned:
		return "assigned"
	case TaskExecuting:
		return "executing"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is accepted from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskFailed
}

// Task is one unit of work for one vehicle. It is created and mutated
// only through the lifecycle manager and becomes immutable once a
// terminal status is reached.
type Task struct {
	ID               uuid.UUID
	Type             TaskType
	Status           TaskStatus
	Priority         int
	StartStationCode string
	EndStationCode   string
	Description      string
	AssignedAgvCode  string
	RequestedBy      string
	Progress         float64
	CancelReason     string
	FailureReason    string
	CreatedAt        time.Time
	AssignedAt       time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	CancelledAt      time.Time
}

// TaskProgressLog is the audit record written once per meaningful
// progress mutation. Reports that change neither status nor progress
// produce no row.
type TaskProgressLog struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	AgvCode    string
	Status     TaskStatus
	Progress   float64
	Message    string
	ReportedAt time.Time
}
