package transport

import (
	"time"

	"github.com/openfms/agvd/core/model"
)

// Wire timestamps are RFC3339 strings in UTC.
const TimestampLayout = time.RFC3339

// Now renders the current time in the wire format.
func Now() string { return time.Now().UTC().Format(TimestampLayout) }

// PositionInfo is the optional position block shared by status and
// exception reports.
type PositionInfo struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Angle       *float64 `json:"angle,omitempty"`
	StationCode string   `json:"stationCode,omitempty"`
}

// StatusMessage is the periodic vehicle heartbeat.
type StatusMessage struct {
	AgvCode        string       `json:"agvCode"`
	Timestamp      string       `json:"timestamp"`
	Battery        int          `json:"battery"`
	BatteryVoltage float64      `json:"batteryVoltage"`
	Speed          float64      `json:"speed"`
	Position       PositionInfo `json:"position"`
	CurrentTaskID  string       `json:"currentTaskId,omitempty"`
	ErrorCode      string       `json:"errorCode,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// CheckpointPayload is one checkpoint inside an assignment.
type CheckpointPayload struct {
	Seq         int    `json:"seq"`
	StationCode string `json:"stationCode"`
	Type        string `json:"type"`
}

// TaskAssignMessage pushes a new task to a vehicle, checkpoints included.
type TaskAssignMessage struct {
	TaskID           string              `json:"taskId"`
	TaskType         model.TaskType      `json:"taskType"`
	Priority         int                 `json:"priority"`
	Timestamp        string              `json:"timestamp"`
	StartStationCode string              `json:"startStationCode"`
	EndStationCode   string              `json:"endStationCode"`
	Description      string              `json:"description,omitempty"`
	Checkpoints      []CheckpointPayload `json:"checkpoints"`
}

// TaskCancelMessage tells a vehicle to abandon a task.
type TaskCancelMessage struct {
	TaskID    string `json:"taskId"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// TaskProgressMessage reports task execution progress.
type TaskProgressMessage struct {
	AgvCode   string           `json:"agvCode"`
	TaskID    string           `json:"taskId"`
	Timestamp string           `json:"timestamp"`
	Status    model.TaskStatus `json:"status"`
	Progress  *float64         `json:"progressPercentage,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// ExceptionMessage reports a fault observed by a vehicle.
type ExceptionMessage struct {
	AgvCode   string                     `json:"agvCode"`
	Timestamp string                     `json:"timestamp"`
	Type      model.AgvExceptionType     `json:"exceptionType"`
	Severity  model.AgvExceptionSeverity `json:"severity"`
	Message   string                     `json:"message,omitempty"`
	Position  *PositionInfo              `json:"position,omitempty"`
	TaskID    string                     `json:"taskId,omitempty"`
}

// LockRequestMessage asks for transit rights over one channel.
type LockRequestMessage struct {
	AgvCode         string `json:"agvCode"`
	TaskID          string `json:"taskId"`
	Timestamp       string `json:"timestamp"`
	FromStationCode string `json:"fromStationCode"`
	ToStationCode   string `json:"toStationCode"`
}

// LockResponseMessage answers a lock request.
type LockResponseMessage struct {
	TaskID          string `json:"taskId"`
	FromStationCode string `json:"fromStationCode"`
	ToStationCode   string `json:"toStationCode"`
	Approved        bool   `json:"approved"`
	Reason          string `json:"reason,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// CommandMessage pushes a control instruction to a vehicle.
type CommandMessage struct {
	CommandID   string            `json:"commandId"`
	CommandType model.CommandType `json:"commandType"`
	Timestamp   string            `json:"timestamp"`
	Params      map[string]string `json:"params,omitempty"`
}
