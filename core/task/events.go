package task

import (
	"time"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/internal/eventbus"
)

// Task lifecycle event kinds published on the bus.
const (
	EventCreated    = "created"
	EventStarted    = "started"
	EventProgressed = "progressed"
	EventCompleted  = "completed"
	EventCancelled  = "cancelled"
	EventFailed     = "failed"
)

// TaskEvent is the snapshot published after every task mutation.
// Metrics and telemetry consume these instead of polling stores.
type TaskEvent struct {
	Kind    string
	Task    model.Task
	AgvCode string
	At      time.Time
}

// Bus is the event bus type the manager publishes on.
type Bus = eventbus.TypedBus[TaskEvent]

func eventKindFor(status model.TaskStatus) string {
	switch status {
	case model.TaskExecuting:
		return EventStarted
	case model.TaskCompleted:
		return EventCompleted
	case model.TaskCancelled:
		return EventCancelled
	case model.TaskFailed:
		return EventFailed
	default:
		return EventProgressed
	}
}
