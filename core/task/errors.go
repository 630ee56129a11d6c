package task

import "errors"

// Validation failures returned synchronously by the lifecycle manager.
// Nothing is persisted when one of these is returned.
var (
	ErrAgvNotFound      = errors.New("task: agv not found")
	ErrAgvOffline       = errors.New("task: agv is offline")
	ErrAgvBusy          = errors.New("task: agv already has an active task")
	ErrAgvNotAtStation  = errors.New("task: agv is not at a known station")
	ErrWrongStationType = errors.New("task: target station type does not match task type")
	ErrTaskNotFound     = errors.New("task: task not found")
	ErrTaskTerminal     = errors.New("task: task already in a terminal status")
)
