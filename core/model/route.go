package model

import (
	"time"

	"github.com/google/uuid"
)

// Route artifact sequence numbers advance by this step so operators can
// insert entries manually without renumbering.
const RouteSeqStep = 10

// CheckpointType positions a checkpoint within its route.
type CheckpointType int

const (
	CheckpointStart  CheckpointType = 10
	CheckpointMiddle CheckpointType = 20
	CheckpointEnd    CheckpointType = 30
)

func (t CheckpointType) String() string {
	switch t {
	case CheckpointStart:
		return "start"
	case CheckpointMiddle:
		return "middle"
	case CheckpointEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Checkpoint is a station the vehicle must pass and report against.
// Generated once at task creation, read-only afterward.
type Checkpoint struct {
	Seq         int
	StationCode string
	Type        CheckpointType
}

// Direction tells the vehicle which way to traverse a segment's edge.
type Direction int

const (
	DirectionForward  Direction = 10
	DirectionBackward Direction = 20
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "unknown"
	}
}

// FinalAction is what the vehicle does at the end of a segment.
type FinalAction int

const (
	FinalNone FinalAction = 0
	FinalStop FinalAction = 10
)

func (a FinalAction) String() string {
	switch a {
	case FinalNone:
		return "none"
	case FinalStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Segment is one edge traversal within a planned route.
type Segment struct {
	Seq         int
	EdgeID      uuid.UUID
	Direction   Direction
	FinalAction FinalAction
}

// TaskRoute bundles the materialized artifacts persisted for one task.
type TaskRoute struct {
	ID               uuid.UUID
	TaskID           uuid.UUID
	StartStationCode string
	EndStationCode   string
	TotalDistance    float64
	Checkpoints      []Checkpoint
	Segments         []Segment
	CreatedAt        time.Time
}

// JobRunResult is the outcome of one background job run.
type JobRunResult int

const (
	JobRunSuccess JobRunResult = 10
	JobRunFailed  JobRunResult = 20
)

func (r JobRunResult) String() string {
	switch r {
	case JobRunSuccess:
		return "success"
	case JobRunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobRunLog records one execution of a background job, successful or
// not. Every sweep writes one.
type JobRunLog struct {
	ID            uuid.UUID
	JobName       string
	ExecutedAt    time.Time
	Result        JobRunResult
	Message       string
	AffectedCount int
	DurationMs    int64
	ErrorMessage  string
}
