package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
)

// GORM records mirror core/model types. The core never sees these;
// conversion happens at the store boundary.

// AgvRecord is the persisted vehicle row.
type AgvRecord struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Code               string `gorm:"size:64;uniqueIndex;not null"`
	Name               string `gorm:"size:128"`
	Connected          bool   `gorm:"index"`
	Battery            int
	BatteryVoltage     float64
	Speed              float64
	PositionX          float64
	PositionY          float64
	Heading            float64
	CurrentStationCode string `gorm:"size:64"`
	CurrentTaskID      string `gorm:"size:36"`
	HasCargo           bool
	ErrorCode          string `gorm:"size:64"`
	LastSeen           time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (AgvRecord) TableName() string { return "agvs" }

// TaskRecord is the persisted task row.
type TaskRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	Type             int
	Status           int `gorm:"index"`
	Priority         int
	StartStationCode string `gorm:"size:64"`
	EndStationCode   string `gorm:"size:64"`
	Description      string `gorm:"type:text"`
	AssignedAgvCode  string `gorm:"size:64;index"`
	RequestedBy      string `gorm:"size:64"`
	Progress         float64
	CancelReason     string `gorm:"type:text"`
	FailureReason    string `gorm:"type:text"`
	CreatedAt        time.Time
	AssignedAt       time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	CancelledAt      time.Time
	UpdatedAt        time.Time
}

func (TaskRecord) TableName() string { return "tasks" }

// TaskRouteRecord stores the materialized route artifacts; checkpoints
// and segments are JSON columns, they are written once and read whole.
type TaskRouteRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	TaskID           string `gorm:"size:36;index"`
	StartStationCode string `gorm:"size:64"`
	EndStationCode   string `gorm:"size:64"`
	TotalDistance    float64
	Checkpoints      string `gorm:"type:text"`
	Segments         string `gorm:"type:text"`
	CreatedAt        time.Time
}

func (TaskRouteRecord) TableName() string { return "task_routes" }

// PathLockRecord is the audit trail of lock decisions.
type PathLockRecord struct {
	ID              string `gorm:"primaryKey;size:36"`
	FromStationCode string `gorm:"size:64"`
	ToStationCode   string `gorm:"size:64"`
	AgvCode         string `gorm:"size:64;index"`
	TaskID          string `gorm:"size:36;index"`
	Status          int    `gorm:"index"`
	ChannelName     string `gorm:"size:130;index"`
	Reason          string `gorm:"type:text"`
	RequestedAt     time.Time
	ApprovedAt      time.Time
	ReleasedAt      time.Time
	ExpiresAt       time.Time
}

func (PathLockRecord) TableName() string { return "path_locks" }

// TaskProgressLogRecord is one meaningful progress mutation.
type TaskProgressLogRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	LogID      string `gorm:"size:36;uniqueIndex"`
	TaskID     string `gorm:"size:36;index"`
	AgvCode    string `gorm:"size:64"`
	Status     int
	Progress   float64
	Message    string `gorm:"type:text"`
	ReportedAt time.Time
}

func (TaskProgressLogRecord) TableName() string { return "task_progress_logs" }

// AgvExceptionLogRecord is one vehicle exception report.
type AgvExceptionLogRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	AgvCode     string `gorm:"size:64;index"`
	TaskID      string `gorm:"size:36"`
	Type        int
	Severity    int `gorm:"index"`
	Message     string `gorm:"type:text"`
	PositionX   float64
	PositionY   float64
	StationCode string `gorm:"size:64"`
	ReportedAt  time.Time
	Resolved    bool `gorm:"index"`
	ResolvedAt  time.Time
	Remark      string `gorm:"type:text"`
}

func (AgvExceptionLogRecord) TableName() string { return "agv_exception_logs" }

// JobRunLogRecord is one background job execution.
type JobRunLogRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	JobName       string `gorm:"size:64;index"`
	ExecutedAt    time.Time
	Result        int
	Message       string `gorm:"type:text"`
	AffectedCount int
	DurationMs    int64
	ErrorMessage  string `gorm:"type:text"`
}

func (JobRunLogRecord) TableName() string { return "job_run_logs" }

// NodeRecord is one map graph vertex.
type NodeRecord struct {
	ID    string `gorm:"primaryKey;size:36"`
	MapID string `gorm:"size:36;index"`
	X     float64
	Y     float64
}

func (NodeRecord) TableName() string { return "map_nodes" }

// EdgeRecord is one map graph arc.
type EdgeRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	MapID         string `gorm:"size:36;index"`
	StartNodeID   string `gorm:"size:36"`
	EndNodeID     string `gorm:"size:36"`
	Bidirectional bool
	Length        float64
}

func (EdgeRecord) TableName() string { return "map_edges" }

// StationRecord is one named station.
type StationRecord struct {
	ID       string `gorm:"primaryKey;size:36"`
	MapID    string `gorm:"size:36;index"`
	NodeID   string `gorm:"size:36"`
	Code     string `gorm:"size:64;uniqueIndex"`
	Name     string `gorm:"size:128"`
	Type     int
	Priority int
}

func (StationRecord) TableName() string { return "stations" }

// AllRecords lists every table for migration.
func AllRecords() []any {
	return []any{
		&AgvRecord{},
		&TaskRecord{},
		&TaskRouteRecord{},
		&PathLockRecord{},
		&TaskProgressLogRecord{},
		&AgvExceptionLogRecord{},
		&JobRunLogRecord{},
		&NodeRecord{},
		&EdgeRecord{},
		&StationRecord{},
	}
}

func uuidOrNil(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func agvToRecord(a *model.Agv) AgvRecord {
	return AgvRecord{
		ID:                 a.ID.String(),
		Code:               a.Code,
		Name:               a.Name,
		Connected:          a.Connected,
		Battery:            a.Battery,
		BatteryVoltage:     a.BatteryVoltage,
		Speed:              a.Speed,
		PositionX:          a.PositionX,
		PositionY:          a.PositionY,
		Heading:            a.Heading,
		CurrentStationCode: a.CurrentStationCode,
		CurrentTaskID:      uuidString(a.CurrentTaskID),
		HasCargo:           a.HasCargo,
		ErrorCode:          a.ErrorCode,
		LastSeen:           a.LastSeen,
	}
}

func recordToAgv(r AgvRecord) model.Agv {
	return model.Agv{
		ID:                 uuidOrNil(r.ID),
		Code:               r.Code,
		Name:               r.Name,
		Connected:          r.Connected,
		Battery:            r.Battery,
		BatteryVoltage:     r.BatteryVoltage,
		Speed:              r.Speed,
		PositionX:          r.PositionX,
		PositionY:          r.PositionY,
		Heading:            r.Heading,
		CurrentStationCode: r.CurrentStationCode,
		CurrentTaskID:      uuidOrNil(r.CurrentTaskID),
		HasCargo:           r.HasCargo,
		ErrorCode:          r.ErrorCode,
		LastSeen:           r.LastSeen,
	}
}

func taskToRecord(t *model.Task) TaskRecord {
	return TaskRecord{
		ID:               t.ID.String(),
		Type:             int(t.Type),
		Status:           int(t.Status),
		Priority:         t.Priority,
		StartStationCode: t.StartStationCode,
		EndStationCode:   t.EndStationCode,
		Description:      t.Description,
		AssignedAgvCode:  t.AssignedAgvCode,
		RequestedBy:      t.RequestedBy,
		Progress:         t.Progress,
		CancelReason:     t.CancelReason,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt,
		AssignedAt:       t.AssignedAt,
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
		CancelledAt:      t.CancelledAt,
	}
}

func recordToTask(r TaskRecord) model.Task {
	return model.Task{
		ID:               uuidOrNil(r.ID),
		Type:             model.TaskType(r.Type),
		Status:           model.TaskStatus(r.Status),
		Priority:         r.Priority,
		StartStationCode: r.StartStationCode,
		EndStationCode:   r.EndStationCode,
		Description:      r.Description,
		AssignedAgvCode:  r.AssignedAgvCode,
		RequestedBy:      r.RequestedBy,
		Progress:         r.Progress,
		CancelReason:     r.CancelReason,
		FailureReason:    r.FailureReason,
		CreatedAt:        r.CreatedAt,
		AssignedAt:       r.AssignedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		CancelledAt:      r.CancelledAt,
	}
}

func routeToRecord(r *model.TaskRoute) (TaskRouteRecord, error) {
	checkpoints, err := json.Marshal(r.Checkpoints)
	if err != nil {
		return TaskRouteRecord{}, fmt.Errorf("storage: marshal checkpoints: %w", err)
	}
	segments, err := json.Marshal(r.Segments)
	if err != nil {
		return TaskRouteRecord{}, fmt.Errorf("storage: marshal segments: %w", err)
	}
	return TaskRouteRecord{
		ID:               r.ID.String(),
		TaskID:           r.TaskID.String(),
		StartStationCode: r.StartStationCode,
		EndStationCode:   r.EndStationCode,
		TotalDistance:    r.TotalDistance,
		Checkpoints:      string(checkpoints),
		Segments:         string(segments),
		CreatedAt:        r.CreatedAt,
	}, nil
}

func recordToRoute(r TaskRouteRecord) (model.TaskRoute, error) {
	out := model.TaskRoute{
		ID:               uuidOrNil(r.ID),
		TaskID:           uuidOrNil(r.TaskID),
		StartStationCode: r.StartStationCode,
		EndStationCode:   r.EndStationCode,
		TotalDistance:    r.TotalDistance,
		CreatedAt:        r.CreatedAt,
	}
	if r.Checkpoints != "" {
		if err := json.Unmarshal([]byte(r.Checkpoints), &out.Checkpoints); err != nil {
			return out, fmt.Errorf("storage: unmarshal checkpoints: %w", err)
		}
	}
	if r.Segments != "" {
		if err := json.Unmarshal([]byte(r.Segments), &out.Segments); err != nil {
			return out, fmt.Errorf("storage: unmarshal segments: %w", err)
		}
	}
	return out, nil
}

func lockToRecord(l model.PathLock) PathLockRecord {
	return PathLockRecord{
		ID:              l.ID.String(),
		FromStationCode: l.FromStationCode,
		ToStationCode:   l.ToStationCode,
		AgvCode:         l.AgvCode,
		TaskID:          uuidString(l.TaskID),
		Status:          int(l.Status),
		ChannelName:     l.ChannelName,
		Reason:          l.Reason,
		RequestedAt:     l.RequestedAt,
		ApprovedAt:      l.ApprovedAt,
		ReleasedAt:      l.ReleasedAt,
		ExpiresAt:       l.ExpiresAt,
	}
}
