package task

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/core/transport"
)

// minProgressDelta is the smallest progress change considered
// meaningful, in percentage points. Anything below is float jitter.
const minProgressDelta = 1.0

// ProgressReport is a decoded task/progress message.
type ProgressReport struct {
	AgvCode  string
	TaskID   uuid.UUID
	Status   model.TaskStatus
	Progress *float64
	Message  string
	At       time.Time
}

// ApplyProgress applies a progress report to its task. Reports that
// change neither status nor progress by a meaningful amount are
// accepted and discarded, so at-least-once delivery costs nothing.
// Vehicle occupancy fields are never touched here.
func (m *Manager) ApplyProgress(ctx context.Context, r ProgressReport) error {
	unlock := m.lockTask(r.TaskID)
	defer unlock()

	t, err := m.tasks.GetTask(ctx, r.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrTaskNotFound
	}
	if t.Status.Terminal() {
		m.log.Debugf("progress for task %s ignored, already %s", t.ID, t.Status)
		return nil
	}

	statusChanged := r.Status != t.Status
	progressChanged := r.Progress != nil && math.Abs(*r.Progress-t.Progress) >= minProgressDelta
	if !statusChanged && !progressChanged {
		return nil
	}

	now := m.now()
	t.Status = r.Status
	if r.Progress != nil {
		t.Progress = *r.Progress
	}
	switch r.Status {
	case model.TaskExecuting:
		if t.StartedAt.IsZero() {
			t.StartedAt = now
		}
	case model.TaskCompleted:
		t.CompletedAt = now
		t.Progress = 100
	case model.TaskFailed:
		t.CompletedAt = now
		t.FailureReason = r.Message
	case model.TaskCancelled:
		t.CancelledAt = now
		t.CancelReason = r.Message
	}
	if err := m.tasks.SaveTask(ctx, t); err != nil {
		return err
	}
	if err := m.progressLogs.SaveProgressLog(ctx, &model.TaskProgressLog{
		ID:         uuid.New(),
		TaskID:     t.ID,
		AgvCode:    r.AgvCode,
		Status:     t.Status,
		Progress:   t.Progress,
		Message:    r.Message,
		ReportedAt: now,
	}); err != nil {
		return err
	}
	if t.Status.Terminal() {
		m.forgetTask(t.ID)
	}
	m.emit(eventKindFor(t.Status), *t)
	m.log.Debugf("task %s -> %s (%.0f%%)", t.ID, t.Status, t.Progress)
	return nil
}

// StatusReport is a decoded status heartbeat.
type StatusReport struct {
	AgvCode        string
	Battery        int
	BatteryVoltage float64
	Speed          float64
	X, Y, Angle    *float64
	StationCode    string
	ErrorCode      string
	At             time.Time
}

// HandleStatus updates a vehicle's physical state and connectivity.
// Task references are never mutated here; only creation and
// cancellation write those. A station change implies the vehicle left
// its previous channel, which is released explicitly.
func (m *Manager) HandleStatus(ctx context.Context, r StatusReport) error {
	agv, err := m.agvs.GetAgvByCode(ctx, r.AgvCode)
	if err != nil {
		return err
	}
	if agv == nil {
		m.log.Warnf("status from unknown agv %s dropped", r.AgvCode)
		return nil
	}

	if !agv.Connected {
		m.log.Infof("agv %s reconnected", agv.Code)
	}
	prevStation := agv.CurrentStationCode

	agv.Connected = true
	agv.BatteryVoltage = r.BatteryVoltage
	if r.Battery > 0 {
		agv.Battery = r.Battery
	} else if r.BatteryVoltage > 0 {
		agv.Battery = model.BatteryPercentFromVoltage(r.BatteryVoltage)
	}
	agv.Speed = r.Speed
	if r.X != nil {
		agv.PositionX = *r.X
	}
	if r.Y != nil {
		agv.PositionY = *r.Y
	}
	if r.Angle != nil {
		agv.Heading = *r.Angle
	}
	if r.StationCode != "" {
		agv.CurrentStationCode = r.StationCode
	}
	agv.ErrorCode = r.ErrorCode
	// LastSeen only ever advances: redelivered or reordered reports
	// carry old wire timestamps and must not rewind liveness.
	seen := r.At
	if seen.IsZero() {
		seen = m.now()
	}
	if seen.After(agv.LastSeen) {
		agv.LastSeen = seen
	}
	if err := m.agvs.SaveAgv(ctx, agv); err != nil {
		return err
	}

	if prevStation != "" && r.StationCode != "" && prevStation != r.StationCode {
		ch := model.Channel{From: prevStation, To: r.StationCode}
		if err := m.locks.ReleaseLock(agv.Code, ch); err != nil {
			m.log.Errorf("release lock %s for %s: %v", ch.Name(), agv.Code, err)
		}
	}
	return nil
}

// ExceptionReport is a decoded exception message.
type ExceptionReport struct {
	AgvCode     string
	TaskID      string
	Type        model.AgvExceptionType
	Severity    model.AgvExceptionSeverity
	Message     string
	X, Y        *float64
	StationCode string
	At          time.Time
}

// HandleException records the report. Info and Warning auto-resolve;
// Error and Critical wait for an operator. A Critical exception also
// pauses the vehicle immediately.
func (m *Manager) HandleException(ctx context.Context, r ExceptionReport) error {
	now := m.now()
	reportedAt := r.At
	if reportedAt.IsZero() {
		reportedAt = now
	}
	entry := &model.AgvExceptionLog{
		ID:          uuid.New(),
		AgvCode:     r.AgvCode,
		TaskID:      r.TaskID,
		Type:        r.Type,
		Severity:    r.Severity,
		Message:     r.Message,
		StationCode: r.StationCode,
		ReportedAt:  reportedAt,
	}
	if r.X != nil {
		entry.PositionX = *r.X
	}
	if r.Y != nil {
		entry.PositionY = *r.Y
	}
	if !r.Severity.NeedsManualResolution() {
		entry.Resolved = true
		entry.ResolvedAt = now
	}
	if err := m.exceptions.SaveExceptionLog(ctx, entry); err != nil {
		return err
	}
	m.log.Warnf("exception from %s: %s %s %q", r.AgvCode, r.Severity, r.Type, r.Message)

	if r.Severity == model.SeverityCritical {
		if err := m.SendCommand(ctx, r.AgvCode, model.CommandPause, nil); err != nil {
			m.log.Errorf("pause %s after critical exception: %v", r.AgvCode, err)
		}
	}
	return nil
}

// HandleLockRequest decides a channel reservation request and answers
// on the vehicle's lock-response topic. A denial is a normal outcome;
// the decision is returned so callers can record it.
func (m *Manager) HandleLockRequest(ctx context.Context, agvCode string, taskID uuid.UUID, fromCode, toCode string) (bool, string, error) {
	approved, reason, err := m.locks.RequestLock(pathlock.Request{
		AgvCode: agvCode,
		TaskID:  taskID,
		Channel: model.Channel{From: fromCode, To: toCode},
	})
	if err != nil {
		return false, "", err
	}
	msg := transport.LockResponseMessage{
		TaskID:          taskID.String(),
		FromStationCode: fromCode,
		ToStationCode:   toCode,
		Approved:        approved,
		Reason:          reason,
		Timestamp:       m.now().UTC().Format(transport.TimestampLayout),
	}
	if err := m.publish(transport.Topic(agvCode, transport.KindLockResponse), msg); err != nil {
		return approved, reason, err
	}
	return approved, reason, nil
}
