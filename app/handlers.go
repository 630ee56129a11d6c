package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/core/transport"
)

// handlers adapts decoded wire messages to lifecycle manager calls.
// Handler errors are logged, not propagated: one bad report must not
// take the subscription down.
func (s *Service) handlers() transport.Handlers {
	return transport.Handlers{
		OnStatus:      s.onStatus,
		OnProgress:    s.onProgress,
		OnException:   s.onException,
		OnLockRequest: s.onLockRequest,
	}
}

func (s *Service) onStatus(agvCode string, msg transport.StatusMessage) {
	r := task.StatusReport{
		AgvCode:        agvCode,
		Battery:        msg.Battery,
		BatteryVoltage: msg.BatteryVoltage,
		Speed:          msg.Speed,
		X:              msg.Position.X,
		Y:              msg.Position.Y,
		Angle:          msg.Position.Angle,
		StationCode:    msg.Position.StationCode,
		ErrorCode:      msg.ErrorCode,
		At:             parseWireTime(msg.Timestamp),
	}
	if err := s.manager.HandleStatus(context.Background(), r); err != nil {
		s.log.Errorf("status from %s: %v", agvCode, err)
		return
	}
	if rec, ok := s.sink.(coremetrics.VehicleStateRecorder); ok {
		ev := coremetrics.VehicleStateEvent{
			AgvCode:     agvCode,
			Connected:   true,
			Battery:     msg.Battery,
			Speed:       msg.Speed,
			StationCode: msg.Position.StationCode,
			Time:        time.Now(),
		}
		if msg.Position.X != nil {
			ev.PositionX = *msg.Position.X
		}
		if msg.Position.Y != nil {
			ev.PositionY = *msg.Position.Y
		}
		if err := rec.RecordVehicleState(ev); err != nil {
			s.log.Warnf("record vehicle state: %v", err)
		}
	}
}

func (s *Service) onProgress(agvCode string, msg transport.TaskProgressMessage) {
	taskID, err := uuid.Parse(msg.TaskID)
	if err != nil {
		s.log.Warnf("progress from %s has bad task id %q", agvCode, msg.TaskID)
		return
	}
	r := task.ProgressReport{
		AgvCode:  agvCode,
		TaskID:   taskID,
		Status:   msg.Status,
		Progress: msg.Progress,
		Message:  msg.Message,
		At:       parseWireTime(msg.Timestamp),
	}
	if err := s.manager.ApplyProgress(context.Background(), r); err != nil {
		s.log.Errorf("progress from %s for task %s: %v", agvCode, taskID, err)
	}
}

func (s *Service) onException(agvCode string, msg transport.ExceptionMessage) {
	r := task.ExceptionReport{
		AgvCode:  agvCode,
		TaskID:   msg.TaskID,
		Type:     msg.Type,
		Severity: msg.Severity,
		Message:  msg.Message,
		At:       parseWireTime(msg.Timestamp),
	}
	if msg.Position != nil {
		r.X = msg.Position.X
		r.Y = msg.Position.Y
		r.StationCode = msg.Position.StationCode
	}
	if err := s.manager.HandleException(context.Background(), r); err != nil {
		s.log.Errorf("exception from %s: %v", agvCode, err)
	}
}

func (s *Service) onLockRequest(agvCode string, msg transport.LockRequestMessage) {
	taskID, err := uuid.Parse(msg.TaskID)
	if err != nil {
		s.log.Warnf("lock request from %s has bad task id %q", agvCode, msg.TaskID)
		return
	}
	approved, reason, err := s.manager.HandleLockRequest(context.Background(), agvCode, taskID, msg.FromStationCode, msg.ToStationCode)
	if err != nil {
		s.log.Errorf("lock request from %s: %v", agvCode, err)
		return
	}
	if rec, ok := s.sink.(coremetrics.LockRecorder); ok {
		ev := coremetrics.LockEvent{
			AgvCode:     agvCode,
			ChannelName: model.Channel{From: msg.FromStationCode, To: msg.ToStationCode}.Name(),
			Approved:    approved,
			Reason:      reason,
			Time:        time.Now(),
		}
		if err := rec.RecordLockDecision(ev); err != nil {
			s.log.Warnf("record lock decision: %v", err)
		}
	}
}

// parseWireTime parses an RFC3339 wire timestamp. A missing or
// malformed value yields the zero time; handlers substitute their own
// clock in that case.
func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(transport.TimestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
