package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Battery voltage bounds for the linear charge estimate. 46 V reads as
// empty, 53 V as full.
const (
	MinBatteryVoltage = 46.0
	MaxBatteryVoltage = 53.0
)

// BatteryPercentFromVoltage maps a battery voltage reading to a 0-100
// charge percentage.
func BatteryPercentFromVoltage(voltage float64) int {
	if voltage <= MinBatteryVoltage {
		return 0
	}
	if voltage >= MaxBatteryVoltage {
		return 100
	}
	pct := (voltage - MinBatteryVoltage) / (MaxBatteryVoltage - MinBatteryVoltage) * 100
	return int(math.Round(pct))
}

// Agv is the server-side record of one vehicle. Connectivity is a
// single boolean axis; what the vehicle is doing is derived, never
// stored, so the two cannot drift apart.
type Agv struct {
	ID                 uuid.UUID
	Code               string
	Name               string
	Connected          bool
	Battery            int
	BatteryVoltage     float64
	Speed              float64
	PositionX          float64
	PositionY          float64
	Heading            float64
	CurrentStationCode string
	CurrentTaskID      uuid.UUID
	HasCargo           bool
	ErrorCode          string
	LastSeen           time.Time
}

// AgvActivity is the derived what-is-it-doing axis of a vehicle.
type AgvActivity int

const (
	ActivityOffline AgvActivity = iota
	ActivityIdle
	ActivityRunning
	ActivityCharging
	ActivityError
)

func (a AgvActivity) String() string {
	switch a {
	case ActivityOffline:
		return "offline"
	case ActivityIdle:
		return "idle"
	case ActivityRunning:
		return "running"
	case ActivityCharging:
		return "charging"
	case ActivityError:
		return "error"
	default:
		return "unknown"
	}
}

// Activity derives the vehicle's activity from connectivity, the last
// reported error and its current task, if any.
func (a Agv) Activity(current *Task) AgvActivity {
	if !a.Connected {
		return ActivityOffline
	}
	if a.ErrorCode != "" {
		return ActivityError
	}
	if current != nil && !current.Status.Terminal() {
		if current.Type == TaskSendToCharge {
			return ActivityCharging
		}
		return ActivityRunning
	}
	return ActivityIdle
}

// AgvExceptionSeverity grades an exception report.
type AgvExceptionSeverity int

const (
	SeverityInfo     AgvExceptionSeverity = 10
	SeverityWarning  AgvExceptionSeverity = 20
	SeverityError    AgvExceptionSeverity = 30
	SeverityCritical AgvExceptionSeverity = 40
)

func (s AgvExceptionSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// NeedsManualResolution reports whether an operator has to acknowledge
// an exception of this severity before it is considered handled.
func (s AgvExceptionSeverity) NeedsManualResolution() bool {
	return s == SeverityError || s == SeverityCritical
}

// AgvExceptionType identifies the kind of fault a vehicle reported.
type AgvExceptionType int

const (
	ExceptionObstacleDetected AgvExceptionType = 10
	ExceptionLowBattery       AgvExceptionType = 20
	ExceptionNetworkError     AgvExceptionType = 30
	ExceptionGpsError         AgvExceptionType = 31
	ExceptionEmergencyStop    AgvExceptionType = 40
	ExceptionOther            AgvExceptionType = 80
)

func (t AgvExceptionType) String() string {
	switch t {
	case ExceptionObstacleDetected:
		return "obstacle_detected"
	case ExceptionLowBattery:
		return "low_battery"
	case ExceptionNetworkError:
		return "network_error"
	case ExceptionGpsError:
		return "gps_error"
	case ExceptionEmergencyStop:
		return "emergency_stop"
	case ExceptionOther:
		return "other"
	default:
		return "unknown"
	}
}

// AgvExceptionLog stores one exception report for later triage.
type AgvExceptionLog struct {
	ID          uuid.UUID
	AgvCode     string
	TaskID      string
	Type        AgvExceptionType
	Severity    AgvExceptionSeverity
	Message     string
	PositionX   float64
	PositionY   float64
	StationCode string
	ReportedAt  time.Time
	Resolved    bool
	ResolvedAt  time.Time
	Remark      string
}

// CommandType is a control instruction pushed to a vehicle.
type CommandType int

const (
	CommandPause      CommandType = 30
	CommandResume     CommandType = 31
	CommandStop       CommandType = 40
	CommandReturnHome CommandType = 50
)

func (t CommandType) String() string {
	switch t {
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandStop:
		return "stop"
	case CommandReturnHome:
		return "return_home"
	default:
		return "unknown"
	}
}
