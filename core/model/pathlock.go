package model

import (
	"time"

	"github.com/google/uuid"
)

// PathLockStatus is the state of one reservation record.
type PathLockStatus int

const (
	LockPending  PathLockStatus = 0
	LockApproved PathLockStatus = 10
	LockRejected PathLockStatus = 20
	LockReleased PathLockStatus = 30
)

func (s PathLockStatus) String() string {
	switch s {
	case LockPending:
		return "pending"
	case LockApproved:
		return "approved"
	case LockRejected:
		return "rejected"
	case LockReleased:
		return "released"
	default:
		return "unknown"
	}
}

// PathLock is a time-bounded exclusive grant of transit rights over a
// channel. Created by a lock request and mutated only by the path
// reservation coordinator.
type PathLock struct {
	ID              uuid.UUID
	FromStationCode string
	ToStationCode   string
	AgvCode         string
	TaskID          uuid.UUID
	Status          PathLockStatus
	ChannelName     string
	Reason          string
	RequestedAt     time.Time
	ApprovedAt      time.Time
	ReleasedAt      time.Time
	ExpiresAt       time.Time
}

// Channel returns the directed movement this lock covers.
func (l PathLock) Channel() Channel {
	return Channel{From: l.FromStationCode, To: l.ToStationCode}
}

// ActiveAt reports whether the lock counts toward mutual exclusion at
// the given instant. Expired locks never block a new request.
func (l PathLock) ActiveAt(now time.Time) bool {
	if l.Status != LockApproved {
		return false
	}
	if !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
		return false
	}
	return true
}
