// Package pathlock arbitrates exclusive transit rights over channels,
// the directed station-to-station movements vehicles request before
// entering a shared stretch of the facility.
package pathlock

import (
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
)

// Request is one vehicle asking for transit rights over one channel.
type Request struct {
	AgvCode string
	TaskID  uuid.UUID
	Channel model.Channel
}

// Strategy decides lock requests. Implementations must be safe for
// concurrent use; a decision and its recording are atomic.
type Strategy interface {
	// RequestLock grants or denies the request. A denial is a normal
	// outcome carried in (approved, reason); err is reserved for
	// store failures.
	RequestLock(req Request) (approved bool, reason string, err error)
	// ReleaseLock releases the active lock the vehicle holds on the
	// channel, if any.
	ReleaseLock(agvCode string, ch model.Channel) error
	// ClearAgvLocks releases every active lock the vehicle holds and
	// returns how many were released.
	ClearAgvLocks(agvCode string) (int, error)
	// GetActiveChannels lists the channels currently locked.
	GetActiveChannels() []model.Channel
	// ReleaseChannel frees the channel if its owning task is already
	// cancelled or failed. Returns how many locks were released.
	ReleaseChannel(ch model.Channel) (int, error)
	// ReapExpired releases locks past their expiry and returns the count.
	ReapExpired() (int, error)
}

// ConflictFunc reports whether an existing active lock blocks a new
// request. Deployments can inject their own predicate.
type ConflictFunc func(existing model.PathLock, req Request) bool

// EdgeResolver maps a channel to the physical edge it crosses. Used by
// the single-lane predicate to detect two channels sharing one lane.
type EdgeResolver func(ch model.Channel) (edgeID uuid.UUID, ok bool)

// TaskStatusFunc looks up the current status of a task.
type TaskStatusFunc func(taskID uuid.UUID) (model.TaskStatus, bool)

// Store persists lock records for audit. Every state transition of a
// lock is written through.
type Store interface {
	SaveLock(l model.PathLock) error
}

// Config selects the strategy and sets lock lifetime.
type Config struct {
	// SystemCode picks the conflict strategy: "single-lane" (default)
	// or "multi-lane".
	SystemCode string `koanf:"system_code"`
	// LockTTL bounds how long an approved lock stays active. Zero
	// means locks never expire on their own.
	LockTTL time.Duration `koanf:"lock_ttl"`
}
