// Package health implements the periodic fleet sweep: vehicles silent
// for longer than the offline threshold are marked offline, their
// tasks cancelled and their reservations released. The scheduler
// serializes runs; the sweep itself never panics outward.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/logger"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/monitoring"
	"github.com/openfms/agvd/core/task"
)

// JobName identifies sweep runs in the job log.
const JobName = "fleet-health-sweep"

// AgvLister exposes the vehicle records the sweep scans.
type AgvLister interface {
	ListConnectedAgvs(ctx context.Context) ([]model.Agv, error)
	SaveAgv(ctx context.Context, a *model.Agv) error
}

// TaskFinder lists a vehicle's non-terminal tasks.
type TaskFinder interface {
	ListActiveTasksByAgv(ctx context.Context, agvCode string) ([]model.Task, error)
}

// TaskCanceller cancels one task. Implemented by the lifecycle manager.
type TaskCanceller interface {
	CancelTask(ctx context.Context, id uuid.UUID, reason, requestedBy string) error
}

// LockJanitor is the slice of the lock strategy the sweep drives.
type LockJanitor interface {
	ClearAgvLocks(agvCode string) (int, error)
	ReapExpired() (int, error)
}

// JobLogStore records every sweep run, successful or not.
type JobLogStore interface {
	SaveJobRunLog(ctx context.Context, l *model.JobRunLog) error
}

// Config holds the sweep's single knob.
type Config struct {
	// OfflineThreshold is how long a vehicle may stay silent before it
	// is presumed lost.
	OfflineThreshold time.Duration `koanf:"offline_threshold"`
}

// Report summarizes one sweep run.
type Report struct {
	StaleAgvs      int
	CancelledTasks int
	ReapedLocks    int
	Duration       time.Duration
}

// Monitor runs the fleet health sweep.
type Monitor struct {
	cfg       Config
	agvs      AgvLister
	tasks     TaskFinder
	canceller TaskCanceller
	locks     LockJanitor
	jobLogs   JobLogStore
	mon       monitoring.Monitor
	log       logger.Logger
	now       func() time.Time
}

// Deps carries the monitor's collaborators.
type Deps struct {
	Agvs      AgvLister
	Tasks     TaskFinder
	Canceller TaskCanceller
	Locks     LockJanitor
	JobLogs   JobLogStore
	Monitor   monitoring.Monitor
	Log       logger.Logger
	Now       func() time.Time
}

// NewMonitor builds a health monitor.
func NewMonitor(cfg Config, deps Deps) *Monitor {
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NopMonitor{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Monitor{
		cfg:       cfg,
		agvs:      deps.Agvs,
		tasks:     deps.Tasks,
		canceller: deps.Canceller,
		locks:     deps.Locks,
		jobLogs:   deps.JobLogs,
		mon:       deps.Monitor,
		log:       deps.Log,
		now:       deps.Now,
	}
}

// Sweep performs one run. It always writes a job-run record; failures
// are captured and returned, never panicked, so the scheduler keeps
// ticking.
func (m *Monitor) Sweep(ctx context.Context) (Report, error) {
	start := m.now()
	report, err := m.sweep(ctx)
	report.Duration = m.now().Sub(start)

	entry := &model.JobRunLog{
		ID:            uuid.New(),
		JobName:       JobName,
		ExecutedAt:    start,
		Result:        model.JobRunSuccess,
		AffectedCount: report.StaleAgvs + report.CancelledTasks + report.ReapedLocks,
		DurationMs:    report.Duration.Milliseconds(),
		Message: fmt.Sprintf("stale=%d cancelled=%d reaped=%d",
			report.StaleAgvs, report.CancelledTasks, report.ReapedLocks),
	}
	if err != nil {
		entry.Result = model.JobRunFailed
		entry.ErrorMessage = err.Error()
		m.mon.CaptureException(err, map[string]string{"job": JobName})
		m.log.Errorf("health sweep failed: %v", err)
	}
	if logErr := m.jobLogs.SaveJobRunLog(ctx, entry); logErr != nil {
		m.log.Errorf("write job log: %v", logErr)
		if err == nil {
			err = logErr
		}
	}
	return report, err
}

func (m *Monitor) sweep(ctx context.Context) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health: sweep panic: %v", r)
		}
	}()

	agvs, err := m.agvs.ListConnectedAgvs(ctx)
	if err != nil {
		return report, err
	}

	now := m.now()
	cutoff := now.Add(-m.cfg.OfflineThreshold)
	for i := range agvs {
		agv := agvs[i]
		if !agv.LastSeen.Before(cutoff) {
			continue
		}
		agv.Connected = false
		if saveErr := m.agvs.SaveAgv(ctx, &agv); saveErr != nil {
			return report, saveErr
		}
		report.StaleAgvs++
		silence := now.Sub(agv.LastSeen).Round(time.Second)
		m.log.Warnf("agv %s silent for %s, marked offline", agv.Code, silence)

		if _, lockErr := m.locks.ClearAgvLocks(agv.Code); lockErr != nil {
			return report, lockErr
		}

		active, listErr := m.tasks.ListActiveTasksByAgv(ctx, agv.Code)
		if listErr != nil {
			return report, listErr
		}
		reason := fmt.Sprintf("agv %s offline: no status for %s", agv.Code, silence)
		for _, t := range active {
			cancelErr := m.canceller.CancelTask(ctx, t.ID, reason, JobName)
			if cancelErr != nil && !errors.Is(cancelErr, task.ErrTaskTerminal) {
				return report, cancelErr
			}
			if cancelErr == nil {
				report.CancelledTasks++
			}
		}
	}

	reaped, reapErr := m.locks.ReapExpired()
	if reapErr != nil {
		return report, reapErr
	}
	report.ReapedLocks = reaped
	return report, nil
}
