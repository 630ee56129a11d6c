// Package scheduler runs recurring background jobs on cron schedules.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/openfms/agvd/infra/logger"
)

// Config holds the background job schedules.
type Config struct {
	// SweepSchedule is the fleet health sweep cron expression. Supports
	// the standard 5-field form and @every descriptors.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// SetDefaults fills unset schedules.
func (c *Config) SetDefaults() {
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 30s"
	}
}

// Scheduler wraps a cron runner. Jobs are skipped when the previous
// run is still in flight, and panics inside a job are recovered.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

// New creates a stopped scheduler. Call Start after registering jobs.
func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NopLogger{}
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
		log: log,
	}
}

// AddJob registers a named job on the given cron spec.
func (s *Scheduler) AddJob(spec, name string, job func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("scheduler: add job %s (%q): %w", name, spec, err)
	}
	s.log.Infof("scheduled job %s: %s", name, spec)
	return id, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new runs and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts our logger to the cron.Logger interface.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debugw(msg, kvToMap(kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Errorf("%s: %v %v", msg, err, kvToMap(kv))
}

func kvToMap(kv []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		m[k] = kv[i+1]
	}
	return m
}
