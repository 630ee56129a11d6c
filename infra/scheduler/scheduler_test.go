package scheduler

import (
	"testing"
	"time"

	"github.com/openfms/agvd/infra/logger"
)

func TestAddJobInvalidSpec(t *testing.T) {
	s := New(logger.NopLogger{})
	if _, err := s.AddJob("not a cron spec", "bad", func() {}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := New(logger.NopLogger{})
	ran := make(chan struct{}, 1)
	if _, err := s.AddJob("@every 100ms", "tick", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job never ran")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	if c.SweepSchedule == "" {
		t.Fatalf("sweep schedule not defaulted")
	}
}
