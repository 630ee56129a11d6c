package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/internal/eventbus"
)

type syncSink struct {
	mu      sync.Mutex
	records []coremetrics.TaskEventRecord
	done    chan struct{}
}

func (s *syncSink) RecordTaskEvent(ev coremetrics.TaskEventRecord) error {
	s.mu.Lock()
	s.records = append(s.records, ev)
	s.mu.Unlock()
	select {
	case s.done <- struct{}{}:
	default:
	}
	return nil
}

func TestRecorderDrainsBus(t *testing.T) {
	bus := eventbus.NewTyped[task.TaskEvent]()
	sink := &syncSink{done: make(chan struct{}, 1)}
	rec := NewRecorder(bus, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	id := uuid.New()
	bus.Publish(task.TaskEvent{
		Kind:    task.EventCreated,
		Task:    model.Task{ID: id, Status: model.TaskAssigned},
		AgvCode: "V001",
		At:      time.Now(),
	})

	select {
	case <-sink.done:
	case <-time.After(time.Second):
		t.Fatalf("event not recorded")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	got := sink.records[0]
	if got.TaskID != id.String() || got.AgvCode != "V001" || got.Event != task.EventCreated {
		t.Fatalf("unexpected record: %+v", got)
	}
}
