package app

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/core/transport"
	"github.com/openfms/agvd/infra/logger"
	"github.com/openfms/agvd/infra/storage"
	"github.com/openfms/agvd/internal/eventbus"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, []byte) error { return nil }

// lockCaptureSink records lock decisions alongside the base Sink.
type lockCaptureSink struct {
	coremetrics.NopSink
	locks []coremetrics.LockEvent
}

func (s *lockCaptureSink) RecordLockDecision(ev coremetrics.LockEvent) error {
	s.locks = append(s.locks, ev)
	return nil
}

func lockTestService(t *testing.T) (*Service, *lockCaptureSink) {
	t.Helper()
	store := storage.NewMemoryStore()
	locks, err := pathlock.NewStrategy(pathlock.Config{SystemCode: pathlock.SystemSingleLane}, pathlock.Deps{
		Store: store,
		Log:   logger.NopLogger{},
	})
	require.NoError(t, err)
	mgr := task.NewManager(task.Deps{
		Tasks:        store,
		Agvs:         store,
		Routes:       store,
		ProgressLogs: store,
		Exceptions:   store,
		Locks:        locks,
		Publisher:    nopPublisher{},
		Bus:          eventbus.NewTyped[task.TaskEvent](),
		Log:          logger.NopLogger{},
	})
	sink := &lockCaptureSink{}
	return &Service{manager: mgr, sink: sink, log: logger.NopLogger{}}, sink
}

func TestOnLockRequestRecordsDecision(t *testing.T) {
	svc, sink := lockTestService(t)

	svc.onLockRequest("V001", transport.LockRequestMessage{
		TaskID:          uuid.NewString(),
		FromStationCode: "S1",
		ToStationCode:   "S2",
	})
	svc.onLockRequest("V002", transport.LockRequestMessage{
		TaskID:          uuid.NewString(),
		FromStationCode: "S2",
		ToStationCode:   "S1",
	})

	require.Len(t, sink.locks, 2)
	first, second := sink.locks[0], sink.locks[1]
	assert.Equal(t, "V001", first.AgvCode)
	assert.Equal(t, "S1->S2", first.ChannelName)
	assert.True(t, first.Approved)
	assert.Equal(t, "V002", second.AgvCode)
	assert.False(t, second.Approved)
	assert.NotEmpty(t, second.Reason)
}

func TestOnLockRequestBadTaskID(t *testing.T) {
	svc, sink := lockTestService(t)

	svc.onLockRequest("V001", transport.LockRequestMessage{
		TaskID:          "not-a-uuid",
		FromStationCode: "S1",
		ToStationCode:   "S2",
	})
	assert.Empty(t, sink.locks)
}
