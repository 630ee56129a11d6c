package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/core/planner"
	"github.com/openfms/agvd/core/transport"
	"github.com/openfms/agvd/infra/logger"
	"github.com/openfms/agvd/internal/eventbus"
)

type memStores struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]model.Task
	agvs       map[string]model.Agv
	routes     []model.TaskRoute
	progress   []model.TaskProgressLog
	exceptions []model.AgvExceptionLog

	routeErr error
}

func newMemStores() *memStores {
	return &memStores{
		tasks: map[uuid.UUID]model.Task{},
		agvs:  map[string]model.Agv{},
	}
}

func (s *memStores) GetTask(_ context.Context, id uuid.UUID) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *memStores) SaveTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStores) GetAgvByCode(_ context.Context, code string) (*model.Agv, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agvs[code]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (s *memStores) SaveAgv(_ context.Context, a *model.Agv) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agvs[a.Code] = *a
	return nil
}

func (s *memStores) SaveRoute(_ context.Context, r *model.TaskRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routeErr != nil {
		return s.routeErr
	}
	s.routes = append(s.routes, *r)
	return nil
}

func (s *memStores) SaveProgressLog(_ context.Context, l *model.TaskProgressLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, *l)
	return nil
}

func (s *memStores) SaveExceptionLog(_ context.Context, l *model.AgvExceptionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, *l)
	return nil
}

type published struct {
	topic   string
	payload []byte
}

type capturePub struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *capturePub) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

func (p *capturePub) byTopicSuffix(suffix string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if strings.HasSuffix(m.topic, suffix) {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	mgr    *Manager
	stores *memStores
	pub    *capturePub
	locks  pathlock.Strategy
	bus    *Bus
	agv    model.Agv
}

// testFixture builds a small L-shaped map: N1(0,0)-N2(10,0)-N3(10,10)
// with S1 (standby) on N1 and S2 (pickup) on N3, and vehicle V001
// idle at S1.
func testFixture(t *testing.T) *fixture {
	t.Helper()
	mapID := uuid.New()
	n1 := model.Node{ID: uuid.New(), MapID: mapID, X: 0, Y: 0}
	n2 := model.Node{ID: uuid.New(), MapID: mapID, X: 10, Y: 0}
	n3 := model.Node{ID: uuid.New(), MapID: mapID, X: 10, Y: 10}
	e1 := model.Edge{ID: uuid.New(), MapID: mapID, StartNodeID: n1.ID, EndNodeID: n2.ID, Bidirectional: true, Length: 10}
	e2 := model.Edge{ID: uuid.New(), MapID: mapID, StartNodeID: n2.ID, EndNodeID: n3.ID, Bidirectional: true, Length: 10}
	stations := []model.Station{
		{ID: uuid.New(), MapID: mapID, NodeID: n1.ID, Code: "S1", Type: model.StationStandby},
		{ID: uuid.New(), MapID: mapID, NodeID: n3.ID, Code: "S2", Type: model.StationPickup},
	}
	pl := planner.New([]model.Node{n1, n2, n3}, []model.Edge{e1, e2}, stations, logger.NopLogger{})

	stores := newMemStores()
	agv := model.Agv{ID: uuid.New(), Code: "V001", Connected: true, CurrentStationCode: "S1", Battery: 90}
	stores.agvs[agv.Code] = agv

	locks, err := pathlock.NewStrategy(pathlock.Config{LockTTL: time.Minute}, pathlock.Deps{Log: logger.NopLogger{}})
	require.NoError(t, err)

	pub := &capturePub{}
	bus := eventbus.NewTyped[TaskEvent]()
	mgr := NewManager(Deps{
		Tasks:        stores,
		Agvs:         stores,
		Routes:       stores,
		ProgressLogs: stores,
		Exceptions:   stores,
		Planner:      pl,
		Locks:        locks,
		Publisher:    pub,
		Bus:          bus,
		Log:          logger.NopLogger{},
	})
	return &fixture{mgr: mgr, stores: stores, pub: pub, locks: locks, bus: bus, agv: agv}
}

func createReq() CreateTaskRequest {
	return CreateTaskRequest{
		Type:              model.TaskCallForLoading,
		AgvCode:           "V001",
		TargetStationCode: "S2",
		RequestedBy:       "operator",
	}
}

func TestCreateTaskAssignsAndPublishes(t *testing.T) {
	f := testFixture(t)
	events := f.bus.Subscribe()

	task, err := f.mgr.CreateTask(context.Background(), createReq())
	require.NoError(t, err)

	assert.Equal(t, model.TaskAssigned, task.Status)
	assert.Equal(t, DefaultPriority, task.Priority)
	assert.Equal(t, "S1", task.StartStationCode)
	assert.Equal(t, "S2", task.EndStationCode)
	assert.False(t, task.AssignedAt.IsZero())

	agv, err := f.stores.GetAgvByCode(context.Background(), "V001")
	require.NoError(t, err)
	assert.Equal(t, task.ID, agv.CurrentTaskID)

	require.Len(t, f.stores.routes, 1)
	route := f.stores.routes[0]
	assert.Equal(t, task.ID, route.TaskID)
	assert.InDelta(t, 20.0, route.TotalDistance, 1e-9)
	require.Len(t, route.Checkpoints, 2)
	assert.Equal(t, "S1", route.Checkpoints[0].StationCode)
	assert.Equal(t, model.CheckpointStart, route.Checkpoints[0].Type)
	assert.Equal(t, "S2", route.Checkpoints[1].StationCode)
	assert.Equal(t, model.CheckpointEnd, route.Checkpoints[1].Type)
	require.Len(t, route.Segments, 2)
	assert.Equal(t, model.FinalStop, route.Segments[1].FinalAction)

	assigns := f.pub.byTopicSuffix("task/assign")
	require.Len(t, assigns, 1)
	assert.Equal(t, "agv/V001/task/assign", assigns[0].topic)
	var msg transport.TaskAssignMessage
	require.NoError(t, json.Unmarshal(assigns[0].payload, &msg))
	assert.Equal(t, task.ID.String(), msg.TaskID)
	require.Len(t, msg.Checkpoints, 2)
	assert.Equal(t, "S1", msg.Checkpoints[0].StationCode)
	assert.Equal(t, "start", msg.Checkpoints[0].Type)

	select {
	case ev := <-events:
		assert.Equal(t, EventCreated, ev.Kind)
		assert.Equal(t, task.ID, ev.Task.ID)
	default:
		t.Fatal("expected a task event")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown agv", func(t *testing.T) {
		f := testFixture(t)
		req := createReq()
		req.AgvCode = "V404"
		_, err := f.mgr.CreateTask(ctx, req)
		assert.ErrorIs(t, err, ErrAgvNotFound)
	})

	t.Run("offline agv", func(t *testing.T) {
		f := testFixture(t)
		a := f.agv
		a.Connected = false
		f.stores.agvs[a.Code] = a
		_, err := f.mgr.CreateTask(ctx, createReq())
		assert.ErrorIs(t, err, ErrAgvOffline)
	})

	t.Run("busy agv", func(t *testing.T) {
		f := testFixture(t)
		_, err := f.mgr.CreateTask(ctx, createReq())
		require.NoError(t, err)
		_, err = f.mgr.CreateTask(ctx, createReq())
		assert.ErrorIs(t, err, ErrAgvBusy)
	})

	t.Run("agv not at a station", func(t *testing.T) {
		f := testFixture(t)
		a := f.agv
		a.CurrentStationCode = ""
		f.stores.agvs[a.Code] = a
		_, err := f.mgr.CreateTask(ctx, createReq())
		assert.ErrorIs(t, err, ErrAgvNotAtStation)
	})

	t.Run("wrong target station type", func(t *testing.T) {
		f := testFixture(t)
		req := createReq()
		req.Type = model.TaskSendToCharge // S2 is a pickup station
		_, err := f.mgr.CreateTask(ctx, req)
		assert.ErrorIs(t, err, ErrWrongStationType)
	})
}

func TestCreateTaskFailureLeavesNoState(t *testing.T) {
	f := testFixture(t)
	req := createReq()
	req.Type = model.TaskSendToCharge
	_, err := f.mgr.CreateTask(context.Background(), req)
	require.Error(t, err)

	assert.Empty(t, f.stores.tasks)
	assert.Empty(t, f.stores.routes)
	assert.Empty(t, f.pub.msgs)
	agv, _ := f.stores.GetAgvByCode(context.Background(), "V001")
	assert.Equal(t, uuid.Nil, agv.CurrentTaskID)
}

func TestCreateTaskCompensatesAfterPartialWrite(t *testing.T) {
	ctx := context.Background()

	// Once the task row exists, a later failure must not strand it
	// Assigned: the task ends up Failed and the vehicle stays free.
	t.Run("route store failure", func(t *testing.T) {
		f := testFixture(t)
		f.stores.routeErr = errors.New("disk full")

		_, err := f.mgr.CreateTask(ctx, createReq())
		require.ErrorContains(t, err, "disk full")

		require.Len(t, f.stores.tasks, 1)
		for _, saved := range f.stores.tasks {
			assert.Equal(t, model.TaskFailed, saved.Status)
			assert.Equal(t, "disk full", saved.FailureReason)
			assert.False(t, saved.CompletedAt.IsZero())
		}
		agv, err := f.stores.GetAgvByCode(ctx, "V001")
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, agv.CurrentTaskID)
		assert.Empty(t, f.pub.msgs)
	})

	t.Run("assign publish failure", func(t *testing.T) {
		f := testFixture(t)
		f.pub.err = errors.New("broker gone")

		_, err := f.mgr.CreateTask(ctx, createReq())
		require.ErrorContains(t, err, "broker gone")

		require.Len(t, f.stores.tasks, 1)
		for _, saved := range f.stores.tasks {
			assert.Equal(t, model.TaskFailed, saved.Status)
		}
		agv, err := f.stores.GetAgvByCode(ctx, "V001")
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, agv.CurrentTaskID)
	})
}

func TestCreateTaskAfterTerminalTaskAllowed(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	first, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)
	done := 100.0
	require.NoError(t, f.mgr.ApplyProgress(ctx, ProgressReport{
		AgvCode: "V001", TaskID: first.ID, Status: model.TaskCompleted, Progress: &done,
	}))

	// The stale task reference on the vehicle points at a finished
	// task and must not block new work.
	_, err = f.mgr.CreateTask(ctx, createReq())
	assert.NoError(t, err)
}

func TestCancelTaskReleasesEverything(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)

	ok, _, err := f.locks.RequestLock(pathlock.Request{AgvCode: "V001", TaskID: task.ID, Channel: model.Channel{From: "S1", To: "S2"}})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.mgr.CancelTask(ctx, task.ID, "operator abort", "operator"))

	got, _ := f.stores.GetTask(ctx, task.ID)
	assert.Equal(t, model.TaskCancelled, got.Status)
	assert.Equal(t, "operator abort", got.CancelReason)
	assert.False(t, got.CancelledAt.IsZero())

	agv, _ := f.stores.GetAgvByCode(ctx, "V001")
	assert.Equal(t, uuid.Nil, agv.CurrentTaskID)
	assert.Empty(t, f.locks.GetActiveChannels())

	cancels := f.pub.byTopicSuffix("task/cancel")
	require.Len(t, cancels, 1)
	var msg transport.TaskCancelMessage
	require.NoError(t, json.Unmarshal(cancels[0].payload, &msg))
	assert.Equal(t, task.ID.String(), msg.TaskID)
	assert.Equal(t, "operator abort", msg.Reason)
}

func TestCancelTaskTerminalIsNoOp(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)
	require.NoError(t, f.mgr.CancelTask(ctx, task.ID, "first", "op"))

	before, _ := f.stores.GetTask(ctx, task.ID)
	err = f.mgr.CancelTask(ctx, task.ID, "second", "op")
	assert.ErrorIs(t, err, ErrTaskTerminal)

	after, _ := f.stores.GetTask(ctx, task.ID)
	assert.Equal(t, before.CancelReason, after.CancelReason)
	assert.Equal(t, before.CancelledAt, after.CancelledAt)
}

func TestCancelTaskUnknown(t *testing.T) {
	f := testFixture(t)
	err := f.mgr.CancelTask(context.Background(), uuid.New(), "r", "op")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestApplyProgressLifecycle(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)

	half := 50.0
	require.NoError(t, f.mgr.ApplyProgress(ctx, ProgressReport{
		AgvCode: "V001", TaskID: task.ID, Status: model.TaskExecuting, Progress: &half,
	}))
	got, _ := f.stores.GetTask(ctx, task.ID)
	assert.Equal(t, model.TaskExecuting, got.Status)
	assert.InDelta(t, 50.0, got.Progress, 1e-9)
	assert.False(t, got.StartedAt.IsZero())
	started := got.StartedAt

	// Completed forces progress to 100 even without a reported value.
	require.NoError(t, f.mgr.ApplyProgress(ctx, ProgressReport{
		AgvCode: "V001", TaskID: task.ID, Status: model.TaskCompleted,
	}))
	got, _ = f.stores.GetTask(ctx, task.ID)
	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.InDelta(t, 100.0, got.Progress, 1e-9)
	assert.False(t, got.CompletedAt.IsZero())
	assert.Equal(t, started, got.StartedAt)
}

func TestApplyProgressIdempotent(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)

	half := 50.0
	report := ProgressReport{AgvCode: "V001", TaskID: task.ID, Status: model.TaskExecuting, Progress: &half}
	require.NoError(t, f.mgr.ApplyProgress(ctx, report))
	require.NoError(t, f.mgr.ApplyProgress(ctx, report))

	// A replay changes neither status nor progress: one audit record.
	assert.Len(t, f.stores.progress, 1)

	// Sub-point jitter is also not meaningful.
	jitter := 50.4
	report.Progress = &jitter
	require.NoError(t, f.mgr.ApplyProgress(ctx, report))
	assert.Len(t, f.stores.progress, 1)
}

func TestApplyProgressTerminalIdempotent(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	task, err := f.mgr.CreateTask(ctx, createReq())
	require.NoError(t, err)
	require.NoError(t, f.mgr.ApplyProgress(ctx, ProgressReport{
		AgvCode: "V001", TaskID: task.ID, Status: model.TaskCompleted,
	}))
	before, _ := f.stores.GetTask(ctx, task.ID)

	late := 10.0
	require.NoError(t, f.mgr.ApplyProgress(ctx, ProgressReport{
		AgvCode: "V001", TaskID: task.ID, Status: model.TaskExecuting, Progress: &late,
	}))
	after, _ := f.stores.GetTask(ctx, task.ID)
	assert.Equal(t, before, after)
}

func TestApplyProgressUnknownTask(t *testing.T) {
	f := testFixture(t)
	err := f.mgr.ApplyProgress(context.Background(), ProgressReport{TaskID: uuid.New(), Status: model.TaskExecuting})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestHandleStatusUpdatesVehicle(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	a := f.agv
	a.Connected = false
	f.stores.agvs[a.Code] = a

	x, y, angle := 5.0, 1.0, 90.0
	at := time.Now().Add(-time.Second)
	require.NoError(t, f.mgr.HandleStatus(ctx, StatusReport{
		AgvCode:        "V001",
		BatteryVoltage: 49.5,
		Speed:          0.7,
		X:              &x, Y: &y, Angle: &angle,
		StationCode: "S1",
		At:          at,
	}))

	agv, _ := f.stores.GetAgvByCode(ctx, "V001")
	assert.True(t, agv.Connected)
	assert.Equal(t, model.BatteryPercentFromVoltage(49.5), agv.Battery)
	assert.InDelta(t, 0.7, agv.Speed, 1e-9)
	assert.InDelta(t, 5.0, agv.PositionX, 1e-9)
	assert.Equal(t, at, agv.LastSeen)
}

func TestHandleStatusLastSeenNeverRewinds(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	fresh := time.Now().Truncate(time.Second)
	require.NoError(t, f.mgr.HandleStatus(ctx, StatusReport{AgvCode: "V001", At: fresh}))

	// A redelivered report with an old wire timestamp must not rewind
	// liveness and hand the vehicle to the offline sweep.
	stale := fresh.Add(-5 * time.Minute)
	require.NoError(t, f.mgr.HandleStatus(ctx, StatusReport{AgvCode: "V001", At: stale}))

	agv, err := f.stores.GetAgvByCode(ctx, "V001")
	require.NoError(t, err)
	assert.Equal(t, fresh, agv.LastSeen)
}

func TestHandleStatusStationChangeReleasesChannel(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	ok, _, err := f.locks.RequestLock(pathlock.Request{AgvCode: "V001", TaskID: uuid.New(), Channel: model.Channel{From: "S1", To: "S2"}})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.mgr.HandleStatus(ctx, StatusReport{AgvCode: "V001", StationCode: "S2"}))
	assert.Empty(t, f.locks.GetActiveChannels())
}

func TestHandleStatusUnknownAgvDropped(t *testing.T) {
	f := testFixture(t)
	assert.NoError(t, f.mgr.HandleStatus(context.Background(), StatusReport{AgvCode: "V404"}))
	assert.Len(t, f.stores.agvs, 1)
}

func TestHandleException(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mgr.HandleException(ctx, ExceptionReport{
		AgvCode:  "V001",
		Type:     model.ExceptionLowBattery,
		Severity: model.SeverityWarning,
		Message:  "battery at 15%",
	}))
	require.Len(t, f.stores.exceptions, 1)
	assert.True(t, f.stores.exceptions[0].Resolved)
	assert.Empty(t, f.pub.byTopicSuffix("command"))

	require.NoError(t, f.mgr.HandleException(ctx, ExceptionReport{
		AgvCode:  "V001",
		Type:     model.ExceptionEmergencyStop,
		Severity: model.SeverityCritical,
		Message:  "e-stop pressed",
	}))
	require.Len(t, f.stores.exceptions, 2)
	assert.False(t, f.stores.exceptions[1].Resolved)

	cmds := f.pub.byTopicSuffix("command")
	require.Len(t, cmds, 1)
	var msg transport.CommandMessage
	require.NoError(t, json.Unmarshal(cmds[0].payload, &msg))
	assert.Equal(t, model.CommandPause, msg.CommandType)
}

func TestHandleLockRequestPublishesDecision(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	taskID := uuid.New()
	approved, _, err := f.mgr.HandleLockRequest(ctx, "V001", taskID, "S1", "S2")
	require.NoError(t, err)
	assert.True(t, approved)
	approved, reason, err := f.mgr.HandleLockRequest(ctx, "V002", uuid.New(), "S2", "S1")
	require.NoError(t, err)
	assert.False(t, approved)
	assert.NotEmpty(t, reason)

	responses := f.pub.byTopicSuffix("path/lock-response")
	require.Len(t, responses, 2)
	assert.Equal(t, "agv/V001/path/lock-response", responses[0].topic)

	var first, second transport.LockResponseMessage
	require.NoError(t, json.Unmarshal(responses[0].payload, &first))
	require.NoError(t, json.Unmarshal(responses[1].payload, &second))
	assert.True(t, first.Approved)
	assert.Equal(t, taskID.String(), first.TaskID)
	assert.False(t, second.Approved)
	assert.NotEmpty(t, second.Reason)
}

func TestSendCommand(t *testing.T) {
	f := testFixture(t)
	ctx := context.Background()

	err := f.mgr.SendCommand(ctx, "V404", model.CommandStop, nil)
	assert.ErrorIs(t, err, ErrAgvNotFound)

	require.NoError(t, f.mgr.SendCommand(ctx, "V001", model.CommandReturnHome, map[string]string{"station": "S1"}))
	cmds := f.pub.byTopicSuffix("command")
	require.Len(t, cmds, 1)
	var msg transport.CommandMessage
	require.NoError(t, json.Unmarshal(cmds[0].payload, &msg))
	assert.Equal(t, model.CommandReturnHome, msg.CommandType)
	assert.Equal(t, "S1", msg.Params["station"])
	assert.NotEmpty(t, msg.CommandID)
}
