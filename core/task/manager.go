// Package task implements the task and vehicle lifecycle: creation,
// cancellation, progress transitions and the inbound report handlers.
// All mutations to a given task are serialized by a per-task mutex so
// racing reports and cancellations resolve deterministically.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/logger"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/core/planner"
	"github.com/openfms/agvd/core/transport"
)

// DefaultPriority is assigned when a creation request carries none.
const DefaultPriority = 30

// Deps carries the manager's collaborators. Everything is passed at
// construction; the manager never reaches into ambient state.
type Deps struct {
	Tasks        TaskStore
	Agvs         AgvStore
	Routes       RouteStore
	ProgressLogs ProgressLogStore
	Exceptions   ExceptionLogStore
	Planner      RoutePlanner
	Locks        pathlock.Strategy
	Publisher    transport.Publisher
	Bus          *Bus
	Log          logger.Logger
	Now          func() time.Time
}

// Manager owns the task state machine and the vehicle occupancy
// fields. Occupancy (current task, current station) has a single
// writer: the create and cancel paths here.
type Manager struct {
	tasks        TaskStore
	agvs         AgvStore
	routes       RouteStore
	progressLogs ProgressLogStore
	exceptions   ExceptionLogStore
	planner      RoutePlanner
	locks        pathlock.Strategy
	pub          transport.Publisher
	bus          *Bus
	log          logger.Logger
	now          func() time.Time

	mu     sync.Mutex
	taskMu map[uuid.UUID]*sync.Mutex
}

// NewManager builds a Manager from its collaborators.
func NewManager(deps Deps) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		tasks:        deps.Tasks,
		agvs:         deps.Agvs,
		routes:       deps.Routes,
		progressLogs: deps.ProgressLogs,
		exceptions:   deps.Exceptions,
		planner:      deps.Planner,
		locks:        deps.Locks,
		pub:          deps.Publisher,
		bus:          deps.Bus,
		log:          deps.Log,
		now:          deps.Now,
		taskMu:       make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockTask serializes mutations for one task id. The returned func
// unlocks. Entries for finished tasks are dropped by forgetTask.
func (m *Manager) lockTask(id uuid.UUID) func() {
	m.mu.Lock()
	l, ok := m.taskMu[id]
	if !ok {
		l = &sync.Mutex{}
		m.taskMu[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) forgetTask(id uuid.UUID) {
	m.mu.Lock()
	delete(m.taskMu, id)
	m.mu.Unlock()
}

// CreateTaskRequest is the manual-dispatch creation input. The
// operator chooses both the task type and the vehicle, so the task
// enters the state machine directly at Assigned.
type CreateTaskRequest struct {
	Type              model.TaskType
	AgvCode           string
	TargetStationCode string
	Description       string
	Priority          int
	RequestedBy       string
}

// CreateTask validates, plans, persists and announces a new task. All
// preconditions are checked before anything is written; a validation
// or planning failure leaves no partial state behind.
func (m *Manager) CreateTask(ctx context.Context, req CreateTaskRequest) (*model.Task, error) {
	agv, err := m.agvs.GetAgvByCode(ctx, req.AgvCode)
	if err != nil {
		return nil, err
	}
	if agv == nil {
		return nil, ErrAgvNotFound
	}
	if !agv.Connected {
		return nil, ErrAgvOffline
	}
	if agv.CurrentTaskID != uuid.Nil {
		cur, err := m.tasks.GetTask(ctx, agv.CurrentTaskID)
		if err != nil {
			return nil, err
		}
		if cur != nil && !cur.Status.Terminal() {
			return nil, ErrAgvBusy
		}
	}
	if agv.CurrentStationCode == "" {
		return nil, ErrAgvNotAtStation
	}
	if _, ok := m.planner.Station(agv.CurrentStationCode); !ok {
		return nil, ErrAgvNotAtStation
	}
	target, ok := m.planner.Station(req.TargetStationCode)
	if !ok {
		return nil, fmt.Errorf("%w: station %q", planner.ErrNoSuchLocation, req.TargetStationCode)
	}
	if target.Type != req.Type.TargetStationType() {
		return nil, fmt.Errorf("%w: task %s needs a %s station, %s is %s",
			ErrWrongStationType, req.Type, req.Type.TargetStationType(), target.Code, target.Type)
	}

	route, err := m.planner.PlanRoute(agv.CurrentStationCode, req.TargetStationCode)
	if err != nil {
		return nil, err
	}

	now := m.now()
	priority := req.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	t := &model.Task{
		ID:               uuid.New(),
		Type:             req.Type,
		Status:           model.TaskAssigned,
		Priority:         priority,
		StartStationCode: agv.CurrentStationCode,
		EndStationCode:   req.TargetStationCode,
		Description:      req.Description,
		AssignedAgvCode:  agv.Code,
		RequestedBy:      req.RequestedBy,
		CreatedAt:        now,
		AssignedAt:       now,
	}
	if err := m.tasks.SaveTask(ctx, t); err != nil {
		return nil, err
	}
	if err := m.routes.SaveRoute(ctx, &model.TaskRoute{
		ID:               uuid.New(),
		TaskID:           t.ID,
		StartStationCode: route.StartStationCode,
		EndStationCode:   route.EndStationCode,
		TotalDistance:    route.TotalDistance,
		Checkpoints:      route.Checkpoints,
		Segments:         route.Segments,
		CreatedAt:        now,
	}); err != nil {
		m.abortCreate(ctx, t, agv, err)
		return nil, err
	}
	agv.CurrentTaskID = t.ID
	if err := m.agvs.SaveAgv(ctx, agv); err != nil {
		m.abortCreate(ctx, t, agv, err)
		return nil, err
	}

	if err := m.publishAssign(t, route.Checkpoints); err != nil {
		m.abortCreate(ctx, t, agv, err)
		return nil, err
	}
	m.emit(EventCreated, *t)
	m.log.Infof("task %s created: %s %s -> %s for %s", t.ID, t.Type, t.StartStationCode, t.EndStationCode, t.AssignedAgvCode)
	return t, nil
}

// abortCreate compensates a half-created task: once the task row exists,
// any later store or publish failure would otherwise strand it Assigned
// with no route or an unnotified vehicle. The task is marked Failed and
// the vehicle detached, both best effort.
func (m *Manager) abortCreate(ctx context.Context, t *model.Task, agv *model.Agv, cause error) {
	m.log.Errorf("task %s creation aborted: %v", t.ID, cause)
	t.Status = model.TaskFailed
	t.FailureReason = cause.Error()
	t.CompletedAt = m.now()
	if err := m.tasks.SaveTask(ctx, t); err != nil {
		m.log.Errorf("mark aborted task %s failed: %v", t.ID, err)
	}
	if agv.CurrentTaskID == t.ID {
		agv.CurrentTaskID = uuid.Nil
		if err := m.agvs.SaveAgv(ctx, agv); err != nil {
			m.log.Errorf("detach agv %s from aborted task %s: %v", agv.Code, t.ID, err)
		}
	}
}

// CancelTask transitions a non-terminal task to Cancelled, clears the
// vehicle's task reference and its channel locks, and tells the
// vehicle to stop. Cancelling a finished task is a no-op.
func (m *Manager) CancelTask(ctx context.Context, id uuid.UUID, reason, requestedBy string) error {
	unlock := m.lockTask(id)
	defer unlock()

	t, err := m.tasks.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrTaskNotFound
	}
	if t.Status.Terminal() {
		m.log.Debugf("cancel of task %s ignored, already %s", id, t.Status)
		return ErrTaskTerminal
	}

	now := m.now()
	t.Status = model.TaskCancelled
	t.CancelReason = reason
	t.CancelledAt = now
	if err := m.tasks.SaveTask(ctx, t); err != nil {
		return err
	}

	if t.AssignedAgvCode != "" {
		agv, err := m.agvs.GetAgvByCode(ctx, t.AssignedAgvCode)
		if err != nil {
			return err
		}
		if agv != nil && agv.CurrentTaskID == t.ID {
			agv.CurrentTaskID = uuid.Nil
			if err := m.agvs.SaveAgv(ctx, agv); err != nil {
				return err
			}
		}
		released, err := m.locks.ClearAgvLocks(t.AssignedAgvCode)
		if err != nil {
			return err
		}
		if released > 0 {
			m.log.Infof("released %d lock(s) held by %s", released, t.AssignedAgvCode)
		}
		if err := m.publishCancel(t); err != nil {
			return err
		}
	}

	m.forgetTask(t.ID)
	m.emit(EventCancelled, *t)
	m.log.Infof("task %s cancelled by %s: %s", t.ID, requestedBy, reason)
	return nil
}

// SendCommand publishes a control instruction to a vehicle.
func (m *Manager) SendCommand(ctx context.Context, agvCode string, cmd model.CommandType, params map[string]string) error {
	agv, err := m.agvs.GetAgvByCode(ctx, agvCode)
	if err != nil {
		return err
	}
	if agv == nil {
		return ErrAgvNotFound
	}
	msg := transport.CommandMessage{
		CommandID:   uuid.NewString(),
		CommandType: cmd,
		Timestamp:   m.now().UTC().Format(transport.TimestampLayout),
		Params:      params,
	}
	if err := m.publish(transport.Topic(agvCode, transport.KindCommand), msg); err != nil {
		return err
	}
	m.log.Infof("command %s sent to %s", cmd, agvCode)
	return nil
}

func (m *Manager) publishAssign(t *model.Task, checkpoints []model.Checkpoint) error {
	msg := transport.TaskAssignMessage{
		TaskID:           t.ID.String(),
		TaskType:         t.Type,
		Priority:         t.Priority,
		Timestamp:        t.AssignedAt.UTC().Format(transport.TimestampLayout),
		StartStationCode: t.StartStationCode,
		EndStationCode:   t.EndStationCode,
		Description:      t.Description,
		Checkpoints:      make([]transport.CheckpointPayload, 0, len(checkpoints)),
	}
	for _, c := range checkpoints {
		msg.Checkpoints = append(msg.Checkpoints, transport.CheckpointPayload{
			Seq:         c.Seq,
			StationCode: c.StationCode,
			Type:        c.Type.String(),
		})
	}
	return m.publish(transport.Topic(t.AssignedAgvCode, transport.KindTaskAssign), msg)
}

func (m *Manager) publishCancel(t *model.Task) error {
	msg := transport.TaskCancelMessage{
		TaskID:    t.ID.String(),
		Timestamp: t.CancelledAt.UTC().Format(transport.TimestampLayout),
		Reason:    t.CancelReason,
	}
	return m.publish(transport.Topic(t.AssignedAgvCode, transport.KindTaskCancel), msg)
}

func (m *Manager) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("task: marshal message for %s: %w", topic, err)
	}
	if err := m.pub.Publish(topic, payload); err != nil {
		return fmt.Errorf("task: publish to %s: %w", topic, err)
	}
	return nil
}

func (m *Manager) emit(kind string, t model.Task) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(TaskEvent{Kind: kind, Task: t, AgvCode: t.AssignedAgvCode, At: m.now()})
}
