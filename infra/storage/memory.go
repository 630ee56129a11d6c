package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
)

// MemoryStore keeps everything in maps behind a RWMutex. It backs the
// memory driver and keeps unit tests off the filesystem.
type MemoryStore struct {
	mu         sync.RWMutex
	tasks      map[uuid.UUID]model.Task
	agvs       map[string]model.Agv
	routes     map[uuid.UUID]model.TaskRoute
	locks      map[uuid.UUID]model.PathLock
	progress   []model.TaskProgressLog
	exceptions []model.AgvExceptionLog
	jobLogs    []model.JobRunLog

	nodes    []model.Node
	edges    []model.Edge
	stations []model.Station
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  map[uuid.UUID]model.Task{},
		agvs:   map[string]model.Agv{},
		routes: map[uuid.UUID]model.TaskRoute{},
		locks:  map[uuid.UUID]model.PathLock{},
	}
}

func (s *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *MemoryStore) SaveTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryStore) ListActiveTasksByAgv(_ context.Context, agvCode string) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.AssignedAgvCode == agvCode && !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAgvByCode(_ context.Context, code string) (*model.Agv, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agvs[code]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (s *MemoryStore) SaveAgv(_ context.Context, a *model.Agv) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agvs[a.Code] = *a
	return nil
}

func (s *MemoryStore) ListConnectedAgvs(_ context.Context) ([]model.Agv, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Agv
	for _, a := range s.agvs {
		if a.Connected {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRoute(_ context.Context, r *model.TaskRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[r.TaskID] = *r
	return nil
}

func (s *MemoryStore) GetRouteByTask(_ context.Context, taskID uuid.UUID) (*model.TaskRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[taskID]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *MemoryStore) SaveLock(l model.PathLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[l.ID] = l
	return nil
}

func (s *MemoryStore) SaveProgressLog(_ context.Context, l *model.TaskProgressLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, *l)
	return nil
}

func (s *MemoryStore) SaveExceptionLog(_ context.Context, l *model.AgvExceptionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, *l)
	return nil
}

func (s *MemoryStore) SaveJobRunLog(_ context.Context, l *model.JobRunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobLogs = append(s.jobLogs, *l)
	return nil
}

func (s *MemoryStore) LoadGraph(_ context.Context, mapID uuid.UUID) ([]model.Node, []model.Edge, []model.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var nodes []model.Node
	for _, n := range s.nodes {
		if n.MapID == mapID {
			nodes = append(nodes, n)
		}
	}
	var edges []model.Edge
	for _, e := range s.edges {
		if e.MapID == mapID {
			edges = append(edges, e)
		}
	}
	var stations []model.Station
	for _, st := range s.stations {
		if st.MapID == mapID {
			stations = append(stations, st)
		}
	}
	return nodes, edges, stations, nil
}

func (s *MemoryStore) SeedGraph(_ context.Context, nodes []model.Node, edges []model.Edge, stations []model.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, nodes...)
	s.edges = append(s.edges, edges...)
	s.stations = append(s.stations, stations...)
	return nil
}

func (s *MemoryStore) SaveAgvRoster(ctx context.Context, agvs []model.Agv) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agvs {
		if _, ok := s.agvs[a.Code]; !ok {
			s.agvs[a.Code] = a
		}
	}
	return nil
}
