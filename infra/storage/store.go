package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfms/agvd/core/model"
)

// Store implements the core store interfaces on a GORM database.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened database.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var r TaskRecord
	err := s.db.WithContext(ctx).First(&r, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get task %s: %w", id, err)
	}
	t := recordToTask(r)
	return &t, nil
}

func (s *Store) SaveTask(ctx context.Context, t *model.Task) error {
	r := taskToRecord(t)
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("storage: save task %s: %w", t.ID, err)
	}
	return nil
}

// ListActiveTasksByAgv lists a vehicle's non-terminal tasks.
func (s *Store) ListActiveTasksByAgv(ctx context.Context, agvCode string) ([]model.Task, error) {
	var rows []TaskRecord
	err := s.db.WithContext(ctx).
		Where("assigned_agv_code = ? AND status NOT IN ?", agvCode, terminalStatuses()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list active tasks for %s: %w", agvCode, err)
	}
	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordToTask(r))
	}
	return out, nil
}

func terminalStatuses() []int {
	return []int{int(model.TaskCompleted), int(model.TaskCancelled), int(model.TaskFailed)}
}

func (s *Store) GetAgvByCode(ctx context.Context, code string) (*model.Agv, error) {
	var r AgvRecord
	err := s.db.WithContext(ctx).First(&r, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get agv %s: %w", code, err)
	}
	a := recordToAgv(r)
	return &a, nil
}

func (s *Store) SaveAgv(ctx context.Context, a *model.Agv) error {
	r := agvToRecord(a)
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("storage: save agv %s: %w", a.Code, err)
	}
	return nil
}

// ListConnectedAgvs lists vehicles currently marked online.
func (s *Store) ListConnectedAgvs(ctx context.Context) ([]model.Agv, error) {
	var rows []AgvRecord
	if err := s.db.WithContext(ctx).Where("connected = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list connected agvs: %w", err)
	}
	out := make([]model.Agv, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordToAgv(r))
	}
	return out, nil
}

func (s *Store) SaveRoute(ctx context.Context, route *model.TaskRoute) error {
	r, err := routeToRecord(route)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("storage: save route for task %s: %w", route.TaskID, err)
	}
	return nil
}

// GetRouteByTask loads the materialized route of one task.
func (s *Store) GetRouteByTask(ctx context.Context, taskID uuid.UUID) (*model.TaskRoute, error) {
	var r TaskRouteRecord
	err := s.db.WithContext(ctx).First(&r, "task_id = ?", taskID.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get route for task %s: %w", taskID, err)
	}
	route, err := recordToRoute(r)
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// SaveLock upserts the latest state of one lock. Each lock id keeps a
// single row that follows its transitions.
func (s *Store) SaveLock(l model.PathLock) error {
	r := lockToRecord(l)
	if err := s.db.Save(&r).Error; err != nil {
		return fmt.Errorf("storage: save lock %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) SaveProgressLog(ctx context.Context, l *model.TaskProgressLog) error {
	r := TaskProgressLogRecord{
		LogID:      l.ID.String(),
		TaskID:     l.TaskID.String(),
		AgvCode:    l.AgvCode,
		Status:     int(l.Status),
		Progress:   l.Progress,
		Message:    l.Message,
		ReportedAt: l.ReportedAt,
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("storage: save progress log for task %s: %w", l.TaskID, err)
	}
	return nil
}

func (s *Store) SaveExceptionLog(ctx context.Context, l *model.AgvExceptionLog) error {
	r := AgvExceptionLogRecord{
		ID:          l.ID.String(),
		AgvCode:     l.AgvCode,
		TaskID:      l.TaskID,
		Type:        int(l.Type),
		Severity:    int(l.Severity),
		Message:     l.Message,
		PositionX:   l.PositionX,
		PositionY:   l.PositionY,
		StationCode: l.StationCode,
		ReportedAt:  l.ReportedAt,
		Resolved:    l.Resolved,
		ResolvedAt:  l.ResolvedAt,
		Remark:      l.Remark,
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("storage: save exception log for %s: %w", l.AgvCode, err)
	}
	return nil
}

func (s *Store) SaveJobRunLog(ctx context.Context, l *model.JobRunLog) error {
	r := JobRunLogRecord{
		ID:            l.ID.String(),
		JobName:       l.JobName,
		ExecutedAt:    l.ExecutedAt,
		Result:        int(l.Result),
		Message:       l.Message,
		AffectedCount: l.AffectedCount,
		DurationMs:    l.DurationMs,
		ErrorMessage:  l.ErrorMessage,
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("storage: save job log %s: %w", l.JobName, err)
	}
	return nil
}

// LoadGraph loads the full map graph for one map id.
func (s *Store) LoadGraph(ctx context.Context, mapID uuid.UUID) ([]model.Node, []model.Edge, []model.Station, error) {
	db := s.db.WithContext(ctx)
	var nodeRows []NodeRecord
	if err := db.Where("map_id = ?", mapID.String()).Find(&nodeRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("storage: load nodes: %w", err)
	}
	var edgeRows []EdgeRecord
	if err := db.Where("map_id = ?", mapID.String()).Find(&edgeRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("storage: load edges: %w", err)
	}
	var stationRows []StationRecord
	if err := db.Where("map_id = ?", mapID.String()).Find(&stationRows).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("storage: load stations: %w", err)
	}

	nodes := make([]model.Node, 0, len(nodeRows))
	for _, r := range nodeRows {
		nodes = append(nodes, model.Node{ID: uuidOrNil(r.ID), MapID: uuidOrNil(r.MapID), X: r.X, Y: r.Y})
	}
	edges := make([]model.Edge, 0, len(edgeRows))
	for _, r := range edgeRows {
		edges = append(edges, model.Edge{
			ID:            uuidOrNil(r.ID),
			MapID:         uuidOrNil(r.MapID),
			StartNodeID:   uuidOrNil(r.StartNodeID),
			EndNodeID:     uuidOrNil(r.EndNodeID),
			Bidirectional: r.Bidirectional,
			Length:        r.Length,
		})
	}
	stations := make([]model.Station, 0, len(stationRows))
	for _, r := range stationRows {
		stations = append(stations, model.Station{
			ID:       uuidOrNil(r.ID),
			MapID:    uuidOrNil(r.MapID),
			NodeID:   uuidOrNil(r.NodeID),
			Code:     r.Code,
			Name:     r.Name,
			Type:     model.StationType(r.Type),
			Priority: r.Priority,
		})
	}
	return nodes, edges, stations, nil
}

// SeedGraph upserts map records, used by the map import flow.
func (s *Store) SeedGraph(ctx context.Context, nodes []model.Node, edges []model.Edge, stations []model.Station) error {
	db := s.db.WithContext(ctx)
	for _, n := range nodes {
		r := NodeRecord{ID: n.ID.String(), MapID: n.MapID.String(), X: n.X, Y: n.Y}
		if err := db.Save(&r).Error; err != nil {
			return fmt.Errorf("storage: seed node %s: %w", n.ID, err)
		}
	}
	for _, e := range edges {
		r := EdgeRecord{
			ID:            e.ID.String(),
			MapID:         e.MapID.String(),
			StartNodeID:   e.StartNodeID.String(),
			EndNodeID:     e.EndNodeID.String(),
			Bidirectional: e.Bidirectional,
			Length:        e.Length,
		}
		if err := db.Save(&r).Error; err != nil {
			return fmt.Errorf("storage: seed edge %s: %w", e.ID, err)
		}
	}
	for _, st := range stations {
		r := StationRecord{
			ID:       st.ID.String(),
			MapID:    st.MapID.String(),
			NodeID:   st.NodeID.String(),
			Code:     st.Code,
			Name:     st.Name,
			Type:     int(st.Type),
			Priority: st.Priority,
		}
		if err := db.Save(&r).Error; err != nil {
			return fmt.Errorf("storage: seed station %s: %w", st.Code, err)
		}
	}
	return nil
}

// SaveAgvRoster upserts the configured fleet, used at startup so
// status reports from known vehicles always find a row.
func (s *Store) SaveAgvRoster(ctx context.Context, agvs []model.Agv) error {
	for i := range agvs {
		existing, err := s.GetAgvByCode(ctx, agvs[i].Code)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.SaveAgv(ctx, &agvs[i]); err != nil {
			return err
		}
	}
	return nil
}
