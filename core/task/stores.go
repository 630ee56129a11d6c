package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/planner"
)

// Store interfaces are defined here, next to their consumer. Lookups
// return (nil, nil) when the record does not exist; errors are reserved
// for storage failures.

// TaskStore persists task records.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*model.Task, error)
	SaveTask(ctx context.Context, t *model.Task) error
}

// AgvStore persists vehicle records.
type AgvStore interface {
	GetAgvByCode(ctx context.Context, code string) (*model.Agv, error)
	SaveAgv(ctx context.Context, a *model.Agv) error
}

// RouteStore persists materialized route artifacts.
type RouteStore interface {
	SaveRoute(ctx context.Context, r *model.TaskRoute) error
}

// ProgressLogStore persists task progress audit records.
type ProgressLogStore interface {
	SaveProgressLog(ctx context.Context, l *model.TaskProgressLog) error
}

// ExceptionLogStore persists vehicle exception reports.
type ExceptionLogStore interface {
	SaveExceptionLog(ctx context.Context, l *model.AgvExceptionLog) error
}

// RoutePlanner is the slice of the planner the manager needs.
type RoutePlanner interface {
	PlanRoute(fromCode, toCode string) (*planner.Route, error)
	Station(code string) (model.Station, bool)
}
