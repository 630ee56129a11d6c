package pathlock

import (
	"fmt"

	"github.com/openfms/agvd/core/model"
)

// System codes accepted by the factory.
const (
	SystemSingleLane = "single-lane"
	SystemMultiLane  = "multi-lane"
)

// SingleLaneConflict blocks a request when another vehicle holds the
// same channel, its reverse, or any channel crossing the same physical
// edge. Without an edge resolver the shared-edge check degrades to the
// channel and reverse checks.
func SingleLaneConflict(edges EdgeResolver) ConflictFunc {
	return func(existing model.PathLock, req Request) bool {
		if existing.AgvCode == req.AgvCode {
			return false
		}
		ch := existing.Channel()
		if ch == req.Channel || ch == req.Channel.Reverse() {
			return true
		}
		if edges == nil {
			return false
		}
		a, okA := edges(ch)
		b, okB := edges(req.Channel)
		return okA && okB && a == b
	}
}

// MultiLaneConflict blocks a request only when another vehicle holds
// the exact same channel. Opposing traffic passes on separate lanes.
func MultiLaneConflict() ConflictFunc {
	return func(existing model.PathLock, req Request) bool {
		return existing.AgvCode != req.AgvCode && existing.Channel() == req.Channel
	}
}

// NewStrategy builds the strategy selected by cfg.SystemCode. An empty
// code defaults to single-lane, the conservative choice.
func NewStrategy(cfg Config, deps Deps) (Strategy, error) {
	switch cfg.SystemCode {
	case "", SystemSingleLane:
		return NewCoordinator(cfg, SingleLaneConflict(deps.Edges), deps), nil
	case SystemMultiLane:
		return NewCoordinator(cfg, MultiLaneConflict(), deps), nil
	default:
		return nil, fmt.Errorf("pathlock: unknown system code %q", cfg.SystemCode)
	}
}
