package model

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Node is a vertex of the traversable map.
type Node struct {
	ID    uuid.UUID
	MapID uuid.UUID
	X     float64
	Y     float64
}

// DistanceTo returns the straight-line distance to another node.
func (n Node) DistanceTo(o Node) float64 {
	dx := o.X - n.X
	dy := o.Y - n.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Edge is an arc between two nodes. A directed edge is traversable
// start to end only; a bidirectional edge is traversable either way at
// the same length. Length is stored, not derived, and must be at least
// the straight-line distance between the endpoints.
type Edge struct {
	ID            uuid.UUID
	MapID         uuid.UUID
	StartNodeID   uuid.UUID
	EndNodeID     uuid.UUID
	Bidirectional bool
	Length        float64
}

// StationType classifies what a vehicle does at a station.
type StationType int

const (
	StationPickup  StationType = 10
	StationDropoff StationType = 20
	StationCharge  StationType = 30
	StationStandby StationType = 40
	// StationIntersection marks a collision-avoidance waiting point.
	StationIntersection StationType = 90
)

func (t StationType) String() string {
	switch t {
	case StationPickup:
		return "pickup"
	case StationDropoff:
		return "dropoff"
	case StationCharge:
		return "charge"
	case StationStandby:
		return "standby"
	case StationIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// Station is a named point of interest sitting on a node. It is never a
// graph vertex itself; path finding resolves it to the node it occupies.
type Station struct {
	ID       uuid.UUID
	MapID    uuid.UUID
	NodeID   uuid.UUID
	Code     string
	Name     string
	Type     StationType
	Priority int
}

// Channel is a directed from-station to-station movement, the unit of
// path reservation. It is a key, not a stored entity.
type Channel struct {
	From string
	To   string
}

// Reverse returns the opposite movement over the same station pair.
func (c Channel) Reverse() Channel { return Channel{From: c.To, To: c.From} }

// Name renders the canonical channel name used for grouping and display.
func (c Channel) Name() string { return fmt.Sprintf("%s->%s", c.From, c.To) }
