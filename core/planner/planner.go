// Package planner computes shortest routes over the facility map and
// materializes them into the checkpoint and segment artifacts a vehicle
// executes. Planning is pure computation: the graph is compiled once
// from the map records and never mutated afterwards.
package planner

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/openfms/agvd/core/logger"
	"github.com/openfms/agvd/core/model"
)

var (
	ErrNoSuchLocation  = errors.New("planner: no such station or node")
	ErrSameStartAndEnd = errors.New("planner: start and end are the same")
	ErrNoPath          = errors.New("planner: no path between start and end")
	ErrDifferentMaps   = errors.New("planner: start and end are on different maps")
)

// Hop is one edge traversal within a computed path.
type Hop struct {
	From model.Node
	To   model.Node
	Edge model.Edge
}

// Path is the raw output of a shortest-path query.
type Path struct {
	Hops          []Hop
	TotalDistance float64
}

// Nodes returns the node sequence of the path, start to end inclusive.
func (p *Path) Nodes() []model.Node {
	if len(p.Hops) == 0 {
		return nil
	}
	nodes := make([]model.Node, 0, len(p.Hops)+1)
	nodes = append(nodes, p.Hops[0].From)
	for _, h := range p.Hops {
		nodes = append(nodes, h.To)
	}
	return nodes
}

// Route is a fully materialized plan between two stations.
type Route struct {
	StartStationCode string
	EndStationCode   string
	TotalDistance    float64
	Checkpoints      []model.Checkpoint
	Segments         []model.Segment
}

type hopKey struct {
	from uuid.UUID
	to   uuid.UUID
}

type hopChoice struct {
	edge model.Edge
}

// Planner answers shortest-path and route-materialization queries over a
// compiled map graph. Safe for concurrent use.
type Planner struct {
	nodes          map[uuid.UUID]model.Node
	stationsByID   map[uuid.UUID]model.Station
	stationsByCode map[string]model.Station
	stationsByNode map[uuid.UUID]model.Station

	g    *simple.WeightedDirectedGraph
	idx  map[uuid.UUID]int64
	back map[int64]uuid.UUID

	// best holds, per directed node pair, the shortest usable edge. The
	// gonum graph admits a single arc per pair so parallel edges are
	// resolved here before insertion.
	best map[hopKey]hopChoice
}

// New compiles a planner from map records. Edges referencing unknown
// nodes are skipped with a warning rather than failing the whole map.
func New(nodes []model.Node, edges []model.Edge, stations []model.Station, log logger.Logger) *Planner {
	p := &Planner{
		nodes:          make(map[uuid.UUID]model.Node, len(nodes)),
		stationsByID:   make(map[uuid.UUID]model.Station, len(stations)),
		stationsByCode: make(map[string]model.Station, len(stations)),
		stationsByNode: make(map[uuid.UUID]model.Station, len(stations)),
		g:              simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		idx:            make(map[uuid.UUID]int64, len(nodes)),
		back:           make(map[int64]uuid.UUID, len(nodes)),
		best:           make(map[hopKey]hopChoice),
	}

	next := int64(0)
	for _, n := range nodes {
		if _, dup := p.idx[n.ID]; dup {
			continue
		}
		p.nodes[n.ID] = n
		p.idx[n.ID] = next
		p.back[next] = n.ID
		p.g.AddNode(simple.Node(next))
		next++
	}

	for _, s := range stations {
		if _, ok := p.nodes[s.NodeID]; !ok {
			log.Warnf("station %s references unknown node %s, skipping", s.Code, s.NodeID)
			continue
		}
		p.stationsByID[s.ID] = s
		p.stationsByCode[s.Code] = s
		p.stationsByNode[s.NodeID] = s
	}

	for _, e := range edges {
		if _, ok := p.nodes[e.StartNodeID]; !ok {
			log.Warnf("edge %s references unknown start node %s, skipping", e.ID, e.StartNodeID)
			continue
		}
		if _, ok := p.nodes[e.EndNodeID]; !ok {
			log.Warnf("edge %s references unknown end node %s, skipping", e.ID, e.EndNodeID)
			continue
		}
		if e.Length <= 0 {
			log.Warnf("edge %s has non-positive length %f, skipping", e.ID, e.Length)
			continue
		}
		if e.StartNodeID == e.EndNodeID {
			log.Warnf("edge %s is a self loop on node %s, skipping", e.ID, e.StartNodeID)
			continue
		}
		p.offer(e.StartNodeID, e.EndNodeID, e)
		if e.Bidirectional {
			p.offer(e.EndNodeID, e.StartNodeID, e)
		}
	}

	for k, c := range p.best {
		p.g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(p.idx[k.from]),
			T: simple.Node(p.idx[k.to]),
			W: c.edge.Length,
		})
	}
	return p
}

func (p *Planner) offer(from, to uuid.UUID, e model.Edge) {
	k := hopKey{from: from, to: to}
	if cur, ok := p.best[k]; ok && cur.edge.Length <= e.Length {
		return
	}
	p.best[k] = hopChoice{edge: e}
}

// resolve accepts either a node id or a station id and returns the node.
func (p *Planner) resolve(id uuid.UUID) (model.Node, bool) {
	if n, ok := p.nodes[id]; ok {
		return n, true
	}
	if s, ok := p.stationsByID[id]; ok {
		n, ok := p.nodes[s.NodeID]
		return n, ok
	}
	return model.Node{}, false
}

// FindPath computes the shortest path between two locations. Each
// argument may be a node id or a station id; a station id resolves to
// its occupying node before the search starts.
func (p *Planner) FindPath(startID, endID uuid.UUID) (*Path, error) {
	start, ok := p.resolve(startID)
	if !ok {
		return nil, ErrNoSuchLocation
	}
	end, ok := p.resolve(endID)
	if !ok {
		return nil, ErrNoSuchLocation
	}
	startID, endID = start.ID, end.ID
	if startID == endID {
		return nil, ErrSameStartAndEnd
	}
	if start.MapID != end.MapID {
		return nil, ErrDifferentMaps
	}

	heuristic := func(x, y graph.Node) float64 {
		return p.nodes[p.back[x.ID()]].DistanceTo(p.nodes[p.back[y.ID()]])
	}
	tree, _ := path.AStar(simple.Node(p.idx[startID]), simple.Node(p.idx[endID]), p.g, heuristic)
	seq, weight := tree.To(p.idx[endID])
	if len(seq) < 2 || math.IsInf(weight, 1) {
		return nil, ErrNoPath
	}

	out := &Path{Hops: make([]Hop, 0, len(seq)-1), TotalDistance: weight}
	for i := 1; i < len(seq); i++ {
		from := p.nodes[p.back[seq[i-1].ID()]]
		to := p.nodes[p.back[seq[i].ID()]]
		choice := p.best[hopKey{from: from.ID, to: to.ID}]
		out.Hops = append(out.Hops, Hop{From: from, To: to, Edge: choice.edge})
	}
	return out, nil
}

// Station looks up a station by code.
func (p *Planner) Station(code string) (model.Station, bool) {
	s, ok := p.stationsByCode[code]
	return s, ok
}

// PlanRoute plans and materializes a route between two station codes.
func (p *Planner) PlanRoute(fromCode, toCode string) (*Route, error) {
	from, ok := p.stationsByCode[fromCode]
	if !ok {
		return nil, ErrNoSuchLocation
	}
	to, ok := p.stationsByCode[toCode]
	if !ok {
		return nil, ErrNoSuchLocation
	}
	if fromCode == toCode || from.NodeID == to.NodeID {
		return nil, ErrSameStartAndEnd
	}

	raw, err := p.FindPath(from.NodeID, to.NodeID)
	if err != nil {
		return nil, err
	}
	checkpoints, segments := p.Materialize(raw)
	return &Route{
		StartStationCode: fromCode,
		EndStationCode:   toCode,
		TotalDistance:    raw.TotalDistance,
		Checkpoints:      checkpoints,
		Segments:         segments,
	}, nil
}

// ChannelEdge maps a channel between two adjacent stations to the
// physical edge it crosses, in either direction. Channels spanning more
// than one edge report no edge.
func (p *Planner) ChannelEdge(ch model.Channel) (uuid.UUID, bool) {
	from, ok := p.stationsByCode[ch.From]
	if !ok {
		return uuid.Nil, false
	}
	to, ok := p.stationsByCode[ch.To]
	if !ok {
		return uuid.Nil, false
	}
	if c, ok := p.best[hopKey{from: from.NodeID, to: to.NodeID}]; ok {
		return c.edge.ID, true
	}
	if c, ok := p.best[hopKey{from: to.NodeID, to: from.NodeID}]; ok {
		return c.edge.ID, true
	}
	return uuid.Nil, false
}
