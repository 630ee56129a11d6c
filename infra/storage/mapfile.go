package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/model"
)

// Map export format. IDs are UUID strings; station types use the
// numeric codes shared with the wire protocol.
type mapFile struct {
	MapID    string           `json:"mapId"`
	Nodes    []mapFileNode    `json:"nodes"`
	Edges    []mapFileEdge    `json:"edges"`
	Stations []mapFileStation `json:"stations"`
}

type mapFileNode struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type mapFileEdge struct {
	ID            string  `json:"id"`
	StartNodeID   string  `json:"startNodeId"`
	EndNodeID     string  `json:"endNodeId"`
	Bidirectional bool    `json:"bidirectional"`
	Length        float64 `json:"length"`
}

type mapFileStation struct {
	ID       string `json:"id"`
	NodeID   string `json:"nodeId"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	Priority int    `json:"priority"`
}

// LoadMapFile parses a JSON map export into model records.
func LoadMapFile(path string) ([]model.Node, []model.Edge, []model.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage: read map file: %w", err)
	}
	var f mapFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, nil, fmt.Errorf("storage: parse map file %s: %w", path, err)
	}
	mapID, err := uuid.Parse(f.MapID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage: map file %s: bad mapId: %w", path, err)
	}

	nodes := make([]model.Node, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		id, err := uuid.Parse(n.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file node %q: %w", n.ID, err)
		}
		nodes = append(nodes, model.Node{ID: id, MapID: mapID, X: n.X, Y: n.Y})
	}
	edges := make([]model.Edge, 0, len(f.Edges))
	for _, e := range f.Edges {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file edge %q: %w", e.ID, err)
		}
		start, err := uuid.Parse(e.StartNodeID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file edge %s: bad startNodeId: %w", e.ID, err)
		}
		end, err := uuid.Parse(e.EndNodeID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file edge %s: bad endNodeId: %w", e.ID, err)
		}
		edges = append(edges, model.Edge{
			ID:            id,
			MapID:         mapID,
			StartNodeID:   start,
			EndNodeID:     end,
			Bidirectional: e.Bidirectional,
			Length:        e.Length,
		})
	}
	stations := make([]model.Station, 0, len(f.Stations))
	for _, s := range f.Stations {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file station %q: %w", s.ID, err)
		}
		nodeID, err := uuid.Parse(s.NodeID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: map file station %s: bad nodeId: %w", s.Code, err)
		}
		stations = append(stations, model.Station{
			ID:       id,
			MapID:    mapID,
			NodeID:   nodeID,
			Code:     s.Code,
			Name:     s.Name,
			Type:     model.StationType(s.Type),
			Priority: s.Priority,
		})
	}
	return nodes, edges, stations, nil
}
