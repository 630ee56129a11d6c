package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openfms/agvd/core/model"
)

func writeMapFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMapFile(t *testing.T) {
	mapID := uuid.New()
	n1, n2, e1, s1 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	path := writeMapFile(t, fmt.Sprintf(`{
		"mapId": %q,
		"nodes": [
			{"id": %q, "x": 0, "y": 0},
			{"id": %q, "x": 10, "y": 0}
		],
		"edges": [
			{"id": %q, "startNodeId": %q, "endNodeId": %q, "bidirectional": true, "length": 10.5}
		],
		"stations": [
			{"id": %q, "nodeId": %q, "code": "LOAD-1", "name": "Loading 1", "type": 10, "priority": 1}
		]
	}`, mapID, n1, n2, e1, n1, n2, s1, n1))

	nodes, edges, stations, err := LoadMapFile(path)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Len(t, edges, 1)
	require.Len(t, stations, 1)

	require.Equal(t, mapID, nodes[0].MapID)
	require.Equal(t, 10.5, edges[0].Length)
	require.True(t, edges[0].Bidirectional)
	require.Equal(t, "LOAD-1", stations[0].Code)
	require.Equal(t, model.StationPickup, stations[0].Type)
	require.Equal(t, n1, stations[0].NodeID)
}

func TestLoadMapFileBadID(t *testing.T) {
	path := writeMapFile(t, `{"mapId": "not-a-uuid"}`)
	_, _, _, err := LoadMapFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad mapId")
}

func TestLoadMapFileMissing(t *testing.T) {
	_, _, _, err := LoadMapFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
