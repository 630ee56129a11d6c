package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/infra/logger"
)

func TestParseTopic(t *testing.T) {
	code, kind, ok := ParseTopic("agv/AGV-01/status")
	require.True(t, ok)
	assert.Equal(t, "AGV-01", code)
	assert.Equal(t, KindStatus, kind)

	code, kind, ok = ParseTopic("agv/AGV-01/path/lock-request")
	require.True(t, ok)
	assert.Equal(t, "AGV-01", code)
	assert.Equal(t, KindLockRequest, kind)

	for _, bad := range []string{"", "agv", "agv/AGV-01", "other/AGV-01/status", "agv//status", "agv/+/status"} {
		_, _, ok := ParseTopic(bad)
		assert.False(t, ok, "topic %q", bad)
	}
}

func TestTopicRoundTrip(t *testing.T) {
	for _, kind := range []string{KindStatus, KindTaskAssign, KindTaskCancel, KindTaskProgress, KindException, KindCommand, KindLockRequest, KindLockResponse} {
		topic := Topic("AGV-07", kind)
		code, parsed, ok := ParseTopic(topic)
		require.True(t, ok, topic)
		assert.Equal(t, "AGV-07", code)
		assert.Equal(t, kind, parsed)
	}
}

func TestServerSubscriptions(t *testing.T) {
	subs := ServerSubscriptions()
	assert.ElementsMatch(t, []string{
		"agv/+/status",
		"agv/+/task/progress",
		"agv/+/exception",
		"agv/+/path/lock-request",
	}, subs)
}

func TestRouterDispatchesStatus(t *testing.T) {
	var got StatusMessage
	var gotCode string
	r := NewRouter(Handlers{
		OnStatus: func(agvCode string, msg StatusMessage) {
			gotCode = agvCode
			got = msg
		},
	}, logger.NopLogger{})

	payload := []byte(`{"battery":87,"batteryVoltage":52.1,"speed":0.8,"position":{"x":12.5,"y":3.0,"angle":90,"stationCode":"P1"},"timestamp":"2026-01-10T08:00:00Z"}`)
	r.Route("agv/AGV-01/status", payload)

	assert.Equal(t, "AGV-01", gotCode)
	// agvCode missing from the payload is backfilled from the topic.
	assert.Equal(t, "AGV-01", got.AgvCode)
	assert.Equal(t, 87, got.Battery)
	require.NotNil(t, got.Position.X)
	assert.InDelta(t, 12.5, *got.Position.X, 1e-9)
	assert.Equal(t, "P1", got.Position.StationCode)
}

func TestRouterDispatchesProgress(t *testing.T) {
	var got TaskProgressMessage
	r := NewRouter(Handlers{
		OnProgress: func(_ string, msg TaskProgressMessage) { got = msg },
	}, logger.NopLogger{})

	payload := []byte(`{"agvCode":"AGV-02","taskId":"t1","status":20,"progressPercentage":42.5,"timestamp":"2026-01-10T08:00:00Z"}`)
	r.Route("agv/AGV-02/task/progress", payload)

	assert.Equal(t, model.TaskExecuting, got.Status)
	require.NotNil(t, got.Progress)
	assert.InDelta(t, 42.5, *got.Progress, 1e-9)
}

func TestRouterDispatchesProgressWithoutPercentage(t *testing.T) {
	var got TaskProgressMessage
	r := NewRouter(Handlers{
		OnProgress: func(_ string, msg TaskProgressMessage) { got = msg },
	}, logger.NopLogger{})

	payload := []byte(`{"agvCode":"AGV-02","taskId":"t1","status":30,"timestamp":"2026-01-10T08:00:00Z"}`)
	r.Route("agv/AGV-02/task/progress", payload)

	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.Nil(t, got.Progress)
}

func TestRouterDispatchesLockRequest(t *testing.T) {
	var got LockRequestMessage
	r := NewRouter(Handlers{
		OnLockRequest: func(_ string, msg LockRequestMessage) { got = msg },
	}, logger.NopLogger{})

	payload := []byte(`{"agvCode":"AGV-03","taskId":"t2","fromStationCode":"A","toStationCode":"B","timestamp":"2026-01-10T08:00:00Z"}`)
	r.Route("agv/AGV-03/path/lock-request", payload)

	assert.Equal(t, "A", got.FromStationCode)
	assert.Equal(t, "B", got.ToStationCode)
}

func TestRouterDropsMalformed(t *testing.T) {
	called := false
	r := NewRouter(Handlers{
		OnStatus: func(string, StatusMessage) { called = true },
	}, logger.NopLogger{})

	r.Route("agv/AGV-01/status", []byte(`{not json`))
	assert.False(t, called)

	r.Route("bogus", []byte(`{}`))
	r.Route("agv/AGV-01/some/unknown/kind", []byte(`{}`))
	assert.False(t, called)
}

func TestRouterIgnoresOutboundKinds(t *testing.T) {
	r := NewRouter(Handlers{}, logger.NopLogger{})
	// Outbound kinds have no handlers; routing them must not panic.
	r.Route("agv/AGV-01/task/assign", []byte(`{}`))
	r.Route("agv/AGV-01/command", []byte(`{}`))
}
