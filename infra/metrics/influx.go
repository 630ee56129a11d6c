package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/infra/logger"
)

// InfluxSink writes fleet events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTaskEvent writes one task lifecycle transition.
func (s *InfluxSink) RecordTaskEvent(ev coremetrics.TaskEventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_event").
		AddTag("task_id", ev.TaskID).
		AddTag("agv_code", ev.AgvCode).
		AddTag("event", ev.Event).
		AddTag("component", "task_manager").
		AddField("status", int(ev.Status)).
		AddField("progress", round3(ev.Progress)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordVehicleState writes a snapshot of a vehicle.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("agv_state").
		AddTag("agv_code", ev.AgvCode).
		AddTag("connected", strconv.FormatBool(ev.Connected))
	if ev.StationCode != "" {
		p = p.AddTag("station_code", ev.StationCode)
	}
	p = p.AddField("battery", ev.Battery).
		AddField("speed", round3(ev.Speed)).
		AddField("x", round3(ev.PositionX)).
		AddField("y", round3(ev.PositionY)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLockDecision writes one traffic lock decision.
func (s *InfluxSink) RecordLockDecision(ev coremetrics.LockEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("lock_decision").
		AddTag("agv_code", ev.AgvCode).
		AddTag("channel", ev.ChannelName).
		AddTag("approved", strconv.FormatBool(ev.Approved)).
		AddTag("component", "path_lock").
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSweep writes the outcome of one health sweep.
func (s *InfluxSink) RecordSweep(ev coremetrics.SweepEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("health_sweep").
		AddTag("component", "health_monitor").
		AddTag("failed", strconv.FormatBool(ev.Failed)).
		AddField("stale_agvs", ev.StaleAgvs).
		AddField("cancelled_tasks", ev.CancelledTasks).
		AddField("reaped_locks", ev.ReapedLocks).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
