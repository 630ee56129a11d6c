package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/transport"
)

// SimulatedVehicle connects to MQTT, heartbeats its status and executes
// assigned tasks checkpoint by checkpoint, requesting a path lock for
// every leg before driving it.
type SimulatedVehicle struct {
	Code        string
	Broker      string
	Station     string
	Interval    time.Duration
	LegDuration time.Duration
	LockRetry   time.Duration

	client  paho.Client
	battery *Battery

	assignCh chan transport.TaskAssignMessage
	lockCh   chan transport.LockResponseMessage
	cancelCh chan transport.TaskCancelMessage

	status  model.TaskStatus
	taskID  string
	station string
}

// NewSimulatedVehicle creates a vehicle parked at the given station.
func NewSimulatedVehicle(code, broker, station string) *SimulatedVehicle {
	return &SimulatedVehicle{
		Code:        code,
		Broker:      broker,
		Station:     station,
		Interval:    5 * time.Second,
		LegDuration: 3 * time.Second,
		LockRetry:   2 * time.Second,
		battery:     newBattery(),
		assignCh:    make(chan transport.TaskAssignMessage, 4),
		lockCh:      make(chan transport.LockResponseMessage, 4),
		cancelCh:    make(chan transport.TaskCancelMessage, 4),
		station:     station,
	}
}

// Run connects to the broker and drives the vehicle until ctx is done.
func (v *SimulatedVehicle) Run(ctx context.Context) error {
	opts := paho.NewClientOptions().AddBroker(v.Broker).SetClientID("sim-" + v.Code)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s: connect: %w", v.Code, token.Error())
	}
	v.client = cli
	defer cli.Disconnect(250)

	subs := map[string]paho.MessageHandler{
		transport.Topic(v.Code, transport.KindTaskAssign):   v.onAssign,
		transport.Topic(v.Code, transport.KindTaskCancel):   v.onCancel,
		transport.Topic(v.Code, transport.KindLockResponse): v.onLockResponse,
		transport.Topic(v.Code, transport.KindCommand):      v.onCommand,
	}
	for topic, h := range subs {
		if token := cli.Subscribe(topic, 1, h); token.Wait() && token.Error() != nil {
			return fmt.Errorf("%s: subscribe %s: %w", v.Code, topic, token.Error())
		}
	}

	v.publishStatus()
	ticker := time.NewTicker(v.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.publishStatus()
		case assign := <-v.assignCh:
			v.executeTask(ctx, assign)
		}
	}
}

func (v *SimulatedVehicle) onAssign(_ paho.Client, msg paho.Message) {
	var m transport.TaskAssignMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode assignment: %v", v.Code, err)
		return
	}
	select {
	case v.assignCh <- m:
	default:
		log.Printf("%s: assignment queue full, dropping task %s", v.Code, m.TaskID)
	}
}

func (v *SimulatedVehicle) onCancel(_ paho.Client, msg paho.Message) {
	var m transport.TaskCancelMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode cancel: %v", v.Code, err)
		return
	}
	select {
	case v.cancelCh <- m:
	default:
	}
}

func (v *SimulatedVehicle) onLockResponse(_ paho.Client, msg paho.Message) {
	var m transport.LockResponseMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode lock response: %v", v.Code, err)
		return
	}
	select {
	case v.lockCh <- m:
	default:
	}
}

func (v *SimulatedVehicle) onCommand(_ paho.Client, msg paho.Message) {
	var m transport.CommandMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode command: %v", v.Code, err)
		return
	}
	log.Printf("%s: command %s received", v.Code, m.CommandType)
}

// executeTask walks the assignment's checkpoints in order. Each leg is
// gated on an approved path lock; rejections are retried until the
// coordinator lets the vehicle through.
func (v *SimulatedVehicle) executeTask(ctx context.Context, assign transport.TaskAssignMessage) {
	v.taskID = assign.TaskID
	v.status = model.TaskExecuting
	log.Printf("%s: task %s: %s -> %s (%d checkpoints)",
		v.Code, assign.TaskID, assign.StartStationCode, assign.EndStationCode, len(assign.Checkpoints))
	v.publishProgress(assign.TaskID, model.TaskExecuting, 0)

	legs := len(assign.Checkpoints) - 1
	for i := 0; i < legs; i++ {
		if v.drainCancels(assign.TaskID) {
			return
		}
		from := assign.Checkpoints[i].StationCode
		to := assign.Checkpoints[i+1].StationCode
		if !v.acquireLock(ctx, assign.TaskID, from, to) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(v.LegDuration):
		}
		v.battery.Drain(v.LegDuration)
		v.station = to
		pct := float64(i+1) / float64(legs) * 100
		status := model.TaskExecuting
		if i == legs-1 {
			status = model.TaskCompleted
		}
		v.publishProgress(assign.TaskID, status, pct)
	}

	v.status = model.TaskCompleted
	v.taskID = ""
	v.publishStatus()
}

// acquireLock publishes lock requests until the channel is granted.
// Returns false when the context ends or the task is cancelled first.
func (v *SimulatedVehicle) acquireLock(ctx context.Context, taskID, from, to string) bool {
	for {
		v.publish(transport.KindLockRequest, transport.LockRequestMessage{
			AgvCode:         v.Code,
			TaskID:          taskID,
			Timestamp:       transport.Now(),
			FromStationCode: from,
			ToStationCode:   to,
		})
		timeout := time.After(v.LockRetry)
		for {
			select {
			case <-ctx.Done():
				return false
			case cancel := <-v.cancelCh:
				if cancel.TaskID == taskID {
					v.abandonTask(taskID)
					return false
				}
			case resp := <-v.lockCh:
				if resp.TaskID != taskID || resp.FromStationCode != from || resp.ToStationCode != to {
					continue
				}
				if resp.Approved {
					return true
				}
				log.Printf("%s: lock %s->%s rejected: %s", v.Code, from, to, resp.Reason)
			case <-timeout:
			}
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(v.LockRetry):
		}
	}
}

func (v *SimulatedVehicle) drainCancels(taskID string) bool {
	select {
	case cancel := <-v.cancelCh:
		if cancel.TaskID == taskID {
			v.abandonTask(taskID)
			return true
		}
	default:
	}
	return false
}

func (v *SimulatedVehicle) abandonTask(taskID string) {
	log.Printf("%s: task %s cancelled by server", v.Code, taskID)
	v.status = model.TaskCancelled
	v.taskID = ""
	v.publishStatus()
}

func (v *SimulatedVehicle) publishStatus() {
	voltage, pct := v.battery.Read()
	v.publish(transport.KindStatus, transport.StatusMessage{
		AgvCode:        v.Code,
		Timestamp:      transport.Now(),
		Battery:        pct,
		BatteryVoltage: voltage,
		Position:       transport.PositionInfo{StationCode: v.station},
		CurrentTaskID:  v.taskID,
	})
}

func (v *SimulatedVehicle) publishProgress(taskID string, status model.TaskStatus, pct float64) {
	v.publish(transport.KindTaskProgress, transport.TaskProgressMessage{
		AgvCode:   v.Code,
		TaskID:    taskID,
		Timestamp: transport.Now(),
		Status:    status,
		Progress:  &pct,
	})
}

func (v *SimulatedVehicle) publish(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("%s: encode %s: %v", v.Code, kind, err)
		return
	}
	if token := v.client.Publish(transport.Topic(v.Code, kind), 1, false, data); token.Wait() && token.Error() != nil {
		log.Printf("%s: publish %s: %v", v.Code, kind, token.Error())
	}
}
