// Package transport defines the wire contract between the dispatch
// server and the vehicles: the publisher interface, the topic scheme
// and the JSON payload schemas. The MQTT implementation lives in
// infra/mqtt; nothing in core depends on paho directly.
package transport

import (
	"fmt"
	"strings"
)

// Message kinds carried under agv/{code}/{kind}. The direction of each
// kind is fixed: status, task/progress, exception and path/lock-request
// flow vehicle to server, the rest server to vehicle.
const (
	KindStatus       = "status"
	KindTaskAssign   = "task/assign"
	KindTaskCancel   = "task/cancel"
	KindTaskProgress = "task/progress"
	KindException    = "exception"
	KindCommand      = "command"
	KindLockRequest  = "path/lock-request"
	KindLockResponse = "path/lock-response"
)

const topicPrefix = "agv"

// Topic builds the concrete topic for one vehicle and kind.
func Topic(agvCode, kind string) string {
	return fmt.Sprintf("%s/%s/%s", topicPrefix, agvCode, kind)
}

// ServerSubscriptions lists the wildcard filters the server subscribes
// to for inbound traffic.
func ServerSubscriptions() []string {
	return []string{
		Topic("+", KindStatus),
		Topic("+", KindTaskProgress),
		Topic("+", KindException),
		Topic("+", KindLockRequest),
	}
}

// ParseTopic splits a concrete topic into vehicle code and kind.
func ParseTopic(topic string) (agvCode, kind string, ok bool) {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) != 3 || parts[0] != topicPrefix || parts[1] == "" || parts[1] == "+" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
