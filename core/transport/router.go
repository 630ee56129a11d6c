package transport

import (
	"encoding/json"

	"github.com/openfms/agvd/core/logger"
)

// Handlers holds the callbacks the router dispatches inbound messages
// to. Nil callbacks drop their kind silently.
type Handlers struct {
	OnStatus      func(agvCode string, msg StatusMessage)
	OnProgress    func(agvCode string, msg TaskProgressMessage)
	OnException   func(agvCode string, msg ExceptionMessage)
	OnLockRequest func(agvCode string, msg LockRequestMessage)
}

// Router decodes inbound (topic, payload) pairs and dispatches them to
// typed handlers. Malformed topics and payloads are logged and dropped;
// one bad message never takes the subscription down.
type Router struct {
	handlers Handlers
	log      logger.Logger
}

func NewRouter(handlers Handlers, log logger.Logger) *Router {
	return &Router{handlers: handlers, log: log}
}

// Route handles one inbound message.
func (r *Router) Route(topic string, payload []byte) {
	agvCode, kind, ok := ParseTopic(topic)
	if !ok {
		r.log.Warnf("unroutable topic %q", topic)
		return
	}
	switch kind {
	case KindStatus:
		var msg StatusMessage
		if !r.decode(topic, payload, &msg) {
			return
		}
		if msg.AgvCode == "" {
			msg.AgvCode = agvCode
		}
		if r.handlers.OnStatus != nil {
			r.handlers.OnStatus(agvCode, msg)
		}
	case KindTaskProgress:
		var msg TaskProgressMessage
		if !r.decode(topic, payload, &msg) {
			return
		}
		if msg.AgvCode == "" {
			msg.AgvCode = agvCode
		}
		if r.handlers.OnProgress != nil {
			r.handlers.OnProgress(agvCode, msg)
		}
	case KindException:
		var msg ExceptionMessage
		if !r.decode(topic, payload, &msg) {
			return
		}
		if msg.AgvCode == "" {
			msg.AgvCode = agvCode
		}
		if r.handlers.OnException != nil {
			r.handlers.OnException(agvCode, msg)
		}
	case KindLockRequest:
		var msg LockRequestMessage
		if !r.decode(topic, payload, &msg) {
			return
		}
		if msg.AgvCode == "" {
			msg.AgvCode = agvCode
		}
		if r.handlers.OnLockRequest != nil {
			r.handlers.OnLockRequest(agvCode, msg)
		}
	default:
		r.log.Debugf("ignoring message kind %q on %s", kind, topic)
	}
}

func (r *Router) decode(topic string, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		r.log.Warnf("dropping malformed payload on %s: %v", topic, err)
		return false
	}
	return true
}
