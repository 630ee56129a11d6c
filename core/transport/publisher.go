package transport

// Publisher sends a payload to a topic. Implemented by the MQTT client
// in infra/mqtt and by in-memory fakes in tests.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(topic string, payload []byte) error

func (f PublisherFunc) Publish(topic string, payload []byte) error {
	return f(topic, payload)
}
