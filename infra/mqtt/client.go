// Package mqtt implements the transport over an MQTT broker using
// Eclipse Paho. The client publishes with per-kind QoS and retry, and
// re-establishes its subscriptions after every reconnect.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openfms/agvd/core/transport"
	"github.com/openfms/agvd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `koanf:"broker" json:"broker"`
	ClientID   string          `koanf:"client_id" json:"client_id"`
	Username   string          `koanf:"username" json:"username"`
	Password   string          `koanf:"password" json:"password"`
	UseTLS     bool            `koanf:"use_tls" json:"use_tls"`
	ClientCert string          `koanf:"client_cert" json:"client_cert"`
	ClientKey  string          `koanf:"client_key" json:"client_key"`
	CABundle   string          `koanf:"ca_bundle" json:"ca_bundle"`
	AuthMethod string          `koanf:"auth_method" json:"auth_method"`
	QoS        map[string]byte `koanf:"qos" json:"qos"`
	LWTTopic   string          `koanf:"lwt_topic" json:"lwt_topic"`
	LWTPayload string          `koanf:"lwt_payload" json:"lwt_payload"`
	LWTQoS     byte            `koanf:"lwt_qos" json:"lwt_qos"`
	LWTRetain  bool            `koanf:"lwt_retain" json:"lwt_retain"`
	MaxRetries int             `koanf:"max_retries" json:"max_retries"`
	BackoffMS  int             `koanf:"backoff_ms" json:"backoff_ms"`
	TLSConfig  *tls.Config     `koanf:"-" json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// InboundHandler receives every inbound message.
type InboundHandler func(topic string, payload []byte)

type subscription struct {
	filter  string
	handler InboundHandler
}

// Client implements transport.Publisher on top of Paho.
type Client struct {
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration

	mu   sync.Mutex
	cli  pahoClient
	subs []subscription
}

var _ transport.Publisher = (*Client)(nil)

// NewClient connects to the MQTT broker.
func NewClient(cfg Config) (*Client, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	c := &Client{
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected")
		c.resubscribe()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	c.mu.Lock()
	c.cli = cli
	c.mu.Unlock()
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// qosFor resolves the QoS for a concrete topic from its message kind,
// falling back to the "default" entry, then zero.
func (c *Client) qosFor(topic string) byte {
	if _, kind, ok := transport.ParseTopic(topic); ok {
		if q, found := c.qos[kind]; found {
			return q
		}
	}
	if q, found := c.qos["default"]; found {
		return q
	}
	return 0
}

// Publish implements transport.Publisher with bounded retry and
// exponential backoff.
func (c *Client) Publish(topic string, payload []byte) error {
	qos := c.qosFor(topic)
	var publishErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := c.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		c.logger.Errorf("publish to %s attempt %d failed: %v", topic, attempt+1, publishErr)
		time.Sleep(c.backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Subscribe registers an inbound handler for the given filters. The
// subscriptions survive reconnects.
func (c *Client) Subscribe(filters []string, handler InboundHandler) error {
	c.mu.Lock()
	for _, f := range filters {
		c.subs = append(c.subs, subscription{filter: f, handler: handler})
	}
	cli := c.cli
	c.mu.Unlock()

	if cli == nil || !cli.IsConnected() {
		return nil
	}
	for _, f := range filters {
		if err := c.subscribeOne(cli, f, handler); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) subscribeOne(cli pahoClient, filter string, handler InboundHandler) error {
	qos := c.qosFor(filter)
	cb := func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	if token := cli.Subscribe(filter, qos, cb); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", filter, token.Error())
	}
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	cli := c.cli
	c.mu.Unlock()

	for _, s := range subs {
		if err := c.subscribeOne(cli, s.filter, s.handler); err != nil {
			c.logger.Errorf("resubscribe error: %v", err)
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	if cli != nil && cli.IsConnected() {
		cli.Disconnect(250)
	}
}
