// Package config loads the server configuration from a YAML or JSON
// file with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openfms/agvd/core/health"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/infra/mqtt"
	"github.com/openfms/agvd/infra/scheduler"
	"github.com/openfms/agvd/infra/storage"
)

type Config struct {
	MQTT      mqtt.Config      `koanf:"mqtt"`
	Storage   storage.Config   `koanf:"storage"`
	PathLock  pathlock.Config  `koanf:"path_lock"`
	Health    health.Config    `koanf:"health"`
	Scheduler scheduler.Config `koanf:"scheduler"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Sentry    SentryConfig     `koanf:"sentry"`
	Map       MapConfig        `koanf:"map"`
	Fleet     FleetConfig      `koanf:"fleet"`
}

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	// PrometheusAddr is the listen address of the /metrics endpoint.
	// Empty disables the Prometheus server.
	PrometheusAddr string       `koanf:"prometheus_addr"`
	Influx         InfluxConfig `koanf:"influx"`
}

// InfluxConfig points at an optional InfluxDB instance. An empty URL
// disables the sink.
type InfluxConfig struct {
	URL    string `koanf:"url"`
	Token  string `koanf:"token"`
	Org    string `koanf:"org"`
	Bucket string `koanf:"bucket"`
}

// MapConfig names the facility map the planner loads.
type MapConfig struct {
	// ID is the UUID of the map whose graph is loaded at startup.
	ID string `koanf:"id"`
	// SeedFile optionally points at a JSON map export imported into
	// storage before the graph is loaded.
	SeedFile string `koanf:"seed_file"`
}

// FleetConfig declares the vehicles the server expects to manage.
type FleetConfig struct {
	Agvs []AgvConfig `koanf:"agvs"`
}

// AgvConfig is one configured vehicle.
type AgvConfig struct {
	Code string `koanf:"code"`
	Name string `koanf:"name"`
}

// Load reads the file at path, applies AGVD_ environment overrides,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides: AGVD_MQTT__BROKER=... maps to mqtt.broker.
	if err := k.Load(env.Provider("AGVD_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "agvd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies sane defaults to unset fields.
func (c *Config) SetDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "agvd-server"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = storage.DriverSQLite
	}
	if c.Storage.Driver == storage.DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = "agvd.db"
	}
	if c.PathLock.SystemCode == "" {
		c.PathLock.SystemCode = pathlock.SystemSingleLane
	}
	if c.PathLock.LockTTL == 0 {
		c.PathLock.LockTTL = 5 * time.Minute
	}
	if c.Health.OfflineThreshold == 0 {
		c.Health.OfflineThreshold = 90 * time.Second
	}
	c.Scheduler.SetDefaults()
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Storage.Driver != storage.DriverSQLite && c.Storage.Driver != storage.DriverMemory {
		return fmt.Errorf("unknown storage driver %s", c.Storage.Driver)
	}
	if c.Map.ID == "" {
		return fmt.Errorf("map.id is required")
	}
	switch c.PathLock.SystemCode {
	case pathlock.SystemSingleLane, pathlock.SystemMultiLane:
	default:
		return fmt.Errorf("unknown path lock system %s", c.PathLock.SystemCode)
	}
	return nil
}
