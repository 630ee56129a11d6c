package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "agvd-test"
  username: "user"
  password: "pass"
  use_tls: false
  qos:
    task/assign: 2
    default: 1
storage:
  driver: "sqlite"
  path: "fleet.db"
path_lock:
  system_code: "multi-lane"
  lock_ttl: "3m"
health:
  offline_threshold: "45s"
scheduler:
  sweep_schedule: "@every 15s"
metrics:
  prometheus_addr: ":2112"
map:
  id: "7b3f9a52-1111-2222-3333-444455556666"
fleet:
  agvs:
    - code: "V001"
      name: "Tug 1"
    - code: "V002"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "agvd-test"},
		{"qos.assign", cfg.MQTT.QoS["task/assign"], byte(2)},
		{"storage.driver", cfg.Storage.Driver, "sqlite"},
		{"storage.path", cfg.Storage.Path, "fleet.db"},
		{"path_lock.system", cfg.PathLock.SystemCode, "multi-lane"},
		{"path_lock.ttl", cfg.PathLock.LockTTL, 3 * time.Minute},
		{"health.threshold", cfg.Health.OfflineThreshold, 45 * time.Second},
		{"scheduler.sweep", cfg.Scheduler.SweepSchedule, "@every 15s"},
		{"metrics.prom", cfg.Metrics.PrometheusAddr, ":2112"},
		{"map.id", cfg.Map.ID, "7b3f9a52-1111-2222-3333-444455556666"},
		{"fleet.size", len(cfg.Fleet.Agvs), 2},
		{"fleet.code", cfg.Fleet.Agvs[0].Code, "V001"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
map:
  id: "7b3f9a52-1111-2222-3333-444455556666"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.MQTT.ClientID != "agvd-server" {
		t.Errorf("client id default: %s", cfg.MQTT.ClientID)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "agvd.db" {
		t.Errorf("storage defaults: %+v", cfg.Storage)
	}
	if cfg.PathLock.SystemCode != "single-lane" || cfg.PathLock.LockTTL != 5*time.Minute {
		t.Errorf("path lock defaults: %+v", cfg.PathLock)
	}
	if cfg.Health.OfflineThreshold != 90*time.Second {
		t.Errorf("health default: %v", cfg.Health.OfflineThreshold)
	}
	if cfg.Scheduler.SweepSchedule == "" {
		t.Errorf("sweep schedule not defaulted")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
map:
  id: "7b3f9a52-1111-2222-3333-444455556666"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AGVD_MQTT__BROKER", "tcp://broker:1883")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("env override not applied: %s", cfg.MQTT.Broker)
	}
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error without map id")
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("config.toml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
