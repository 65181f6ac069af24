package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BENCHTEST_CONFIG", "")
	t.Setenv("BENCHTEST_POLL_INTERVAL", "")
	t.Setenv("BENCHTEST_REQUIRED_PERCENTAGE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poller.Interval != 5*time.Second || cfg.Verify.RequiredPercentage != 2 || cfg.Verify.Concurrency != 8 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.MQTT.Topic != DefaultStatusTopic {
		t.Fatalf("unexpected topic %q", cfg.MQTT.Topic)
	}
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchtest.yaml")
	data := []byte(`
poller:
  interval: 750ms
verify:
  required_percentage: 10
  concurrency: 3
mqtt:
  broker: tcp://localhost:1883
device_master:
  base_url: http://legacy.local
  timeout: 2s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BENCHTEST_CONFIG", path)
	t.Setenv("BENCHTEST_REQUIRED_PERCENTAGE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poller.Interval != 750*time.Millisecond || cfg.Verify.RequiredPercentage != 10 || cfg.Verify.Concurrency != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.Topic != DefaultStatusTopic {
		t.Fatalf("unexpected mqtt config %+v", cfg.MQTT)
	}
	if cfg.DeviceMaster.BaseURL != "http://legacy.local" || cfg.DeviceMaster.Timeout != 2*time.Second {
		t.Fatalf("unexpected device master config %+v", cfg.DeviceMaster)
	}
}

func TestValidateRejectsBadPercentage(t *testing.T) {
	t.Setenv("BENCHTEST_CONFIG", "")
	t.Setenv("BENCHTEST_REQUIRED_PERCENTAGE", "150")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}
