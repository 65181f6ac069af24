package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PollerConfig tunes board completion polling.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// VerifyConfig tunes lot verification.
type VerifyConfig struct {
	RequiredPercentage int `yaml:"required_percentage"`
	Concurrency        int `yaml:"concurrency"`
}

// MQTTConfig configures device status ingestion. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// DeviceMasterConfig points at the legacy device master API. An empty base
// URL means the devices table is written directly.
type DeviceMasterConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the bench test service configuration.
type Config struct {
	Poller       PollerConfig       `yaml:"poller"`
	Verify       VerifyConfig       `yaml:"verify"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	DeviceMaster DeviceMasterConfig `yaml:"device_master"`
}

// DefaultStatusTopic matches benchtest/<boardId>/<serialNumber>/status.
const DefaultStatusTopic = "benchtest/+/+/status"

// Load reads BENCHTEST_CONFIG when set, then fills gaps from the environment.
func Load() (Config, error) {
	cfg := Config{
		Poller: PollerConfig{
			Interval: getenvDuration("BENCHTEST_POLL_INTERVAL", 5*time.Second),
		},
		Verify: VerifyConfig{
			RequiredPercentage: getenvInt("BENCHTEST_REQUIRED_PERCENTAGE", 2),
			Concurrency:        getenvInt("BENCHTEST_VERIFY_CONCURRENCY", 8),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: getenvDefault("MQTT_CLIENT_ID", "devicelab-benchtest"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    getenvDefault("MQTT_STATUS_TOPIC", DefaultStatusTopic),
			QoS:      byte(getenvInt("MQTT_QOS", 1)),
		},
		DeviceMaster: DeviceMasterConfig{
			BaseURL: os.Getenv("DEVICE_MASTER_URL"),
			Token:   os.Getenv("DEVICE_MASTER_TOKEN"),
			Timeout: getenvDuration("DEVICE_MASTER_TIMEOUT", 10*time.Second),
		},
	}

	if path := os.Getenv("BENCHTEST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Poller.Interval <= 0 {
		return errors.New("config: poller interval must be positive")
	}
	if c.Verify.RequiredPercentage < 0 || c.Verify.RequiredPercentage > 100 {
		return errors.New("config: required percentage must be between 0 and 100")
	}
	if c.Verify.Concurrency <= 0 {
		return errors.New("config: verify concurrency must be positive")
	}
	if c.MQTT.QoS > 2 {
		return errors.New("config: mqtt qos must be 0, 1 or 2")
	}
	if c.MQTT.Broker != "" && strings.TrimSpace(c.MQTT.Topic) == "" {
		return errors.New("config: mqtt topic required")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
