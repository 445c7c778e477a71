package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/vitalsgw/internal/ingest"
	"github.com/danmuck/vitalsgw/internal/sink"
	"github.com/danmuck/vitalsgw/internal/source"
)

var (
	ErrInvalidPollInterval      = errors.New("gateway: invalid poll interval")
	ErrInvalidHeartbeatInterval = errors.New("gateway: invalid heartbeat interval")
	ErrInvalidQueueSize         = errors.New("gateway: invalid queue size")
	ErrNoSinks                  = errors.New("gateway: no sinks enabled")
)

// Config configures one gateway process.
type Config struct {
	// DeviceID overrides the id derived from the host MAC address.
	DeviceID          string
	IdentityPath      string
	Serial            source.SerialConfig
	Backoff           source.BackoffConfig
	Ingest            ingest.Config
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	QueueSize         int
	PublishTimeout    time.Duration
	LogRecords        bool
	MQTTEnabled       bool
	MQTT              sink.MQTTConfig
	HTTPEnabled       bool
	HTTP              sink.HTTPConfig
	StatusAddr        string
	StatusToken       string
	CorsOrigins       []string
}

func DefaultConfig() Config {
	return Config{
		IdentityPath:      "local/identity.toml",
		Serial:            source.DefaultSerialConfig(),
		Backoff:           source.DefaultBackoffConfig(),
		Ingest:            ingest.DefaultConfig(),
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
		QueueSize:         256,
		PublishTimeout:    5 * time.Second,
		LogRecords:        true,
		MQTTEnabled:       true,
		MQTT:              sink.DefaultMQTTConfig(),
		HTTP:              sink.HTTPConfig{Timeout: 5 * time.Second},
		StatusAddr:        ":9200",
		CorsOrigins:       []string{"http://localhost:3000"},
	}
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if c.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if _, err := c.Serial.Mode(); err != nil {
		return err
	}
	if c.MQTTEnabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return fmt.Errorf("gateway mqtt: %w", sink.ErrBrokerRequired)
	}
	if c.HTTPEnabled && strings.TrimSpace(c.HTTP.URL) == "" {
		return fmt.Errorf("gateway http: %w", sink.ErrURLRequired)
	}
	if !c.LogRecords && !c.MQTTEnabled && !c.HTTPEnabled {
		return ErrNoSinks
	}
	return nil
}
