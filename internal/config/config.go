package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/vitalsgw/internal/gateway"
)

type fileConfig struct {
	Serial   serialSection   `toml:"serial"`
	Ingest   ingestSection   `toml:"ingest"`
	Identity identitySection `toml:"identity"`
	MQTT     mqttSection     `toml:"mqtt"`
	HTTP     httpSection     `toml:"http"`
	Status   statusSection   `toml:"status"`
	Gateway  gatewaySection  `toml:"gateway"`
}

type serialSection struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	DataBits    int    `toml:"data_bits"`
	Parity      string `toml:"parity"`
	StopBits    string `toml:"stop_bits"`
	ReadTimeout string `toml:"read_timeout"`
	BufferBytes int    `toml:"buffer_bytes"`
}

type ingestSection struct {
	WaitCompleteMS int64 `toml:"wait_complete_ms"`
	MaxFrameBytes  int   `toml:"max_frame_bytes"`
	MaxLineBytes   int   `toml:"max_line_bytes"`
	PollIntervalMS int64 `toml:"poll_interval_ms"`
}

type identitySection struct {
	Path     string `toml:"path"`
	DeviceID string `toml:"device_id"`
}

type mqttSection struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	QoS      int    `toml:"qos"`
	Retained bool   `toml:"retained"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type httpSection struct {
	Enabled   bool              `toml:"enabled"`
	URL       string            `toml:"url"`
	TimeoutMS int64             `toml:"timeout_ms"`
	Headers   map[string]string `toml:"headers"`
}

type statusSection struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

type gatewaySection struct {
	HeartbeatIntervalMS int64 `toml:"heartbeat_interval_ms"`
	QueueSize           int   `toml:"queue_size"`
	PublishTimeoutMS    int64 `toml:"publish_timeout_ms"`
	LogRecords          bool  `toml:"log_records"`
}

// Load reads a gateway config. Keys absent from the file keep their
// gateway.DefaultConfig values.
func Load(path string) (gateway.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := apply(gateway.DefaultConfig(), raw, meta)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return gateway.Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func apply(cfg gateway.Config, raw fileConfig, meta toml.MetaData) (gateway.Config, error) {
	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.BaudRate = raw.Serial.Baud
	}
	if meta.IsDefined("serial", "data_bits") {
		cfg.Serial.DataBits = raw.Serial.DataBits
	}
	if meta.IsDefined("serial", "parity") {
		cfg.Serial.Parity = strings.TrimSpace(raw.Serial.Parity)
	}
	if meta.IsDefined("serial", "stop_bits") {
		cfg.Serial.StopBits = strings.TrimSpace(raw.Serial.StopBits)
	}
	if meta.IsDefined("serial", "read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Serial.ReadTimeout))
		if err != nil {
			return cfg, fmt.Errorf("parse serial.read_timeout: %w", err)
		}
		cfg.Serial.ReadTimeout = d
	}
	if meta.IsDefined("serial", "buffer_bytes") {
		cfg.Serial.BufferBytes = raw.Serial.BufferBytes
	}

	if meta.IsDefined("ingest", "wait_complete_ms") {
		cfg.Ingest.WaitComplete = millis(raw.Ingest.WaitCompleteMS)
	}
	if meta.IsDefined("ingest", "max_frame_bytes") {
		cfg.Ingest.MaxFrameBytes = raw.Ingest.MaxFrameBytes
	}
	if meta.IsDefined("ingest", "max_line_bytes") {
		cfg.Ingest.MaxLineBytes = raw.Ingest.MaxLineBytes
	}
	if meta.IsDefined("ingest", "poll_interval_ms") {
		cfg.PollInterval = millis(raw.Ingest.PollIntervalMS)
	}

	if meta.IsDefined("identity", "path") {
		cfg.IdentityPath = strings.TrimSpace(raw.Identity.Path)
	}
	if meta.IsDefined("identity", "device_id") {
		cfg.DeviceID = strings.TrimSpace(raw.Identity.DeviceID)
	}

	if meta.IsDefined("mqtt", "enabled") {
		cfg.MQTTEnabled = raw.MQTT.Enabled
	}
	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = strings.TrimSpace(raw.MQTT.ClientID)
	}
	if meta.IsDefined("mqtt", "topic") {
		cfg.MQTT.Topic = strings.TrimSpace(raw.MQTT.Topic)
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return cfg, fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", raw.MQTT.QoS)
		}
		cfg.MQTT.QoS = byte(raw.MQTT.QoS)
	}
	if meta.IsDefined("mqtt", "retained") {
		cfg.MQTT.Retained = raw.MQTT.Retained
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}

	if meta.IsDefined("http", "enabled") {
		cfg.HTTPEnabled = raw.HTTP.Enabled
	}
	if meta.IsDefined("http", "url") {
		cfg.HTTP.URL = strings.TrimSpace(raw.HTTP.URL)
	}
	if meta.IsDefined("http", "timeout_ms") {
		cfg.HTTP.Timeout = millis(raw.HTTP.TimeoutMS)
	}
	if meta.IsDefined("http", "headers") {
		cfg.HTTP.Headers = raw.HTTP.Headers
	}

	if meta.IsDefined("status", "addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.Status.Addr)
	}
	if meta.IsDefined("status", "token") {
		cfg.StatusToken = strings.TrimSpace(raw.Status.Token)
	}
	if meta.IsDefined("status", "cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.Status.CorsOrigins)
	}

	if meta.IsDefined("gateway", "heartbeat_interval_ms") {
		cfg.HeartbeatInterval = millis(raw.Gateway.HeartbeatIntervalMS)
	}
	if meta.IsDefined("gateway", "queue_size") {
		cfg.QueueSize = raw.Gateway.QueueSize
	}
	if meta.IsDefined("gateway", "publish_timeout_ms") {
		cfg.PublishTimeout = millis(raw.Gateway.PublishTimeoutMS)
	}
	if meta.IsDefined("gateway", "log_records") {
		cfg.LogRecords = raw.Gateway.LogRecords
	}
	return cfg, nil
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
