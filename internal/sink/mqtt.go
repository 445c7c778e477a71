package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

var ErrBrokerRequired = errors.New("sink: mqtt broker required")

// VitalsTopic is the unified topic the collector subscribes to.
const VitalsTopic = "clinic/vitals/data"

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Topic          string
	QoS            byte
	Retained       bool
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "tcp://10.1.10.1:1883",
		ClientID:       "vitalsgw",
		Topic:          VitalsTopic,
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
	}
}

// MQTT publishes envelopes to one broker topic.
type MQTT struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
}

var _ Publisher = (*MQTT)(nil)

// NewMQTT starts connecting in the background; paho retries until the
// broker answers and publishes queue in the client meanwhile.
func NewMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, ErrBrokerRequired
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("sink: invalid mqtt qos %d", cfg.QoS)
	}
	if cfg.Topic == "" {
		cfg.Topic = VitalsTopic
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info().Str("broker", cfg.Broker).Msg("sink.MQTT connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("sink.MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	client.Connect()
	return newMQTTWithClient(client, cfg), nil
}

func newMQTTWithClient(client mqtt.Client, cfg MQTTConfig) *MQTT {
	return &MQTT{client: client, topic: cfg.Topic, qos: cfg.QoS, retain: cfg.Retained}
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Publish(ctx context.Context, msg []byte) error {
	tok := m.client.Publish(m.topic, m.qos, m.retain, msg)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", m.topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
