package sink

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeVitals       = "vitals"
	TypeDeviceStatus = "device_status"
)

// Device identifies the gateway in every downstream message.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MACAddress string `json:"mac_address,omitempty"`
}

// Envelope is the downstream collector message.
type Envelope struct {
	Type       string          `json:"type"`
	MessageID  string          `json:"messageId"`
	DeviceID   string          `json:"deviceId"`
	DeviceName string          `json:"deviceName"`
	MACAddress string          `json:"macAddress,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

// Wrap builds a vitals envelope around one emitted record. Payloads that are
// not valid JSON (a brace-balanced but broken passthrough frame) travel as
// Raw text.
func Wrap(dev Device, payload string, now time.Time) Envelope {
	env := Envelope{
		Type:       TypeVitals,
		MessageID:  uuid.NewString(),
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		MACAddress: dev.MACAddress,
		Timestamp:  now.UTC(),
	}
	if json.Valid([]byte(payload)) {
		env.Data = json.RawMessage(payload)
	} else {
		env.Raw = payload
	}
	return env
}

// Status builds a device_status heartbeat envelope.
func Status(dev Device, now time.Time) Envelope {
	return Envelope{
		Type:       TypeDeviceStatus,
		MessageID:  uuid.NewString(),
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		MACAddress: dev.MACAddress,
		Timestamp:  now.UTC(),
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
