package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

var (
	ErrPortRequired = errors.New("source: serial port required")
	ErrInvalidMode  = errors.New("source: invalid serial mode")
)

// SerialConfig describes one RS232 link.
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    string
	ReadTimeout time.Duration
	BufferBytes int
}

// DefaultSerialConfig is 9600 baud 8N1, the common setting for scales,
// blood pressure monitors, and thermometers.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:        "/dev/ttyUSB0",
		BaudRate:    9600,
		DataBits:    8,
		Parity:      "none",
		StopBits:    "1",
		ReadTimeout: 100 * time.Millisecond,
		BufferBytes: defaultPumpLimit,
	}
}

// Mode converts the config into a serial.Mode.
func (c SerialConfig) Mode() (*serial.Mode, error) {
	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", ErrInvalidMode, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", ErrInvalidMode, c.DataBits)
	}
	parity, err := parseParity(c.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := parseStopBits(c.StopBits)
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   parity,
		StopBits: stop,
	}, nil
}

func parseParity(raw string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("%w: parity %q", ErrInvalidMode, raw)
	}
}

func parseStopBits(raw string) (serial.StopBits, error) {
	switch strings.TrimSpace(raw) {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("%w: stop bits %q", ErrInvalidMode, raw)
	}
}

// OpenSerial opens the port and starts pumping it.
func OpenSerial(cfg SerialConfig) (*Pump, error) {
	if strings.TrimSpace(cfg.Port) == "" {
		return nil, ErrPortRequired
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout %s: %w", cfg.Port, err)
		}
	}
	return NewPump(port, cfg.BufferBytes), nil
}

// ListPorts returns the serial ports visible to the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
