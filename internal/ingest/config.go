package ingest

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("ingest: invalid config")

// Config bounds ingest memory use and the completion wait.
type Config struct {
	// WaitComplete is how long a record may collect fields, measured from the
	// first weight/height/bp/pulse field, before it is emitted as-is.
	WaitComplete  time.Duration
	MaxFrameBytes int
	MaxLineBytes  int
}

func DefaultConfig() Config {
	return Config{
		WaitComplete:  5 * time.Second,
		MaxFrameBytes: 4096,
		MaxLineBytes:  512,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.WaitComplete == 0 {
		c.WaitComplete = def.WaitComplete
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	return c
}

func (c Config) Validate() error {
	if c.WaitComplete <= 0 {
		return fmt.Errorf("%w: wait_complete must be positive, got %v", ErrInvalidConfig, c.WaitComplete)
	}
	// A frame must at least hold "{}".
	if c.MaxFrameBytes < 2 {
		return fmt.Errorf("%w: max_frame_bytes must be >= 2, got %d", ErrInvalidConfig, c.MaxFrameBytes)
	}
	if c.MaxLineBytes < 1 {
		return fmt.Errorf("%w: max_line_bytes must be >= 1, got %d", ErrInvalidConfig, c.MaxLineBytes)
	}
	return nil
}
