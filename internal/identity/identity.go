// Package identity persists the device name the gateway reports downstream.
// The running gateway only reads it; Save and Reset back the CLI.
package identity

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
)

const (
	DefaultName = "GO-RS232"
	// MaxNameLen bounds the name carried in every envelope.
	MaxNameLen = 31
)

var ErrInvalidName = errors.New("identity: invalid device name")

// Identity is the persisted device naming record.
type Identity struct {
	DeviceName string `toml:"device_name"`
}

// Load reads path. A missing file, an empty name, or an erased (0xFF filled)
// name all resolve to DefaultName.
func Load(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{DeviceName: DefaultName}, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("identity load failed (%s): %w", path, err)
	}
	var id Identity
	if bytes.IndexByte(data, 0xFF) < 0 {
		if _, err := toml.Decode(string(data), &id); err != nil {
			return Identity{}, fmt.Errorf("identity parse failed (%s): %w", path, err)
		}
	}
	id.DeviceName = strings.TrimSpace(id.DeviceName)
	if id.DeviceName == "" {
		id.DeviceName = DefaultName
	}
	return id, nil
}

func Validate(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not utf-8", ErrInvalidName)
	}
	return nil
}

// Save writes id atomically through a temp file in the same directory.
func Save(path string, id Identity) error {
	id.DeviceName = strings.TrimSpace(id.DeviceName)
	if err := Validate(id.DeviceName); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identity mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".identity-*.toml")
	if err != nil {
		return fmt.Errorf("identity temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(id); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("identity encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("identity rename: %w", err)
	}
	return nil
}

// Reset removes the stored identity so the next Load returns the default.
func Reset(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("identity reset (%s): %w", path, err)
	}
	return nil
}
