package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Check reports keys the loader would silently ignore, such as a misspelled
// section or option. Load stays lenient; configgen -validate runs both.
func Check(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config check failed (%s): %w", path, err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	var raw fileConfig
	if err := dec.Decode(&raw); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config check failed (%s): unknown keys:\n%s", path, strict.String())
		}
		return fmt.Errorf("config check failed (%s): %w", path, err)
	}
	return nil
}
