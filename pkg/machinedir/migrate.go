package machinedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MigrateConfig moves a flat-layout config.yaml from the machine root into
// config/config.yaml. It is a no-op if the old file does not exist or the new
// file already exists.
func MigrateConfig(d Dir) error {
	oldPath := filepath.Join(d.Root(), "config.yaml")
	newPath := d.ConfigPath()

	if _, err := os.Stat(oldPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("machinedir: migrate config: stat old path: %w", err)
	}

	// Don't overwrite if the new location already has a file.
	if _, err := os.Stat(newPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("machinedir: migrate config: stat new path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0o750); err != nil {
		return fmt.Errorf("machinedir: migrate config: create dir: %w", err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("machinedir: migrate config: %w", err)
	}

	return nil
}
