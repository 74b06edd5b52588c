package machinedir

import (
	"errors"
	"fmt"
	"os"
)

const gitignoreContent = ".env\n"

// EnsureStructure creates the config/ and scripts/ directories and the
// .gitignore file if they are missing. It is idempotent and does not write a
// config file.
func EnsureStructure(d Dir) error {
	for _, dir := range []string{d.ConfigDir(), d.ScriptsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("machinedir: create %s: %w", dir, err)
		}
	}

	if err := ensureGitignore(d); err != nil {
		return fmt.Errorf("machinedir: gitignore: %w", err)
	}

	return nil
}

// Bootstrap creates a machine folder from scratch and writes config as its
// config file. An existing config file is never overwritten.
func Bootstrap(d Dir, config []byte) error {
	if err := os.MkdirAll(d.Root(), 0o750); err != nil {
		return fmt.Errorf("machinedir: create root: %w", err)
	}

	if err := EnsureStructure(d); err != nil {
		return err
	}

	if err := MigrateConfig(d); err != nil {
		return err
	}

	if _, err := os.Stat(d.ConfigPath()); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("machinedir: stat config: %w", err)
	}

	if err := os.WriteFile(d.ConfigPath(), config, 0o600); err != nil {
		return fmt.Errorf("machinedir: write config: %w", err)
	}

	return nil
}

func ensureGitignore(d Dir) error {
	path := d.GitignorePath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(gitignoreContent), 0o600)
}
