// Package machinedir encapsulates the path knowledge of a machine folder. It
// provides a Dir value object with accessors for the config file, the event
// scripts and the local environment file.
package machinedir

import (
	"os"
	"path/filepath"
	"sort"
)

// Dir is a value object that resolves paths within a machine folder.
type Dir struct {
	root string
}

// New creates a Dir rooted at the given path. The path is converted to an
// absolute path. No I/O is performed; use EnsureStructure or Bootstrap to
// create the layout.
func New(root string) Dir {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	return Dir{root: abs}
}

// Root returns the absolute path to the machine folder.
func (d Dir) Root() string { return d.root }

// ConfigDir returns the path to the config directory.
func (d Dir) ConfigDir() string { return filepath.Join(d.root, "config") }

// ConfigPath returns the path to the machine config file.
func (d Dir) ConfigPath() string { return filepath.Join(d.root, "config", "config.yaml") }

// ScriptsDir returns the path to the event scripts directory.
func (d Dir) ScriptsDir() string { return filepath.Join(d.root, "scripts") }

// EnvPath returns the path to the local (gitignored) environment file.
func (d Dir) EnvPath() string { return filepath.Join(d.root, ".env") }

// GitignorePath returns the path to the machine folder's .gitignore.
func (d Dir) GitignorePath() string { return filepath.Join(d.root, ".gitignore") }

// Scripts returns sorted paths of all *.txt files in the scripts directory.
// Returns nil if the directory does not exist.
func (d Dir) Scripts() []string {
	matches, err := filepath.Glob(filepath.Join(d.ScriptsDir(), "*.txt"))
	if err != nil || len(matches) == 0 {
		return nil
	}

	sort.Strings(matches)

	return matches
}

// Script resolves a script name to a path. Bare names are looked up in the
// scripts directory, with or without the .txt extension.
func (d Dir) Script(name string) string {
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".txt"
	}

	return filepath.Join(d.ScriptsDir(), name)
}

// Exists reports whether the machine folder exists on disk.
func (d Dir) Exists() bool {
	info, err := os.Stat(d.root)

	return err == nil && info.IsDir()
}
