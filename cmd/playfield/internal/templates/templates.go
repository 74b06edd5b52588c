// Package templates provides embedded machine folders for `playfield init`.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/playfield/pkg/engine"
	"github.com/germanamz/playfield/pkg/machinedir"
)

//go:embed machines
var machineFS embed.FS

// TemplateMeta holds display metadata for a template.
type TemplateMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Template is an embedded machine folder: a config file plus sample scripts.
type Template struct {
	Meta    TemplateMeta
	Config  []byte
	Scripts map[string][]byte // file name to content
}

// List returns metadata for all available templates, sorted by name.
func List() []TemplateMeta {
	entries, err := machineFS.ReadDir("machines")
	if err != nil {
		return nil
	}

	var metas []TemplateMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := load(e.Name())
		if err != nil {
			continue
		}
		metas = append(metas, t.Meta)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}

// Get loads a template by name.
func Get(name string) (Template, error) {
	t, err := load(name)
	if err != nil {
		return Template{}, fmt.Errorf("templates: %q not found", name)
	}
	return t, nil
}

// Apply writes the template into the machine folder at root. Existing files
// are kept unless force is set.
func Apply(t Template, root string, force bool) error {
	dir := machinedir.New(root)

	if force {
		if err := os.MkdirAll(dir.ConfigDir(), 0o750); err != nil {
			return fmt.Errorf("templates: create config dir: %w", err)
		}
		if err := os.WriteFile(dir.ConfigPath(), t.Config, 0o644); err != nil { //nolint:gosec // config file, not secret
			return fmt.Errorf("templates: write config: %w", err)
		}
	}

	if err := machinedir.Bootstrap(dir, t.Config); err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	for name, content := range t.Scripts {
		p := filepath.Join(dir.ScriptsDir(), name)
		if !force {
			if _, err := os.Stat(p); err == nil {
				continue
			}
		}
		if err := os.WriteFile(p, content, 0o644); err != nil { //nolint:gosec // script file, not secret
			return fmt.Errorf("templates: write script %q: %w", name, err)
		}
	}

	return nil
}

// load reads a template folder and checks that its config is valid.
func load(name string) (Template, error) {
	root := path.Join("machines", name)

	data, err := machineFS.ReadFile(path.Join(root, "config.yaml"))
	if err != nil {
		return Template{}, err
	}

	var head struct {
		Template TemplateMeta `yaml:"template"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Template{}, err
	}

	cfg, err := engine.ParseConfig(data)
	if err != nil {
		return Template{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Template{}, err
	}

	t := Template{Meta: head.Template, Config: data, Scripts: map[string][]byte{}}

	scripts, err := fs.Glob(machineFS, path.Join(root, "scripts", "*.txt"))
	if err != nil {
		return Template{}, err
	}
	for _, s := range scripts {
		content, err := machineFS.ReadFile(s)
		if err != nil {
			return Template{}, err
		}
		t.Scripts[path.Base(s)] = content
	}

	return t, nil
}
