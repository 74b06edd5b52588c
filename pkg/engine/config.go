package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/playfield/pkg/condition"
)

// Config is the top-level machine configuration.
type Config struct {
	MachineVars map[string]any `yaml:"machine_vars"`
	PlayerVars  map[string]any `yaml:"player_vars"` // Defaults for every new player.
	Modes       []ModeConfig   `yaml:"modes"`
}

// ModeConfig describes one game mode.
type ModeConfig struct {
	Name string `yaml:"name"`
	// Kind selects the mode implementation. Empty means "carousel" when a
	// carousel block is present and "basic" otherwise.
	Kind        string          `yaml:"kind"`
	StartEvents []string        `yaml:"start_events"`
	StopEvents  []string        `yaml:"stop_events"`
	Carousel    *CarouselConfig `yaml:"carousel"`
}

// ResolvedKind returns Kind with the default applied.
func (m ModeConfig) ResolvedKind() string {
	switch {
	case m.Kind != "":
		return m.Kind
	case m.Carousel != nil:
		return KindCarousel
	default:
		return KindBasic
	}
}

// CarouselConfig holds the settings of a carousel mode.
type CarouselConfig struct {
	Items              []ItemConfig   `yaml:"items"`
	NextItemEvents     []EventBinding `yaml:"next_item_events"`
	PreviousItemEvents []EventBinding `yaml:"previous_item_events"`
	SelectItemEvents   []string       `yaml:"select_item_events"`
	BlockEvents        []string       `yaml:"block_events"`
	ReleaseEvents      []string       `yaml:"release_events"`
	HoldUntilRelease   bool           `yaml:"hold_until_release"`
	RememberPosition   bool           `yaml:"remember_position"`
	Cancel             *CancelConfig  `yaml:"cancel"`
}

// ItemConfig describes one selectable item. In YAML an item is either a bare
// name or a mapping.
type ItemConfig struct {
	Name      string         `yaml:"name"`
	Condition string         `yaml:"condition"`
	Metadata  map[string]any `yaml:"metadata"`
}

// UnmarshalYAML accepts a scalar item name or a full mapping.
func (i *ItemConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Name = node.Value
		return nil
	}

	type plain ItemConfig
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*i = ItemConfig(p)
	return nil
}

// EventBinding maps an event to a navigation command moving Step items; zero
// counts as one. In YAML a binding is either a bare event name or a mapping
// with event and step.
type EventBinding struct {
	Event string `yaml:"event"`
	Step  int    `yaml:"step"`
}

// UnmarshalYAML accepts a scalar event name or a full mapping.
func (b *EventBinding) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.Event = node.Value
		b.Step = 1
		return nil
	}

	type plain EventBinding
	p := plain{Step: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = EventBinding(p)
	return nil
}

// CancelConfig configures two-button cancel detection for a carousel.
type CancelConfig struct {
	Switches     []string `yaml:"switches"`
	Quorum       int      `yaml:"quorum"`
	Event        string   `yaml:"event"`
	ReleaseEvent string   `yaml:"release_event"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes after expanding environment
// variables.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	names := make(map[string]struct{}, len(c.Modes))
	for _, m := range c.Modes {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mode name is required")
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate mode name %q", m.Name)
		}
		names[m.Name] = struct{}{}

		kind := m.ResolvedKind()
		if _, ok := lookupModeKind(kind); !ok {
			return fmt.Errorf("engine: config: mode %q: unknown kind %q", m.Name, kind)
		}

		if kind == KindCarousel {
			if m.Carousel == nil {
				return fmt.Errorf("engine: config: mode %q: carousel settings are required", m.Name)
			}
			if err := m.Carousel.validate(); err != nil {
				return fmt.Errorf("engine: config: mode %q: %w", m.Name, err)
			}
		}
	}

	return nil
}

func (c *CarouselConfig) validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}

	checker := condition.NewLua()
	items := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if it.Name == "" {
			return fmt.Errorf("item name is required")
		}
		if _, dup := items[it.Name]; dup {
			return fmt.Errorf("duplicate item %q", it.Name)
		}
		items[it.Name] = struct{}{}

		if it.Condition != "" {
			if err := checker.Check(it.Condition); err != nil {
				return fmt.Errorf("item %q: %w", it.Name, err)
			}
		}
	}

	for _, b := range append(append([]EventBinding(nil), c.NextItemEvents...), c.PreviousItemEvents...) {
		if b.Event == "" {
			return fmt.Errorf("navigation binding without event")
		}
		if b.Step < 0 {
			return fmt.Errorf("binding %q: negative step %d", b.Event, b.Step)
		}
	}

	if c.Cancel != nil {
		if len(c.Cancel.Switches) == 0 {
			return fmt.Errorf("cancel: at least one switch is required")
		}
		if c.Cancel.Quorum < 0 || c.Cancel.Quorum > len(c.Cancel.Switches) {
			return fmt.Errorf("cancel: quorum %d out of range for %d switches", c.Cancel.Quorum, len(c.Cancel.Switches))
		}
	}

	// A held move only clears through a released switch or a release event.
	if c.HoldUntilRelease && c.Cancel == nil && len(c.ReleaseEvents) == 0 {
		return fmt.Errorf("hold_until_release requires cancel switches or release_events")
	}

	return nil
}
