package engine

import "sync"

// Built-in mode kinds.
const (
	KindBasic    = "basic"
	KindCarousel = "carousel"
)

// ModeFactory creates a Mode from its configuration. The engine is passed so
// factories can reach the event bus, the variable stores and the logger.
type ModeFactory func(e *Engine, cfg ModeConfig) (Mode, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ModeFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factoryMu.Lock()
		defer factoryMu.Unlock()

		factories[KindBasic] = newBasicMode
		factories[KindCarousel] = newCarouselMode
	})
}

// RegisterModeKind registers a custom mode factory under the given kind.
// It can be called before New to extend the engine with additional modes.
func RegisterModeKind(kind string, factory ModeFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

func lookupModeKind(kind string) (ModeFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

// basicMode has no behaviour of its own; it only tracks being active so
// other configuration can key off its start and stop events.
type basicMode struct {
	name string
}

func newBasicMode(_ *Engine, cfg ModeConfig) (Mode, error) {
	return &basicMode{name: cfg.Name}, nil
}

func (m *basicMode) Name() string { return m.name }

func (m *basicMode) Start(Activation) (bool, error) { return true, nil }

func (m *basicMode) Stop() {}
