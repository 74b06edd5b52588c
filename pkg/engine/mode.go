package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownMode is returned when a mode name is not registered.
var ErrUnknownMode = errors.New("engine: unknown mode")

// Mode is a unit of game behaviour that can be started and stopped.
type Mode interface {
	Name() string
	// Start activates the mode. Returning false keeps the mode inactive
	// without it being an error, e.g. a carousel with nothing to show.
	Start(a Activation) (bool, error)
	// Stop deactivates the mode and releases its event handlers.
	Stop()
}

// Activation identifies one run of a mode.
type Activation struct {
	ID string
	// Stop ends this activation. It is a no-op once the mode has been
	// stopped or restarted.
	Stop func()
}

type modeEntry struct {
	mode         Mode
	activationID string
	starting     bool
}

// Controller owns the lifecycle of the configured modes: it starts and stops
// them on their configured events and tracks which are active.
type Controller struct {
	bus *EventBus
	log *slog.Logger

	mu    sync.Mutex
	modes map[string]*modeEntry
	order []string
}

// NewController creates a Controller posting lifecycle events to bus.
func NewController(bus *EventBus, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		bus:   bus,
		log:   log,
		modes: make(map[string]*modeEntry),
	}
}

// Add registers m and binds its start and stop events.
func (c *Controller) Add(m Mode, startEvents, stopEvents []string) error {
	name := m.Name()

	c.mu.Lock()
	if _, dup := c.modes[name]; dup {
		c.mu.Unlock()
		return fmt.Errorf("engine: mode %q already registered", name)
	}
	c.modes[name] = &modeEntry{mode: m}
	c.order = append(c.order, name)
	c.mu.Unlock()

	for _, ev := range startEvents {
		c.bus.On(ev, func(Event) {
			if err := c.Start(name); err != nil {
				c.log.Error("mode start failed", "mode", name, "event", ev, "error", err)
			}
		})
	}
	for _, ev := range stopEvents {
		c.bus.On(ev, func(Event) {
			if err := c.Stop(name); err != nil {
				c.log.Error("mode stop failed", "mode", name, "event", ev, "error", err)
			}
		})
	}

	return nil
}

// Start activates the named mode. Starting an active mode does nothing.
func (c *Controller) Start(name string) error {
	c.mu.Lock()
	entry, ok := c.modes[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	if entry.activationID != "" || entry.starting {
		c.mu.Unlock()
		return nil
	}
	entry.starting = true
	c.mu.Unlock()

	id := uuid.NewString()
	started, err := entry.mode.Start(Activation{
		ID:   id,
		Stop: func() { c.stopActivation(name, id) },
	})

	c.mu.Lock()
	entry.starting = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("engine: start mode %q: %w", name, err)
	}
	if !started {
		c.mu.Unlock()
		c.log.Info("mode did not start", "mode", name)
		return nil
	}
	entry.activationID = id
	c.mu.Unlock()

	c.log.Info("mode started", "mode", name, "activation", id)
	c.bus.Post("mode_"+name+"_started", map[string]any{"activation": id})

	return nil
}

// Stop deactivates the named mode. Stopping an inactive mode does nothing.
func (c *Controller) Stop(name string) error {
	c.mu.Lock()
	_, ok := c.modes[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}

	c.stopActivation(name, "")
	return nil
}

// stopActivation stops name if it is active and, when id is set, still on
// that activation.
func (c *Controller) stopActivation(name, id string) {
	c.mu.Lock()
	entry := c.modes[name]
	current := entry.activationID
	if current == "" || (id != "" && current != id) {
		c.mu.Unlock()
		return
	}
	entry.activationID = ""
	c.mu.Unlock()

	entry.mode.Stop()

	c.log.Info("mode stopped", "mode", name, "activation", current)
	c.bus.Post("mode_"+name+"_stopped", map[string]any{"activation": current})
}

// StopAll stops every active mode in reverse registration order.
func (c *Controller) StopAll() {
	c.mu.Lock()
	names := append([]string(nil), c.order...)
	c.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		c.stopActivation(names[i], "")
	}
}

// IsActive reports whether the named mode is running.
func (c *Controller) IsActive(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.modes[name]
	return ok && entry.activationID != ""
}

// Active returns the sorted names of the running modes.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for name, entry := range c.modes {
		if entry.activationID != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Mode returns the named mode.
func (c *Controller) Mode(name string) (Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.modes[name]
	if !ok {
		return nil, false
	}
	return entry.mode, true
}

// Names returns the registered mode names in registration order.
func (c *Controller) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.order...)
}
