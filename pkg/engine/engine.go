package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/germanamz/playfield/pkg/condition"
	"github.com/germanamz/playfield/pkg/state"
)

var (
	// ErrGameRunning is returned by StartGame while a game is in progress.
	ErrGameRunning = errors.New("engine: game already running")
	// ErrNoGame is returned by player operations when no game is running.
	ErrNoGame = errors.New("engine: no game running")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the engine and its modes.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEvaluator replaces the Lua condition evaluator.
func WithEvaluator(ev condition.Evaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.eval = ev
		}
	}
}

// Engine is the composition root that assembles the event bus, the variable
// stores and the configured modes.
//
// Post, Switch, Set and the game methods are the external entry points. They
// are serialised so each command, and every event it causes, completes
// before the next one starts.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	events  *EventBus
	eval    condition.Evaluator
	machine *state.Store
	modes   *Controller

	cmdMu sync.Mutex

	gameMu sync.RWMutex
	game   *Game
}

// New creates an Engine from the given configuration. It validates the config
// and builds every mode through its registered kind.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		log:    slog.New(slog.DiscardHandler),
		events: NewEventBus(),
		eval:   condition.NewLua(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.machine = state.New(cfg.MachineVars)
	e.machine.OnChange(e.varChanged("machine_var_", nil))
	e.modes = NewController(e.events, e.log)

	for _, mc := range cfg.Modes {
		factory, ok := lookupModeKind(mc.ResolvedKind())
		if !ok {
			return nil, fmt.Errorf("engine: mode %q: unknown kind %q", mc.Name, mc.ResolvedKind())
		}

		m, err := factory(e, mc)
		if err != nil {
			return nil, err
		}
		if err := e.modes.Add(m, mc.StartEvents, mc.StopEvents); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Modes returns the mode controller.
func (e *Engine) Modes() *Controller { return e.modes }

// Machine returns the machine variable store. Writes made directly on the
// store bypass command serialisation; use Set when several goroutines drive
// the engine.
func (e *Engine) Machine() *state.Store { return e.machine }

// Game returns the game in progress, or nil.
func (e *Engine) Game() *Game {
	e.gameMu.RLock()
	defer e.gameMu.RUnlock()

	return e.game
}

// Post publishes an event and runs everything it triggers.
func (e *Engine) Post(name string, args map[string]any) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.log.Debug("post", "event", name)
	e.events.Post(name, args)
}

// Switch posts the "<name>_active" or "<name>_inactive" event of a switch.
func (e *Engine) Switch(name string, active bool) {
	suffix := "_inactive"
	if active {
		suffix = "_active"
	}
	e.Post(name+suffix, map[string]any{"switch": name, "state": active})
}

// Set writes a variable in the given scope (condition.ScopePlayer for the
// current player, condition.ScopeMachine for the machine).
func (e *Engine) Set(scope, key string, value any) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	s, err := e.scope(scope)
	if err != nil {
		return err
	}
	s.Set(key, value)
	return nil
}

// Add increments a numeric variable by delta and returns its new value. A
// missing variable counts as zero.
func (e *Engine) Add(scope, key string, delta int) (any, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	s, err := e.scope(scope)
	if err != nil {
		return nil, err
	}
	v, err := s.Add(key, delta)
	if err != nil {
		return nil, fmt.Errorf("engine: %s.%s: %w", scope, key, err)
	}
	return v, nil
}

// Unset removes a variable. Conditions read a removed variable as nil.
func (e *Engine) Unset(scope, key string) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	s, err := e.scope(scope)
	if err != nil {
		return err
	}
	s.Delete(key)
	return nil
}

// scope resolves a variable scope to its store.
func (e *Engine) scope(name string) (*state.Store, error) {
	switch name {
	case condition.ScopeMachine:
		return e.machine, nil
	case condition.ScopePlayer:
		g := e.Game()
		if g == nil {
			return nil, ErrNoGame
		}
		return g.Player(), nil
	default:
		return nil, fmt.Errorf("engine: unknown variable scope %q", name)
	}
}

// Snapshot freezes the current player and machine variables for condition
// evaluation. The player scope is empty when no game is running.
func (e *Engine) Snapshot() condition.Snapshot {
	player := map[string]any{}
	if g := e.Game(); g != nil {
		if p := g.Player(); p != nil {
			player = p.Snapshot()
		}
	}

	return condition.Snapshot{
		condition.ScopePlayer:  player,
		condition.ScopeMachine: e.machine.Snapshot(),
	}
}

// StartGame begins a game with one player.
func (e *Engine) StartGame() (*Game, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.gameMu.Lock()
	if e.game != nil {
		e.gameMu.Unlock()
		return nil, ErrGameRunning
	}
	g := newGame(uuid.NewString())
	e.game = g
	e.gameMu.Unlock()

	e.log.Info("game started", "game", g.ID())
	e.events.Post(EventGameStarted, map[string]any{"game": g.ID()})
	e.addPlayer(g)
	e.events.Post(EventPlayerTurnStarted, map[string]any{"number": 1})

	return g, nil
}

// AddPlayer adds a player to the running game and returns its number.
func (e *Engine) AddPlayer() (int, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	g := e.Game()
	if g == nil {
		return 0, ErrNoGame
	}
	return e.addPlayer(g), nil
}

func (e *Engine) addPlayer(g *Game) int {
	p := state.New(e.cfg.PlayerVars)
	num := g.add(p)
	p.OnChange(e.varChanged("player_", map[string]any{"player_num": num}))

	e.events.Post(EventPlayerAdded, map[string]any{"num": num})
	return num
}

// NextPlayer passes the turn to the next player and returns its number.
func (e *Engine) NextPlayer() (int, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	g := e.Game()
	if g == nil {
		return 0, ErrNoGame
	}

	num := g.rotate()
	e.events.Post(EventPlayerTurnStarted, map[string]any{"number": num})
	return num, nil
}

// EndGame stops every active mode and ends the running game.
func (e *Engine) EndGame() error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.gameMu.Lock()
	g := e.game
	e.game = nil
	e.gameMu.Unlock()

	if g == nil {
		return ErrNoGame
	}

	e.modes.StopAll()
	e.log.Info("game ended", "game", g.ID())
	e.events.Post(EventGameEnded, map[string]any{"game": g.ID()})
	return nil
}

// Close stops every active mode.
func (e *Engine) Close() error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.modes.StopAll()
	return nil
}

// varChanged returns a store hook posting "<prefix><key>" for every change.
func (e *Engine) varChanged(prefix string, extra map[string]any) func(state.Change) {
	return func(c state.Change) {
		args := map[string]any{
			"value":      c.Value,
			"prev_value": c.Prev,
			"change":     c.Change,
		}
		for k, v := range extra {
			args[k] = v
		}
		e.events.Post(prefix+c.Key, args)
	}
}
