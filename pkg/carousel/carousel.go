// Package carousel implements a circular selection list navigated with
// discrete inputs, typically the flipper buttons of a pinball machine.
//
// An Engine filters its configured items once per session, highlights the
// first one, moves the highlight with Advance, and posts an item-specific
// event on Select before deactivating. Two-flipper presses are treated as a
// cancel: the cancel-vote accumulator blocks navigation until every source is
// released, so a sloppy double press never reads as a move.
//
// Engine is not safe for concurrent use. Each command runs to completion and
// posts its notifications synchronously before returning.
package carousel

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/germanamz/playfield/pkg/condition"
)

// Notification names that do not depend on the carousel name.
const (
	EventItemHighlighted = "item_highlighted"
)

// Sink receives the notifications posted by an Engine.
type Sink interface {
	Post(name string, args map[string]any)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(name string, args map[string]any)

// Post calls the underlying function.
func (f SinkFunc) Post(name string, args map[string]any) { f(name, args) }

// Config describes a carousel.
type Config struct {
	Name  string
	Items []Item
	// HoldUntilRelease blocks the carousel after every move until the
	// cancel sources are all released or Release is called.
	HoldUntilRelease bool
	// RememberPosition starts the next session on the item highlighted when
	// the previous session ended, if that item is still present.
	RememberPosition bool
	Cancel           CancelConfig
}

// State is a read-only view of an Engine.
type State struct {
	Active    bool
	Index     int
	Item      string
	Direction Direction
	Blocked   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine is the carousel state machine.
type Engine struct {
	cfg   Config
	eval  condition.Evaluator
	sink  Sink
	log   *slog.Logger
	votes *votes

	active     bool
	live       []Item
	index      int
	committed  Direction
	blocked    bool
	pinned     bool // blocked by Block; only Release clears it
	remembered string
}

// New validates cfg and returns an inactive Engine. eval may be nil when no
// item carries a condition.
func New(cfg Config, eval condition.Evaluator, sink Sink, opts ...Option) (*Engine, error) {
	if err := validate(cfg, eval); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: %q: sink is required", ErrInvalidConfig, cfg.Name)
	}

	if cfg.Cancel.Event == "" {
		cfg.Cancel.Event = cfg.Name + "_cancel"
	}
	if cfg.Cancel.ReleaseEvent == "" {
		cfg.Cancel.ReleaseEvent = cfg.Name + "_released"
	}

	e := &Engine{
		cfg:   cfg,
		eval:  eval,
		sink:  sink,
		log:   slog.New(slog.DiscardHandler),
		votes: newVotes(cfg.Cancel),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("carousel", cfg.Name)

	return e, nil
}

func validate(cfg Config, eval condition.Evaluator) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if len(cfg.Items) == 0 {
		return fmt.Errorf("%w: %q: at least one item is required", ErrInvalidConfig, cfg.Name)
	}

	seen := make(map[string]struct{}, len(cfg.Items))
	for _, it := range cfg.Items {
		if it.Name == "" {
			return fmt.Errorf("%w: %q: item name is required", ErrInvalidConfig, cfg.Name)
		}
		if _, dup := seen[it.Name]; dup {
			return fmt.Errorf("%w: %q: duplicate item %q", ErrInvalidConfig, cfg.Name, it.Name)
		}
		seen[it.Name] = struct{}{}

		if it.Condition != "" && eval == nil {
			return fmt.Errorf("%w: %q: item %q has a condition but no evaluator was given", ErrInvalidConfig, cfg.Name, it.Name)
		}
	}

	c := cfg.Cancel
	if c.Quorum < 0 || c.Quorum > len(c.Sources) {
		return fmt.Errorf("%w: %q: cancel quorum %d out of range for %d sources", ErrInvalidConfig, cfg.Name, c.Quorum, len(c.Sources))
	}

	return nil
}

// Name returns the carousel name.
func (e *Engine) Name() string { return e.cfg.Name }

// State returns the current state.
func (e *Engine) State() State {
	s := State{
		Active:    e.active,
		Index:     e.index,
		Direction: e.committed,
		Blocked:   e.blocked,
	}
	if e.active {
		s.Item = e.live[e.index].Name
	}
	return s
}

// Items returns the live item list of the current session.
func (e *Engine) Items() []Item {
	return slices.Clone(e.live)
}

// Start begins a fresh session. Items are filtered against vars once; the
// result holds until the next Start. It returns false, after posting
// "<carousel>_items_empty", when no item survives the filter. A previous
// session, including any block, is discarded.
func (e *Engine) Start(vars condition.Snapshot) (bool, error) {
	e.reset()

	live, err := e.filter(vars)
	if err != nil {
		return false, err
	}

	if len(live) == 0 {
		e.log.Info("no items available")
		e.sink.Post(e.cfg.Name+"_items_empty", nil)
		return false, nil
	}

	e.live = live
	e.active = true

	if e.cfg.RememberPosition && e.remembered != "" {
		if i := slices.IndexFunc(live, func(it Item) bool { return it.Name == e.remembered }); i >= 0 {
			e.index = i
		}
	}

	e.log.Debug("started", "items", len(live), "index", e.index)
	e.highlight()

	return true, nil
}

// Stop ends the session. It is a no-op when inactive.
func (e *Engine) Stop() {
	if !e.active {
		return
	}
	e.remember()
	e.reset()
	e.log.Debug("stopped")
}

// Advance moves the highlight step items in dir, wrapping around the ends.
// Steps below one count as one. Input is ignored while inactive or blocked.
func (e *Engine) Advance(dir Direction, step int) {
	if !e.active || dir == None {
		return
	}
	if e.blocked {
		e.log.Debug("ignoring move while blocked", "direction", dir.String(), "committed", e.committed.String())
		return
	}
	if step < 1 {
		step = 1
	}

	n := len(e.live)
	delta := step % n
	if dir == Backward {
		delta = -delta
	}
	e.index = ((e.index+delta)%n + n) % n
	e.committed = dir

	if e.cfg.HoldUntilRelease {
		e.blocked = true
	}

	e.highlight()
}

// Select posts the selection events for the highlighted item and ends the
// session. It returns false when inactive or blocked.
func (e *Engine) Select() (Item, bool) {
	if !e.active || e.blocked {
		return Item{}, false
	}

	item := e.live[e.index]
	e.remember()
	e.reset()

	e.log.Info("item selected", "item", item.Name)
	e.sink.Post(fmt.Sprintf("%s_%s_selected", e.cfg.Name, item.Name), nil)
	e.sink.Post(e.cfg.Name+"_item_selected", map[string]any{
		"carousel": e.cfg.Name,
		"item":     item.Name,
	})

	return item, true
}

// Block suppresses navigation and selection until Release. Releasing the
// cancel sources does not clear it. It posts nothing, and it is a no-op when
// a cancel or a held move already blocks the carousel.
func (e *Engine) Block() {
	if !e.active || e.blocked {
		return
	}
	e.blocked = true
	e.pinned = true
	e.log.Debug("blocked")
}

// Release clears a block and resets the committed direction.
func (e *Engine) Release() {
	if !e.active || !e.blocked {
		return
	}
	e.release()
}

// Edge feeds a raw switch transition into the cancel-vote accumulator.
// Untracked sources and input while inactive are ignored.
func (e *Engine) Edge(source string, active bool) {
	if !e.active || !e.votes.record(source, active) {
		return
	}

	held := e.votes.count()
	switch {
	case active && !e.votes.tripped && held >= e.votes.quorum:
		e.votes.tripped = true
		e.blocked = true
		e.log.Debug("cancel", "held", held)
		e.sink.Post(e.cfg.Cancel.Event, map[string]any{"carousel": e.cfg.Name})
	case held == 0 && e.blocked && !e.pinned:
		e.release()
	case held == 0:
		e.votes.tripped = false
	}
}

func (e *Engine) release() {
	e.blocked = false
	e.pinned = false
	e.committed = None
	e.votes.tripped = false
	e.log.Debug("released")
	e.sink.Post(e.cfg.Cancel.ReleaseEvent, map[string]any{"carousel": e.cfg.Name})
}

func (e *Engine) highlight() {
	item := e.live[e.index]
	dir := e.committed.arg()

	e.sink.Post(fmt.Sprintf("%s_%s_highlighted", e.cfg.Name, item.Name), map[string]any{
		"direction": dir,
	})
	e.sink.Post(EventItemHighlighted, map[string]any{
		"carousel":  e.cfg.Name,
		"item":      item.Name,
		"direction": dir,
	})
}

func (e *Engine) filter(vars condition.Snapshot) ([]Item, error) {
	live := make([]Item, 0, len(e.cfg.Items))
	for _, it := range e.cfg.Items {
		if it.Condition == "" {
			live = append(live, it)
			continue
		}

		ok, err := e.eval.Evaluate(it.Condition, vars)
		if err != nil {
			return nil, &ConditionError{
				Carousel: e.cfg.Name,
				Item:     it.Name,
				Expr:     it.Condition,
				Err:      err,
			}
		}
		if ok {
			live = append(live, it)
		}
	}
	return live, nil
}

func (e *Engine) remember() {
	if e.cfg.RememberPosition && e.active {
		e.remembered = e.live[e.index].Name
	}
}

// reset returns the engine to the inactive initial state.
func (e *Engine) reset() {
	e.active = false
	e.live = nil
	e.index = 0
	e.committed = None
	e.blocked = false
	e.pinned = false
	e.votes.reset()
}
