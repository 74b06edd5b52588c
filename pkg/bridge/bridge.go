// Package bridge exposes an engine over a websocket so external clients, such
// as a media controller, can follow every event and inject commands.
//
// Each connection receives every event as a JSON object
//
//	{"event": "item_highlighted", "args": {...}, "time": "..."}
//
// and may send commands
//
//	{"type": "post", "event": "start_mode1", "args": {...}}
//	{"type": "switch", "switch": "s_flipper_left", "active": true}
//	{"type": "start_game"}
//	{"type": "set", "scope": "player", "var": "show_item4", "value": true}
//	{"type": "add", "scope": "machine", "var": "jackpots", "delta": 1}
//	{"type": "unset", "scope": "player", "var": "show_item4"}
//
// as well as "add_player", "next_player" and "end_game". JSON numbers arrive
// as float64.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/germanamz/playfield/pkg/condition"
	"github.com/germanamz/playfield/pkg/engine"
)

// Command types accepted from clients.
const (
	CommandPost       = "post"
	CommandSwitch     = "switch"
	CommandSet        = "set"
	CommandAdd        = "add"
	CommandUnset      = "unset"
	CommandStartGame  = "start_game"
	CommandAddPlayer  = "add_player"
	CommandNextPlayer = "next_player"
	CommandEndGame    = "end_game"
)

const defaultBuffer = 256

// Engine is the part of engine.Engine the bridge drives.
type Engine interface {
	Events() *engine.EventBus
	Post(name string, args map[string]any)
	Switch(name string, active bool)
	Set(scope, key string, value any) error
	Add(scope, key string, delta int) (any, error)
	Unset(scope, key string) error
	StartGame() (*engine.Game, error)
	AddPlayer() (int, error)
	NextPlayer() (int, error)
	EndGame() error
}

// Message is an event as sent to clients.
type Message struct {
	Event string         `json:"event"`
	Args  map[string]any `json:"args,omitempty"`
	Time  time.Time      `json:"time"`
}

// Command is a client request.
type Command struct {
	Type   string         `json:"type"`
	Event  string         `json:"event,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Switch string         `json:"switch,omitempty"`
	Active bool           `json:"active,omitempty"`
	Scope  string         `json:"scope,omitempty"` // player or machine
	Var    string         `json:"var,omitempty"`
	Value  any            `json:"value,omitempty"`
	Delta  int            `json:"delta,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithBuffer sets the per-connection event buffer. A client that falls
// further behind misses events.
func WithBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

// Handler is an http.Handler upgrading requests to event bridge connections.
type Handler struct {
	eng     Engine
	log     *slog.Logger
	buffer  int
	origins []string
}

// New creates a Handler bridging eng.
func New(eng Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:    eng,
		log:    slog.New(slog.DiscardHandler),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	log := h.log.With("remote", r.RemoteAddr)
	log.Info("client connected")

	err = h.serve(r.Context(), conn, log)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		log.Info("client disconnected")
	default:
		log.Warn("client dropped", "error", err)
	}
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	bus := h.eng.Events()
	sub := bus.Subscribe(h.buffer)
	defer bus.Unsubscribe(sub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.writeLoop(ctx, conn, sub) })
	g.Go(func() error { return h.readLoop(ctx, conn, log) })

	return g.Wait()
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *engine.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			msg := Message{Event: e.Name, Args: e.Args, Time: e.Timestamp}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return fmt.Errorf("bridge: write: %w", err)
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	for {
		var cmd Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return err
		}

		if err := h.dispatch(cmd); err != nil {
			log.Warn("command rejected", "type", cmd.Type, "error", err)
		}
	}
}

// dispatch applies a client command to the engine.
func (h *Handler) dispatch(cmd Command) error {
	switch cmd.Type {
	case CommandPost:
		if cmd.Event == "" {
			return errors.New("bridge: post: event is required")
		}
		h.eng.Post(cmd.Event, cmd.Args)
	case CommandSwitch:
		if cmd.Switch == "" {
			return errors.New("bridge: switch: switch is required")
		}
		h.eng.Switch(cmd.Switch, cmd.Active)
	case CommandSet, CommandAdd, CommandUnset:
		return h.variable(cmd)
	case CommandStartGame:
		_, err := h.eng.StartGame()
		return err
	case CommandAddPlayer:
		_, err := h.eng.AddPlayer()
		return err
	case CommandNextPlayer:
		_, err := h.eng.NextPlayer()
		return err
	case CommandEndGame:
		return h.eng.EndGame()
	default:
		return fmt.Errorf("bridge: unknown command type %q", cmd.Type)
	}
	return nil
}

func (h *Handler) variable(cmd Command) error {
	if cmd.Var == "" {
		return fmt.Errorf("bridge: %s: var is required", cmd.Type)
	}

	var scope string
	switch cmd.Scope {
	case "player", condition.ScopePlayer:
		scope = condition.ScopePlayer
	case condition.ScopeMachine:
		scope = condition.ScopeMachine
	default:
		return fmt.Errorf("bridge: %s: unknown scope %q", cmd.Type, cmd.Scope)
	}

	switch cmd.Type {
	case CommandSet:
		return h.eng.Set(scope, cmd.Var, cmd.Value)
	case CommandAdd:
		_, err := h.eng.Add(scope, cmd.Var, cmd.Delta)
		return err
	default:
		return h.eng.Unset(scope, cmd.Var)
	}
}
